package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInitMetrics(t *testing.T) {
	metrics, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics() error = %v", err)
	}

	// Recording must not panic on any path.
	ctx := context.Background()
	metrics.RecordTurn(ctx, 120*time.Millisecond, 2, 340, nil)
	metrics.RecordTurn(ctx, time.Second, 20, 0, errors.New("budget"))
	metrics.RecordToolExecution(ctx, "read_file", 3*time.Millisecond, nil)
	metrics.RecordToolExecution(ctx, "run_shell", time.Second, errors.New("blocked"))
	metrics.RecordLLMCall(ctx, "anthropic/claude-sonnet-4", 800*time.Millisecond, 1200, 150, nil)
	metrics.RecordHTTPRequest(ctx, "GET", "/api/sessions", 200, time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Errorf("metrics handler status = %d, want 200", rec.Code)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics
	ctx := context.Background()

	metrics.RecordTurn(ctx, time.Second, 1, 10, nil)
	metrics.RecordToolExecution(ctx, "grep", time.Second, nil)
	metrics.RecordLLMCall(ctx, "m", time.Second, 1, 1, nil)
	metrics.RecordHTTPRequest(ctx, "GET", "/", 200, time.Second)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 503 {
		t.Errorf("nil metrics handler status = %d, want 503", rec.Code)
	}
}

func TestGetTracer(t *testing.T) {
	tracer := GetTracer("agent")
	_, span := tracer.Start(context.Background(), "turn")
	span.End()
}
