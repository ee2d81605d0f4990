// Package observability wires the prometheus metrics exporter and the otel
// tracer used around turns, LLM calls, tool executions, and HTTP requests.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics creates the exporter and every instrument. The exporter
// registers with the default prometheus registry, which Handler serves.
func InitMetrics() (*Metrics, error) {
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("tandem")

	turnDuration, err := meter.Float64Histogram(
		"tandem_turn_duration_seconds",
		metric.WithDescription("Conversation turn duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn duration histogram: %w", err)
	}

	turnRounds, err := meter.Int64Histogram(
		"tandem_turn_rounds",
		metric.WithDescription("LLM rounds used per turn"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn rounds histogram: %w", err)
	}

	turnsTotal, err := meter.Int64Counter(
		"tandem_turns_total",
		metric.WithDescription("Total conversation turns"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turns counter: %w", err)
	}

	turnErrors, err := meter.Int64Counter(
		"tandem_turn_errors_total",
		metric.WithDescription("Total turns that ended in an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn errors counter: %w", err)
	}

	tokensUsed, err := meter.Int64Counter(
		"tandem_tokens_used_total",
		metric.WithDescription("Total tokens consumed across turns"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens counter: %w", err)
	}

	toolDuration, err := meter.Float64Histogram(
		"tandem_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	toolCalls, err := meter.Int64Counter(
		"tandem_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	toolErrors, err := meter.Int64Counter(
		"tandem_tool_errors_total",
		metric.WithDescription("Total tool calls that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"tandem_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmInputTokens, err := meter.Int64Counter(
		"tandem_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	llmOutputTokens, err := meter.Int64Counter(
		"tandem_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	llmErrors, err := meter.Int64Counter(
		"tandem_llm_errors_total",
		metric.WithDescription("Total failed LLM requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	httpDuration, err := meter.Float64Histogram(
		"tandem_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	httpRequests, err := meter.Int64Counter(
		"tandem_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	return &Metrics{
		turnDuration:    turnDuration,
		turnRounds:      turnRounds,
		turnsTotal:      turnsTotal,
		turnErrors:      turnErrors,
		tokensUsed:      tokensUsed,
		toolDuration:    toolDuration,
		toolCalls:       toolCalls,
		toolErrors:      toolErrors,
		llmDuration:     llmDuration,
		llmInputTokens:  llmInputTokens,
		llmOutputTokens: llmOutputTokens,
		llmErrors:       llmErrors,
		httpDuration:    httpDuration,
		httpRequests:    httpRequests,
	}, nil
}

// Handler serves the scrape endpoint. A nil receiver answers 503 so the
// route stays mounted when metrics failed to initialize.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.Handler()
}
