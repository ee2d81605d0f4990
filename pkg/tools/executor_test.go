package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tandem-dev/tandem/pkg/protocol"
)

func TestExecute_UnknownTool(t *testing.T) {
	reg := NewRegistry()
	execCtx := NewExecContext(t.TempDir(), reg)

	results := Execute(context.Background(), reg, []protocol.ToolInvocation{
		{ID: "call_1", Name: "teleport"},
	}, execCtx)

	if len(results) != 1 {
		t.Fatalf("Execute() returned %d results, want 1", len(results))
	}
	res := results[0]
	if !res.IsError {
		t.Fatal("Execute() unknown tool IsError = false, want true")
	}
	want := "Unknown tool: teleport. Use load_tools to see available tools and load the ones you need."
	if res.Error != want {
		t.Errorf("Execute() error = %q, want %q", res.Error, want)
	}
	if res.ID != "call_1" || res.Name != "teleport" {
		t.Errorf("Execute() result identity = %s/%s, want call_1/teleport", res.ID, res.Name)
	}
}

func TestExecute_NotLoaded(t *testing.T) {
	reg := DefaultRegistry()
	execCtx := NewExecContext(t.TempDir(), reg)

	results := Execute(context.Background(), reg, []protocol.ToolInvocation{
		{ID: "call_1", Name: "read_file", Input: map[string]any{"path": "main.go"}},
	}, execCtx)

	res := results[0]
	if !res.IsError {
		t.Fatal("Execute() unloaded tool IsError = false, want true")
	}
	want := `Tool read_file is not loaded. Use load_tools({category: "file_ops"}) to load it first.`
	if res.Error != want {
		t.Errorf("Execute() error = %q, want %q", res.Error, want)
	}
}

func TestExecute_MetaAlwaysCallable(t *testing.T) {
	reg := DefaultRegistry()
	execCtx := NewExecContext(t.TempDir(), reg)

	results := Execute(context.Background(), reg, []protocol.ToolInvocation{
		{ID: "call_1", Name: "load_tools"},
	}, execCtx)

	if results[0].IsError {
		t.Errorf("Execute(load_tools) without loading IsError = true: %s", results[0].Error)
	}
}

func TestExecute_SequentialOrder(t *testing.T) {
	reg := NewRegistry()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		err := reg.Register(&Definition{
			Name:        name,
			Description: "records call order",
			Category:    CategoryMeta,
			Schema:      map[string]any{"type": "object"},
			Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
				order = append(order, name)
				return name, nil
			},
		})
		if err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}
	execCtx := NewExecContext(t.TempDir(), reg)

	results := Execute(context.Background(), reg, []protocol.ToolInvocation{
		{ID: "a", Name: "third"},
		{ID: "b", Name: "first"},
		{ID: "c", Name: "second"},
	}, execCtx)

	if strings.Join(order, ",") != "third,first,second" {
		t.Errorf("handlers ran in order %v, want invocation order", order)
	}
	if results[0].ID != "a" || results[1].ID != "b" || results[2].ID != "c" {
		t.Errorf("results out of order: %s,%s,%s", results[0].ID, results[1].ID, results[2].ID)
	}
}

func TestExecute_HandlerError(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&Definition{
		Name:        "explode",
		Description: "always fails",
		Category:    CategoryMeta,
		Schema:      map[string]any{"type": "object"},
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			return nil, errors.New("boom")
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	execCtx := NewExecContext(t.TempDir(), reg)

	results := Execute(context.Background(), reg, []protocol.ToolInvocation{
		{ID: "call_1", Name: "explode"},
	}, execCtx)

	if !results[0].IsError || results[0].Error != "boom" {
		t.Errorf("Execute() = %+v, want IsError with boom", results[0])
	}
}

func TestExecute_CancelFillsRemainder(t *testing.T) {
	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	err := reg.Register(&Definition{
		Name:        "trip",
		Description: "cancels the batch context",
		Category:    CategoryMeta,
		Schema:      map[string]any{"type": "object"},
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			cancel()
			return "done", nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	execCtx := NewExecContext(t.TempDir(), reg)

	results := Execute(ctx, reg, []protocol.ToolInvocation{
		{ID: "a", Name: "trip"},
		{ID: "b", Name: "trip"},
		{ID: "c", Name: "trip"},
	}, execCtx)

	if len(results) != 3 {
		t.Fatalf("Execute() returned %d results, want one per invocation", len(results))
	}
	if results[0].IsError {
		t.Errorf("first result IsError = true: %s", results[0].Error)
	}
	for _, res := range results[1:] {
		if !res.IsError || res.Error != "Aborted by user" {
			t.Errorf("result %s = %+v, want aborted error", res.ID, res)
		}
	}
}

func TestExecute_Duration(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&Definition{
		Name:        "sleepy",
		Description: "sleeps briefly",
		Category:    CategoryMeta,
		Schema:      map[string]any{"type": "object"},
		Handler: func(ctx context.Context, input map[string]any, execCtx *ExecContext) (any, error) {
			time.Sleep(5 * time.Millisecond)
			return "ok", nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	execCtx := NewExecContext(t.TempDir(), reg)

	results := Execute(context.Background(), reg, []protocol.ToolInvocation{
		{ID: "a", Name: "sleepy"},
		{ID: "b", Name: "no_such_tool"},
	}, execCtx)

	if results[0].Duration <= 0 {
		t.Errorf("handler Duration = %v, want > 0", results[0].Duration)
	}
	if results[1].Duration != 0 {
		t.Errorf("catalog rejection Duration = %v, want 0", results[1].Duration)
	}
}

func TestFormatForLLM(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want string
	}{
		{
			name: "error result",
			res:  Result{IsError: true, Error: "file not found"},
			want: "Error: file not found",
		},
		{
			name: "nil value",
			res:  Result{Value: nil},
			want: "null",
		},
		{
			name: "string passthrough",
			res:  Result{Value: "already text"},
			want: "already text",
		},
		{
			name: "object pretty printed",
			res:  Result{Value: map[string]any{"path": "main.go"}},
			want: "{\n  \"path\": \"main.go\"\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatForLLM(tt.res); got != tt.want {
				t.Errorf("FormatForLLM() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 50); got != "short" {
		t.Errorf("truncateText(short) = %q, want unchanged", got)
	}
	long := strings.Repeat("x", 60)
	got := truncateText(long, 50)
	if len(got) != 50 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncateText() = %q (len %d), want 50 chars ending in ...", got, len(got))
	}
}
