package tools

import (
	"context"
	"testing"
)

// callTool runs a registered tool's handler directly, bypassing the
// loaded-tools gate that Execute enforces.
func callTool(t *testing.T, execCtx *ExecContext, name string, input map[string]any) (any, error) {
	t.Helper()
	def, ok := execCtx.Registry.Get(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	return def.Handler(context.Background(), input, execCtx)
}

func asMap(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want map[string]any", v)
	}
	return m
}

func newTestContext(t *testing.T) *ExecContext {
	t.Helper()
	return NewExecContext(t.TempDir(), DefaultRegistry())
}
