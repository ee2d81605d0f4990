package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tandem-dev/tandem/pkg/protocol"
)

// Execute runs a batch of invocations sequentially, in input order, and
// returns one result per invocation. Unknown and unloaded tools produce
// error results that steer the model toward load_tools; they never abort
// the batch. Once ctx is cancelled the remaining invocations resolve to
// aborted error results, keeping results paired with invocations by
// position.
func Execute(ctx context.Context, reg *Registry, invocations []protocol.ToolInvocation, execCtx *ExecContext) []Result {
	results := make([]Result, 0, len(invocations))
	for _, inv := range invocations {
		if ctx.Err() != nil {
			results = append(results, Result{ID: inv.ID, Name: inv.Name, IsError: true, Error: "Aborted by user"})
			continue
		}
		results = append(results, executeOne(ctx, reg, inv, execCtx))
	}
	return results
}

func executeOne(ctx context.Context, reg *Registry, inv protocol.ToolInvocation, execCtx *ExecContext) Result {
	def, ok := reg.Get(inv.Name)
	if !ok {
		return Result{
			ID:      inv.ID,
			Name:    inv.Name,
			IsError: true,
			Error:   fmt.Sprintf("Unknown tool: %s. Use load_tools to see available tools and load the ones you need.", inv.Name),
		}
	}
	if def.Category != CategoryMeta && !execCtx.IsLoaded(inv.Name) {
		return Result{
			ID:      inv.ID,
			Name:    inv.Name,
			IsError: true,
			Error:   fmt.Sprintf("Tool %s is not loaded. Use load_tools({category: %q}) to load it first.", inv.Name, string(def.Category)),
		}
	}

	start := time.Now()
	value, err := def.Handler(ctx, inv.Input, execCtx)
	elapsed := time.Since(start)
	if err != nil {
		return Result{ID: inv.ID, Name: inv.Name, IsError: true, Error: err.Error(), Duration: elapsed}
	}
	return Result{ID: inv.ID, Name: inv.Name, Value: value, Duration: elapsed}
}

// FormatForLLM renders a result as the text fed back to the model. Errors
// become "Error: ...", strings pass through untouched, everything else is
// pretty-printed JSON.
func FormatForLLM(res Result) string {
	if res.IsError {
		return "Error: " + res.Error
	}
	switch v := res.Value.(type) {
	case nil:
		return "null"
	case string:
		return v
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
