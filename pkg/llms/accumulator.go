package llms

import (
	"sort"

	"github.com/google/uuid"

	"github.com/tandem-dev/tandem/pkg/protocol"
)

// toolCallDelta is one streamed tool-call fragment. The upstream protocol
// keys fragments by index; id and name appear only on a call's first
// fragment and arguments arrive as string pieces to concatenate.
type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type pendingToolCall struct {
	index     int
	id        string
	name      string
	arguments string
}

// toolCallAccumulator reassembles indexed fragments into complete calls.
type toolCallAccumulator struct {
	calls map[int]*pendingToolCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int]*pendingToolCall)}
}

// add merges one fragment. started reports that this index was first seen by
// this fragment; the returned call reflects the merged state.
func (a *toolCallAccumulator) add(delta toolCallDelta) (call *pendingToolCall, started bool) {
	call, ok := a.calls[delta.Index]
	if !ok {
		call = &pendingToolCall{index: delta.Index}
		a.calls[delta.Index] = call
		started = true
	}
	if call.id == "" && delta.ID != "" {
		call.id = delta.ID
	}
	if call.name == "" && delta.Function.Name != "" {
		call.name = delta.Function.Name
	}
	call.arguments += delta.Function.Arguments
	return call, started
}

func (a *toolCallAccumulator) empty() bool {
	return len(a.calls) == 0
}

// finalize returns the assembled calls sorted by index. Calls the upstream
// never gave an id receive a generated one so results stay pairable.
func (a *toolCallAccumulator) finalize() []protocol.ToolCall {
	pending := make([]*pendingToolCall, 0, len(a.calls))
	for _, c := range a.calls {
		pending = append(pending, c)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].index < pending[j].index })

	out := make([]protocol.ToolCall, 0, len(pending))
	for _, c := range pending {
		id := c.id
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		out = append(out, protocol.NewToolCall(id, c.name, c.arguments))
	}
	return out
}
