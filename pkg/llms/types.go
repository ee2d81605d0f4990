// Package llms contains the provider adapter: it turns one outbound message
// list plus a tool catalog into a single streamed LLM turn.
package llms

import (
	"context"
	"errors"

	"github.com/tandem-dev/tandem/pkg/protocol"
)

// ErrAborted reports a turn stopped by user cancellation. Its text is the
// message streaming clients receive.
var ErrAborted = errors.New("Aborted by user")

// ToolDefinition is the provider-facing description of one callable tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type StreamEventType string

const (
	StreamTextDelta        StreamEventType = "text_delta"
	StreamToolCallStart    StreamEventType = "tool_call_start"
	StreamToolCallDelta    StreamEventType = "tool_call_delta"
	StreamToolCallComplete StreamEventType = "tool_call_complete"
	StreamUsage            StreamEventType = "usage"
	StreamTurnComplete     StreamEventType = "turn_complete"
	StreamError            StreamEventType = "error"
)

// StreamEvent is one element of the adapter's event stream. The stream for a
// turn is: zero or more text_delta; per tool call one tool_call_start, one
// or more tool_call_delta, one tool_call_complete; an optional usage; then a
// terminal turn_complete, unless an upstream failure ends the stream with a
// terminal error instead.
type StreamEvent struct {
	Type StreamEventType

	Text string

	CallID         string
	CallName       string
	ArgumentsDelta string

	Usage *protocol.TokenUsage

	Result *TurnResult

	Err error
}

// TurnResult is the outcome of one completed round: the messages the
// orchestrator must append and persist, the tool invocations to execute,
// and whether the model is done.
type TurnResult struct {
	MessagesToAppend []protocol.Message
	ToolInvocations  []protocol.ToolInvocation
	Done             bool
	TextContent      string
}

type TurnRequest struct {
	Messages  []protocol.Message
	Tools     []ToolDefinition
	Model     string
	MaxTokens int
}

// Provider streams one LLM turn. The returned channel is closed after the
// terminal event. Cancelling ctx mid-stream yields a terminal error event
// carrying ErrAborted and no turn_complete.
type Provider interface {
	SendTurn(ctx context.Context, req TurnRequest) (<-chan StreamEvent, error)
	Name() string
}
