package protocol

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventTextDelta  EventType = "text_delta"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventContext    EventType = "context"
	EventUsage      EventType = "usage"
	EventError      EventType = "error"
	EventDone       EventType = "done"
)

type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "error"
)

// ToolCallState is the payload of tool_call and tool_result events. Input is
// the parsed arguments object; Arguments keeps the model's original text when
// it did not parse as JSON. Result or Error is set on the terminal event.
type ToolCallState struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    ToolCallStatus `json:"status"`
	Input     map[string]any `json:"input"`
	Arguments string         `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Event is the closed set of values a session bus carries. The populated
// fields depend on Type; MarshalJSON emits exactly the fields of the active
// variant.
type Event struct {
	Type EventType

	Text     string
	ToolCall *ToolCallState

	ContextTokens int
	Accurate      bool
	Source        string

	Usage *TokenUsage

	Message string
}

func TextDeltaEvent(text string) Event {
	return Event{Type: EventTextDelta, Text: text}
}

func ToolCallEvent(state *ToolCallState) Event {
	return Event{Type: EventToolCall, ToolCall: state}
}

func ToolResultEvent(state *ToolCallState) Event {
	return Event{Type: EventToolResult, ToolCall: state}
}

func ContextEvent(tokens int, accurate bool, source string) Event {
	return Event{Type: EventContext, ContextTokens: tokens, Accurate: accurate, Source: source}
}

func UsageEvent(prompt, completion, total int) Event {
	return Event{Type: EventUsage, Usage: &TokenUsage{Prompt: prompt, Completion: completion, Total: total}}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

func DoneEvent() Event {
	return Event{Type: EventDone}
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventTextDelta:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Text string    `json:"text"`
		}{e.Type, e.Text})
	case EventToolCall, EventToolResult:
		return json.Marshal(struct {
			Type     EventType      `json:"type"`
			ToolCall *ToolCallState `json:"toolCall"`
		}{e.Type, e.ToolCall})
	case EventContext:
		return json.Marshal(struct {
			Type          EventType `json:"type"`
			ContextTokens int       `json:"contextTokens"`
			Accurate      bool      `json:"accurate"`
			Source        string    `json:"source"`
		}{e.Type, e.ContextTokens, e.Accurate, e.Source})
	case EventUsage:
		return json.Marshal(struct {
			Type  EventType   `json:"type"`
			Usage *TokenUsage `json:"usage"`
		}{e.Type, e.Usage})
	case EventError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	case EventDone:
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{e.Type})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var in struct {
		Type          EventType      `json:"type"`
		Text          string         `json:"text"`
		ToolCall      *ToolCallState `json:"toolCall"`
		ContextTokens int            `json:"contextTokens"`
		Accurate      bool           `json:"accurate"`
		Source        string         `json:"source"`
		Usage         *TokenUsage    `json:"usage"`
		Message       string         `json:"message"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Type == "" {
		return fmt.Errorf("event is missing a type")
	}
	*e = Event{
		Type:          in.Type,
		Text:          in.Text,
		ToolCall:      in.ToolCall,
		ContextTokens: in.ContextTokens,
		Accurate:      in.Accurate,
		Source:        in.Source,
		Usage:         in.Usage,
		Message:       in.Message,
	}
	return nil
}
