// Package protocol defines the conversation model shared by the store, the
// provider adapter, and the orchestrator: messages, content blocks, tool
// calls, and the stream event taxonomy.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type BlockType string

const (
	BlockTypeText       BlockType = "text"
	BlockTypeToolCall   BlockType = "tool_call"
	BlockTypeToolResult BlockType = "tool_result"
)

// ContentBlock is the tagged union of message content elements. Exactly one
// shape is populated, selected by Type: text carries Text; tool_call carries
// ID, Name, Arguments; tool_result carries ToolUseID, Content, IsError.
type ContentBlock struct {
	Type BlockType `json:"type"`

	Text string `json:"text,omitempty"`

	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	ToolUseID string `json:"toolUseId,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"isError,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

func ToolCallBlock(id, name, arguments string) ContentBlock {
	return ContentBlock{Type: BlockTypeToolCall, ID: id, Name: name, Arguments: arguments}
}

func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockTypeToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// ToolCall is the persisted and provider-facing shape of an assistant tool
// call: {id, type: "function", function: {name, arguments}}.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func NewToolCall(id, name, arguments string) ToolCall {
	return ToolCall{ID: id, Type: "function", Function: FunctionCall{Name: name, Arguments: arguments}}
}

// ToolInvocation is the per-turn value handed to the executor: a tool call
// with its arguments already parsed. Arguments keeps the model's raw text so
// unparseable input can be surfaced verbatim.
type ToolInvocation struct {
	ID        string
	Name      string
	Input     map[string]any
	Arguments string
}

// Message is one conversation entry. Content holds a plain-text payload;
// Blocks holds a structured payload; at most one of the two is set.
// ToolCalls carries the wire-form calls of an assistant message and
// ToolCallID links a tool-role message back to the call it answers.
type Message struct {
	Role       Role
	Content    string
	Blocks     []ContentBlock
	ToolCalls  []ToolCall
	ToolCallID string
}

func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// NewAssistantToolCallMessage builds the single assistant message appended
// after a round that produced tool calls: an optional leading text block
// followed by one tool_call block per call, in call order.
func NewAssistantToolCallMessage(text string, calls []ToolCall) Message {
	blocks := make([]ContentBlock, 0, len(calls)+1)
	if text != "" {
		blocks = append(blocks, TextBlock(text))
	}
	for _, c := range calls {
		blocks = append(blocks, ToolCallBlock(c.ID, c.Function.Name, c.Function.Arguments))
	}
	return Message{Role: RoleAssistant, Blocks: blocks, ToolCalls: calls}
}

// NewToolResultsMessage builds the single user message carrying one
// tool_result block per executed call, in execution order.
func NewToolResultsMessage(blocks []ContentBlock) Message {
	return Message{Role: RoleUser, Blocks: blocks}
}

// Text returns the plain-text view of the message: Content when set,
// otherwise the concatenation of its text blocks.
func (m Message) Text() string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, blk := range m.Blocks {
		if blk.Type == BlockTypeText {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

func (m Message) HasToolCalls() bool {
	if len(m.ToolCalls) > 0 {
		return true
	}
	for _, blk := range m.Blocks {
		if blk.Type == BlockTypeToolCall {
			return true
		}
	}
	return false
}

// ToolCallList returns the message's tool calls in wire form, derived from
// Blocks when the denormalized list is absent.
func (m Message) ToolCallList() []ToolCall {
	if len(m.ToolCalls) > 0 {
		return m.ToolCalls
	}
	var calls []ToolCall
	for _, blk := range m.Blocks {
		if blk.Type == BlockTypeToolCall {
			calls = append(calls, NewToolCall(blk.ID, blk.Name, blk.Arguments))
		}
	}
	return calls
}

func (m Message) ToolResultBlocks() []ContentBlock {
	var out []ContentBlock
	for _, blk := range m.Blocks {
		if blk.Type == BlockTypeToolResult {
			out = append(out, blk)
		}
	}
	return out
}

type messageJSON struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []ToolCall      `json:"toolCalls,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
}

// MarshalJSON renders content as a JSON string when the payload is plain
// text and as a block array when it is structured.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{Role: m.Role, ToolCalls: m.ToolCalls, ToolCallID: m.ToolCallID}
	if len(m.Blocks) > 0 {
		raw, err := json.Marshal(m.Blocks)
		if err != nil {
			return nil, err
		}
		out.Content = raw
	} else if m.Content != "" {
		raw, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		out.Content = raw
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.Role = in.Role
	m.ToolCalls = in.ToolCalls
	m.ToolCallID = in.ToolCallID
	m.Content = ""
	m.Blocks = nil
	if len(in.Content) == 0 || string(in.Content) == "null" {
		return nil
	}
	switch in.Content[0] {
	case '"':
		return json.Unmarshal(in.Content, &m.Content)
	case '[':
		return json.Unmarshal(in.Content, &m.Blocks)
	default:
		return fmt.Errorf("message content must be a string or a block array, got %s", snippet(in.Content))
	}
}

func snippet(raw []byte) string {
	const max = 40
	s := string(raw)
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// SerializeBlocks and DeserializeBlocks are the reversible encoding used for
// structured content at rest.
func SerializeBlocks(blocks []ContentBlock) (string, error) {
	raw, err := json.Marshal(blocks)
	if err != nil {
		return "", fmt.Errorf("serializing content blocks: %w", err)
	}
	return string(raw), nil
}

func DeserializeBlocks(s string) ([]ContentBlock, error) {
	var blocks []ContentBlock
	if err := json.Unmarshal([]byte(s), &blocks); err != nil {
		return nil, fmt.Errorf("deserializing content blocks: %w", err)
	}
	return blocks, nil
}
