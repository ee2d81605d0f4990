package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tandem-dev/tandem/pkg/httpclient"
	"github.com/tandem-dev/tandem/pkg/protocol"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

type OpenRouterConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenRouterProvider speaks the OpenAI-compatible streaming chat protocol.
type OpenRouterProvider struct {
	cfg        OpenRouterConfig
	httpClient *httpclient.Client
}

var _ Provider = (*OpenRouterProvider)(nil)

func NewOpenRouter(cfg OpenRouterConfig) *OpenRouterProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &OpenRouterProvider{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}),
			httpclient.WithMaxRetries(3),
		),
	}
}

func (p *OpenRouterProvider) Name() string {
	return "openrouter"
}

type chatMessage struct {
	Role       string              `json:"role"`
	Content    string              `json:"content"`
	ToolCalls  []protocol.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Tools         []chatTool     `json:"tools,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type streamChoice struct {
	Delta struct {
		Content   string          `json:"content"`
		ToolCalls []toolCallDelta `json:"tool_calls"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type streamResponse struct {
	Choices []streamChoice `json:"choices"`
	Usage   *usagePayload  `json:"usage"`
	Error   *apiError      `json:"error"`
}

// SendTurn issues one streaming chat completion. The returned channel closes
// after the terminal turn_complete or error event.
func (p *OpenRouterProvider) SendTurn(ctx context.Context, req TurnRequest) (<-chan StreamEvent, error) {
	request := p.buildRequest(req)

	events := make(chan StreamEvent, 100)
	go func() {
		defer close(events)
		if err := p.stream(ctx, request, events); err != nil {
			if errors.Is(err, ErrAborted) || ctx.Err() != nil {
				events <- StreamEvent{Type: StreamError, Err: ErrAborted}
				return
			}
			events <- StreamEvent{Type: StreamError, Err: err}
		}
	}()
	return events, nil
}

func (p *OpenRouterProvider) buildRequest(req TurnRequest) chatRequest {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}

	wire := protocol.FlattenForWire(req.Messages)
	messages := make([]chatMessage, 0, len(wire))
	for _, m := range wire {
		messages = append(messages, chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}

	var tools []chatTool
	for _, t := range req.Tools {
		tools = append(tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return chatRequest{
		Model:         model,
		Messages:      messages,
		Tools:         tools,
		MaxTokens:     maxTokens,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
}

func (p *OpenRouterProvider) stream(ctx context.Context, request chatRequest, events chan<- StreamEvent) error {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	req.Header.Set("HTTP-Referer", "https://github.com/tandem-dev/tandem")
	req.Header.Set("X-Title", "tandem")

	resp, err := p.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return fmt.Errorf("API request failed with status %d", resp.StatusCode)
			}
			if apiErr := parseErrorResponse(body); apiErr != nil {
				return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, apiErr.Message)
			}
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return ErrAborted
		}
		return fmt.Errorf("HTTP request failed: %w", err)
	}

	reader := bufio.NewReader(resp.Body)
	acc := newToolCallAccumulator()
	var text strings.Builder
	var usage *protocol.TokenUsage

	for {
		select {
		case <-ctx.Done():
			return ErrAborted
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				return ErrAborted
			}
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[6:]
		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var chunk streamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		if chunk.Usage != nil {
			usage = &protocol.TokenUsage{
				Prompt:     chunk.Usage.PromptTokens,
				Completion: chunk.Usage.CompletionTokens,
				Total:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
			events <- StreamEvent{Type: StreamTextDelta, Text: choice.Delta.Content}
		}

		for _, delta := range choice.Delta.ToolCalls {
			call, started := acc.add(delta)
			if started {
				events <- StreamEvent{Type: StreamToolCallStart, CallID: call.id, CallName: call.name}
			}
			if delta.Function.Arguments != "" {
				events <- StreamEvent{Type: StreamToolCallDelta, CallID: call.id, ArgumentsDelta: delta.Function.Arguments}
			}
		}

		// The usage chunk arrives after finish_reason when include_usage is
		// set, so the loop runs until [DONE] rather than breaking here.
	}

	calls := acc.finalize()
	for _, c := range calls {
		events <- StreamEvent{Type: StreamToolCallComplete, CallID: c.ID}
	}
	if usage != nil {
		events <- StreamEvent{Type: StreamUsage, Usage: usage}
	}
	events <- StreamEvent{Type: StreamTurnComplete, Result: buildTurnResult(text.String(), calls)}
	return nil
}

// buildTurnResult synthesizes the messages to append: with tool calls, one
// assistant message of text-then-tool_call blocks and done=false; with only
// text, one plain assistant message and done=true; with neither, nothing.
func buildTurnResult(text string, calls []protocol.ToolCall) *TurnResult {
	result := &TurnResult{TextContent: text, Done: true}

	if len(calls) > 0 {
		invocations := make([]protocol.ToolInvocation, 0, len(calls))
		for _, c := range calls {
			input := map[string]any{}
			if raw := c.Function.Arguments; raw != "" {
				if err := json.Unmarshal([]byte(raw), &input); err != nil {
					slog.Warn("tool call arguments are not valid JSON",
						"tool", c.Function.Name, "call_id", c.ID, "arguments", raw)
					input = map[string]any{}
				}
			}
			invocations = append(invocations, protocol.ToolInvocation{
				ID:        c.ID,
				Name:      c.Function.Name,
				Input:     input,
				Arguments: c.Function.Arguments,
			})
		}
		result.ToolInvocations = invocations
		result.MessagesToAppend = []protocol.Message{protocol.NewAssistantToolCallMessage(text, calls)}
		result.Done = false
		return result
	}

	if text != "" {
		result.MessagesToAppend = []protocol.Message{protocol.NewAssistantMessage(text)}
	}
	return result
}

func parseErrorResponse(body []byte) *apiError {
	var payload struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	return payload.Error
}
