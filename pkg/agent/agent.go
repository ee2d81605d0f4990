// Package agent runs the turn loop: it streams model output, dispatches
// tool calls, and repeats until the model stops asking for tools or a
// budget runs out. Every observable step is published as an event so
// subscribers can replay the turn from the start.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tandem-dev/tandem/pkg/llms"
	"github.com/tandem-dev/tandem/pkg/observability"
	"github.com/tandem-dev/tandem/pkg/protocol"
	"github.com/tandem-dev/tandem/pkg/tools"
)

// DefaultMaxRounds caps the number of LLM round trips in a single turn.
const DefaultMaxRounds = 20

// Outcome describes how a turn ended.
type Outcome int

const (
	// OutcomeCompleted means the model finished without asking for more tools.
	OutcomeCompleted Outcome = iota
	// OutcomeFailed means a provider error, round budget, or timeout ended the turn.
	OutcomeFailed
	// OutcomeAborted means the turn was cancelled by the caller.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Store is the slice of session persistence the turn loop needs.
type Store interface {
	AppendMessage(ctx context.Context, sessionID string, msg protocol.Message) (int64, error)
	IncrementSessionTokens(ctx context.Context, sessionID string, delta int) error
}

// EventSink receives turn events. *pubsub.Bus satisfies it.
type EventSink interface {
	Push(event protocol.Event)
}

// discardSink swallows events when a turn runs without subscribers.
type discardSink struct{}

func (discardSink) Push(protocol.Event) {}

// TurnConfig carries everything one turn needs. History holds the prior
// conversation as loaded from the store; UserPrompt is appended and
// persisted by the turn itself.
type TurnConfig struct {
	SessionID    string
	UserPrompt   string
	WorkingDir   string
	History      []protocol.Message
	SystemPrompt string
	Model        string
	MaxTokens    int
	MaxRounds    int
	MaxWallClock time.Duration
	LoadedTools  map[string]struct{}
	Events       EventSink
}

// Orchestrator drives turns against a single provider and tool registry.
type Orchestrator struct {
	provider llms.Provider
	registry *tools.Registry
	store    Store
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// New creates an orchestrator. metrics may be nil, which disables recording.
func New(provider llms.Provider, registry *tools.Registry, store Store, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		registry: registry,
		store:    store,
		metrics:  metrics,
		tracer:   observability.GetTracer("agent"),
	}
}

// RunTurn executes one full turn and returns how it ended. It always
// publishes a single done event last, whatever the path out.
func (o *Orchestrator) RunTurn(ctx context.Context, cfg TurnConfig) Outcome {
	events := cfg.Events
	if events == nil {
		events = discardSink{}
	}

	start := time.Now()
	rounds := 0
	totalTokens := 0
	var turnErr error
	defer func() {
		o.metrics.RecordTurn(context.WithoutCancel(ctx), time.Since(start), rounds, totalTokens, turnErr)
	}()

	if ctx.Err() != nil {
		events.Push(protocol.ErrorEvent("Aborted before starting"))
		events.Push(protocol.DoneEvent())
		return OutcomeAborted
	}

	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	messages := o.buildMessages(ctx, cfg)
	execCtx := &tools.ExecContext{
		WorkingDir:  cfg.WorkingDir,
		LoadedTools: cfg.LoadedTools,
		Registry:    o.registry,
	}
	if execCtx.LoadedTools == nil {
		execCtx.LoadedTools = make(map[string]struct{})
	}

	var deadline time.Time
	if cfg.MaxWallClock > 0 {
		deadline = start.Add(cfg.MaxWallClock)
	}

	for round := 1; round <= maxRounds; round++ {
		if ctx.Err() != nil {
			events.Push(protocol.ErrorEvent("Aborted by user"))
			events.Push(protocol.DoneEvent())
			return OutcomeAborted
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			turnErr = fmt.Errorf("turn timed out after %s", cfg.MaxWallClock)
			events.Push(protocol.ErrorEvent(fmt.Sprintf("Turn timed out after %s", cfg.MaxWallClock)))
			events.Push(protocol.DoneEvent())
			return OutcomeFailed
		}
		rounds = round

		count, accurate, source := llms.CountTokens(messages)
		events.Push(protocol.ContextEvent(count, accurate, source))

		result, usage, err := o.streamRound(ctx, cfg, messages, execCtx, events, round)
		if err != nil {
			turnErr = err
			events.Push(protocol.ErrorEvent(err.Error()))
			events.Push(protocol.DoneEvent())
			if errors.Is(err, llms.ErrAborted) {
				return OutcomeAborted
			}
			return OutcomeFailed
		}
		if result == nil {
			turnErr = errors.New("provider stream ended without a turn result")
			events.Push(protocol.ErrorEvent(turnErr.Error()))
			events.Push(protocol.DoneEvent())
			return OutcomeFailed
		}

		for _, msg := range result.MessagesToAppend {
			messages = append(messages, msg)
			o.persist(ctx, cfg.SessionID, msg)
		}
		if usage != nil && usage.Total > 0 {
			totalTokens += usage.Total
			if err := o.store.IncrementSessionTokens(context.WithoutCancel(ctx), cfg.SessionID, usage.Total); err != nil {
				slog.Error("Failed to record session tokens", "session_id", cfg.SessionID, "error", err)
			}
		}

		if len(result.ToolInvocations) == 0 {
			events.Push(protocol.DoneEvent())
			return OutcomeCompleted
		}

		resultsMsg := o.dispatchTools(ctx, result.ToolInvocations, execCtx, events)
		messages = append(messages, resultsMsg)
		o.persist(ctx, cfg.SessionID, resultsMsg)

		if ctx.Err() != nil {
			events.Push(protocol.ErrorEvent("Aborted by user"))
			events.Push(protocol.DoneEvent())
			return OutcomeAborted
		}
	}

	turnErr = fmt.Errorf("exceeded %d tool call rounds", maxRounds)
	events.Push(protocol.ErrorEvent(fmt.Sprintf("Agent stopped after %d tool call rounds to prevent infinite loops", maxRounds)))
	events.Push(protocol.DoneEvent())
	return OutcomeFailed
}

// buildMessages assembles the conversation for round one: system prompt,
// prior history, then the new user message. The system prompt is only
// synthesized and persisted when history does not already carry one.
func (o *Orchestrator) buildMessages(ctx context.Context, cfg TurnConfig) []protocol.Message {
	hasSystem := false
	for _, msg := range cfg.History {
		if msg.Role == protocol.RoleSystem {
			hasSystem = true
			break
		}
	}

	messages := make([]protocol.Message, 0, len(cfg.History)+2)
	if !hasSystem {
		prompt := cfg.SystemPrompt
		if prompt == "" {
			prompt = DefaultSystemPrompt
		}
		systemMsg := protocol.NewSystemMessage(prompt)
		messages = append(messages, systemMsg)
		o.persist(ctx, cfg.SessionID, systemMsg)
	}
	messages = append(messages, cfg.History...)

	userMsg := protocol.NewUserMessage(cfg.UserPrompt)
	messages = append(messages, userMsg)
	o.persist(ctx, cfg.SessionID, userMsg)
	return messages
}

// streamRound sends one request and relays the stream to the sink. It
// returns the provider's turn result plus usage when the model reported it.
func (o *Orchestrator) streamRound(ctx context.Context, cfg TurnConfig, messages []protocol.Message, execCtx *tools.ExecContext, events EventSink, round int) (*llms.TurnResult, *protocol.TokenUsage, error) {
	spanCtx, span := o.tracer.Start(ctx, "agent.round",
		trace.WithAttributes(attribute.Int("round", round)))
	defer span.End()

	llmStart := time.Now()
	stream, err := o.provider.SendTurn(spanCtx, llms.TurnRequest{
		Messages:  messages,
		Tools:     availableTools(o.registry, execCtx.LoadedTools),
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		o.metrics.RecordLLMCall(context.WithoutCancel(ctx), cfg.Model, time.Since(llmStart), 0, 0, err)
		return nil, nil, err
	}

	var result *llms.TurnResult
	var usage *protocol.TokenUsage
	var streamErr error
	for event := range stream {
		switch event.Type {
		case llms.StreamTextDelta:
			events.Push(protocol.TextDeltaEvent(event.Text))
		case llms.StreamToolCallStart:
			events.Push(protocol.ToolCallEvent(&protocol.ToolCallState{
				ID:     event.CallID,
				Name:   event.CallName,
				Status: protocol.ToolCallPending,
				Input:  map[string]any{},
			}))
		case llms.StreamUsage:
			usage = event.Usage
			events.Push(protocol.UsageEvent(event.Usage.Prompt, event.Usage.Completion, event.Usage.Total))
		case llms.StreamTurnComplete:
			result = event.Result
		case llms.StreamError:
			streamErr = event.Err
		}
	}

	inTokens, outTokens := 0, 0
	if usage != nil {
		inTokens, outTokens = usage.Prompt, usage.Completion
	}
	o.metrics.RecordLLMCall(context.WithoutCancel(ctx), cfg.Model, time.Since(llmStart), inTokens, outTokens, streamErr)
	if streamErr != nil {
		return nil, nil, streamErr
	}
	return result, usage, nil
}

// dispatchTools runs one batch of invocations sequentially and returns the
// user message carrying their results in invocation order.
func (o *Orchestrator) dispatchTools(ctx context.Context, invocations []protocol.ToolInvocation, execCtx *tools.ExecContext, events EventSink) protocol.Message {
	spanCtx, span := o.tracer.Start(ctx, "agent.tools",
		trace.WithAttributes(attribute.Int("tool_count", len(invocations))))
	defer span.End()

	results := tools.Execute(spanCtx, o.registry, invocations, execCtx)

	blocks := make([]protocol.ContentBlock, 0, len(results))
	for i, res := range results {
		inv := invocations[i]
		input := inv.Input
		if input == nil {
			input = map[string]any{}
		}
		state := &protocol.ToolCallState{
			ID:        res.ID,
			Name:      res.Name,
			Input:     input,
			Arguments: inv.Arguments,
		}
		var execErr error
		if res.IsError {
			state.Status = protocol.ToolCallFailed
			state.Error = res.Error
			execErr = errors.New(res.Error)
		} else {
			state.Status = protocol.ToolCallCompleted
			state.Result = res.Value
		}
		events.Push(protocol.ToolResultEvent(state))
		o.metrics.RecordToolExecution(context.WithoutCancel(ctx), res.Name, res.Duration, execErr)

		blocks = append(blocks, protocol.ToolResultBlock(res.ID, tools.FormatForLLM(res), res.IsError))
	}
	return protocol.NewToolResultsMessage(blocks)
}

// persist appends a message, ignoring turn cancellation. Messages stay
// persisted once produced even if the turn is aborted afterwards; failures
// are logged and the turn continues.
func (o *Orchestrator) persist(ctx context.Context, sessionID string, msg protocol.Message) {
	if _, err := o.store.AppendMessage(context.WithoutCancel(ctx), sessionID, msg); err != nil {
		slog.Error("Failed to persist message", "session_id", sessionID, "role", msg.Role, "error", err)
	}
}

// availableTools converts the loaded view of the registry into provider
// tool definitions.
func availableTools(reg *tools.Registry, loaded map[string]struct{}) []llms.ToolDefinition {
	defs := reg.LoadedView(loaded)
	out := make([]llms.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		out = append(out, llms.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Schema,
		})
	}
	return out
}
