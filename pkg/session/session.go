// Package session owns the runtime side of a conversation: the cache of
// live sessions, their cancellation handles and event buses, and the
// supervision of orchestrator turns against the persistent store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tandem-dev/tandem/pkg/agent"
	"github.com/tandem-dev/tandem/pkg/protocol"
	"github.com/tandem-dev/tandem/pkg/pubsub"
	"github.com/tandem-dev/tandem/pkg/store"
)

// ErrSessionRunning is returned when an operation requires a session that
// is not mid-turn.
var ErrSessionRunning = errors.New("session is already running")

// TurnRunner runs one orchestrator turn. *agent.Orchestrator satisfies it.
type TurnRunner interface {
	RunTurn(ctx context.Context, cfg agent.TurnConfig) agent.Outcome
}

// TurnRequest is one user turn after the server has resolved slash commands
// and model tiers.
type TurnRequest struct {
	Prompt    string
	Model     string
	MaxTokens int
}

// Session is the cached runtime state of one conversation: the persisted
// row's identity plus the fields that exist only while the process runs.
// The loaded-tool set lives here so tools stay loaded across turns until
// the session is evicted.
type Session struct {
	ID string

	mu          sync.Mutex
	workingDir  string
	status      string
	bus         *pubsub.Bus
	cancel      context.CancelFunc
	loadedTools map[string]struct{}
}

// WorkingDir returns the directory the next turn will run in.
func (s *Session) WorkingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingDir
}

// Status returns the in-memory lifecycle status.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Bus returns the event bus carrying the session's current turn.
func (s *Session) Bus() *pubsub.Bus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bus
}

// Manager caches live sessions and supervises their turns.
type Manager struct {
	store  store.Store
	runner TurnRunner

	// TurnTimeout bounds a single turn's wall clock. Zero disables it.
	TurnTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(st store.Store, runner TurnRunner) *Manager {
	return &Manager{store: st, runner: runner, sessions: make(map[string]*Session)}
}

// Create allocates a fresh session, persists it idle, and caches it.
func (m *Manager) Create(ctx context.Context, workingDir string) (*Session, error) {
	id := uuid.NewString()
	if err := m.store.CreateSession(ctx, id, workingDir, store.StatusIdle); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	sess := &Session{
		ID:          id,
		workingDir:  workingDir,
		status:      store.StatusIdle,
		bus:         pubsub.NewBus(),
		loadedTools: make(map[string]struct{}),
	}
	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return sess, nil
}

// Get returns the cached session, or rehydrates it from the store with a
// fresh bus and an empty cancellation slot. A row still marked running
// belongs to a process that is gone, so it rehydrates as failed.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	sess := m.sessions[id]
	m.mu.RUnlock()
	if sess != nil {
		return sess, nil
	}

	rec, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	status := rec.Status
	if status == store.StatusRunning {
		status = store.StatusFailed
		if err := m.store.UpdateSessionStatus(ctx, id, status); err != nil {
			slog.Warn("Failed to mark stale running session as failed", "session_id", id, "error", err)
		}
	}
	sess = &Session{
		ID:          rec.ID,
		workingDir:  rec.WorkingDir,
		status:      status,
		bus:         pubsub.NewBus(),
		loadedTools: make(map[string]struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.sessions[id]; ok {
		return cached, nil
	}
	m.sessions[id] = sess
	return sess, nil
}

// PrepareForContinuation readies a session for another turn with a fresh
// bus and cancellation slot. It fails while a turn is in flight; persisted
// messages are untouched.
func (m *Manager) PrepareForContinuation(ctx context.Context, id string) (*Session, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status == store.StatusRunning {
		return nil, ErrSessionRunning
	}
	sess.bus = pubsub.NewBus()
	sess.cancel = nil
	return sess, nil
}

// Cancel signals a running session's turn and reports whether one was
// actually signalled. The orchestrator winds down cooperatively from here.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	sess := m.sessions[id]
	m.mu.RUnlock()
	if sess == nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status != store.StatusRunning || sess.cancel == nil {
		return false
	}
	sess.cancel()
	return true
}

// Delete cancels any running turn, closes the bus, evicts the cache entry,
// and removes the persisted session with its messages.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	sess := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if sess != nil {
		sess.mu.Lock()
		if sess.status == store.StatusRunning && sess.cancel != nil {
			sess.cancel()
		}
		bus := sess.bus
		sess.mu.Unlock()
		bus.Close()
	}
	return m.store.DeleteSession(ctx, id)
}

// UpdateWorkingDir changes where the next turn runs. An in-flight turn
// keeps the directory it started with.
func (m *Manager) UpdateWorkingDir(ctx context.Context, id, workingDir string) error {
	if err := m.store.UpdateSessionWorkingDir(ctx, id, workingDir); err != nil {
		return err
	}
	m.mu.RLock()
	sess := m.sessions[id]
	m.mu.RUnlock()
	if sess != nil {
		sess.mu.Lock()
		sess.workingDir = workingDir
		sess.mu.Unlock()
	}
	return nil
}

func (m *Manager) UpdateTitle(ctx context.Context, id, title string) error {
	return m.store.UpdateSessionTitle(ctx, id, title)
}

func (m *Manager) UpdatePlan(ctx context.Context, id string, plan *string) error {
	return m.store.UpdateSessionPlan(ctx, id, plan)
}

// History loads the session's conversation in internal form. Wire-form
// tool rows are grouped back into result messages on the way in.
func (m *Manager) History(ctx context.Context, id string) ([]protocol.Message, error) {
	records, err := m.store.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs := make([]protocol.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, rec.Message)
	}
	return protocol.GroupFromWire(msgs), nil
}

// StartTurn takes the session into running and launches the orchestrator
// on its own goroutine, bound to a fresh cancellation handle and the
// session's current bus. ctx covers only the synchronous preparation; the
// turn itself outlives the caller.
func (m *Manager) StartTurn(ctx context.Context, sess *Session, req TurnRequest) error {
	history, err := m.History(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	turnCtx, cancel := context.WithCancel(context.Background())

	sess.mu.Lock()
	if sess.status == store.StatusRunning {
		sess.mu.Unlock()
		cancel()
		return ErrSessionRunning
	}
	prev := sess.status
	sess.status = store.StatusRunning
	sess.cancel = cancel
	bus := sess.bus
	loaded := sess.loadedTools
	workingDir := sess.workingDir
	sess.mu.Unlock()

	if err := m.store.UpdateSessionStatus(ctx, sess.ID, store.StatusRunning); err != nil {
		sess.mu.Lock()
		sess.status = prev
		sess.cancel = nil
		sess.mu.Unlock()
		cancel()
		return fmt.Errorf("failed to mark session running: %w", err)
	}

	go func() {
		defer cancel()
		outcome := m.runner.RunTurn(turnCtx, agent.TurnConfig{
			SessionID:    sess.ID,
			UserPrompt:   req.Prompt,
			WorkingDir:   workingDir,
			History:      history,
			Model:        req.Model,
			MaxTokens:    req.MaxTokens,
			MaxWallClock: m.TurnTimeout,
			LoadedTools:  loaded,
			Events:       bus,
		})
		m.finishTurn(sess, bus, outcome)
	}()
	return nil
}

// finishTurn records the terminal status and closes the bus. An aborted
// turn lands on completed; only provider failures and exhausted budgets
// mark the session failed.
func (m *Manager) finishTurn(sess *Session, bus *pubsub.Bus, outcome agent.Outcome) {
	status := store.StatusCompleted
	if outcome == agent.OutcomeFailed {
		status = store.StatusFailed
	}
	sess.mu.Lock()
	sess.status = status
	sess.cancel = nil
	sess.mu.Unlock()
	if err := m.store.UpdateSessionStatus(context.Background(), sess.ID, status); err != nil {
		slog.Error("Failed to persist session status", "session_id", sess.ID, "status", status, "error", err)
	}
	bus.Close()
}
