// Package store provides durable, ordered storage for sessions and their
// messages over database/sql. PostgreSQL, MySQL, and SQLite are supported.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tandem-dev/tandem/pkg/protocol"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type SessionRecord struct {
	ID          string
	Status      string
	WorkingDir  string
	Title       string
	TotalTokens int
	CurrentPlan string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MessageRecord struct {
	Seq       int64
	SessionID string
	Message   protocol.Message
	CreatedAt time.Time
}

// SessionSummary is the listing shape: session fields plus a message count
// and a preview derived from the first user message.
type SessionSummary struct {
	ID           string
	Status       string
	WorkingDir   string
	Title        string
	Preview      string
	TotalTokens  int
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store is the persistence contract. Append order equals retrieval order;
// deletes cascade to messages atomically; the token increment is a single
// atomic update.
type Store interface {
	CreateSession(ctx context.Context, id, workingDir, status string) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	UpdateSessionStatus(ctx context.Context, id, status string) error
	UpdateSessionWorkingDir(ctx context.Context, id, workingDir string) error
	UpdateSessionTitle(ctx context.Context, id, title string) error
	UpdateSessionPlan(ctx context.Context, id string, plan *string) error
	IncrementSessionTokens(ctx context.Context, id string, delta int) error
	DeleteSession(ctx context.Context, id string) (bool, error)

	AppendMessage(ctx context.Context, sessionID string, msg protocol.Message) (int64, error)
	ListMessages(ctx context.Context, sessionID string) ([]MessageRecord, error)
	CountMessages(ctx context.Context, sessionID string) (int, error)
	FirstUserMessage(ctx context.Context, sessionID string) (string, error)

	ListSessions(ctx context.Context, limit, offset int) ([]SessionSummary, int, error)

	Close() error
}

// Preview truncates the first user message to the 100-character listing
// preview.
func Preview(text string) string {
	const max = 100
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
