// Package storetest provides an in-memory store.Store for tests that need
// session persistence without a database.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tandem-dev/tandem/pkg/protocol"
	"github.com/tandem-dev/tandem/pkg/store"
)

// Memory implements store.Store over maps. Beyond the interface it records
// every status transition so tests can assert lifecycle order.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*store.SessionRecord
	messages map[string][]protocol.Message
	statuses map[string][]string
	seq      map[string]int
	next     int
}

func New() *Memory {
	return &Memory{
		sessions: make(map[string]*store.SessionRecord),
		messages: make(map[string][]protocol.Message),
		statuses: make(map[string][]string),
		seq:      make(map[string]int),
	}
}

func (s *Memory) CreateSession(ctx context.Context, id, workingDir, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.sessions[id] = &store.SessionRecord{
		ID: id, Status: status, WorkingDir: workingDir, CreatedAt: now, UpdatedAt: now,
	}
	s.next++
	s.seq[id] = s.next
	return nil
}

func (s *Memory) GetSession(ctx context.Context, id string) (*store.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Memory) UpdateSessionStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	s.statuses[id] = append(s.statuses[id], status)
	return nil
}

func (s *Memory) UpdateSessionWorkingDir(ctx context.Context, id, workingDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.WorkingDir = workingDir
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *Memory) UpdateSessionTitle(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Title = title
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *Memory) UpdateSessionPlan(ctx context.Context, id string, plan *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	if plan == nil {
		rec.CurrentPlan = ""
	} else {
		rec.CurrentPlan = *plan
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *Memory) IncrementSessionTokens(ctx context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.TotalTokens += delta
	return nil
}

func (s *Memory) DeleteSession(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	delete(s.messages, id)
	delete(s.seq, id)
	return ok, nil
}

func (s *Memory) AppendMessage(ctx context.Context, sessionID string, msg protocol.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	return int64(len(s.messages[sessionID])), nil
}

func (s *Memory) ListMessages(ctx context.Context, sessionID string) ([]store.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.MessageRecord, 0, len(s.messages[sessionID]))
	for i, msg := range s.messages[sessionID] {
		out = append(out, store.MessageRecord{Seq: int64(i + 1), SessionID: sessionID, Message: msg})
	}
	return out, nil
}

func (s *Memory) CountMessages(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[sessionID]), nil
}

func (s *Memory) FirstUserMessage(ctx context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstUserLocked(sessionID), nil
}

func (s *Memory) firstUserLocked(sessionID string) string {
	for _, msg := range s.messages[sessionID] {
		if msg.Role == protocol.RoleUser {
			return msg.Text()
		}
	}
	return ""
}

// ListSessions returns newest-first, matching the SQL store's created_at
// ordering. Insertion order breaks created_at ties.
func (s *Memory) ListSessions(ctx context.Context, limit, offset int) ([]store.SessionSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*store.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return s.seq[all[i].ID] > s.seq[all[j].ID]
	})

	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]store.SessionSummary, 0, end-offset)
	for _, rec := range all[offset:end] {
		out = append(out, store.SessionSummary{
			ID:           rec.ID,
			Status:       rec.Status,
			WorkingDir:   rec.WorkingDir,
			Title:        rec.Title,
			Preview:      store.Preview(s.firstUserLocked(rec.ID)),
			TotalTokens:  rec.TotalTokens,
			MessageCount: len(s.messages[rec.ID]),
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
		})
	}
	return out, total, nil
}

func (s *Memory) Close() error { return nil }

// StatusLog returns every status ever written for the session, in write
// order.
func (s *Memory) StatusLog(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses[id]...)
}
