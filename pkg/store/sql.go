package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tandem-dev/tandem/pkg/protocol"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database and initializes the schema. driver is
// "sqlite3", "postgres", or "mysql"; dsn is a file path for sqlite and a
// connection string otherwise.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "sqlite3", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite3, postgres, mysql)", driver)
	}

	if driver == "sqlite3" {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, driver)
}

// New wraps an existing connection and initializes the schema.
func New(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messagesPK := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	switch s.dialect {
	case "postgres":
		messagesPK = "id BIGSERIAL PRIMARY KEY"
	case "mysql":
		messagesPK = "id BIGINT PRIMARY KEY AUTO_INCREMENT"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(255) PRIMARY KEY,
    status VARCHAR(50) NOT NULL,
    working_dir TEXT NOT NULL,
    title TEXT,
    total_tokens INTEGER NOT NULL DEFAULT 0,
    current_plan TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS messages (
    %s,
    session_id VARCHAR(255) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role VARCHAR(50) NOT NULL,
    content TEXT,
    tool_call_id VARCHAR(255),
    tool_calls TEXT,
    created_at TIMESTAMP NOT NULL
)`, messagesPK),
		`CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id)`,
	}

	for _, stmt := range statements {
		if s.dialect == "mysql" && strings.HasPrefix(stmt, "CREATE INDEX IF NOT EXISTS") {
			// MySQL lacks IF NOT EXISTS on indexes; a duplicate-name error
			// on re-open is expected and ignored below.
			if _, err := s.db.ExecContext(ctx, strings.Replace(stmt, " IF NOT EXISTS", "", 1)); err != nil {
				if !strings.Contains(err.Error(), "Duplicate key name") {
					return fmt.Errorf("failed to create schema: %w", err)
				}
			}
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// rebind converts ?-style placeholders to the dialect's form.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) CreateSession(ctx context.Context, id, workingDir, status string) error {
	now := time.Now().UTC()
	query := s.rebind(`INSERT INTO sessions (id, status, working_dir, total_tokens, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, id, status, workingDir, now, now); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	query := s.rebind(`SELECT id, status, working_dir, title, total_tokens, current_plan, created_at, updated_at
FROM sessions WHERE id = ?`)

	var rec SessionRecord
	var title, plan sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Status, &rec.WorkingDir, &title,
		&rec.TotalTokens, &plan, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	rec.Title = title.String
	rec.CurrentPlan = plan.String
	return &rec, nil
}

func (s *SQLStore) updateSession(ctx context.Context, id, setClause string, args ...any) error {
	query := s.rebind(fmt.Sprintf(`UPDATE sessions SET %s, updated_at = ? WHERE id = ?`, setClause))
	args = append(args, time.Now().UTC(), id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) UpdateSessionStatus(ctx context.Context, id, status string) error {
	return s.updateSession(ctx, id, "status = ?", status)
}

func (s *SQLStore) UpdateSessionWorkingDir(ctx context.Context, id, workingDir string) error {
	return s.updateSession(ctx, id, "working_dir = ?", workingDir)
}

func (s *SQLStore) UpdateSessionTitle(ctx context.Context, id, title string) error {
	return s.updateSession(ctx, id, "title = ?", title)
}

func (s *SQLStore) UpdateSessionPlan(ctx context.Context, id string, plan *string) error {
	var value sql.NullString
	if plan != nil {
		value = sql.NullString{String: *plan, Valid: true}
	}
	return s.updateSession(ctx, id, "current_plan = ?", value)
}

func (s *SQLStore) IncrementSessionTokens(ctx context.Context, id string, delta int) error {
	return s.updateSession(ctx, id, "total_tokens = total_tokens + ?", delta)
}

// DeleteSession removes the session and its messages in one transaction.
func (s *SQLStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM messages WHERE session_id = ?`), id); err != nil {
		return false, fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}
	return n > 0, nil
}

type messageRow struct {
	Role       string
	Content    sql.NullString
	ToolCallID sql.NullString
	ToolCalls  sql.NullString
}

func encodeMessage(msg protocol.Message) (messageRow, error) {
	row := messageRow{Role: string(msg.Role)}

	if len(msg.Blocks) > 0 {
		serialized, err := protocol.SerializeBlocks(msg.Blocks)
		if err != nil {
			return row, err
		}
		row.Content = sql.NullString{String: serialized, Valid: true}
	} else if msg.Content != "" {
		row.Content = sql.NullString{String: msg.Content, Valid: true}
	}

	if msg.ToolCallID != "" {
		row.ToolCallID = sql.NullString{String: msg.ToolCallID, Valid: true}
	}

	if calls := msg.ToolCallList(); len(calls) > 0 {
		raw, err := json.Marshal(calls)
		if err != nil {
			return row, fmt.Errorf("failed to serialize tool calls: %w", err)
		}
		row.ToolCalls = sql.NullString{String: string(raw), Valid: true}
	}

	return row, nil
}

func decodeMessage(row messageRow) (protocol.Message, error) {
	msg := protocol.Message{
		Role:       protocol.Role(row.Role),
		ToolCallID: row.ToolCallID.String,
	}

	if row.Content.Valid {
		content := row.Content.String
		if blocks, ok := decodeBlocks(content); ok {
			msg.Blocks = blocks
		} else {
			msg.Content = content
		}
	}

	if row.ToolCalls.Valid && row.ToolCalls.String != "" {
		if err := json.Unmarshal([]byte(row.ToolCalls.String), &msg.ToolCalls); err != nil {
			return msg, fmt.Errorf("failed to parse tool calls: %w", err)
		}
	}

	return msg, nil
}

// decodeBlocks attempts to read content as a serialized block sequence.
// Only arrays whose every element carries a known block type qualify, so
// ordinary text that happens to start with "[" stays a plain string.
func decodeBlocks(content string) ([]protocol.ContentBlock, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	blocks, err := protocol.DeserializeBlocks(trimmed)
	if err != nil {
		return nil, false
	}
	if len(blocks) == 0 {
		return nil, false
	}
	for _, b := range blocks {
		switch b.Type {
		case protocol.BlockTypeText, protocol.BlockTypeToolCall, protocol.BlockTypeToolResult:
		default:
			return nil, false
		}
	}
	return blocks, true
}

func (s *SQLStore) AppendMessage(ctx context.Context, sessionID string, msg protocol.Message) (int64, error) {
	row, err := encodeMessage(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize message: %w", err)
	}

	now := time.Now().UTC()

	if s.dialect == "postgres" {
		query := s.rebind(`INSERT INTO messages (session_id, role, content, tool_call_id, tool_calls, created_at)
VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
		var seq int64
		err := s.db.QueryRowContext(ctx, query, sessionID, row.Role, row.Content, row.ToolCallID, row.ToolCalls, now).Scan(&seq)
		if err != nil {
			return 0, fmt.Errorf("failed to insert message: %w", err)
		}
		return seq, nil
	}

	query := `INSERT INTO messages (session_id, role, content, tool_call_id, tool_calls, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, sessionID, row.Role, row.Content, row.ToolCallID, row.ToolCalls, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %w", err)
	}
	return seq, nil
}

func (s *SQLStore) ListMessages(ctx context.Context, sessionID string) ([]MessageRecord, error) {
	query := s.rebind(`SELECT id, role, content, tool_call_id, tool_calls, created_at
FROM messages WHERE session_id = ? ORDER BY id ASC`)

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var records []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var row messageRow
		if err := rows.Scan(&rec.Seq, &row.Role, &row.Content, &row.ToolCallID, &row.ToolCalls, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg, err := decodeMessage(row)
		if err != nil {
			return nil, err
		}
		rec.SessionID = sessionID
		rec.Message = msg
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return records, nil
}

func (s *SQLStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	query := s.rebind(`SELECT COUNT(*) FROM messages WHERE session_id = ?`)
	if err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (s *SQLStore) FirstUserMessage(ctx context.Context, sessionID string) (string, error) {
	query := s.rebind(`SELECT content FROM messages
WHERE session_id = ? AND role = 'user' ORDER BY id ASC LIMIT 1`)

	var content sql.NullString
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query first user message: %w", err)
	}
	if !content.Valid {
		return "", nil
	}
	if blocks, ok := decodeBlocks(content.String); ok {
		return (protocol.Message{Blocks: blocks}).Text(), nil
	}
	return content.String, nil
}

func (s *SQLStore) ListSessions(ctx context.Context, limit, offset int) ([]SessionSummary, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := s.rebind(`SELECT s.id, s.status, s.working_dir, s.title, s.total_tokens, s.created_at, s.updated_at,
  (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id),
  (SELECT m.content FROM messages m WHERE m.session_id = s.id AND m.role = 'user' ORDER BY m.id ASC LIMIT 1)
FROM sessions s
ORDER BY s.created_at DESC
LIMIT ? OFFSET ?`)

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var title, firstUser sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Status, &sum.WorkingDir, &title, &sum.TotalTokens,
			&sum.CreatedAt, &sum.UpdatedAt, &sum.MessageCount, &firstUser); err != nil {
			return nil, 0, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.Title = title.String
		if firstUser.Valid {
			text := firstUser.String
			if blocks, ok := decodeBlocks(text); ok {
				text = (protocol.Message{Blocks: blocks}).Text()
			}
			sum.Preview = Preview(text)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return summaries, total, nil
}
