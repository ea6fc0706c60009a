// Package history persists an invocation journal in SQLite: one row per
// dispatch with its outcome and timing. The journal is an audit trail only;
// dispatch never reads from it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/covailent/mcpd/tool"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS invocations (
	request_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	success INTEGER NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	started_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invocations_started_at ON invocations (started_at);`

const (
	defaultStoreDir = ".mcpd"
	defaultStoreDB  = "mcpd.db"
)

// Invocation is one journal row.
type Invocation struct {
	RequestID  string    `json:"request_id"`
	Tool       string    `json:"tool_name"`
	Success    bool      `json:"success"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// Store is the SQLite-backed journal.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default journal location under the user's home.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultStoreDir, defaultStoreDB), nil
}

// Open creates or opens the journal at the given path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history: journal path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open journal: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append records one invocation.
func (s *Store) Append(ctx context.Context, inv Invocation) error {
	if s == nil || s.db == nil {
		return errors.New("history: store is nil")
	}
	startedAt := inv.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO invocations (request_id, tool_name, success, error_kind, duration_ms, started_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		inv.RequestID,
		inv.Tool,
		boolToInt(inv.Success),
		inv.ErrorKind,
		inv.DurationMS,
		startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: append invocation: %w", err)
	}
	return nil
}

// Recent returns up to limit invocations, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Invocation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history: store is nil")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT request_id, tool_name, success, error_kind, duration_ms, started_at
FROM invocations
ORDER BY started_at DESC, rowid DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query invocations: %w", err)
	}
	defer rows.Close()

	out := make([]Invocation, 0, limit)
	for rows.Next() {
		var (
			inv       Invocation
			success   int
			startedAt string
		)
		if err := rows.Scan(&inv.RequestID, &inv.Tool, &success, &inv.ErrorKind, &inv.DurationMS, &startedAt); err != nil {
			return nil, fmt.Errorf("history: scan invocation: %w", err)
		}
		inv.Success = success != 0
		ts, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("history: parse started_at %q: %w", startedAt, err)
		}
		inv.StartedAt = ts
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate invocations: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Recorder adapts the journal to the dispatch observer interface. Journal
// write failures are logged and dropped; recording must never fail a
// dispatch.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder builds a dispatch observer over the journal.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// ObserveDispatch implements tool.Observer.
func (r *Recorder) ObserveDispatch(obs tool.DispatchObservation) {
	if r == nil || r.store == nil {
		return
	}
	err := r.store.Append(context.Background(), Invocation{
		RequestID:  obs.RequestID,
		Tool:       obs.Tool,
		Success:    obs.Success,
		ErrorKind:  string(obs.ErrorKind),
		DurationMS: obs.DurationMS,
		StartedAt:  time.Now().UTC(),
	})
	if err != nil {
		r.logger.Error("failed to journal invocation",
			"tool", obs.Tool,
			"request_id", obs.RequestID,
			"error", err,
		)
	}
}

var _ tool.Observer = (*Recorder)(nil)
