// Package storage persists the active thread of each project in a local
// SQLite file. It is a convenience cache: message content is never stored and
// must be re-fetched after a restart.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ActiveThreads is a SQLite-backed map of project id to active thread id.
type ActiveThreads struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*ActiveThreads, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if p != ":memory:" {
		p = filepath.Clean(p)
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ActiveThreads{db: db}, nil
}

// Close closes the database.
func (a *ActiveThreads) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS active_threads (
  project_id TEXT PRIMARY KEY,
  thread_id TEXT NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
);`); err != nil {
		return fmt.Errorf("create active_threads: %w", err)
	}
	return nil
}

// Get returns the stored active thread for the project, or "".
func (a *ActiveThreads) Get(ctx context.Context, projectID string) (string, error) {
	var threadID string
	err := a.db.QueryRowContext(ctx,
		`SELECT thread_id FROM active_threads WHERE project_id = ?`,
		strings.TrimSpace(projectID),
	).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active thread: %w", err)
	}
	return threadID, nil
}

// Set stores threadID as the project's active thread; "" deletes the entry.
func (a *ActiveThreads) Set(ctx context.Context, projectID, threadID string) error {
	projectID = strings.TrimSpace(projectID)
	threadID = strings.TrimSpace(threadID)
	if projectID == "" {
		return errors.New("missing project_id")
	}

	if threadID == "" {
		if _, err := a.db.ExecContext(ctx, `DELETE FROM active_threads WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("failed to clear active thread: %w", err)
		}
		return nil
	}

	_, err := a.db.ExecContext(ctx, `
INSERT INTO active_threads(project_id, thread_id, updated_at_unix_ms)
VALUES(?, ?, ?)
ON CONFLICT(project_id) DO UPDATE SET
  thread_id = excluded.thread_id,
  updated_at_unix_ms = excluded.updated_at_unix_ms
`, projectID, threadID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store active thread: %w", err)
	}
	return nil
}

// ForgetThread removes every entry pointing at threadID.
func (a *ActiveThreads) ForgetThread(ctx context.Context, threadID string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM active_threads WHERE thread_id = ?`, strings.TrimSpace(threadID)); err != nil {
		return fmt.Errorf("failed to forget thread: %w", err)
	}
	return nil
}
