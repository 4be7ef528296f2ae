// Package history persists recently finished tasks in a local sqlite
// database so the recent list survives restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ytget/dlsync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS retired_tasks (
	task_id     TEXT PRIMARY KEY,
	url         TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	progress    REAL NOT NULL DEFAULT 0,
	total_bytes REAL NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL DEFAULT 0,
	retired_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_retired_tasks_retired_at ON retired_tasks(retired_at);
`

// DefaultKeep is how many retired tasks are kept across restarts
const DefaultKeep = 500

// Store is a sqlite-backed list of retired tasks
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts or replaces a retired task
func (s *Store) Record(ctx context.Context, t model.LocalTask) error {
	retired := t.RetiredAt
	if retired.IsZero() {
		retired = t.SortTime()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retired_tasks (task_id, url, title, status, progress, total_bytes, error, created_at, retired_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			status = excluded.status,
			progress = excluded.progress,
			total_bytes = excluded.total_bytes,
			error = excluded.error,
			created_at = excluded.created_at,
			retired_at = excluded.retired_at`,
		t.TaskID, t.URL, t.Title, string(t.Status), t.Progress, t.TotalBytes, t.Error,
		toMillis(t.CreatedAt), toMillis(retired))
	if err != nil {
		return fmt.Errorf("record %s: %w", t.TaskID, err)
	}
	return nil
}

// Recent returns up to limit retired tasks, most recent first
func (s *Store) Recent(ctx context.Context, limit int) ([]model.LocalTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, url, title, status, progress, total_bytes, error, created_at, retired_at
		FROM retired_tasks
		ORDER BY retired_at DESC, task_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var tasks []model.LocalTask
	for rows.Next() {
		var (
			t       model.LocalTask
			status  string
			created int64
			retired int64
		)
		if err := rows.Scan(&t.TaskID, &t.URL, &t.Title, &status, &t.Progress, &t.TotalBytes, &t.Error, &created, &retired); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		t.Status = model.TaskStatus(status)
		t.CreatedAt = fromMillis(created)
		t.RetiredAt = fromMillis(retired)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Prune keeps the newest keep rows and deletes the rest
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM retired_tasks WHERE task_id NOT IN (
			SELECT task_id FROM retired_tasks ORDER BY retired_at DESC, task_id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
