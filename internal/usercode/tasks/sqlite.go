package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS delegation_tasks (
	id             TEXT PRIMARY KEY,
	event_id       TEXT NOT NULL,
	bot_id         TEXT NOT NULL,
	script_name    TEXT NOT NULL,
	server_id      TEXT NOT NULL,
	started_at     INTEGER NOT NULL,
	ended_at       INTEGER NOT NULL,
	status_code    INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_delegation_tasks_bot ON delegation_tasks(bot_id, started_at);
`

var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository stores tasks in a SQLite database.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens, or creates, the task database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, handler slog.Handler) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s on %s: %w", pragma, path, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema on %s: %w", path, err)
	}

	logger := slog.Default().WithGroup("tasks.SQLiteRepository")
	if handler != nil {
		logger = slog.New(handler)
	}
	return &SQLiteRepository{db: db, logger: logger}, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Record implements Repository.
func (r *SQLiteRepository) Record(ctx context.Context, t Task) error {
	if !t.Finalized() {
		return fmt.Errorf("%w: %s", ErrNotFinalized, t.ID)
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO delegation_tasks
	(id, event_id, bot_id, script_name, server_id, started_at, ended_at, status_code, status, failure_reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		t.ID.String(), t.EventID, t.BotID, t.ScriptName, t.ServerID,
		t.StartedAt.UnixNano(), t.EndedAt.UnixNano(), t.StatusCode, string(t.Status), t.FailureReason)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyRecorded, t.ID)
	}
	r.logger.Debug("Recorded task", "id", t.ID, "status", t.Status)
	return nil
}

// List implements Repository.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) ([]Task, error) {
	var (
		where []string
		args  []any
	)
	if f.BotID != "" {
		where = append(where, "bot_id = ?")
		args = append(args, f.BotID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT id, event_id, bot_id, script_name, server_id, started_at, ended_at,
	status_code, status, failure_reason FROM delegation_tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Task
	for rows.Next() {
		var (
			t              Task
			id, status     string
			started, ended int64
		)
		if err := rows.Scan(&id, &t.EventID, &t.BotID, &t.ScriptName, &t.ServerID,
			&started, &ended, &t.StatusCode, &status, &t.FailureReason); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t.ID, err = uuid.FromString(id); err != nil {
			return nil, fmt.Errorf("task id %q: %w", id, err)
		}
		t.StartedAt = time.Unix(0, started)
		t.EndedAt = time.Unix(0, ended)
		t.Status = Status(status)
		out = append(out, t)
	}
	return out, rows.Err()
}
