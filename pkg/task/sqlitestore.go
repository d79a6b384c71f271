package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed task store for single-node deployments.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	// SQLite serializes writes; a single connection avoids SQLITE_BUSY
	// under concurrent request handlers.
	conn.SetMaxOpenConns(1)
	s := &SQLiteStore{conn: conn}
	if err := s.ensureTable(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) ensureTable() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			text        TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL DEFAULT 'web',
			url         TEXT NOT NULL DEFAULT '',
			priority    TEXT NOT NULL DEFAULT 'medium',
			deadline    TEXT,
			status      TEXT NOT NULL DEFAULT 'pending',
			jira_key    TEXT NOT NULL DEFAULT '',
			jira_url    TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			sent_at     TEXT,
			declined_at TEXT,
			created_via TEXT NOT NULL DEFAULT 'extension',
			metadata    TEXT NOT NULL DEFAULT '{}'
		)`)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`)
	return err
}

// Create inserts a new task.
func (s *SQLiteStore) Create(ctx context.Context, t *Task) (*Task, error) {
	stored := t.Clone()
	if err := prepareCreate(stored); err != nil {
		return nil, err
	}

	metaJSON, err := json.Marshal(stored.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Title, stored.Description, stored.Text, stored.Source, stored.URL,
		string(stored.Priority), dateText(stored.Deadline), string(stored.Status),
		stored.JiraKey, stored.JiraURL, timeText(&stored.CreatedAt),
		timeText(stored.SentAt), timeText(stored.DeclinedAt), stored.CreatedVia, string(metaJSON))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return stored, nil
}

// Get retrieves a single task by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanSQLiteTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// List returns tasks newest-created first, filtered by status (empty = all).
func (s *SQLiteStore) List(ctx context.Context, status string) ([]Task, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.conn.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at DESC`, status)
	} else {
		rows, err = s.conn.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

// Update rewrites the task row with the named fields applied, inside a
// transaction so readers see either the old row or the new one.
func (s *SQLiteStore) Update(ctx context.Context, id string, updates map[string]any) (*Task, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanSQLiteTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}

	if err := applyUpdates(t, updates); err != nil {
		return nil, err
	}

	metaJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, text = ?, source = ?, url = ?,
			priority = ?, deadline = ?, status = ?, jira_key = ?, jira_url = ?,
			sent_at = ?, declined_at = ?, metadata = ?
		WHERE id = ?`,
		t.Title, t.Description, t.Text, t.Source, t.URL,
		string(t.Priority), dateText(t.Deadline), string(t.Status), t.JiraKey, t.JiraURL,
		timeText(t.SentAt), timeText(t.DeclinedAt), string(metaJSON), id)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return t, nil
}

// Delete removes a single task.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every task and reports how many were removed.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("delete all tasks: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountByStatus counts tasks per lifecycle state.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (Stats, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, err
		}
		stats.Total += n
		switch Status(status) {
		case StatusPending:
			stats.Pending = n
		case StatusSent:
			stats.Sent = n
		case StatusDeclined:
			stats.Declined = n
		case StatusFailed:
			stats.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("row iteration: %w", err)
	}
	return stats, nil
}

// dateText renders a deadline for storage, nil for NULL.
func dateText(d *Date) any {
	if d == nil {
		return nil
	}
	return d.Format("2006-01-02")
}

// timeText renders a timestamp for storage, nil for NULL. RFC 3339 with
// a fixed UTC offset keeps lexical order equal to chronological order,
// which the created_at DESC listing relies on.
func timeText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}

func scanSQLiteTask(row interface{ Scan(dest ...any) error }) (*Task, error) {
	var t Task
	var priority, status, createdAt string
	var deadline, sentAt, declinedAt sql.NullString
	var metaJSON string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Text, &t.Source, &t.URL,
		&priority, &deadline, &status, &t.JiraKey, &t.JiraURL,
		&createdAt, &sentAt, &declinedAt, &t.CreatedVia, &metaJSON)
	if err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	t.Status = Status(status)

	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if deadline.Valid {
		d, err := ParseDate(deadline.String)
		if err != nil {
			return nil, err
		}
		t.Deadline = &d
	}
	if t.SentAt, err = parseNullTime(sentAt); err != nil {
		return nil, err
	}
	if t.DeclinedAt, err = parseNullTime(declinedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &t.Metadata); err != nil {
		t.Metadata = map[string]any{}
	}
	return &t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return &ts, nil
}
