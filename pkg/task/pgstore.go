package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, title, description, text, source, url, priority, deadline, status, jira_key, jira_url, created_at, sent_at, declined_at, created_via, metadata`

// PgStore is a PostgreSQL-backed task store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the tasks table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			text        TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL DEFAULT 'web',
			url         TEXT NOT NULL DEFAULT '',
			priority    TEXT NOT NULL DEFAULT 'medium',
			deadline    DATE,
			status      TEXT NOT NULL DEFAULT 'pending',
			jira_key    TEXT NOT NULL DEFAULT '',
			jira_url    TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			sent_at     TIMESTAMPTZ,
			declined_at TIMESTAMPTZ,
			created_via TEXT NOT NULL DEFAULT 'extension',
			metadata    JSONB NOT NULL DEFAULT '{}'
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`)
	return err
}

// Create inserts a new task.
func (s *PgStore) Create(ctx context.Context, t *Task) (*Task, error) {
	stored := t.Clone()
	if err := prepareCreate(stored); err != nil {
		return nil, err
	}

	metaJSON, err := json.Marshal(stored.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var deadline any
	if stored.Deadline != nil {
		deadline = stored.Deadline.Time
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::jsonb)`,
		stored.ID, stored.Title, stored.Description, stored.Text, stored.Source, stored.URL,
		string(stored.Priority), deadline, string(stored.Status), stored.JiraKey, stored.JiraURL,
		stored.CreatedAt, stored.SentAt, stored.DeclinedAt, stored.CreatedVia, string(metaJSON))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return stored, nil
}

// Get retrieves a single task by id.
func (s *PgStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// List returns tasks newest-created first, filtered by status (empty = all).
func (s *PgStore) List(ctx context.Context, status string) ([]Task, error) {
	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = $1 ORDER BY created_at DESC`, status)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
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

// Update modifies the fields named in updates with a single UPDATE statement.
// Unknown keys are ignored; an update with no recognized keys is a read.
func (s *PgStore) Update(ctx context.Context, id string, updates map[string]any) (*Task, error) {
	var setClauses string
	var args []any
	argIdx := 1

	add := func(col string, v any) {
		if setClauses != "" {
			setClauses += ", "
		}
		setClauses += fmt.Sprintf("%s = $%d", col, argIdx)
		args = append(args, v)
		argIdx++
	}

	for k, v := range updates {
		switch k {
		case "title":
			add("title", stringValue(v))
		case "description":
			add("description", stringValue(v))
		case "text":
			add("text", stringValue(v))
		case "source":
			add("source", stringValue(v))
		case "url":
			add("url", stringValue(v))
		case "priority":
			add("priority", stringValue(v))
		case "status":
			add("status", stringValue(v))
		case "jiraKey":
			add("jira_key", stringValue(v))
		case "jiraUrl":
			add("jira_url", stringValue(v))
		case "deadline":
			d, err := coerceDeadline(v)
			if err != nil {
				return nil, err
			}
			if d == nil {
				add("deadline", nil)
			} else {
				add("deadline", d.Time)
			}
		case "sentAt":
			ts, err := coerceTime(v)
			if err != nil {
				return nil, err
			}
			add("sent_at", ts)
		case "declinedAt":
			ts, err := coerceTime(v)
			if err != nil {
				return nil, err
			}
			add("declined_at", ts)
		case "metadata":
			metaJSON, err := json.Marshal(metadataValue(v))
			if err != nil {
				return nil, fmt.Errorf("marshal metadata: %w", err)
			}
			if setClauses != "" {
				setClauses += ", "
			}
			setClauses += fmt.Sprintf("metadata = $%d::jsonb", argIdx)
			args = append(args, string(metaJSON))
			argIdx++
		}
	}

	if setClauses == "" {
		return s.Get(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d RETURNING %s", setClauses, argIdx, taskColumns)

	t, err := scanTask(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	return t, nil
}

// Delete removes a single task.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every task and reports how many were removed.
func (s *PgStore) DeleteAll(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("delete all tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountByStatus counts tasks per lifecycle state.
func (s *PgStore) CountByStatus(ctx context.Context) (Stats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
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

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var priority, status string
	var deadline *time.Time
	var metaJSON []byte
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Text, &t.Source, &t.URL,
		&priority, &deadline, &status, &t.JiraKey, &t.JiraURL,
		&t.CreatedAt, &t.SentAt, &t.DeclinedAt, &t.CreatedVia, &metaJSON)
	if err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	t.Status = Status(status)
	if deadline != nil {
		t.Deadline = &Date{*deadline}
	}
	if err := json.Unmarshal(metaJSON, &t.Metadata); err != nil {
		t.Metadata = map[string]any{}
	}
	return &t, nil
}
