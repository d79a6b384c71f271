package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusDeclined Status = "declined"
	// StatusFailed marks a task whose immediate issue creation failed.
	// The tracker error is kept in metadata under "sendError".
	StatusFailed Status = "failed"
)

// Priority is a task's urgency level. Unrecognized values are stored
// as-is and fall back to medium when mapped downstream.
type Priority string

const (
	PriorityHighest Priority = "highest"
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
	PriorityLowest  Priority = "lowest"
)

// JiraID returns the Jira priority id for this priority.
func (p Priority) JiraID() int {
	switch p {
	case PriorityHighest:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	case PriorityLowest:
		return 5
	default:
		return 3
	}
}

var (
	ErrNotFound   = errors.New("task not found")
	ErrValidation = errors.New("validation failed")
)

// Task is a captured reminder with lifecycle status.
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Text        string         `json:"text"`
	Source      string         `json:"source"`
	URL         string         `json:"url,omitempty"`
	Priority    Priority       `json:"priority"`
	Deadline    *Date          `json:"deadline,omitempty"`
	Status      Status         `json:"status"`
	JiraKey     string         `json:"jiraKey,omitempty"`
	JiraURL     string         `json:"jiraUrl,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	SentAt      *time.Time     `json:"sentAt,omitempty"`
	DeclinedAt  *time.Time     `json:"declinedAt,omitempty"`
	CreatedVia  string         `json:"createdVia"`
	Metadata    map[string]any `json:"metadata"`
}

// Clone returns a deep copy, so callers can't mutate stored state.
func (t *Task) Clone() *Task {
	c := *t
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.SentAt != nil {
		ts := *t.SentAt
		c.SentAt = &ts
	}
	if t.DeclinedAt != nil {
		ts := *t.DeclinedAt
		c.DeclinedAt = &ts
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Stats is the per-status task count.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Sent     int `json:"sent"`
	Declined int `json:"declined"`
	Failed   int `json:"failed"`
}

// Store is the contract for task persistence.
//
// Update applies only the keys present in updates (camelCase JSON field
// names: title, description, text, source, url, priority, deadline, status,
// jiraKey, jiraUrl, sentAt, declinedAt, metadata); unknown keys are ignored.
// A deadline given as a string is re-parsed from ISO-8601; nil clears it.
// List returns tasks newest-created first; an empty status returns all.
type Store interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, status string) ([]Task, error)
	Update(ctx context.Context, id string, updates map[string]any) (*Task, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (Stats, error)
}

// Date is a calendar date without a time component. It marshals as
// "2006-01-02" and unmarshals from an ISO-8601 date or date-time prefix.
type Date struct {
	time.Time
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format("2006-01-02"))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDate parses an ISO-8601 date, ignoring any time-of-day suffix.
func ParseDate(s string) (Date, error) {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid deadline %q", ErrValidation, s)
	}
	return Date{t}, nil
}

// coerceDeadline normalizes an update value for the deadline field.
// Accepts string, Date, *Date, time.Time and nil.
func coerceDeadline(v any) (*Date, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		d, err := ParseDate(val)
		if err != nil {
			return nil, err
		}
		return &d, nil
	case Date:
		return &val, nil
	case *Date:
		return val, nil
	case time.Time:
		return &Date{val}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported deadline value %T", ErrValidation, v)
	}
}

// coerceTime normalizes an update value for a timestamp field.
func coerceTime(v any) (*time.Time, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &val, nil
	case *time.Time:
		return val, nil
	case string:
		if val == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timestamp %q", ErrValidation, val)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("%w: unsupported timestamp value %T", ErrValidation, v)
	}
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func errDuplicateID(id string) error {
	return fmt.Errorf("%w: duplicate task id %s", ErrValidation, id)
}

// applyUpdates applies the recognized update keys to t in place.
// Unknown keys are ignored.
func applyUpdates(t *Task, updates map[string]any) error {
	for k, v := range updates {
		switch k {
		case "title":
			t.Title = stringValue(v)
		case "description":
			t.Description = stringValue(v)
		case "text":
			t.Text = stringValue(v)
		case "source":
			t.Source = stringValue(v)
		case "url":
			t.URL = stringValue(v)
		case "priority":
			t.Priority = Priority(stringValue(v))
		case "status":
			t.Status = Status(stringValue(v))
		case "jiraKey":
			t.JiraKey = stringValue(v)
		case "jiraUrl":
			t.JiraURL = stringValue(v)
		case "deadline":
			d, err := coerceDeadline(v)
			if err != nil {
				return err
			}
			t.Deadline = d
		case "sentAt":
			ts, err := coerceTime(v)
			if err != nil {
				return err
			}
			t.SentAt = ts
		case "declinedAt":
			ts, err := coerceTime(v)
			if err != nil {
				return err
			}
			t.DeclinedAt = ts
		case "metadata":
			t.Metadata = metadataValue(v)
		}
	}
	return nil
}

// prepareCreate fills creation defaults in place. Shared by all stores so
// a task looks the same no matter which backend persisted it.
func prepareCreate(t *Task) error {
	if strings.TrimSpace(t.Text) == "" && strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("%w: text or description is required", ErrValidation)
	}
	if t.Text == "" {
		t.Text = t.Description
	}
	if t.Description == "" {
		t.Description = t.Text
	}
	if t.Title == "" {
		t.Title = truncateTitle(t.Text)
	}
	if t.ID == "" {
		t.ID = "task-" + uuid.NewString()
	}
	if t.Source == "" {
		t.Source = "web"
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.CreatedVia == "" {
		t.CreatedVia = "extension"
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	return nil
}

// truncateTitle keeps the first 80 characters of the captured text.
func truncateTitle(s string) string {
	r := []rune(s)
	if len(r) <= 80 {
		return s
	}
	return string(r[:80])
}

func metadataValue(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
