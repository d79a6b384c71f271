package task

import (
	"context"
	"fmt"
	"time"
)

// Issuer creates a remote issue for a task. Implemented by the Jira
// adapter; faked in tests.
type Issuer interface {
	Configured() bool
	CreateIssue(ctx context.Context, t *Task) (key, url string, err error)
}

// CreateRequest is the client payload for creating a task.
type CreateRequest struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Text        string         `json:"text"`
	Source      string         `json:"source"`
	URL         string         `json:"url"`
	Priority    string         `json:"priority"`
	Deadline    string         `json:"deadline"`
	CreatedVia  string         `json:"createdVia"`
	Metadata    map[string]any `json:"metadata"`
}

// Service drives the task lifecycle: pending -> sent | declined,
// declined -> pending. Transitions deliberately do not guard the source
// state; marking an already-sent task sent again just restamps sentAt.
type Service struct {
	store Store
	jira  Issuer
	now   func() time.Time
}

// NewService creates a Service on top of a store and an issue tracker.
func NewService(store Store, jira Issuer) *Service {
	return &Service{
		store: store,
		jira:  jira,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Create validates the request and persists a new pending task.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Task, error) {
	t := &Task{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		Text:        req.Text,
		Source:      req.Source,
		URL:         req.URL,
		Priority:    Priority(req.Priority),
		Status:      StatusPending,
		CreatedVia:  req.CreatedVia,
		Metadata:    req.Metadata,
		CreatedAt:   s.now(),
	}
	if req.Deadline != "" {
		d, err := ParseDate(req.Deadline)
		if err != nil {
			return nil, err
		}
		t.Deadline = &d
	}
	return s.store.Create(ctx, t)
}

// MarkSent transitions a task to sent, stamping sentAt and attaching the
// issue key and URL when provided.
func (s *Service) MarkSent(ctx context.Context, id, jiraKey, jiraURL string) (*Task, error) {
	updates := map[string]any{
		"status": StatusSent,
		"sentAt": s.now(),
	}
	if jiraKey != "" {
		updates["jiraKey"] = jiraKey
	}
	if jiraURL != "" {
		updates["jiraUrl"] = jiraURL
	}
	return s.store.Update(ctx, id, updates)
}

// Decline transitions a task to declined, stamping declinedAt.
func (s *Service) Decline(ctx context.Context, id string) (*Task, error) {
	return s.store.Update(ctx, id, map[string]any{
		"status":     StatusDeclined,
		"declinedAt": s.now(),
	})
}

// Restore returns a declined (or failed) task to pending, clearing
// declinedAt and any recorded send error.
func (s *Service) Restore(ctx context.Context, id string) (*Task, error) {
	updates := map[string]any{
		"status":     StatusPending,
		"declinedAt": nil,
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := t.Metadata["sendError"]; ok {
		delete(t.Metadata, "sendError")
		updates["metadata"] = t.Metadata
	}
	return s.store.Update(ctx, id, updates)
}

// Send creates a remote issue for the task and, on success, marks it
// sent with the issue key and URL. On failure the task is left untouched.
func (s *Service) Send(ctx context.Context, id string) (*Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key, url, err := s.jira.CreateIssue(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create issue for task %s: %w", id, err)
	}
	return s.MarkSent(ctx, id, key, url)
}

// CreateAndSend persists a task and immediately tries to create a remote
// issue for it. On tracker failure the task is kept with status failed and
// the error recorded in metadata.sendError; both the persisted task and
// the error are returned so the caller can report them together.
func (s *Service) CreateAndSend(ctx context.Context, req CreateRequest) (*Task, error) {
	created, err := s.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	key, url, err := s.jira.CreateIssue(ctx, created)
	if err != nil {
		meta := created.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		meta["sendError"] = err.Error()
		failed, uerr := s.store.Update(ctx, created.ID, map[string]any{
			"status":   StatusFailed,
			"metadata": meta,
		})
		if uerr != nil {
			return created, fmt.Errorf("create issue: %w (and recording failure: %v)", err, uerr)
		}
		return failed, fmt.Errorf("create issue: %w", err)
	}

	return s.MarkSent(ctx, created.ID, key, url)
}
