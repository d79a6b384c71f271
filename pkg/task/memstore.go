package task

import (
	"context"
	"sync"
)

// MemStore is an in-memory task store. It backs tests and zero-config
// development runs; insertion order stands in for creation order.
type MemStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{tasks: make(map[string]*Task)}
}

// Create inserts a new task, assigning defaults and an id if missing.
func (s *MemStore) Create(_ context.Context, t *Task) (*Task, error) {
	stored := t.Clone()
	if err := prepareCreate(stored); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[stored.ID]; exists {
		return nil, errDuplicateID(stored.ID)
	}
	s.tasks[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return stored.Clone(), nil
}

// Get retrieves a single task by id.
func (s *MemStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// List returns tasks newest-created first, optionally filtered by status.
func (s *MemStore) List(_ context.Context, status string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]Task, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.tasks[s.order[i]]
		if status != "" && string(t.Status) != status {
			continue
		}
		tasks = append(tasks, *t.Clone())
	}
	return tasks, nil
}

// Update applies the present keys to the task and returns the result.
func (s *MemStore) Update(_ context.Context, id string, updates map[string]any) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	updated := t.Clone()
	if err := applyUpdates(updated, updates); err != nil {
		return nil, err
	}
	s.tasks[id] = updated
	return updated.Clone(), nil
}

// Delete removes a single task.
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteAll removes every task and reports how many were removed.
func (s *MemStore) DeleteAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tasks)
	s.tasks = make(map[string]*Task)
	s.order = nil
	return n, nil
}

// CountByStatus counts tasks per lifecycle state.
func (s *MemStore) CountByStatus(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats Stats
	for _, t := range s.tasks {
		stats.Total++
		switch t.Status {
		case StatusPending:
			stats.Pending++
		case StatusSent:
			stats.Sent++
		case StatusDeclined:
			stats.Declined++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
