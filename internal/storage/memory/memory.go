// Package memory implements an in-memory task store for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/types"
)

// MemoryStorage keeps tasks in insertion order behind a mutex.
type MemoryStorage struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]*types.Task
	logs  map[string][]string

	// Now stamps created_at and reschedules. Defaults to time.Now.
	Now func() time.Time
}

// New returns a store seeded with copies of tasks.
func New(tasks ...*types.Task) *MemoryStorage {
	m := &MemoryStorage{
		tasks: make(map[string]*types.Task),
		logs:  make(map[string][]string),
		Now:   time.Now,
	}
	for _, t := range tasks {
		m.put(t)
	}
	return m
}

var _ storage.Store = (*MemoryStorage)(nil)

func (m *MemoryStorage) put(t *types.Task) {
	if t == nil || t.ID == "" {
		return
	}
	if _, ok := m.tasks[t.ID]; !ok {
		m.order = append(m.order, t.ID)
	}
	m.tasks[t.ID] = cloneTask(t)
}

func cloneTask(t *types.Task) *types.Task {
	cp := *t
	cp.Tags = append([]string(nil), t.Tags...)
	cp.BlockedBy = append([]string(nil), t.BlockedBy...)
	return &cp
}

// LoadTasks returns copies of every task.
func (m *MemoryStorage) LoadTasks(_ context.Context) ([]*types.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneTask(m.tasks[id]))
	}
	return out, nil
}

// CreateTask stores a new open task.
func (m *MemoryStorage) CreateTask(_ context.Context, nt *types.NewTask) (string, error) {
	if nt == nil || nt.ID == "" {
		return "", fmt.Errorf("create task: id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[nt.ID]; ok {
		return "", fmt.Errorf("create task %s: %w", nt.ID, storage.ErrAlreadyExists)
	}
	m.put(&types.Task{
		ID:          nt.ID,
		Title:       nt.Title,
		Status:      types.StatusOpen,
		Description: nt.Description,
		Tags:        nt.Tags,
		BlockedBy:   nt.BlockedBy,
		CreatedAt:   m.Now().UTC().Format(time.RFC3339),
	})
	return nt.ID, nil
}

// ShowTask returns a copy of the task or storage.ErrNotFound.
func (m *MemoryStorage) ShowTask(_ context.Context, id string) (*types.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("show task %s: %w", id, storage.ErrNotFound)
	}
	return cloneTask(t), nil
}

// AbandonTask sets the task status to abandoned.
func (m *MemoryStorage) AbandonTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("abandon task %s: %w", id, storage.ErrNotFound)
	}
	t.Status = types.StatusAbandoned
	return nil
}

// RescheduleTask sets not_before to now plus hours.
func (m *MemoryStorage) RescheduleTask(_ context.Context, id string, hours int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("reschedule task %s: %w", id, storage.ErrNotFound)
	}
	t.NotBefore = m.Now().UTC().Add(time.Duration(hours) * time.Hour).Format(time.RFC3339)
	return nil
}

// LogMessage appends text to the task's log.
func (m *MemoryStorage) LogMessage(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("log task %s: %w", id, storage.ErrNotFound)
	}
	m.logs[id] = append(m.logs[id], text)
	return nil
}

// Logs returns the messages logged against id.
func (m *MemoryStorage) Logs(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.logs[id]...)
}
