// Package graph holds the read-only task graph view used by one controller
// invocation, plus the pure predicates and graph walks over it.
package graph

import (
	"strings"

	"github.com/speedrift/driftdriver/internal/types"
)

// Snapshot is an immutable id-indexed view of all tasks, built once per
// invocation. Callers must not mutate the tasks it returns.
type Snapshot struct {
	tasks []*types.Task
	byID  map[string]*types.Task
}

// NewSnapshot indexes tasks by id. A repeated id keeps its first position in
// iteration order but takes the value of its last occurrence, matching how a
// replayed graph.jsonl resolves updates. Nil tasks and empty ids are dropped.
func NewSnapshot(tasks []*types.Task) *Snapshot {
	s := &Snapshot{
		tasks: make([]*types.Task, 0, len(tasks)),
		byID:  make(map[string]*types.Task, len(tasks)),
	}
	position := make(map[string]int, len(tasks))
	for _, t := range tasks {
		if t == nil || strings.TrimSpace(t.ID) == "" {
			continue
		}
		if i, ok := position[t.ID]; ok {
			s.tasks[i] = t
		} else {
			position[t.ID] = len(s.tasks)
			s.tasks = append(s.tasks, t)
		}
		s.byID[t.ID] = t
	}
	return s
}

// Tasks returns the tasks in load order. The slice is a copy.
func (s *Snapshot) Tasks() []*types.Task {
	if s == nil {
		return nil
	}
	out := make([]*types.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Get looks up a task by id.
func (s *Snapshot) Get(id string) (*types.Task, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.byID[id]
	return t, ok
}

// Len returns the number of distinct tasks.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tasks)
}
