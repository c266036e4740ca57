package storage

import (
	"context"
	"fmt"

	"github.com/speedrift/driftdriver/internal/graph"
)

// LoadSnapshot reads every task from s and indexes it. A load failure
// yields no partial snapshot.
func LoadSnapshot(ctx context.Context, s Store) (*graph.Snapshot, error) {
	tasks, err := s.LoadTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return graph.NewSnapshot(tasks), nil
}
