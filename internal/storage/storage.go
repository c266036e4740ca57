// Package storage defines the task store the drift controller reads and
// mutates.
//
// The store is an external, already-durable collaborator. Implementations
// live in sub-packages: wg (the workgraph CLI) and memory (tests and dry
// runs). The telemetry package decorates any of them.
package storage

import (
	"context"
	"errors"

	"github.com/speedrift/driftdriver/internal/types"
)

// ErrNotFound is returned when a requested task does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned by CreateTask when the id is taken.
var ErrAlreadyExists = errors.New("already exists")

// ErrUnavailable is returned when the store cannot be reached or read.
var ErrUnavailable = errors.New("task store unavailable")

// Store is the narrow command interface to the task graph.
// Consumers depend on this interface so the workgraph CLI, the in-memory
// store and decorators can be substituted.
type Store interface {
	// LoadTasks returns every task in the graph in store order.
	LoadTasks(ctx context.Context) ([]*types.Task, error)

	// CreateTask creates a task and returns its id.
	CreateTask(ctx context.Context, t *types.NewTask) (string, error)

	// ShowTask returns a single task or ErrNotFound.
	ShowTask(ctx context.Context, id string) (*types.Task, error)

	// AbandonTask marks a task abandoned.
	AbandonTask(ctx context.Context, id string) error

	// RescheduleTask gates a task until now plus hours.
	RescheduleTask(ctx context.Context, id string, hours int) error

	// LogMessage appends a message to a task's log.
	LogMessage(ctx context.Context, id, text string) error
}
