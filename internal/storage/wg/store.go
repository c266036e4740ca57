// Package wg implements storage.Store on top of the workgraph CLI.
//
// Reads go straight to graph.jsonl; every mutation shells out to
// `wg --dir <workgraph> ...` so the CLI stays the single writer.
package wg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/types"
	"github.com/speedrift/driftdriver/internal/workgraph"
)

// DefaultBinary is the workgraph CLI looked up on PATH.
const DefaultBinary = "wg"

// Store is a storage.Store backed by the wg CLI.
type Store struct {
	graph  workgraph.Workgraph
	bin    string
	runner Runner
}

var _ storage.Store = (*Store)(nil)

// New returns a store for graph. An empty bin uses DefaultBinary; a nil
// runner uses ExecRunner rooted at the project directory.
func New(graph workgraph.Workgraph, bin string, runner Runner) *Store {
	if bin == "" {
		bin = DefaultBinary
	}
	if runner == nil {
		runner = ExecRunner{Dir: graph.ProjectDir}
	}
	return &Store{graph: graph, bin: bin, runner: runner}
}

func (s *Store) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"--dir", s.graph.Dir}, args...)
	return s.runner.Run(ctx, s.bin, full...)
}

// LoadTasks reads graph.jsonl directly.
func (s *Store) LoadTasks(_ context.Context) ([]*types.Task, error) {
	tasks, err := s.graph.LoadTasks()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
		return nil, err
	}
	return tasks, nil
}

// ShowTask runs `wg show <id> --json`. The CLI prints either an object or
// a one-element array.
func (s *Store) ShowTask(ctx context.Context, id string) (*types.Task, error) {
	out, err := s.run(ctx, "show", id, "--json")
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("show %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("show %s: %w", id, err)
	}
	task, err := decodeShow(out)
	if err != nil {
		return nil, fmt.Errorf("show %s: %w", id, err)
	}
	if task == nil || task.ID == "" {
		return nil, fmt.Errorf("show %s: %w", id, storage.ErrNotFound)
	}
	return task, nil
}

func decodeShow(out []byte) (*types.Task, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []types.Task
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, fmt.Errorf("parse show output: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		return &list[0], nil
	}
	var task types.Task
	if err := json.Unmarshal([]byte(trimmed), &task); err != nil {
		return nil, fmt.Errorf("parse show output: %w", err)
	}
	return &task, nil
}

// CreateTask runs `wg add <title> --id <id> ...`.
func (s *Store) CreateTask(ctx context.Context, t *types.NewTask) (string, error) {
	if t == nil || t.ID == "" {
		return "", errors.New("create task: id is required")
	}
	args := []string{"add", t.Title, "--id", t.ID}
	for _, blocker := range t.BlockedBy {
		args = append(args, "--blocked-by", blocker)
	}
	if t.Description != "" {
		args = append(args, "-d", t.Description)
	}
	for _, tag := range t.Tags {
		args = append(args, "-t", tag)
	}
	if _, err := s.run(ctx, args...); err != nil {
		if isAlreadyExists(err) {
			return "", fmt.Errorf("create %s: %w", t.ID, storage.ErrAlreadyExists)
		}
		return "", fmt.Errorf("create %s: %w", t.ID, err)
	}
	return t.ID, nil
}

// AbandonTask runs `wg abandon <id>`.
func (s *Store) AbandonTask(ctx context.Context, id string) error {
	if _, err := s.run(ctx, "abandon", id); err != nil {
		return mutationError(id, err)
	}
	return nil
}

// RescheduleTask runs `wg reschedule <id> --after <hours>`.
func (s *Store) RescheduleTask(ctx context.Context, id string, hours int) error {
	if _, err := s.run(ctx, "reschedule", id, "--after", strconv.Itoa(hours)); err != nil {
		return mutationError(id, err)
	}
	return nil
}

// LogMessage runs `wg log <id> <text>`.
func (s *Store) LogMessage(ctx context.Context, id, text string) error {
	if _, err := s.run(ctx, "log", id, text); err != nil {
		return mutationError(id, err)
	}
	return nil
}

func mutationError(id string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	return err
}

func stderrOf(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return strings.ToLower(cmdErr.Stderr)
	}
	return ""
}

func isNotFound(err error) bool {
	if errors.Is(err, storage.ErrUnavailable) {
		return false
	}
	msg := stderrOf(err)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no such task")
}

func isAlreadyExists(err error) bool {
	msg := stderrOf(err)
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate")
}
