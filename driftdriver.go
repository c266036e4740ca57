// Package driftdriver provides a minimal public API for tools that want to
// read drift health from a workgraph without shelling out to the CLI.
//
// Extensions that mutate the graph should go through the wg CLI. This package
// exports only the read-side types and the store opener.
package driftdriver

import (
	"context"
	"time"

	"github.com/speedrift/driftdriver/internal/graph"
	"github.com/speedrift/driftdriver/internal/health"
	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/storage/wg"
	"github.com/speedrift/driftdriver/internal/types"
	"github.com/speedrift/driftdriver/internal/workgraph"
)

// Core types for working with tasks
type (
	Task       = types.Task
	Status     = types.Status
	Scoreboard = types.Scoreboard
	QueueEntry = types.QueueEntry
)

// Status constants
const (
	StatusOpen       = types.StatusOpen
	StatusInProgress = types.StatusInProgress
	StatusDone       = types.StatusDone
	StatusAbandoned  = types.StatusAbandoned
)

// Store is the task store interface the controller runs against.
type Store = storage.Store

// FindWorkgraphDir returns the .workgraph directory governing dir, or "" when
// there is none.
func FindWorkgraphDir(dir string) string {
	g, err := workgraph.Find("", dir)
	if err != nil {
		return ""
	}
	return g.Dir
}

// Open returns a store for the workgraph governing dir. Mutations run through
// the wg binary on PATH.
func Open(dir string) (Store, error) {
	g, err := workgraph.Find("", dir)
	if err != nil {
		return nil, err
	}
	return wg.New(g, "wg", nil), nil
}

// Health computes the scoreboard and the ranked ready queue of store with the
// built-in drift families.
func Health(ctx context.Context, store Store, limit int) (Scoreboard, []QueueEntry, error) {
	snap, err := storage.LoadSnapshot(ctx, store)
	if err != nil {
		return Scoreboard{}, nil, err
	}
	a := health.NewAuditor(graph.DefaultClassifier)
	now := time.Now().UTC()
	return a.ComputeScoreboard(snap, now), a.RankReadyDriftQueue(snap, limit, now), nil
}
