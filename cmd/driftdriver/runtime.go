package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/speedrift/driftdriver/internal/config"
	"github.com/speedrift/driftdriver/internal/debug"
	"github.com/speedrift/driftdriver/internal/governor"
	"github.com/speedrift/driftdriver/internal/graph"
	"github.com/speedrift/driftdriver/internal/health"
	"github.com/speedrift/driftdriver/internal/policy"
	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/storage/wg"
	"github.com/speedrift/driftdriver/internal/telemetry"
	"github.com/speedrift/driftdriver/internal/workgraph"
)

// env bundles what every governing command needs for one invocation.
type env struct {
	graph   workgraph.Workgraph
	store   storage.Store
	auditor *health.Auditor
	policy  *policy.Policy
}

// openEnv locates the workgraph, loads the family table and policy, and
// opens the task store. A missing workgraph exits with the usage code.
func openEnv() *env {
	cwd, err := os.Getwd()
	if err != nil {
		FatalError("cannot determine working directory: %v", err)
	}
	g, err := workgraph.Find(dirFlag, cwd)
	if err != nil {
		FatalErrorRespectJSON(governor.ExitUsage, "%v (run inside a workgraph project or pass --dir)", err)
	}
	debug.Logf("workgraph: %s\n", g.Dir)

	families, err := graph.LoadFamilyTable(familiesPath(g))
	if err != nil {
		WarnError("%v; using built-in drift families", err)
	}

	pol, warnings := policy.Load(g.Dir)
	for _, w := range warnings {
		WarnError("%s", w)
	}

	store := wg.New(g, config.GetString("wg-bin"), nil)
	return &env{
		graph:   g,
		store:   telemetry.WrapStore(store),
		auditor: health.NewAuditor(graph.NewClassifier(families)),
		policy:  pol,
	}
}

func familiesPath(g workgraph.Workgraph) string {
	name := config.GetString("families-file")
	if name == "" {
		name = graph.FamiliesFileName
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(g.Dir, name)
}

// snapshot loads the task graph or exits.
func (e *env) snapshot() *graph.Snapshot {
	snap, err := storage.LoadSnapshot(getRootContext(), e.store)
	if err != nil {
		FatalError("failed to load task graph: %v", err)
	}
	return snap
}

func now() time.Time { return time.Now().UTC() }
