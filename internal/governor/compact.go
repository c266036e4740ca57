package governor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/speedrift/driftdriver/internal/debug"
	"github.com/speedrift/driftdriver/internal/graph"
	"github.com/speedrift/driftdriver/internal/health"
	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/types"
)

// PlanCompaction decides, without mutating anything, which active drift
// tasks to abandon (duplicate losers and over-depth recursive tasks) and
// which ready tasks beyond maxReady to defer. A task is never both.
// Negative limits are treated as zero.
func PlanCompaction(a *health.Auditor, snap *graph.Snapshot, maxReady, maxRedriftDepth int, now time.Time) types.CompactionPlan {
	a = auditorOrDefault(a)
	maxReady = max(maxReady, 0)
	maxRedriftDepth = max(maxRedriftDepth, 0)

	plan := types.CompactionPlan{
		DuplicateGroups:      make([]types.CompactionGroup, 0),
		DepthExceededTaskIDs: make([]string, 0),
		DeferTaskIDs:         make([]string, 0),
		MaxReadyDrift:        maxReady,
		MaxRedriftDepth:      maxRedriftDepth,
	}
	abandon := make(map[string]bool)

	for _, group := range a.FindDuplicateOpenDriftGroups(snap) {
		members := make([]*types.Task, 0, len(group.TaskIDs))
		for _, id := range group.TaskIDs {
			if t, ok := snap.Get(id); ok {
				members = append(members, t)
			}
		}
		sort.SliceStable(members, func(i, j int) bool { return keepBefore(members[i], members[j]) })
		drop := make([]string, 0, len(members)-1)
		for _, t := range members[1:] {
			drop = append(drop, t.ID)
			abandon[t.ID] = true
		}
		plan.DuplicateGroups = append(plan.DuplicateGroups, types.CompactionGroup{
			Key:            group.Key,
			KeepTaskID:     members[0].ID,
			AbandonTaskIDs: drop,
		})
	}

	depthSeen := make(map[string]bool)
	for _, t := range snap.Tasks() {
		if !a.Classifier.IsDrift(t) || !graph.IsActive(t) || !graph.IsRecursive(t.ID) {
			continue
		}
		if t.EffectiveStatus() == types.StatusInProgress || graph.RedriftDepth(t.ID) <= maxRedriftDepth {
			continue
		}
		if !depthSeen[t.ID] {
			depthSeen[t.ID] = true
			plan.DepthExceededTaskIDs = append(plan.DepthExceededTaskIDs, t.ID)
		}
		abandon[t.ID] = true
	}
	sort.Strings(plan.DepthExceededTaskIDs)

	plan.AbandonTaskIDs = make([]string, 0, len(abandon))
	for id := range abandon {
		plan.AbandonTaskIDs = append(plan.AbandonTaskIDs, id)
	}
	sort.Strings(plan.AbandonTaskIDs)

	ready := a.ReadyDriftTasks(snap, now)
	plan.ReadyDriftBefore = len(ready)
	if len(ready) > maxReady {
		for _, t := range ready[maxReady:] {
			if !abandon[t.ID] {
				plan.DeferTaskIDs = append(plan.DeferTaskIDs, t.ID)
			}
		}
	}
	return plan
}

// keepBefore orders duplicate candidates: in-progress first, then earliest
// created, then lowest id.
func keepBefore(x, y *types.Task) bool {
	xp := x.EffectiveStatus() == types.StatusInProgress
	yp := y.EffectiveStatus() == types.StatusInProgress
	if xp != yp {
		return xp
	}
	ex, ey := graph.CreatedEpoch(x), graph.CreatedEpoch(y)
	if ex != ey {
		return ex < ey
	}
	return x.ID < y.ID
}

// ApplyCompaction issues the plan's abandon and reschedule requests in order.
// Failures are collected per id and never stop the batch. deferHours below 1
// is treated as 1.
func ApplyCompaction(ctx context.Context, store storage.Store, plan types.CompactionPlan, deferHours int) (abandoned, deferred, errs []string) {
	deferHours = max(deferHours, 1)
	abandoned = make([]string, 0, len(plan.AbandonTaskIDs))
	deferred = make([]string, 0, len(plan.DeferTaskIDs))
	errs = make([]string, 0)

	for _, id := range plan.AbandonTaskIDs {
		if err := store.AbandonTask(ctx, id); err != nil {
			errs = append(errs, fmt.Sprintf("abandon %s: %v", id, err))
			continue
		}
		abandoned = append(abandoned, id)
	}
	for _, id := range plan.DeferTaskIDs {
		if err := store.RescheduleTask(ctx, id, deferHours); err != nil {
			errs = append(errs, fmt.Sprintf("reschedule %s: %v", id, err))
			continue
		}
		deferred = append(deferred, id)
	}
	return abandoned, deferred, errs
}

// CompactOptions configures one compaction pass.
type CompactOptions struct {
	MaxReady        int
	MaxRedriftDepth int
	DeferHours      int
	Apply           bool
}

// Compactor plans and optionally applies compaction against a store.
type Compactor struct {
	Store   storage.Store
	Auditor *health.Auditor
	WgDir   string
	Now     func() time.Time
}

func (c *Compactor) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run loads the graph, plans, applies when asked and reports scoreboards
// before and after. Only the initial load can fail; everything after it is
// reported in CompactionReport.Errors.
func (c *Compactor) Run(ctx context.Context, opts CompactOptions) (*types.CompactionReport, error) {
	a := auditorOrDefault(c.Auditor)
	snap, err := storage.LoadSnapshot(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	now := c.now()

	report := &types.CompactionReport{
		Applied:          opts.Apply,
		DeferHours:       max(opts.DeferHours, 1),
		Plan:             PlanCompaction(a, snap, opts.MaxReady, opts.MaxRedriftDepth, now),
		AppliedAbandoned: make([]string, 0),
		AppliedDeferred:  make([]string, 0),
		Errors:           make([]string, 0),
		ScoreboardBefore: a.ComputeScoreboard(snap, now),
	}

	if !opts.Apply {
		report.ScoreboardAfter = report.ScoreboardBefore
		return report, nil
	}

	report.AppliedAbandoned, report.AppliedDeferred, report.Errors = ApplyCompaction(ctx, c.Store, report.Plan, report.DeferHours)
	debug.LogEvent(c.WgDir, "compact.applied", "",
		fmt.Sprintf("abandoned=%d deferred=%d errors=%d", len(report.AppliedAbandoned), len(report.AppliedDeferred), len(report.Errors)))

	after, err := storage.LoadSnapshot(ctx, c.Store)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("reload: %v", err))
		report.ScoreboardAfter = report.ScoreboardBefore
		return report, nil
	}
	report.ScoreboardAfter = a.ComputeScoreboard(after, c.now())
	return report, nil
}
