// Package governor holds the drift controller's decisions: the loop-safety
// gate, circuit breaker, compaction planner and check orchestration.
package governor

import (
	"fmt"
	"time"

	"github.com/speedrift/driftdriver/internal/graph"
	"github.com/speedrift/driftdriver/internal/health"
	"github.com/speedrift/driftdriver/internal/policy"
	"github.com/speedrift/driftdriver/internal/types"
)

func auditorOrDefault(a *health.Auditor) *health.Auditor {
	if a == nil {
		return health.Default
	}
	return a
}

// ComputeLoopSafety compares taskID's recursion depth, the ready queue and
// any reachable blocked_by cycle against the policy limits. Every exceeded
// limit adds a reason; follow-ups are blocked only when the policy says so
// and at least one reason exists. It never mutates anything.
func ComputeLoopSafety(a *health.Auditor, taskID string, snap *graph.Snapshot, limits policy.LoopSafety, now time.Time) types.LoopSafety {
	a = auditorOrDefault(a)

	depth := 0
	if graph.IsRecursive(taskID) {
		depth = graph.RedriftDepth(taskID)
	}
	maxDepth := max(limits.MaxRedriftDepth, 0)
	maxReady := max(limits.MaxReadyDriftFollowups, 0)
	ready := a.ReadyCount(snap, now)
	cycle := graph.DetectCycleFrom(taskID, snap)

	reasons := make([]string, 0, 3)
	if depth > maxDepth {
		reasons = append(reasons, fmt.Sprintf("redrift_depth_exceeded (%d > %d)", depth, maxDepth))
	}
	if ready > maxReady {
		reasons = append(reasons, fmt.Sprintf("ready_drift_queue_exceeded (%d > %d)", ready, maxReady))
	}
	if cycle {
		reasons = append(reasons, "blocked_by_cycle_detected")
	}

	return types.LoopSafety{
		ObservedDepth:    depth,
		MaxDepth:         maxDepth,
		ReadyCount:       ready,
		MaxReady:         maxReady,
		CycleDetected:    cycle,
		FollowupsBlocked: limits.BlockFollowupCreation && len(reasons) > 0,
		Reasons:          reasons,
	}
}

// EffectiveMode downgrades mode to advise when the verdict blocks follow-ups.
// Observe and advise already create none and are left alone.
func EffectiveMode(mode policy.Mode, verdict types.LoopSafety) policy.Mode {
	if !verdict.FollowupsBlocked {
		return mode
	}
	switch mode {
	case policy.ModeObserve, policy.ModeAdvise:
		return mode
	}
	return policy.ModeAdvise
}
