package health

import (
	"math"
	"time"

	"github.com/speedrift/driftdriver/internal/graph"
	"github.com/speedrift/driftdriver/internal/types"
)

// Thresholds are the scoreboard's visibility limits. They are independent of
// the policy's loop-safety limits so a report can be stricter than the gate.
type Thresholds struct {
	RiskCoverage  float64
	RiskReady     int
	RiskDepth     int
	WatchCoverage float64
	WatchReady    int
	WatchDepth    int
}

// DefaultThresholds returns the built-in scoreboard thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RiskCoverage:  0.70,
		RiskReady:     20,
		RiskDepth:     2,
		WatchCoverage: 0.90,
		WatchReady:    8,
		WatchDepth:    1,
	}
}

// Status derives the health level, checking risk before watch.
func (th Thresholds) Status(coverage float64, ready, depth, duplicates int) types.HealthStatus {
	switch {
	case coverage < th.RiskCoverage || ready > th.RiskReady || depth > th.RiskDepth:
		return types.HealthRisk
	case coverage < th.WatchCoverage || ready > th.WatchReady || depth > th.WatchDepth || duplicates > 0:
		return types.HealthWatch
	default:
		return types.HealthHealthy
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// ComputeScoreboard aggregates the classifier, ranker and grouper over snap.
// Coverage is 1.0 when there are no active tasks.
func (a *Auditor) ComputeScoreboard(snap *graph.Snapshot, now time.Time) types.Scoreboard {
	sb := types.Scoreboard{TasksTotal: snap.Len()}

	withContract := 0
	for _, t := range snap.Tasks() {
		active := graph.IsActive(t)
		drift := a.Classifier.IsDrift(t)
		if active {
			sb.ActiveTasks++
			if graph.HasContract(t) {
				withContract++
			}
		}
		if drift {
			sb.DriftTotal++
		}
		if active && drift {
			sb.ActiveDrift++
			if graph.IsRecursive(t.ID) {
				if d := graph.RedriftDepth(t.ID); d > sb.MaxRedriftDepth {
					sb.MaxRedriftDepth = d
				}
			}
		}
	}

	coverage := 1.0
	ratio := 0.0
	if sb.ActiveTasks > 0 {
		coverage = float64(withContract) / float64(sb.ActiveTasks)
		ratio = float64(sb.ActiveDrift) / float64(sb.ActiveTasks)
	}
	sb.ActiveContractCoverage = round4(coverage)
	sb.ActiveDriftRatio = round4(ratio)
	sb.ReadyDrift = a.ReadyCount(snap, now)
	sb.DuplicateGroups = a.FindDuplicateOpenDriftGroups(snap)
	sb.Status = a.Thresholds.Status(coverage, sb.ReadyDrift, sb.MaxRedriftDepth, len(sb.DuplicateGroups))
	return sb
}
