package health

import (
	"sort"
	"strings"
	"time"

	"github.com/speedrift/driftdriver/internal/graph"
	"github.com/speedrift/driftdriver/internal/types"
)

// DefaultPriority is assigned to ready drift tasks no tier matches.
const DefaultPriority = 50

// PriorityTier is one row of the ready-queue priority table.
type PriorityTier struct {
	Name     string
	Priority int
	// Match receives the raw id and the lowercased title.
	Match func(id, title string) bool
}

func idPrefix(prefix string) func(string, string) bool {
	return func(id, _ string) bool { return strings.HasPrefix(id, prefix) }
}

func titleContains(sub string) func(string, string) bool {
	return func(_, title string) bool { return strings.Contains(title, sub) }
}

// DefaultTiers returns the priority table, highest first.
func DefaultTiers() []PriorityTier {
	return []PriorityTier{
		{Name: "breaker", Priority: 100, Match: idPrefix("drift-breaker-")},
		{Name: "pit-stop", Priority: 90, Match: idPrefix("coredrift-pit-")},
		{Name: "missing-contract", Priority: 85, Match: titleContains("missing_contract")},
		{Name: "harden", Priority: 80, Match: idPrefix("drift-harden-")},
		{Name: "fix", Priority: 75, Match: idPrefix("drift-fix-")},
		{Name: "scope", Priority: 70, Match: idPrefix("drift-scope-")},
		{Name: "redrift", Priority: 60, Match: idPrefix(graph.RedriftMarker)},
	}
}

// QueuePriority returns the priority of the highest matching tier.
func (a *Auditor) QueuePriority(t *types.Task) int {
	title := strings.ToLower(t.Title)
	best := DefaultPriority
	matched := false
	for _, tier := range a.Tiers {
		if tier.Match(t.ID, title) && (!matched || tier.Priority > best) {
			best = tier.Priority
			matched = true
		}
	}
	return best
}

// IsReady reports whether t is an active, un-gated drift task whose blockers
// are all done.
func (a *Auditor) IsReady(t *types.Task, snap *graph.Snapshot, now time.Time) bool {
	return a.Classifier.IsDrift(t) &&
		graph.IsActive(t) &&
		!graph.FutureNotBefore(t, now) &&
		graph.BlockersDone(t, snap)
}

// ReadyDriftTasks returns every ready drift task in queue order: priority
// descending, then creation time ascending, then id ascending.
func (a *Auditor) ReadyDriftTasks(snap *graph.Snapshot, now time.Time) []*types.Task {
	var ready []*types.Task
	for _, t := range snap.Tasks() {
		if a.IsReady(t, snap, now) {
			ready = append(ready, t)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		pi, pj := a.QueuePriority(ready[i]), a.QueuePriority(ready[j])
		if pi != pj {
			return pi > pj
		}
		ei, ej := graph.CreatedEpoch(ready[i]), graph.CreatedEpoch(ready[j])
		if ei != ej {
			return ei < ej
		}
		return ready[i].ID < ready[j].ID
	})
	return ready
}

// ReadyCount is the unbounded length of the ready queue.
func (a *Auditor) ReadyCount(snap *graph.Snapshot, now time.Time) int {
	return len(a.ReadyDriftTasks(snap, now))
}

// RankReadyDriftQueue returns up to limit ready entries (limit below 1 is
// treated as 1), projected to flat summary records.
func (a *Auditor) RankReadyDriftQueue(snap *graph.Snapshot, limit int, now time.Time) []types.QueueEntry {
	if limit < 1 {
		limit = 1
	}
	ready := a.ReadyDriftTasks(snap, now)
	if len(ready) > limit {
		ready = ready[:limit]
	}
	out := make([]types.QueueEntry, 0, len(ready))
	for _, t := range ready {
		out = append(out, a.queueEntry(t))
	}
	return out
}

func (a *Auditor) queueEntry(t *types.Task) types.QueueEntry {
	blockedBy := make([]string, 0, len(t.BlockedBy))
	for _, id := range t.BlockedBy {
		if id != "" {
			blockedBy = append(blockedBy, id)
		}
	}
	return types.QueueEntry{
		TaskID:    t.ID,
		Title:     t.Title,
		Status:    t.EffectiveStatus(),
		Priority:  a.QueuePriority(t),
		CreatedAt: t.CreatedAt,
		BlockedBy: blockedBy,
	}
}
