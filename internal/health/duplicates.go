// Package health computes the drift health views of a task graph: duplicate
// follow-up groups, the ranked ready queue, the scoreboard and the doctor audit.
package health

import (
	"regexp"
	"sort"
	"strings"

	"github.com/speedrift/driftdriver/internal/graph"
	"github.com/speedrift/driftdriver/internal/types"
)

// stagePrefixRe matches a leading chain of recursive stage markers such as
// "redrift analyze: " or "stage-b: ". Titles are lowercased before matching.
var stagePrefixRe = regexp.MustCompile(
	`^(?:(?:redrift\s+(?:analyze|respec|design|build|execute|exec)|stage(?:[-_][a-z0-9]+)?)\s*:\s*)+`,
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeDriftKey maps a task to the key duplicate follow-ups share: the
// lowercased title without stage prefixes and with collapsed whitespace. An
// empty result falls back to the lowercased id.
func NormalizeDriftKey(t *types.Task) string {
	if t == nil {
		return ""
	}
	title := strings.ToLower(strings.TrimSpace(t.Title))
	if title != "" {
		title = stagePrefixRe.ReplaceAllString(title, "")
		title = strings.TrimSpace(whitespaceRe.ReplaceAllString(title, " "))
	}
	if title != "" {
		return title
	}
	return strings.ToLower(strings.TrimSpace(t.ID))
}

// activeDriftByKey groups active drift tasks by normalized key. Keys are
// returned in first-seen order and members keep snapshot order.
func (a *Auditor) activeDriftByKey(snap *graph.Snapshot) ([]string, map[string][]*types.Task) {
	var keys []string
	groups := make(map[string][]*types.Task)
	for _, t := range snap.Tasks() {
		if !a.Classifier.IsDrift(t) || !graph.IsActive(t) {
			continue
		}
		key := NormalizeDriftKey(t)
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], t)
	}
	return keys, groups
}

// FindDuplicateOpenDriftGroups returns groups of two or more active drift
// tasks sharing a key, sorted by descending count then ascending key.
func (a *Auditor) FindDuplicateOpenDriftGroups(snap *graph.Snapshot) []types.DuplicateGroup {
	keys, groups := a.activeDriftByKey(snap)
	out := make([]types.DuplicateGroup, 0)
	for _, key := range keys {
		members := groups[key]
		if len(members) < 2 {
			continue
		}
		ids := make([]string, 0, len(members))
		for _, t := range members {
			ids = append(ids, t.ID)
		}
		out = append(out, types.DuplicateGroup{Key: key, Count: len(members), TaskIDs: ids})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// DuplicateMembers exposes the grouped tasks for planners that need the full
// records rather than ids. Only groups with two or more members are returned.
func (a *Auditor) DuplicateMembers(snap *graph.Snapshot) ([]string, map[string][]*types.Task) {
	keys, groups := a.activeDriftByKey(snap)
	kept := keys[:0]
	for _, key := range keys {
		if len(groups[key]) >= 2 {
			kept = append(kept, key)
		} else {
			delete(groups, key)
		}
	}
	return kept, groups
}
