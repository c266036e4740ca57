package graph

import (
	"regexp"
	"strings"
	"time"

	"github.com/speedrift/driftdriver/internal/timeparsing"
	"github.com/speedrift/driftdriver/internal/types"
)

// ContractMarker opens the structured contract block in a task description.
const ContractMarker = "```wg-contract"

// RedriftMarker is the recursive re-analysis marker counted in task ids.
const RedriftMarker = "redrift-"

var driftWordRe = regexp.MustCompile(`(?i)\bdrift\b`)

// Classifier decides whether a task belongs to a drift family.
type Classifier struct {
	idPrefixes  []string
	tagPatterns []string
}

// NewClassifier builds a classifier from a family table.
func NewClassifier(ft FamilyTable) *Classifier {
	ft = ft.Merge(FamilyTable{})
	c := &Classifier{tagPatterns: ft.TagPatterns}
	for _, family := range ft.Families {
		c.idPrefixes = append(c.idPrefixes, family+"-")
	}
	return c
}

// DefaultClassifier uses the built-in family table.
var DefaultClassifier = NewClassifier(DefaultFamilyTable())

// IsDrift reports whether t is a drift task. Checks run in order and stop at
// the first match: id family prefix, the whole word "drift" in the title,
// then tag patterns.
func (c *Classifier) IsDrift(t *types.Task) bool {
	if t == nil {
		return false
	}
	for _, prefix := range c.idPrefixes {
		if strings.HasPrefix(t.ID, prefix) {
			return true
		}
	}
	if driftWordRe.MatchString(t.Title) {
		return true
	}
	for _, tag := range t.Tags {
		tag = strings.ToLower(tag)
		for _, pattern := range c.tagPatterns {
			if strings.Contains(tag, pattern) {
				return true
			}
		}
	}
	return false
}

// IsActive reports whether the task is neither done nor abandoned.
func IsActive(t *types.Task) bool {
	return !t.EffectiveStatus().IsTerminal()
}

// HasContract reports whether the description embeds a contract block.
func HasContract(t *types.Task) bool {
	return t != nil && strings.Contains(t.Description, ContractMarker)
}

// HasFence reports whether the description embeds a fenced block named fence.
func HasFence(t *types.Task, fence string) bool {
	if t == nil || fence == "" {
		return false
	}
	return strings.Contains(t.Description, "```"+fence)
}

// RedriftDepth counts non-overlapping recursive markers in a task id.
func RedriftDepth(taskID string) int {
	return strings.Count(taskID, RedriftMarker)
}

// IsRecursive reports whether the id belongs to the recursive redrift family.
func IsRecursive(taskID string) bool {
	return strings.HasPrefix(taskID, RedriftMarker)
}

// BlockersDone reports whether every blocker of t is done. A blocker id
// missing from the snapshot counts as not done.
func BlockersDone(t *types.Task, snap *Snapshot) bool {
	if t == nil {
		return false
	}
	for _, id := range t.BlockedBy {
		if id == "" {
			continue
		}
		blocker, ok := snap.Get(id)
		if !ok || blocker.EffectiveStatus() != types.StatusDone {
			return false
		}
	}
	return true
}

// FutureNotBefore reports whether t is time-gated strictly after now.
// An empty or unparsable not_before never gates.
func FutureNotBefore(t *types.Task, now time.Time) bool {
	if t == nil || strings.TrimSpace(t.NotBefore) == "" {
		return false
	}
	ts, err := timeparsing.ParseTimestamp(t.NotBefore)
	if err != nil {
		return false
	}
	return ts.Unix() > now.Unix()
}

// CreatedEpoch returns the creation time in Unix seconds, 0 when missing.
func CreatedEpoch(t *types.Task) int64 {
	if t == nil {
		return 0
	}
	return timeparsing.Epoch(t.CreatedAt)
}
