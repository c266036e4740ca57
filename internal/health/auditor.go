package health

import (
	"github.com/speedrift/driftdriver/internal/graph"
)

// Auditor holds the classification and ranking configuration shared by every
// health view. The zero value is not usable; use NewAuditor.
type Auditor struct {
	Classifier *graph.Classifier
	Tiers      []PriorityTier
	Thresholds Thresholds
}

// NewAuditor returns an auditor using c (or the default classifier when nil)
// with the default priority tiers and scoreboard thresholds.
func NewAuditor(c *graph.Classifier) *Auditor {
	if c == nil {
		c = graph.DefaultClassifier
	}
	return &Auditor{
		Classifier: c,
		Tiers:      DefaultTiers(),
		Thresholds: DefaultThresholds(),
	}
}

// Default is the auditor for the built-in drift families.
var Default = NewAuditor(nil)
