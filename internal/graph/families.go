package graph

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FamiliesFileName is the optional override file inside the .workgraph directory.
const FamiliesFileName = "drift-families.yaml"

// Known drift families. A task id starting with "<family>-" is a drift task.
const (
	FamilyDrift        = "drift"
	FamilyCoredrift    = "coredrift"
	FamilySpecdrift    = "specdrift"
	FamilyDatadrift    = "datadrift"
	FamilyArchdrift    = "archdrift"
	FamilyDepsdrift    = "depsdrift"
	FamilyUxdrift      = "uxdrift"
	FamilyTherapydrift = "therapydrift"
	FamilyFixdrift     = "fixdrift"
	FamilyYagnidrift   = "yagnidrift"
	FamilyRedrift      = "redrift"
	FamilySpeedrift    = "speedrift"
)

// FamilyTable is the configuration the classifier matches tasks against.
type FamilyTable struct {
	// Families are id-prefix stems; "coredrift" matches ids "coredrift-*".
	Families []string `yaml:"families"`
	// TagPatterns are lowercase substrings; any tag containing one marks drift.
	TagPatterns []string `yaml:"tag_patterns"`
}

// DefaultFamilyTable returns the built-in families and tag patterns.
func DefaultFamilyTable() FamilyTable {
	return FamilyTable{
		Families: []string{
			FamilyDrift,
			FamilyCoredrift,
			FamilySpecdrift,
			FamilyDatadrift,
			FamilyArchdrift,
			FamilyDepsdrift,
			FamilyUxdrift,
			FamilyTherapydrift,
			FamilyFixdrift,
			FamilyYagnidrift,
			FamilyRedrift,
			FamilySpeedrift,
		},
		TagPatterns: []string{"drift", "therapy", "fix", "yagni", "redrift"},
	}
}

// Merge returns a table with other's entries appended. Entries are
// lowercased, trimmed and deduplicated; empty entries are dropped.
func (ft FamilyTable) Merge(other FamilyTable) FamilyTable {
	return FamilyTable{
		Families:    mergeEntries(ft.Families, other.Families),
		TagPatterns: mergeEntries(ft.TagPatterns, other.TagPatterns),
	}
}

func mergeEntries(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, raw := range list {
			v := strings.ToLower(strings.TrimSpace(raw))
			v = strings.TrimSuffix(v, "-")
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// LoadFamilyTable reads an override file and merges it over the defaults.
// A missing file yields the defaults with no error.
func LoadFamilyTable(path string) (FamilyTable, error) {
	base := DefaultFamilyTable()
	data, err := os.ReadFile(path) //nolint:gosec // path is the workgraph families file
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base.Merge(FamilyTable{}), nil
		}
		return base, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var extra FamilyTable
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return base, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return base.Merge(extra), nil
}
