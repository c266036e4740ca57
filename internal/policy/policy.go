// Package policy loads the drift policy file that configures modes, lane order
// and loop-safety limits. A policy is read fresh per invocation and never
// mutated afterwards.
package policy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the policy file inside the workgraph directory.
const FileName = "drift-policy.toml"

// DefaultOrder is the lane order used when the policy omits one.
var DefaultOrder = []string{
	"coredrift",
	"specdrift",
	"datadrift",
	"archdrift",
	"depsdrift",
	"uxdrift",
	"therapydrift",
	"yagnidrift",
	"redrift",
}

// BaselineLane always runs first.
const BaselineLane = "coredrift"

// Recursion limits automatic follow-up actions.
type Recursion struct {
	CooldownSeconds       int  `toml:"cooldown_seconds" json:"cooldown_seconds"`
	MaxAutoActionsPerHour int  `toml:"max_auto_actions_per_hour" json:"max_auto_actions_per_hour"`
	RequireNewEvidence    bool `toml:"require_new_evidence" json:"require_new_evidence"`
	MaxAutoDepth          int  `toml:"max_auto_depth" json:"max_auto_depth"`
}

// Contracts controls contract enforcement.
type Contracts struct {
	AutoEnsure bool `toml:"auto_ensure" json:"auto_ensure"`
}

// Updates controls the self-update check.
type Updates struct {
	Enabled              bool `toml:"enabled" json:"enabled"`
	CheckIntervalSeconds int  `toml:"check_interval_seconds" json:"check_interval_seconds"`
	CreateFollowup       bool `toml:"create_followup" json:"create_followup"`
}

// LoopSafety holds the admission-control limits of the loop-safety gate.
type LoopSafety struct {
	MaxRedriftDepth        int  `toml:"max_redrift_depth" json:"max_redrift_depth"`
	MaxReadyDriftFollowups int  `toml:"max_ready_drift_followups" json:"max_ready_drift_followups"`
	BlockFollowupCreation  bool `toml:"block_followup_creation" json:"block_followup_creation"`
}

// Policy is the sanitized drift policy.
type Policy struct {
	Schema     int        `toml:"schema" json:"schema"`
	Mode       Mode       `toml:"mode" json:"mode"`
	Order      []string   `toml:"order" json:"order"`
	Recursion  Recursion  `toml:"recursion" json:"recursion"`
	Contracts  Contracts  `toml:"contracts" json:"contracts"`
	Updates    Updates    `toml:"updates" json:"updates"`
	LoopSafety LoopSafety `toml:"loop_safety" json:"loop_safety"`
}

// Default returns the built-in policy.
func Default() *Policy {
	return &Policy{
		Schema: 1,
		Mode:   ModeRedirect,
		Order:  append([]string(nil), DefaultOrder...),
		Recursion: Recursion{
			CooldownSeconds:       1800,
			MaxAutoActionsPerHour: 2,
			RequireNewEvidence:    true,
			MaxAutoDepth:          2,
		},
		Contracts: Contracts{AutoEnsure: true},
		Updates: Updates{
			Enabled:              true,
			CheckIntervalSeconds: 21600,
			CreateFollowup:       false,
		},
		LoopSafety: LoopSafety{
			MaxRedriftDepth:        2,
			MaxReadyDriftFollowups: 20,
			BlockFollowupCreation:  true,
		},
	}
}

const defaultText = `schema = 1
mode = "redirect"
order = ["coredrift", "specdrift", "datadrift", "archdrift", "depsdrift", "uxdrift", "therapydrift", "yagnidrift", "redrift"]

[recursion]
cooldown_seconds = 1800
max_auto_actions_per_hour = 2
require_new_evidence = true
max_auto_depth = 2

[contracts]
auto_ensure = true

[updates]
enabled = true
check_interval_seconds = 21600
create_followup = false

[loop_safety]
max_redrift_depth = 2
max_ready_drift_followups = 20
block_followup_creation = true
`

// Path returns the policy file path for a workgraph directory.
func Path(wgDir string) string {
	return filepath.Join(wgDir, FileName)
}

// Ensure writes the default policy file if it does not exist. It reports
// whether the file was created.
func Ensure(wgDir string) (bool, error) {
	path := Path(wgDir)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %s: %w", FileName, err)
	}
	if err := os.MkdirAll(wgDir, 0o755); err != nil {
		return false, fmt.Errorf("create workgraph dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultText), 0o644); err != nil { // #nosec G306 -- policy is not secret
		return false, fmt.Errorf("write %s: %w", FileName, err)
	}
	return true, nil
}

// Load reads and sanitizes the policy in wgDir. A missing file yields the
// defaults. A file that cannot be read or parsed also yields the defaults,
// with a warning; Load never fails.
func Load(wgDir string) (*Policy, []string) {
	data, err := os.ReadFile(Path(wgDir)) // #nosec G304 -- path is constructed from the workgraph dir
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Default(), []string{fmt.Sprintf("read %s: %v; using defaults", FileName, err)}
	}
	return Parse(data)
}

// Parse decodes and sanitizes policy TOML. Keys absent from data keep their
// default values.
func Parse(data []byte) (*Policy, []string) {
	p := Default()
	md, err := toml.Decode(string(data), p)
	if err != nil {
		return Default(), []string{fmt.Sprintf("parse %s: %v; using defaults", FileName, err)}
	}
	return p, p.sanitize(md.IsDefined("order"))
}

func clampMin(name string, v *int, min int, warnings *[]string) {
	if *v < min {
		*warnings = append(*warnings, fmt.Sprintf("%s = %d is below %d; using %d", name, *v, min, min))
		*v = min
	}
}

func (p *Policy) sanitize(hasOrder bool) []string {
	var warnings []string

	mode, ok := ParseMode(string(p.Mode))
	if !ok {
		warnings = append(warnings, fmt.Sprintf("unknown mode %q; using %s", p.Mode, mode))
	}
	p.Mode = mode

	if hasOrder {
		p.Order = sanitizeOrder(p.Order)
	} else {
		p.Order = append([]string(nil), DefaultOrder...)
	}

	clampMin("recursion.cooldown_seconds", &p.Recursion.CooldownSeconds, 0, &warnings)
	clampMin("recursion.max_auto_actions_per_hour", &p.Recursion.MaxAutoActionsPerHour, 0, &warnings)
	clampMin("recursion.max_auto_depth", &p.Recursion.MaxAutoDepth, 1, &warnings)
	clampMin("updates.check_interval_seconds", &p.Updates.CheckIntervalSeconds, 0, &warnings)
	clampMin("loop_safety.max_redrift_depth", &p.LoopSafety.MaxRedriftDepth, 0, &warnings)
	clampMin("loop_safety.max_ready_drift_followups", &p.LoopSafety.MaxReadyDriftFollowups, 0, &warnings)
	return warnings
}

// sanitizeOrder drops blank names, puts the baseline lane first when it is
// missing and appends any default lane the list leaves out.
func sanitizeOrder(order []string) []string {
	out := make([]string, 0, len(order)+len(DefaultOrder))
	for _, name := range order {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	if !contains(out, BaselineLane) {
		out = append([]string{BaselineLane}, out...)
	}
	for _, name := range DefaultOrder {
		if !contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Encode renders p as TOML.
func (p *Policy) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	return buf.Bytes(), nil
}
