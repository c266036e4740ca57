package governor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/speedrift/driftdriver/internal/graph"
	"github.com/speedrift/driftdriver/internal/policy"
	"github.com/speedrift/driftdriver/internal/types"
)

// CoreLane is the baseline checker every check runs.
const CoreLane = policy.BaselineLane

// OptionalLanes are the checker lanes a check may add to the baseline.
var OptionalLanes = []string{
	"specdrift",
	"datadrift",
	"archdrift",
	"depsdrift",
	"uxdrift",
	"therapydrift",
	"fixdrift",
	"yagnidrift",
	"redrift",
}

// Lane strategies
const (
	StrategyAuto   = "auto"
	StrategyFences = "fences"
	StrategyAll    = "all"
	StrategySmart  = "smart"
)

var fullSuitePhrases = []string{
	"full suite",
	"all lanes",
	"all drifts",
	"all tools",
	"run every drift",
	"complex app",
	"complex application",
	"app redo",
	"data redo",
}

var complexityKeywords = []string{
	"rewrite",
	"rebuild",
	"migration",
	"respec",
	"architecture",
	"frontend",
	"backend",
	"full-stack",
	"full stack",
	"schema",
	"database",
	"ux",
	"multi-agent",
}

// fullSuiteFence forces every optional lane when fenced in a description.
const fullSuiteFence = "redrift"

// LaneSupportsJSON reports whether lane emits a JSON report.
func LaneSupportsJSON(lane string) bool { return lane != "uxdrift" }

func isOptionalLane(name string) bool {
	for _, lane := range OptionalLanes {
		if lane == name {
			return true
		}
	}
	return false
}

// OrderedOptionalLanes returns the optional lanes in policy order, followed
// by any the policy leaves out. Unknown names are dropped.
func OrderedOptionalLanes(order []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(OptionalLanes))
	for _, raw := range order {
		name := strings.TrimSpace(raw)
		if isOptionalLane(name) && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, lane := range OptionalLanes {
		if !seen[lane] {
			out = append(out, lane)
		}
	}
	return out
}

func taskText(t *types.Task) string {
	return strings.ToLower(t.Title + "\n" + strings.Join(t.Tags, " ") + "\n" + t.Description)
}

func contractInt(description, key string) (int, bool) {
	re := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(key) + `\s*=\s*(\d+)\b`)
	m := re.FindStringSubmatch(description)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

func firstN(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}

// shouldRunFullSuite decides whether a task warrants every optional lane: an
// explicit phrase or fence, or at least two complexity signals.
func shouldRunFullSuite(t *types.Task) (bool, []string) {
	if t == nil {
		return false, nil
	}
	var reasons []string
	text := taskText(t)

	fenced := graph.HasFence(t, fullSuiteFence)
	if fenced {
		reasons = append(reasons, fullSuiteFence+" fence declared")
	}

	var phraseHits []string
	for _, p := range fullSuitePhrases {
		if strings.Contains(text, p) {
			phraseHits = append(phraseHits, p)
		}
	}
	if len(phraseHits) > 0 {
		reasons = append(reasons, fmt.Sprintf("explicit full-suite intent (%s)", strings.Join(firstN(phraseHits, 3), ", ")))
	}

	points := 0
	if n := len(t.BlockedBy); n >= 3 {
		points++
		reasons = append(reasons, fmt.Sprintf("%d upstream dependencies", n))
	}
	if n, ok := contractInt(t.Description, "max_files"); ok && n >= 30 {
		points++
		reasons = append(reasons, fmt.Sprintf("wg-contract max_files=%d", n))
	}
	if n, ok := contractInt(t.Description, "max_loc"); ok && n >= 1000 {
		points++
		reasons = append(reasons, fmt.Sprintf("wg-contract max_loc=%d", n))
	}
	var keywordHits []string
	for _, kw := range complexityKeywords {
		if strings.Contains(text, kw) {
			keywordHits = append(keywordHits, kw)
		}
	}
	if len(keywordHits) >= 2 {
		points++
		reasons = append(reasons, fmt.Sprintf("complexity keywords (%s)", strings.Join(firstN(keywordHits, 3), ", ")))
	}

	if len(phraseHits) > 0 || fenced || points >= 2 {
		return true, reasons
	}
	return false, nil
}

// SelectLanes picks optional lanes for task. Lanes fenced in the description
// always run; "all" adds every lane, "auto" adds every lane when the task
// looks like it needs the full suite, "fences" adds nothing more. Unknown
// strategies, and "smart", fall back to auto.
func SelectLanes(t *types.Task, ordered []string, strategy string) types.LanePlan {
	strategy = strings.ToLower(strings.TrimSpace(strategy))
	var notes []string
	switch strategy {
	case StrategyAuto, StrategyFences, StrategyAll:
	case StrategySmart:
		notes = append(notes, "smart routing unavailable; using auto")
		strategy = StrategyAuto
	default:
		strategy = StrategyAuto
	}

	selected := make(map[string]bool)
	laneReasons := make(map[string]string)
	for _, lane := range ordered {
		if graph.HasFence(t, lane) {
			selected[lane] = true
			laneReasons[lane] = "task fence"
		}
	}

	fullSuite := false
	var reasons []string
	switch strategy {
	case StrategyAll:
		fullSuite = true
		reasons = []string{"lane strategy forced all optional lanes"}
	case StrategyAuto:
		fullSuite, reasons = shouldRunFullSuite(t)
	}
	if fullSuite {
		for _, lane := range ordered {
			if selected[lane] {
				laneReasons[lane] += " + preflight full-suite"
			} else {
				laneReasons[lane] = "preflight full-suite"
			}
			selected[lane] = true
		}
	}

	plan := types.LanePlan{
		Strategy:    strategy,
		FullSuite:   fullSuite,
		Selected:    make([]string, 0, len(selected)),
		Reasons:     append(notes, reasons...),
		LaneReasons: make(map[string]string, len(OptionalLanes)),
	}
	if plan.Reasons == nil {
		plan.Reasons = []string{}
	}
	for _, lane := range ordered {
		if selected[lane] {
			plan.Selected = append(plan.Selected, lane)
		}
	}
	for _, lane := range OptionalLanes {
		if r, ok := laneReasons[lane]; ok {
			plan.LaneReasons[lane] = r
		} else {
			plan.LaneReasons[lane] = "not selected"
		}
	}
	return plan
}

var findingActions = map[string]string{
	"missing_contract":            "scope",
	"scope_drift":                 "scope",
	"hardening_in_core":           "harden",
	"dependency_drift":            "respec",
	"repeated_fix_attempts":       "fix",
	"unresolved_fix_followups":    "fix",
	"missing_repro_evidence":      "fix",
	"missing_root_cause_evidence": "fix",
	"missing_regression_evidence": "fix",
	"missing_redrift_artifacts":   "respec",
	"phase_incomplete_analyze":    "respec",
	"phase_incomplete_respec":     "respec",
	"phase_incomplete_design":     "respec",
	"phase_incomplete_build":      "respec",
	"repeated_drift_signals":      "harden",
	"unresolved_drift_followups":  "harden",
	"missing_recovery_plan":       "harden",
}

// ActionFor maps a finding kind to its remediation action.
func ActionFor(kind string) string {
	if action, ok := findingActions[kind]; ok {
		return action
	}
	return "ignore-with-rationale"
}

// NormalizeActions turns lane findings into remediation actions, visiting
// lanes in order and keeping the first source of each (action, kind) pair.
func NormalizeActions(lanes map[string]types.LaneResult, order []string) []types.Action {
	out := make([]types.Action, 0)
	seen := make(map[[2]string]bool)
	for _, lane := range order {
		result, ok := lanes[lane]
		if !ok || result.Report == nil {
			continue
		}
		findings, _ := result.Report["findings"].([]any)
		for _, raw := range findings {
			finding, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			kind, _ := finding["kind"].(string)
			kind = strings.TrimSpace(kind)
			if kind == "" {
				continue
			}
			action := ActionFor(kind)
			key := [2]string{action, kind}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, types.Action{Action: action, Kind: kind, Source: lane})
		}
	}
	return out
}
