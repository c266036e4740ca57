package health

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/speedrift/driftdriver/internal/graph"
	"github.com/speedrift/driftdriver/internal/types"
)

// RequiredCommands are the subcommands the drifts wrapper must expose.
var RequiredCommands = []string{"check", "doctor", "queue", "run", "updates"}

// missingContractSampleSize bounds the id sample in a doctor report.
const missingContractSampleSize = 10

// DoctorInput carries the environment facts a doctor audit needs beyond the
// task graph. Gathering them is the caller's job.
type DoctorInput struct {
	Wrappers          map[string]bool
	CommandsAvailable []string
	MaxRedriftDepth   int
	MaxReadyDrift     int
}

// Doctor audits snap against the policy limits in in. Status is risk when any
// issue is high severity and watch when any issue exists.
func (a *Auditor) Doctor(snap *graph.Snapshot, in DoctorInput, now time.Time) types.DoctorReport {
	score := a.ComputeScoreboard(snap, now)

	var missing, unknownStatus, invalid []string
	for _, t := range snap.Tasks() {
		if graph.IsActive(t) && !graph.HasContract(t) {
			missing = append(missing, t.ID)
		}
		if !t.EffectiveStatus().IsValid() {
			unknownStatus = append(unknownStatus, t.ID)
		}
		if err := t.Validate(); err != nil {
			invalid = append(invalid, err.Error())
		}
	}
	sample := missing
	if len(sample) > missingContractSampleSize {
		sample = sample[:missingContractSampleSize]
	}

	issues := make([]types.DoctorIssue, 0)
	if gaps := missingCommands(in.CommandsAvailable); len(gaps) > 0 {
		issues = append(issues, types.DoctorIssue{
			Severity: types.SeverityHigh,
			Kind:     "wrapper_outdated",
			Message:  "drifts wrapper misses commands: " + strings.Join(gaps, ", "),
		})
	}
	if score.ActiveContractCoverage < a.Thresholds.WatchCoverage {
		sev := types.SeverityMedium
		if score.ActiveContractCoverage < a.Thresholds.RiskCoverage {
			sev = types.SeverityHigh
		}
		issues = append(issues, types.DoctorIssue{
			Severity: sev,
			Kind:     "contract_coverage",
			Message:  fmt.Sprintf("active contract coverage is %.2f", score.ActiveContractCoverage),
		})
	}
	if score.MaxRedriftDepth > in.MaxRedriftDepth {
		issues = append(issues, types.DoctorIssue{
			Severity: types.SeverityHigh,
			Kind:     "loop_depth",
			Message:  fmt.Sprintf("max redrift depth %d exceeds policy limit %d", score.MaxRedriftDepth, in.MaxRedriftDepth),
		})
	}
	if score.ReadyDrift > in.MaxReadyDrift {
		issues = append(issues, types.DoctorIssue{
			Severity: types.SeverityHigh,
			Kind:     "queue_pressure",
			Message:  fmt.Sprintf("ready drift queue %d exceeds policy limit %d", score.ReadyDrift, in.MaxReadyDrift),
		})
	}
	if n := len(score.DuplicateGroups); n > 0 {
		issues = append(issues, types.DoctorIssue{
			Severity: types.SeverityMedium,
			Kind:     "duplicate_followups",
			Message:  fmt.Sprintf("%d duplicate open drift groups detected", n),
		})
	}

	if len(invalid) > 0 {
		issues = append(issues, types.DoctorIssue{
			Severity: types.SeverityMedium,
			Kind:     "invalid_tasks",
			Message:  strings.Join(invalid, "; "),
		})
	}
	if len(unknownStatus) > 0 {
		issues = append(issues, types.DoctorIssue{
			Severity: types.SeverityMedium,
			Kind:     "unknown_status",
			Message:  fmt.Sprintf("%d tasks have an unknown status and count as active: %s", len(unknownStatus), strings.Join(unknownStatus, ", ")),
		})
	}

	status := types.HealthHealthy
	for _, issue := range issues {
		if issue.Severity == types.SeverityHigh {
			status = types.HealthRisk
			break
		}
		status = types.HealthWatch
	}

	commands := append([]string(nil), in.CommandsAvailable...)
	sort.Strings(commands)
	return types.DoctorReport{
		Status:                      status,
		Wrappers:                    in.Wrappers,
		CommandsAvailable:           commands,
		Scoreboard:                  score,
		ActiveMissingContractCount:  len(missing),
		ActiveMissingContractSample: sample,
		Issues:                      issues,
	}
}

func missingCommands(available []string) []string {
	have := make(map[string]bool, len(available))
	for _, c := range available {
		have[c] = true
	}
	var gaps []string
	for _, c := range RequiredCommands {
		if !have[c] {
			gaps = append(gaps, c)
		}
	}
	return gaps
}
