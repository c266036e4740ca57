package governor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/speedrift/driftdriver/internal/health"
	"github.com/speedrift/driftdriver/internal/policy"
	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/types"
)

// Exit codes shared by every command.
const (
	ExitOK       = 0
	ExitUsage    = 2
	ExitFindings = 3
)

// maxLaneStderr bounds the stderr kept from a failed optional lane.
const maxLaneStderr = 4000

// ErrUsage marks errors caused by missing input or setup.
var ErrUsage = errors.New("usage error")

// LaneError reports a baseline lane that exited outside {0, 3}.
type LaneError struct {
	Lane     string
	ExitCode int
	Stderr   string
}

func (e *LaneError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Lane, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// CheckRequest is one check invocation.
type CheckRequest struct {
	TaskID          string
	WriteLog        bool
	CreateFollowups bool
	JSON            bool
	LaneStrategy    string
}

// Checker runs the checker lanes for a task under the drift policy.
type Checker struct {
	Store   storage.Store
	Policy  *policy.Policy
	Auditor *health.Auditor
	Lanes   LaneRunner
	Breaker *Breaker
	// Updates enables the ecosystem update preflight; nil disables it.
	Updates UpdateChecker
	Now     func() time.Time
}

// Run loads the graph once, applies the loop-safety gate, runs the baseline
// lane and the selected optional lanes, and escalates to a breaker task when
// the policy is in breaker mode and any lane found drift.
func (c *Checker) Run(ctx context.Context, req CheckRequest) (*types.CheckResult, error) {
	if strings.TrimSpace(req.TaskID) == "" {
		return nil, fmt.Errorf("%w: --task is required", ErrUsage)
	}
	if !c.Lanes.Available(CoreLane) {
		return nil, fmt.Errorf("%w: .workgraph/%s not found; install the drift lanes first", ErrUsage, CoreLane)
	}
	pol := c.Policy
	if pol == nil {
		pol = policy.Default()
	}
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	snap, err := storage.LoadSnapshot(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	task, _ := snap.Get(req.TaskID)

	ordered := OrderedOptionalLanes(pol.Order)
	lanePlan := SelectLanes(task, ordered, req.LaneStrategy)
	verdict := ComputeLoopSafety(c.Auditor, req.TaskID, snap, pol.LoopSafety, now)
	mode := EffectiveMode(pol.Mode, verdict)

	result := &types.CheckResult{
		TaskID:        req.TaskID,
		Mode:          string(pol.Mode),
		EffectiveMode: string(mode),
		LoopSafety:    verdict,
		LanePlan:      lanePlan,
		PolicyOrder:   ordered,
		Lanes:         make(map[string]types.LaneResult, len(ordered)+1),
	}

	forceFollowups := req.CreateFollowups
	if verdict.FollowupsBlocked {
		forceFollowups = false
		reasons := strings.Join(verdict.Reasons, ", ")
		if reasons == "" {
			reasons = "loop safety guard"
		}
		result.Notes = append(result.Notes, fmt.Sprintf(
			"loop safety blocked follow-up creation (%s); running in %s mode for this check", reasons, mode))
		if req.WriteLog && task != nil {
			msg := "driftdriver: follow-ups blocked by loop safety (" + reasons + ")"
			if err := c.Store.LogMessage(ctx, req.TaskID, msg); err != nil {
				result.Notes = append(result.Notes, "could not write loop-safety note into wg log")
			}
		}
	}
	if lanePlan.FullSuite && !req.JSON {
		result.Notes = append(result.Notes, fmt.Sprintf(
			"lane preflight selected full suite (%s)", strings.Join(lanePlan.Reasons, ", ")))
	}

	c.ensureContracts(ctx, pol, result)
	coreWriteLog, _ := mode.Flags(CoreLane)
	c.updatePreflight(ctx, pol, req, coreWriteLog || req.WriteLog, forceFollowups, verdict.FollowupsBlocked, result)

	laneRequest := func(lane string) LaneRequest {
		writeLog, followups := mode.Flags(lane)
		return LaneRequest{
			Lane:            lane,
			TaskID:          req.TaskID,
			JSON:            req.JSON,
			WriteLog:        writeLog || req.WriteLog,
			CreateFollowups: followups || forceFollowups,
		}
	}

	core, err := c.Lanes.RunLane(ctx, laneRequest(CoreLane))
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", CoreLane, err)
	}
	if core.ExitCode != ExitOK && core.ExitCode != ExitFindings {
		return nil, &LaneError{Lane: CoreLane, ExitCode: core.ExitCode, Stderr: strings.TrimSpace(string(core.Stderr))}
	}
	result.Lanes[CoreLane] = types.LaneResult{
		Ran:      true,
		ExitCode: core.ExitCode,
		Report:   decodeReport(core.Stdout, req.JSON),
		Output:   string(core.Stdout),
	}

	selected := make(map[string]bool, len(lanePlan.Selected))
	for _, lane := range lanePlan.Selected {
		selected[lane] = true
	}
	for _, lane := range ordered {
		res := types.LaneResult{}
		if selected[lane] && c.Lanes.Available(lane) {
			res = c.runOptional(ctx, laneRequest(lane), result)
		}
		if lane == "uxdrift" {
			res.Report = nil
			res.Note = "no standardized json output yet"
		}
		result.Lanes[lane] = res
	}

	result.ExitCode = ExitOK
	for _, res := range result.Lanes {
		if res.ExitCode == ExitFindings {
			result.ExitCode = ExitFindings
			break
		}
	}
	result.ActionPlan = NormalizeActions(result.Lanes, append([]string{CoreLane}, ordered...))

	if pol.Mode == policy.ModeBreaker && result.ExitCode == ExitFindings && c.Breaker != nil {
		id, err := c.Breaker.Ensure(ctx, req.TaskID)
		if err != nil {
			return result, fmt.Errorf("ensure breaker: %w", err)
		}
		result.BreakerTaskID = id
	}
	return result, nil
}

// runOptional runs a best-effort lane. Failures become a note and an error
// report with exit code 0 so they never fail the check.
func (c *Checker) runOptional(ctx context.Context, req LaneRequest, result *types.CheckResult) types.LaneResult {
	out, err := c.Lanes.RunLane(ctx, req)
	if err == nil && (out.ExitCode == ExitOK || out.ExitCode == ExitFindings) {
		res := types.LaneResult{Ran: true, ExitCode: out.ExitCode, Output: string(out.Stdout)}
		if LaneSupportsJSON(req.Lane) {
			res.Report = decodeReport(out.Stdout, req.JSON)
		}
		return res
	}

	exitCode := out.ExitCode
	stderr := string(out.Stderr)
	if err != nil {
		exitCode = -1
		stderr = err.Error()
	}
	if len(stderr) > maxLaneStderr {
		stderr = stderr[:maxLaneStderr]
	}
	result.Notes = append(result.Notes, fmt.Sprintf("%s failed (exit %d); continuing", req.Lane, exitCode))
	return types.LaneResult{
		Ran:      true,
		ExitCode: ExitOK,
		Report: map[string]any{
			"error":     req.Lane + " failed",
			"exit_code": exitCode,
			"stderr":    stderr,
		},
	}
}

// decodeReport parses a lane's JSON stdout. Unparsable output is kept raw.
func decodeReport(stdout []byte, wantJSON bool) map[string]any {
	if !wantJSON {
		return nil
	}
	trimmed := strings.TrimSpace(string(stdout))
	if trimmed == "" {
		return map[string]any{}
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(trimmed), &report); err != nil {
		return map[string]any{"raw": string(stdout)}
	}
	return report
}
