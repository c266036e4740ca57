package governor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/speedrift/driftdriver/internal/policy"
	"github.com/speedrift/driftdriver/internal/types"
	"github.com/speedrift/driftdriver/internal/updates"
)

// EnsureContractsCommand is the baseline lane command that adds missing
// wg-contract blocks.
const EnsureContractsCommand = "ensure-contracts"

// maxPreflightErrors bounds the update lookup errors echoed as notes.
const maxPreflightErrors = 6

// UpdateChecker reports ecosystem repositories that moved since the last
// check.
type UpdateChecker interface {
	Check(ctx context.Context, interval time.Duration) (*updates.Result, error)
}

// ensureContracts runs the baseline lane's contract auto-ensure when the
// policy enables it. Failures are recorded and never stop the check.
func (c *Checker) ensureContracts(ctx context.Context, pol *policy.Policy, result *types.CheckResult) {
	out := types.ContractEnsure{Enabled: pol.Contracts.AutoEnsure}
	defer func() { result.Contracts = out }()
	if !out.Enabled {
		return
	}
	out.Attempted = true
	res, err := c.Lanes.RunLane(ctx, LaneRequest{Lane: CoreLane, Command: EnsureContractsCommand})
	switch {
	case err != nil:
		out.Error = err.Error()
	case res.ExitCode != ExitOK:
		msg := strings.TrimSpace(string(res.Stderr))
		if msg == "" {
			msg = strings.TrimSpace(string(res.Stdout))
		}
		if msg == "" {
			msg = "ensure-contracts failed"
		}
		out.Error = truncate(msg, 1000)
	default:
		out.Applied = true
		return
	}
	result.Notes = append(result.Notes, "contract auto-ensure failed; continuing")
}

// updatePreflight checks for ecosystem updates. When some are found the
// summary is logged on the task and, if follow-ups are allowed, a
// self-update decision task is ensured.
func (c *Checker) updatePreflight(ctx context.Context, pol *policy.Policy, req CheckRequest, writeLog, forceFollowups, blocked bool, result *types.CheckResult) {
	out := types.UpdatePreflight{
		Enabled: pol.Updates.Enabled && c.Updates != nil,
		Updates: []types.RepoUpdate{},
		Errors:  []string{},
	}
	defer func() { result.Updates = out }()
	if !out.Enabled {
		return
	}

	interval := time.Duration(max(pol.Updates.CheckIntervalSeconds, 0)) * time.Second
	res, err := c.Updates.Check(ctx, interval)
	if err != nil {
		out.Errors = append(out.Errors, err.Error())
		result.Notes = append(result.Notes, "ecosystem update preflight failed: "+err.Error())
		if res == nil {
			return
		}
	}
	out.Checked = true
	out.Skipped = res.Skipped
	out.HasUpdates = res.HasUpdates()
	out.Updates = append(out.Updates, res.Updates...)
	out.Errors = append(out.Errors, res.Errors()...)
	for _, e := range firstN(res.Errors(), maxPreflightErrors) {
		result.Notes = append(result.Notes, "ecosystem update lookup error: "+e)
	}
	if !out.HasUpdates {
		return
	}

	out.Summary = updates.Summarize(res)
	result.Notes = append(result.Notes, out.Summary)
	if writeLog {
		if err := c.Store.LogMessage(ctx, req.TaskID, strings.ReplaceAll(out.Summary, "\n", " | ")); err != nil {
			result.Notes = append(result.Notes, "could not write update summary into wg log")
		}
	}
	if blocked || !(forceFollowups || pol.Updates.CreateFollowup) || c.Breaker == nil {
		return
	}
	id, err := c.Breaker.EnsureUpdateFollowup(ctx, req.TaskID, out.Summary)
	if err != nil {
		result.Notes = append(result.Notes, fmt.Sprintf("could not create update follow-up task: %v", err))
		return
	}
	out.FollowupTaskID = id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
