package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/speedrift/driftdriver/internal/governor"
	"github.com/speedrift/driftdriver/internal/types"
	"github.com/speedrift/driftdriver/internal/updates"
)

// updatesReport is the updates output record.
type updatesReport struct {
	Enabled         bool               `json:"enabled"`
	Checked         bool               `json:"checked"`
	Force           bool               `json:"force"`
	Skipped         bool               `json:"skipped"`
	CheckedAt       string             `json:"checked_at,omitempty"`
	IntervalSeconds int                `json:"interval_seconds"`
	ElapsedSeconds  int                `json:"elapsed_seconds"`
	HasUpdates      bool               `json:"has_updates"`
	Updates         []types.RepoUpdate `json:"updates"`
	Errors          []string           `json:"errors"`
	Summary         string             `json:"summary,omitempty"`
	Message         string             `json:"message,omitempty"`
}

var updatesCmd = &cobra.Command{
	Use:     "updates",
	GroupID: "views",
	Short:   "Check the drift tool repositories for new commits",
	Long: `Compares the current head of each ecosystem repository with the head seen
on the previous run. The [updates] policy interval throttles lookups unless
--force is given. Set GITHUB_TOKEN to raise the API rate limit.

Exit codes: 0 nothing new, 3 updates found.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		e := openEnv()
		pol := e.policy.Updates

		report := updatesReport{Enabled: pol.Enabled, Force: force, Updates: []types.RepoUpdate{}, Errors: []string{}}
		if !pol.Enabled && !force {
			report.Skipped = true
			report.Message = "Update checks disabled in drift-policy.toml ([updates].enabled = false)."
			emitUpdates(os.Stdout, report)
			return
		}

		checker, err := updates.NewChecker(e.graph.Dir)
		if err != nil {
			FatalErrorRespectJSON(governor.ExitUsage, "update source configuration error: %v", err)
		}
		interval := time.Duration(max(pol.CheckIntervalSeconds, 0)) * time.Second
		if force {
			interval = 0
		}
		res, err := checker.Check(getRootContext(), interval)
		if err != nil {
			WarnError("%v", err)
		}
		if res != nil {
			report.Checked = true
			report.Skipped = res.Skipped
			report.CheckedAt = res.CheckedAt
			report.IntervalSeconds = int(interval.Seconds())
			report.ElapsedSeconds = res.ElapsedSeconds
			report.HasUpdates = res.HasUpdates()
			report.Updates = append(report.Updates, res.Updates...)
			report.Errors = append(report.Errors, res.Errors()...)
			if report.HasUpdates {
				report.Summary = updates.Summarize(res)
			}
		}
		emitUpdates(os.Stdout, report)
		if report.HasUpdates {
			setExitCode(governor.ExitFindings)
		}
	},
}

func emitUpdates(w io.Writer, r updatesReport) {
	if jsonOutput {
		outputJSON(r)
		return
	}
	renderUpdates(w, r)
}

func renderUpdates(w io.Writer, r updatesReport) {
	switch {
	case r.Message != "":
		fmt.Fprintln(w, r.Message)
	case r.Skipped:
		fmt.Fprintf(w, "Update check skipped: interval not elapsed (%ds < %ds).\n", r.ElapsedSeconds, r.IntervalSeconds)
	case r.HasUpdates:
		fmt.Fprintln(w, r.Summary)
	default:
		fmt.Fprintln(w, "No ecosystem updates detected.")
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "lookup error: %s\n", e)
	}
}

func init() {
	updatesCmd.Flags().Bool("force", false, "Ignore the check interval and the [updates].enabled policy")
	rootCmd.AddCommand(updatesCmd)
}
