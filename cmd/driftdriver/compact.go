package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/speedrift/driftdriver/internal/config"
	"github.com/speedrift/driftdriver/internal/governor"
	"github.com/speedrift/driftdriver/internal/timeparsing"
	"github.com/speedrift/driftdriver/internal/types"
)

var compactCmd = &cobra.Command{
	Use:     "compact",
	GroupID: "govern",
	Short:   "Abandon duplicate and over-deep drift tasks, defer queue overflow",
	Long: `Plans compaction of the drift backlog: duplicate follow-ups keep one
survivor (in-progress first, then oldest), recursive tasks deeper than the
policy limit are abandoned, and ready tasks beyond --max-ready are deferred.
Nothing changes without --apply.

Exit codes: 0 ok, 2 when any mutation failed (the report is still printed).`,
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()

		maxReady := e.policy.LoopSafety.MaxReadyDriftFollowups
		if cmd.Flags().Changed("max-ready") {
			maxReady, _ = cmd.Flags().GetInt("max-ready")
		}
		maxDepth := e.policy.LoopSafety.MaxRedriftDepth
		if cmd.Flags().Changed("max-redrift-depth") {
			maxDepth, _ = cmd.Flags().GetInt("max-redrift-depth")
		}
		deferHours := config.GetInt("defer-hours")
		if cmd.Flags().Changed("defer-hours") {
			deferHours, _ = cmd.Flags().GetInt("defer-hours")
		}
		if until, _ := cmd.Flags().GetString("defer-until"); until != "" {
			hours, err := timeparsing.HoursUntil(until, now())
			if err != nil {
				FatalErrorRespectJSON(governor.ExitUsage, "invalid --defer-until: %v", err)
			}
			deferHours = hours
		}
		apply, _ := cmd.Flags().GetBool("apply")

		c := &governor.Compactor{Store: e.store, Auditor: e.auditor, WgDir: e.graph.Dir, Now: now}
		report, err := c.Run(getRootContext(), governor.CompactOptions{
			MaxReady:        maxReady,
			MaxRedriftDepth: maxDepth,
			DeferHours:      deferHours,
			Apply:           apply,
		})
		if err != nil {
			FatalError("failed to load task graph: %v", err)
		}

		if jsonOutput {
			outputJSON(report)
		} else {
			renderCompaction(os.Stdout, report)
		}
		if len(report.Errors) > 0 {
			setExitCode(governor.ExitUsage)
		}
	},
}

func renderCompaction(w io.Writer, r *types.CompactionReport) {
	plan := r.Plan
	fmt.Fprintf(w, "Applied: %t\n", r.Applied)
	fmt.Fprintf(w, "Plan: abandon=%d defer=%d (ready %d -> target %d)\n",
		len(plan.AbandonTaskIDs), len(plan.DeferTaskIDs), plan.ReadyDriftBefore, plan.MaxReadyDrift)
	if r.Applied {
		fmt.Fprintf(w, "Applied abandon=%d defer=%d\n", len(r.AppliedAbandoned), len(r.AppliedDeferred))
	}
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, e := range firstIDs(r.Errors, 8) {
			fmt.Fprintf(w, "- %s\n", e)
		}
	}
	fmt.Fprintf(w, "Scoreboard: %s -> %s, ready_drift %d -> %d\n",
		r.ScoreboardBefore.Status, r.ScoreboardAfter.Status,
		r.ScoreboardBefore.ReadyDrift, r.ScoreboardAfter.ReadyDrift)
}

func init() {
	compactCmd.Flags().Bool("apply", false, "Apply the plan (default: dry run)")
	compactCmd.Flags().Int("max-ready", 20, "Ready drift tasks to keep (default: policy loop_safety limit)")
	compactCmd.Flags().Int("max-redrift-depth", 2, "Deepest redrift chain to keep (default: policy loop_safety limit)")
	compactCmd.Flags().Int("defer-hours", 24, "Hours to defer overflow tasks (minimum 1)")
	compactCmd.Flags().String("defer-until", "", `Defer overflow until a time ("+2d", "next monday", RFC3339)`)
	rootCmd.AddCommand(compactCmd)
}
