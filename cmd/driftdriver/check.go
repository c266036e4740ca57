package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/speedrift/driftdriver/internal/config"
	"github.com/speedrift/driftdriver/internal/governor"
	"github.com/speedrift/driftdriver/internal/types"
	"github.com/speedrift/driftdriver/internal/updates"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	GroupID: "govern",
	Short:   "Run the drift lanes for a task under the drift policy",
	Long: `Runs coredrift plus the selected optional lanes for a task. The drift
policy mode decides whether lanes write logs and create follow-ups; the loop
safety gate downgrades to advise when recursion, queue pressure or a
blocked_by cycle is detected.

Exit codes: 0 clean, 3 findings, 2 usage or setup error.`,
	Run: func(cmd *cobra.Command, args []string) {
		taskID, _ := cmd.Flags().GetString("task")
		writeLog, _ := cmd.Flags().GetBool("write-log")
		createFollowups, _ := cmd.Flags().GetBool("create-followups")
		strategy, _ := cmd.Flags().GetString("lane-strategy")
		skipUpdates, _ := cmd.Flags().GetBool("skip-updates")
		if !cmd.Flags().Changed("lane-strategy") {
			strategy = config.GetString("lane-strategy")
		}

		if strings.TrimSpace(taskID) == "" {
			FatalErrorRespectJSON(governor.ExitUsage, "--task is required")
		}

		e := openEnv()
		checker := &governor.Checker{
			Store:   e.store,
			Policy:  e.policy,
			Auditor: e.auditor,
			Lanes:   governor.ExecLaneRunner{WgDir: e.graph.Dir, ProjectDir: e.graph.ProjectDir},
			Breaker: governor.NewBreaker(e.store, e.graph.Dir),
			Now:     now,
		}
		if !skipUpdates {
			if uc, err := updates.NewChecker(e.graph.Dir); err != nil {
				WarnError("update preflight disabled: %v", err)
			} else {
				checker.Updates = uc
			}
		}

		result, err := checker.Run(getRootContext(), governor.CheckRequest{
			TaskID:          taskID,
			WriteLog:        writeLog,
			CreateFollowups: createFollowups,
			JSON:            jsonOutput,
			LaneStrategy:    strategy,
		})
		var laneErr *governor.LaneError
		switch {
		case errors.Is(err, governor.ErrUsage):
			FatalErrorRespectJSON(governor.ExitUsage, "%v", err)
		case errors.As(err, &laneErr):
			if laneErr.Stderr != "" {
				fmt.Fprintln(os.Stderr, laneErr.Stderr)
			}
			setExitCode(laneErr.ExitCode)
			return
		case err != nil && result == nil:
			FatalError("%v", err)
		}

		for _, note := range result.Notes {
			fmt.Fprintf(os.Stderr, "note: %s\n", note)
		}
		if jsonOutput {
			outputJSON(result)
		} else {
			renderCheck(os.Stdout, result)
		}
		if err != nil {
			WarnError("%v", err)
			setExitCode(1)
		}
		setExitCode(result.ExitCode)
	},
}

// renderCheck echoes each lane's own output in run order, then a summary.
func renderCheck(w io.Writer, r *types.CheckResult) {
	lanes := append([]string{governor.CoreLane}, r.PolicyOrder...)
	for _, lane := range lanes {
		res, ok := r.Lanes[lane]
		if !ok || !res.Ran {
			continue
		}
		if out := strings.TrimRight(res.Output, "\n"); out != "" {
			fmt.Fprintln(w, out)
		}
	}
	if r.BreakerTaskID != "" {
		fmt.Fprintf(w, "breaker: %s\n", r.BreakerTaskID)
	}
	if r.Updates.FollowupTaskID != "" {
		fmt.Fprintf(w, "self-update follow-up: %s\n", r.Updates.FollowupTaskID)
	}
	if r.EffectiveMode != r.Mode {
		fmt.Fprintf(w, "mode: %s (downgraded from %s)\n", r.EffectiveMode, r.Mode)
	}
}

func init() {
	checkCmd.Flags().String("task", "", "Task id to check (required)")
	checkCmd.Flags().Bool("write-log", false, "Force lanes to write a log entry")
	checkCmd.Flags().Bool("create-followups", false, "Force lanes to create follow-up tasks (cleared when loop safety blocks)")
	checkCmd.Flags().String("lane-strategy", "auto", "Optional lane selection: auto, fences, all, smart")
	checkCmd.Flags().Bool("skip-updates", false, "Skip the ecosystem update preflight")
	rootCmd.AddCommand(checkCmd)
}
