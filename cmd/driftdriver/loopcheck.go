package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/speedrift/driftdriver/internal/governor"
	"github.com/speedrift/driftdriver/internal/types"
)

// loopCheckReport is the loop-check output record.
type loopCheckReport struct {
	TaskID        string           `json:"task_id"`
	Mode          string           `json:"mode"`
	EffectiveMode string           `json:"effective_mode"`
	LoopSafety    types.LoopSafety `json:"loop_safety"`
}

var loopCheckCmd = &cobra.Command{
	Use:     "loop-check",
	GroupID: "govern",
	Short:   "Evaluate the loop-safety gate for a task without running lanes",
	Long: `Reports the redrift depth, ready queue pressure and blocked_by cycle
verdict for a task and the mode a check would run in.

Exit codes: 0 follow-ups allowed, 3 follow-ups blocked, 2 usage error.`,
	Run: func(cmd *cobra.Command, args []string) {
		taskID, _ := cmd.Flags().GetString("task")
		if strings.TrimSpace(taskID) == "" {
			FatalErrorRespectJSON(governor.ExitUsage, "--task is required")
		}
		e := openEnv()
		verdict := governor.ComputeLoopSafety(e.auditor, taskID, e.snapshot(), e.policy.LoopSafety, now())
		report := loopCheckReport{
			TaskID:        taskID,
			Mode:          string(e.policy.Mode),
			EffectiveMode: string(governor.EffectiveMode(e.policy.Mode, verdict)),
			LoopSafety:    verdict,
		}
		if jsonOutput {
			outputJSON(report)
		} else {
			renderLoopCheck(os.Stdout, report)
		}
		if verdict.FollowupsBlocked {
			setExitCode(governor.ExitFindings)
		}
	},
}

func renderLoopCheck(w io.Writer, r loopCheckReport) {
	v := r.LoopSafety
	fmt.Fprintf(w, "Task: %s\n", r.TaskID)
	fmt.Fprintf(w, "Redrift depth: %d (max %d)\n", v.ObservedDepth, v.MaxDepth)
	fmt.Fprintf(w, "Ready drift: %d (max %d)\n", v.ReadyCount, v.MaxReady)
	fmt.Fprintf(w, "Cycle: %t\n", v.CycleDetected)
	if len(v.Reasons) > 0 {
		fmt.Fprintf(w, "Reasons: %s\n", strings.Join(v.Reasons, ", "))
	}
	mode := r.EffectiveMode
	if r.EffectiveMode != r.Mode {
		mode += " (downgraded from " + r.Mode + ")"
	}
	fmt.Fprintf(w, "Mode: %s\n", mode)
}

func init() {
	loopCheckCmd.Flags().String("task", "", "Task id to evaluate (required)")
	rootCmd.AddCommand(loopCheckCmd)
}
