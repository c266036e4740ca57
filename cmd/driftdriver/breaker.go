package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/speedrift/driftdriver/internal/governor"
)

var breakerCmd = &cobra.Command{
	Use:     "breaker",
	GroupID: "govern",
	Short:   "Ensure the circuit-breaker escalation task for a task",
	Long: `Creates drift-breaker-<task> blocked by the task unless it already
exists. Running it again is a no-op.`,
	Run: func(cmd *cobra.Command, args []string) {
		taskID, _ := cmd.Flags().GetString("task")
		if strings.TrimSpace(taskID) == "" {
			FatalErrorRespectJSON(governor.ExitUsage, "--task is required")
		}
		e := openEnv()
		b := governor.NewBreaker(e.store, e.graph.Dir)
		id, err := b.Ensure(getRootContext(), taskID)
		if errors.Is(err, governor.ErrIdempotencyRace) {
			FatalErrorWithHint(err.Error(), "another run may be creating the same task; retry shortly")
		}
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"task_id": taskID, "breaker_task_id": id})
			return
		}
		fmt.Println(id)
	},
}

func init() {
	breakerCmd.Flags().String("task", "", "Origin task id (required)")
	rootCmd.AddCommand(breakerCmd)
}
