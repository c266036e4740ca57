package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/speedrift/driftdriver/internal/governor"
	"github.com/speedrift/driftdriver/internal/health"
	"github.com/speedrift/driftdriver/internal/types"
	"github.com/speedrift/driftdriver/internal/ui"
)

// doctorWrappers are the wrapper scripts a wired project carries.
var doctorWrappers = []string{"driftdriver", "drifts", governor.CoreLane}

// wrapperCommandNames are looked for in `drifts --help`.
var wrapperCommandNames = []string{"install", "check", "updates", "doctor", "queue", "run", "orchestrate"}

const wrapperHelpTimeout = 10 * time.Second

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "views",
	Short:   "Audit drift health, policy limits and wrapper wiring",
	Long: `Audits the task graph against the policy loop-safety limits and checks
that the workgraph wrappers are installed and current.

Exit codes: 0 healthy, 3 watch or risk.`,
	Run: func(cmd *cobra.Command, args []string) {
		e := openEnv()
		snap := e.snapshot()

		wrappers := scanWrappers(e.graph.Dir)
		in := health.DoctorInput{
			Wrappers:          wrappers,
			CommandsAvailable: wrapperCommands(getRootContext(), filepath.Join(e.graph.Dir, "drifts")),
			MaxRedriftDepth:   e.policy.LoopSafety.MaxRedriftDepth,
			MaxReadyDrift:     e.policy.LoopSafety.MaxReadyDriftFollowups,
		}
		report := e.auditor.Doctor(snap, in, now())

		if jsonOutput {
			outputJSON(report)
		} else {
			renderDoctor(os.Stdout, report)
		}
		if report.Status != types.HealthHealthy {
			setExitCode(governor.ExitFindings)
		}
	},
}

func scanWrappers(wgDir string) map[string]bool {
	out := make(map[string]bool, len(doctorWrappers))
	for _, name := range doctorWrappers {
		_, err := os.Stat(filepath.Join(wgDir, name))
		out[name] = err == nil
	}
	return out
}

// wrapperCommands runs `<wrapper> --help` and returns the known subcommand
// names mentioned in its output. A missing wrapper yields none.
func wrapperCommands(ctx context.Context, wrapper string) []string {
	if _, err := os.Stat(wrapper); err != nil {
		return []string{}
	}
	ctx, cancel := context.WithTimeout(ctx, wrapperHelpTimeout)
	defer cancel()

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, wrapper, "--help") // #nosec G204 -- wrapper path is inside the workgraph dir
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	_ = cmd.Run() // help commonly exits non-zero; the text is what matters
	return parseWrapperCommands(buf.String())
}

func parseWrapperCommands(helpText string) []string {
	found := make([]string, 0, len(wrapperCommandNames))
	for _, name := range wrapperCommandNames {
		if regexp.MustCompile(`\b` + name + `\b`).MatchString(helpText) {
			found = append(found, name)
		}
	}
	return found
}

func renderDoctor(w io.Writer, r types.DoctorReport) {
	fmt.Fprintf(w, "Doctor status: %s\n", ui.RenderStatus(r.Status))
	s := r.Scoreboard
	fmt.Fprintf(w, "Scoreboard: active=%d active_drift=%d ready_drift=%d contract_coverage=%.2f\n",
		s.ActiveTasks, s.ActiveDrift, s.ReadyDrift, s.ActiveContractCoverage)

	if len(r.Wrappers) > 0 {
		fmt.Fprintf(w, "\n%s\n%s\n", ui.RenderCategory("wrappers"), ui.RenderSeparator())
		var lines []string
		for _, name := range doctorWrappers {
			state := ui.RenderFail("missing")
			if r.Wrappers[name] {
				state = ui.RenderPass("ok")
			}
			lines = append(lines, fmt.Sprintf("%s: %s", ui.RenderAccent(name), state))
		}
		fmt.Fprintln(w, ui.Indent(strings.Join(lines, "\n"), "  "))
	}
	if r.ActiveMissingContractCount > 0 {
		fmt.Fprintf(w, "\n%s\n%s\n", ui.RenderCategory("missing contracts"), ui.RenderSeparator())
		fmt.Fprintln(w, ui.Indent(fmt.Sprintf("%d active tasks: %s", r.ActiveMissingContractCount,
			strings.Join(r.ActiveMissingContractSample, ", ")), "  "))
	}

	fmt.Fprintln(w)
	if len(r.Issues) == 0 {
		fmt.Fprintln(w, "Issues: none")
		return
	}
	fmt.Fprintln(w, "Issues:")
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "- [%s] %s: %s\n", ui.RenderSeverity(issue.Severity), issue.Kind, issue.Message)
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
