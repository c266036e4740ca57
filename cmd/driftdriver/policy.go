package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/speedrift/driftdriver/internal/debug"
	"github.com/speedrift/driftdriver/internal/governor"
	"github.com/speedrift/driftdriver/internal/policy"
	"github.com/speedrift/driftdriver/internal/workgraph"
)

var policyCmd = &cobra.Command{
	Use:     "policy",
	GroupID: "setup",
	Short:   "Show or initialize the drift policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective drift policy after sanitisation",
	Run: func(cmd *cobra.Command, args []string) {
		g := findWorkgraph()
		pol, warnings := policy.Load(g.Dir)
		for _, w := range warnings {
			WarnError("%s", w)
		}
		if jsonOutput {
			outputJSON(pol)
			return
		}
		data, err := pol.Encode()
		if err != nil {
			FatalError("encode policy: %v", err)
		}
		fmt.Print(string(data))
	},
}

var policyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default drift-policy.toml if missing",
	Run: func(cmd *cobra.Command, args []string) {
		g := findWorkgraph()
		created, err := policy.Ensure(g.Dir)
		if err != nil {
			FatalError("%v", err)
		}
		path := policy.Path(g.Dir)
		if created {
			debug.LogEvent(g.Dir, "policy.created", "", path)
			debug.PrintNormal("Created %s\n", path)
		} else {
			debug.PrintNormal("%s already exists\n", path)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"path": path, "created": created})
		}
	},
}

// findWorkgraph locates the workgraph directory. Unlike openEnv it accepts a
// .workgraph directory that has no graph.jsonl yet.
func findWorkgraph() workgraph.Workgraph {
	cwd, err := os.Getwd()
	if err != nil {
		FatalError("cannot determine working directory: %v", err)
	}
	if g, err := workgraph.Find(dirFlag, cwd); err == nil {
		return g
	}
	base := cwd
	if dirFlag != "" {
		base = dirFlag
	}
	dir, err := filepath.Abs(base)
	if err != nil {
		FatalError("%v", err)
	}
	if filepath.Base(dir) != workgraph.DirName {
		dir = filepath.Join(dir, workgraph.DirName)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		FatalErrorRespectJSON(governor.ExitUsage, "no %s directory at %s (run `wg init` first or pass --dir)", workgraph.DirName, filepath.Dir(dir))
	}
	return workgraph.Workgraph{Dir: dir, ProjectDir: filepath.Dir(dir)}
}

func init() {
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyInitCmd)
	rootCmd.AddCommand(policyCmd)
}
