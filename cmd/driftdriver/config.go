package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/speedrift/driftdriver/internal/config"
)

// configReport is the config show output record.
type configReport struct {
	File     string                 `json:"file"`
	Settings map[string]interface{} `json:"settings"`
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Show driftdriver startup settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved settings and the config file they came from",
	Run: func(cmd *cobra.Command, args []string) {
		report := configReport{File: config.ConfigFileUsed(), Settings: config.AllSettings()}
		if jsonOutput {
			outputJSON(report)
			return
		}
		renderConfig(os.Stdout, report)
	},
}

func renderConfig(w io.Writer, r configReport) {
	file := r.File
	if file == "" {
		file = "(none; defaults and DRIFT_* environment)"
	}
	fmt.Fprintf(w, "Config file: %s\n", file)
	keys := make([]string, 0, len(r.Settings))
	for k := range r.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, r.Settings[k])
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
