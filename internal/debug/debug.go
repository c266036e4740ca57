// Package debug gates diagnostic output behind DRIFT_DEBUG or --verbose and
// records governance events in the workgraph event log.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventLogName is the append-only event log inside the workgraph directory.
const EventLogName = "drift-events.log"

var (
	enabled     = os.Getenv("DRIFT_DEBUG") != ""
	verboseMode = false
	quietMode   = false
	logMutex    sync.Mutex

	stderr io.Writer = os.Stderr
	stdout io.Writer = os.Stdout
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

func Logf(format string, args ...interface{}) {
	if Enabled() {
		fmt.Fprintf(stderr, format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Fprintf(stdout, format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Fprintln(stdout, args...)
	}
}

// LogEvent appends an event to <wgDir>/drift-events.log.
// Format: TIMESTAMP|EVENT_CODE|TASK_ID|AGENT_ID|DETAILS
// Failures are silent; the event log never interrupts an operation.
func LogEvent(wgDir, eventCode, taskID, details string) {
	if wgDir == "" {
		return
	}
	if taskID == "" {
		taskID = "none"
	}
	agentID := os.Getenv("DRIFT_AGENT_ID")
	if agentID == "" {
		agentID = os.Getenv("USER")
		if agentID == "" {
			agentID = "unknown"
		}
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	entry := fmt.Sprintf("%s|%s|%s|%s|%s\n", timestamp, eventCode, taskID, agentID, details)

	logMutex.Lock()
	defer logMutex.Unlock()

	if err := os.MkdirAll(wgDir, 0o755); err != nil {
		return
	}
	// #nosec G304 -- path is constructed from the workgraph dir
	file, err := os.OpenFile(filepath.Join(wgDir, EventLogName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(entry)
}
