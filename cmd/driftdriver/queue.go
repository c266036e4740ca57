package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/speedrift/driftdriver/internal/config"
	"github.com/speedrift/driftdriver/internal/graph"
	"github.com/speedrift/driftdriver/internal/health"
	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/types"
	"github.com/speedrift/driftdriver/internal/ui"
	"github.com/speedrift/driftdriver/internal/workgraph"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "views",
	Short:   "Show the ranked ready drift queue and duplicate groups",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		if !cmd.Flags().Changed("limit") {
			limit = config.GetInt("queue-limit")
		}
		watch, _ := cmd.Flags().GetBool("watch")

		e := openEnv()
		show := func(snap *graph.Snapshot) {
			report := buildQueueReport(e.auditor, snap, limit, now())
			if jsonOutput {
				outputJSON(report)
				return
			}
			renderQueue(os.Stdout, report)
		}
		show(e.snapshot())
		if !watch {
			return
		}
		watchGraph(e.graph, config.GetDuration("watch-debounce"), func() {
			snap, err := storage.LoadSnapshot(getRootContext(), e.store)
			if err != nil {
				WarnError("reload failed: %v", err)
				return
			}
			show(snap)
		})
	},
}

func buildQueueReport(a *health.Auditor, snap *graph.Snapshot, limit int, at time.Time) types.QueueReport {
	return types.QueueReport{
		ReadyDrift:      a.RankReadyDriftQueue(snap, limit, at),
		DuplicateGroups: a.FindDuplicateOpenDriftGroups(snap),
		Scoreboard:      a.ComputeScoreboard(snap, at),
	}
}

func renderQueue(w io.Writer, r types.QueueReport) {
	fmt.Fprintf(w, "Ready drift queue: %d\n", len(r.ReadyDrift))
	for _, item := range r.ReadyDrift {
		fmt.Fprintf(w, "- %s [p=%d] %s\n", item.TaskID, item.Priority, ui.TruncateSimple(item.Title, queueTitleWidth()))
	}
	if len(r.DuplicateGroups) > 0 {
		fmt.Fprintf(w, "\nDuplicate drift groups: %d\n", len(r.DuplicateGroups))
		for _, group := range firstGroups(r.DuplicateGroups, 5) {
			fmt.Fprintf(w, "- %s (%d): %s\n", group.Key, group.Count, strings.Join(firstIDs(group.TaskIDs, 4), ", "))
		}
	}
	fmt.Fprintf(w, "\nStatus: %s\n", ui.RenderStatus(r.Scoreboard.Status))
}

// queueTitleWidth fits queue titles to the terminal, leaving room for the id
// and priority columns.
func queueTitleWidth() int {
	return max(ui.TerminalWidth(100)-20, 20)
}

func firstGroups(groups []types.DuplicateGroup, n int) []types.DuplicateGroup {
	if len(groups) > n {
		return groups[:n]
	}
	return groups
}

func firstIDs(ids []string, n int) []string {
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}

// watchGraph calls refresh after writes to graph.jsonl settle, until the
// root context is cancelled.
func watchGraph(g workgraph.Workgraph, debounceDelay time.Duration, refresh func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating watcher: %v\n", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(g.Dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error watching directory: %v\n", err)
		return
	}
	if debounceDelay <= 0 {
		debounceDelay = 500 * time.Millisecond
	}

	fmt.Fprintf(os.Stderr, "\nWatching for changes... (Press Ctrl+C to exit)\n")
	watchLoop(getRootContext(), watcher.Events, watcher.Errors, debounceDelay, func() {
		refresh()
		fmt.Fprintf(os.Stderr, "\nWatching for changes... (Press Ctrl+C to exit)\n")
	})
	fmt.Fprintf(os.Stderr, "\nStopped watching.\n")
}

// watchLoop debounces graph writes from events and runs refresh on the loop
// goroutine, so refreshes never overlap. It returns when ctx is done or a
// channel closes.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, delay time.Duration, refresh func()) {
	fire := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if !isGraphWrite(event) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(delay, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			refresh()
		case err, ok := <-errs:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "Watcher error: %v\n", err)
		}
	}
}

// isGraphWrite matches writes and replacements of graph.jsonl.
func isGraphWrite(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != workgraph.GraphFile {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func init() {
	queueCmd.Flags().Int("limit", 10, "Maximum ready tasks to list (minimum 1)")
	queueCmd.Flags().Bool("watch", false, "Re-render when graph.jsonl changes")
	rootCmd.AddCommand(queueCmd)
}
