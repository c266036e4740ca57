// Package types defines core data structures for the drift governance controller.
package types

import (
	"fmt"
	"strings"
)

// Task is a read-only copy of one workgraph task record.
// Field names follow graph.jsonl so records decode without translation.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Status      Status   `json:"status,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	BlockedBy   []string `json:"blocked_by,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"` // RFC3339; empty reads as epoch 0
	NotBefore   string   `json:"not_before,omitempty"` // RFC3339; gates future eligibility
}

// EffectiveStatus returns the task status, treating an empty status as open.
func (t *Task) EffectiveStatus() Status {
	if t == nil || strings.TrimSpace(string(t.Status)) == "" {
		return StatusOpen
	}
	return t.Status
}

// Validate checks the fields the controller relies on.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task id is required")
	}
	for _, b := range t.BlockedBy {
		if b == t.ID {
			return fmt.Errorf("task %s cannot be blocked by itself", t.ID)
		}
	}
	return nil
}

// Status represents the lifecycle state of a task
type Status string

// Task status constants
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusAbandoned  Status = "abandoned"
)

// IsValid checks if the status value is one of the known statuses.
// Unknown statuses are tolerated by the controller and count as active.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone, StatusAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends a task's active life.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusAbandoned
}

// NewTask is a creation request sent to the task store.
type NewTask struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	BlockedBy   []string `json:"blocked_by,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// DuplicateGroup is a set of two or more active drift tasks sharing a
// normalized title key. Computed fresh on every query.
type DuplicateGroup struct {
	Key     string   `json:"key"`
	Count   int      `json:"count"`
	TaskIDs []string `json:"task_ids"`
}

// QueueEntry is the flat projection of a ready drift task.
type QueueEntry struct {
	TaskID    string   `json:"task_id"`
	Title     string   `json:"title"`
	Status    Status   `json:"status"`
	Priority  int      `json:"priority"`
	CreatedAt string   `json:"created_at"`
	BlockedBy []string `json:"blocked_by"`
}

// HealthStatus is the three-level health classification.
type HealthStatus string

// Health status constants
const (
	HealthHealthy HealthStatus = "healthy"
	HealthWatch   HealthStatus = "watch"
	HealthRisk    HealthStatus = "risk"
)

// Scoreboard aggregates graph health counters.
type Scoreboard struct {
	Status                 HealthStatus     `json:"status"`
	TasksTotal             int              `json:"tasks_total"`
	ActiveTasks            int              `json:"active_tasks"`
	DriftTotal             int              `json:"drift_total"`
	ActiveDrift            int              `json:"active_drift"`
	ReadyDrift             int              `json:"ready_drift"`
	ActiveContractCoverage float64          `json:"active_contract_coverage"`
	ActiveDriftRatio       float64          `json:"active_drift_ratio"`
	MaxRedriftDepth        int              `json:"max_redrift_depth"`
	DuplicateGroups        []DuplicateGroup `json:"duplicate_open_drift_groups"`
}

// LoopSafety is the per-check admission-control verdict. Never persisted.
type LoopSafety struct {
	ObservedDepth    int      `json:"observed_redrift_depth"`
	MaxDepth         int      `json:"max_redrift_depth"`
	ReadyCount       int      `json:"ready_drift_followups"`
	MaxReady         int      `json:"max_ready_drift_followups"`
	CycleDetected    bool     `json:"blocked_by_cycle"`
	FollowupsBlocked bool     `json:"followups_blocked"`
	Reasons          []string `json:"reasons"`
}

// CompactionGroup records the keep/abandon decision for one duplicate group.
type CompactionGroup struct {
	Key            string   `json:"key"`
	KeepTaskID     string   `json:"keep_task_id"`
	AbandonTaskIDs []string `json:"abandon_task_ids"`
}

// CompactionPlan lists the tasks a compaction pass would abandon or defer.
// AbandonTaskIDs and DeferTaskIDs are disjoint.
type CompactionPlan struct {
	DuplicateGroups      []CompactionGroup `json:"duplicate_groups"`
	DepthExceededTaskIDs []string          `json:"depth_exceeded_redrift_task_ids"`
	AbandonTaskIDs       []string          `json:"abandon_task_ids"`
	ReadyDriftBefore     int               `json:"ready_drift_before"`
	MaxReadyDrift        int               `json:"max_ready_drift"`
	MaxRedriftDepth      int               `json:"max_redrift_depth"`
	DeferTaskIDs         []string          `json:"defer_task_ids"`
}

// CompactionReport is the outcome of planning and optionally applying compaction.
// Errors are per-id and never merged into the applied lists.
type CompactionReport struct {
	Applied          bool           `json:"applied"`
	DeferHours       int            `json:"defer_hours"`
	Plan             CompactionPlan `json:"plan"`
	AppliedAbandoned []string       `json:"applied_abandoned"`
	AppliedDeferred  []string       `json:"applied_deferred"`
	Errors           []string       `json:"errors"`
	ScoreboardBefore Scoreboard     `json:"scoreboard_before"`
	ScoreboardAfter  Scoreboard     `json:"scoreboard_after"`
}

// Severity ranks doctor issues.
type Severity string

// Severity constants
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// DoctorIssue is one finding of a health audit.
type DoctorIssue struct {
	Severity Severity `json:"severity"`
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
}

// DoctorReport is the health audit record.
type DoctorReport struct {
	Status                      HealthStatus    `json:"status"`
	Wrappers                    map[string]bool `json:"wrappers"`
	CommandsAvailable           []string        `json:"commands_available"`
	Scoreboard                  Scoreboard      `json:"scoreboard"`
	ActiveMissingContractCount  int             `json:"active_missing_contract_count"`
	ActiveMissingContractSample []string        `json:"active_missing_contract_sample"`
	Issues                      []DoctorIssue   `json:"issues"`
	Notes                       []string        `json:"notes,omitempty"`
}

// QueueReport is the ranked-queue record exposed to the CLI.
type QueueReport struct {
	ReadyDrift      []QueueEntry     `json:"ready_drift"`
	DuplicateGroups []DuplicateGroup `json:"duplicate_open_drift_groups"`
	Scoreboard      Scoreboard       `json:"scoreboard"`
}
