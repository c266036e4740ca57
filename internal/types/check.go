package types

// LaneResult is the outcome of one checker lane.
type LaneResult struct {
	Ran      bool           `json:"ran"`
	ExitCode int            `json:"exit_code"`
	Report   map[string]any `json:"report,omitempty"`
	Note     string         `json:"note,omitempty"`
	// Output is the lane's raw stdout, echoed in text mode only.
	Output string `json:"-"`
}

// LanePlan records which optional lanes a check selected and why.
type LanePlan struct {
	Strategy    string            `json:"strategy"`
	FullSuite   bool              `json:"full_suite"`
	Selected    []string          `json:"selected_plugins"`
	Reasons     []string          `json:"reasons"`
	LaneReasons map[string]string `json:"plugin_reasons"`
}

// Action is a normalized remediation step derived from checker findings.
type Action struct {
	Action string `json:"action"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

// CheckResult is the combined record of one check invocation.
type CheckResult struct {
	TaskID        string                `json:"task_id"`
	ExitCode      int                   `json:"exit_code"`
	Mode          string                `json:"mode"`
	EffectiveMode string                `json:"effective_mode"`
	LoopSafety    LoopSafety            `json:"loop_safety"`
	LanePlan      LanePlan              `json:"lane_plan"`
	PolicyOrder   []string              `json:"policy_order"`
	Lanes         map[string]LaneResult `json:"plugins"`
	ActionPlan    []Action              `json:"action_plan"`
	BreakerTaskID string                `json:"breaker_task_id,omitempty"`
	Contracts     ContractEnsure        `json:"contract_auto_ensure"`
	Updates       UpdatePreflight       `json:"update_preflight"`
	Notes         []string              `json:"notes,omitempty"`
}

// ContractEnsure records the contract auto-ensure step run before lanes.
type ContractEnsure struct {
	Enabled   bool   `json:"enabled"`
	Attempted bool   `json:"attempted"`
	Applied   bool   `json:"applied"`
	Error     string `json:"error,omitempty"`
}

// RepoUpdate is one ecosystem repository whose head moved.
type RepoUpdate struct {
	Tool        string `json:"tool"`
	Repo        string `json:"repo"`
	PreviousSHA string `json:"previous_sha"`
	CurrentSHA  string `json:"current_sha"`
	CurrentDate string `json:"current_date,omitempty"`
}

// UpdatePreflight records the ecosystem update check run before lanes.
type UpdatePreflight struct {
	Enabled        bool         `json:"enabled"`
	Checked        bool         `json:"checked"`
	Skipped        bool         `json:"skipped"`
	HasUpdates     bool         `json:"has_updates"`
	Updates        []RepoUpdate `json:"updates"`
	Errors         []string     `json:"errors"`
	Summary        string       `json:"summary,omitempty"`
	FollowupTaskID string       `json:"followup_task_id,omitempty"`
}
