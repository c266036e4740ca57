package governor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrift/driftdriver/internal/policy"
	"github.com/speedrift/driftdriver/internal/storage/memory"
	"github.com/speedrift/driftdriver/internal/types"
	"github.com/speedrift/driftdriver/internal/updates"
)

// fakeLanes scripts lane outputs by lane name and records requests.
type fakeLanes struct {
	mu        sync.Mutex
	installed map[string]bool
	outputs   map[string]LaneOutput
	errs      map[string]error
	calls     []LaneRequest
}

func newFakeLanes(lanes ...string) *fakeLanes {
	f := &fakeLanes{installed: map[string]bool{}, outputs: map[string]LaneOutput{}, errs: map[string]error{}}
	for _, lane := range lanes {
		f.installed[lane] = true
	}
	return f
}

func (f *fakeLanes) Available(lane string) bool { return f.installed[lane] }

func (f *fakeLanes) RunLane(_ context.Context, req LaneRequest) (LaneOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	key := req.Lane
	if req.Command != "" {
		key = req.Command
	}
	if err := f.errs[key]; err != nil {
		return LaneOutput{}, err
	}
	return f.outputs[key], nil
}

func (f *fakeLanes) call(lane string) (LaneRequest, bool) {
	for _, c := range f.calls {
		if c.Lane == lane && c.Command == "" {
			return c, true
		}
	}
	return LaneRequest{}, false
}

func newChecker(lanes *fakeLanes, pol *policy.Policy, tasks ...*types.Task) (*Checker, *faultStore) {
	fs := &faultStore{Store: newMemory(tasks...)}
	return &Checker{
		Store:   fs,
		Policy:  pol,
		Lanes:   lanes,
		Breaker: newTestBreaker(fs),
		Now:     fixedNow,
	}, fs
}

func TestCheckerUsageErrors(t *testing.T) {
	c, _ := newChecker(newFakeLanes(CoreLane), nil)
	_, err := c.Run(context.Background(), CheckRequest{TaskID: "  "})
	assert.ErrorIs(t, err, ErrUsage)

	c, _ = newChecker(newFakeLanes("specdrift"), nil)
	_, err = c.Run(context.Background(), CheckRequest{TaskID: "T"})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestCheckerCleanRun(t *testing.T) {
	lanes := newFakeLanes(CoreLane, "specdrift")
	lanes.outputs[CoreLane] = LaneOutput{Stdout: []byte(`{"findings":[]}`)}
	c, _ := newChecker(lanes, nil, &types.Task{ID: "T", Title: "small change"})

	res, err := c.Run(context.Background(), CheckRequest{TaskID: "T", JSON: true, LaneStrategy: "auto"})
	require.NoError(t, err)
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, "redirect", res.Mode)
	assert.Equal(t, "redirect", res.EffectiveMode)
	assert.Empty(t, res.LanePlan.Selected)
	assert.Empty(t, res.ActionPlan)
	assert.Empty(t, res.BreakerTaskID)
	assert.Len(t, res.Lanes, len(OptionalLanes)+1)
	assert.False(t, res.Lanes["specdrift"].Ran)
	assert.Equal(t, "no standardized json output yet", res.Lanes["uxdrift"].Note)

	req, ok := lanes.call(CoreLane)
	require.True(t, ok)
	assert.True(t, req.WriteLog)
	assert.True(t, req.CreateFollowups)
	assert.True(t, req.JSON)
	_, ok = lanes.call("specdrift")
	assert.False(t, ok, "unselected lane must not run")
}

func TestCheckerLoopSafetyDowngrades(t *testing.T) {
	tasks := append(readyDrift(3), &types.Task{ID: "T", Title: "feature"})
	pol := policy.Default()
	pol.LoopSafety.MaxReadyDriftFollowups = 1

	lanes := newFakeLanes(CoreLane)
	c, _ := newChecker(lanes, pol, tasks...)
	res, err := c.Run(context.Background(), CheckRequest{TaskID: "T", CreateFollowups: true})
	require.NoError(t, err)

	assert.True(t, res.LoopSafety.FollowupsBlocked)
	assert.Equal(t, "advise", res.EffectiveMode)
	require.NotEmpty(t, res.Notes)
	assert.Contains(t, res.Notes[0], "ready_drift_queue_exceeded (3 > 1)")
	assert.Contains(t, res.Notes[0], "running in advise mode")

	req, _ := lanes.call(CoreLane)
	assert.True(t, req.WriteLog)
	assert.False(t, req.CreateFollowups, "forced create-followups must be cleared")
}

func TestCheckerOptionalLanes(t *testing.T) {
	task := &types.Task{
		ID:          "T",
		Title:       "tighten schema",
		Description: "```specdrift\nspec = true\n```\n```depsdrift\n```\n",
	}
	lanes := newFakeLanes(CoreLane, "specdrift", "depsdrift")
	lanes.outputs[CoreLane] = LaneOutput{ExitCode: ExitFindings, Stdout: []byte(`{"findings":[{"kind":"scope_drift"},{"kind":"novel"}]}`)}
	lanes.outputs["specdrift"] = LaneOutput{ExitCode: ExitFindings, Stdout: []byte(`{"findings":[{"kind":"scope_drift"},{"kind":"dependency_drift"}]}`)}
	lanes.outputs["depsdrift"] = LaneOutput{ExitCode: 1, Stderr: []byte(strings.Repeat("x", 5000))}
	c, _ := newChecker(lanes, nil, task)

	res, err := c.Run(context.Background(), CheckRequest{TaskID: "T", JSON: true, LaneStrategy: "fences"})
	require.NoError(t, err)
	assert.Equal(t, ExitFindings, res.ExitCode)
	assert.Equal(t, []string{"specdrift", "depsdrift"}, res.LanePlan.Selected)
	assert.Equal(t, "task fence", res.LanePlan.LaneReasons["specdrift"])

	deps := res.Lanes["depsdrift"]
	assert.True(t, deps.Ran)
	assert.Equal(t, ExitOK, deps.ExitCode)
	assert.Equal(t, "depsdrift failed", deps.Report["error"])
	assert.Len(t, deps.Report["stderr"], maxLaneStderr)
	assert.Contains(t, res.Notes, "depsdrift failed (exit 1); continuing")

	assert.Equal(t, []types.Action{
		{Action: "scope", Kind: "scope_drift", Source: CoreLane},
		{Action: "ignore-with-rationale", Kind: "novel", Source: CoreLane},
		{Action: "respec", Kind: "dependency_drift", Source: "specdrift"},
	}, res.ActionPlan)
}

func TestCheckerOptionalLaneStartFailure(t *testing.T) {
	task := &types.Task{ID: "T", Description: "```archdrift\n```"}
	lanes := newFakeLanes(CoreLane, "archdrift")
	lanes.errs["archdrift"] = errors.New("exec format error")
	c, _ := newChecker(lanes, nil, task)

	res, err := c.Run(context.Background(), CheckRequest{TaskID: "T", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, ExitOK, res.ExitCode)
	assert.Equal(t, -1, res.Lanes["archdrift"].Report["exit_code"])
	assert.Contains(t, res.Notes, "archdrift failed (exit -1); continuing")
}

func TestCheckerBaselineFailureIsFatal(t *testing.T) {
	lanes := newFakeLanes(CoreLane)
	lanes.outputs[CoreLane] = LaneOutput{ExitCode: 1, Stderr: []byte("boom\n")}
	c, _ := newChecker(lanes, nil, &types.Task{ID: "T"})

	_, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
	var laneErr *LaneError
	require.ErrorAs(t, err, &laneErr)
	assert.Equal(t, CoreLane, laneErr.Lane)
	assert.Equal(t, 1, laneErr.ExitCode)
	assert.Equal(t, "coredrift exited with code 1: boom", err.Error())
}

func TestCheckerBreakerMode(t *testing.T) {
	pol := policy.Default()
	pol.Mode = policy.ModeBreaker
	lanes := newFakeLanes(CoreLane)
	lanes.outputs[CoreLane] = LaneOutput{ExitCode: ExitFindings}
	c, fs := newChecker(lanes, pol, &types.Task{ID: "T"})

	for i := 0; i < 2; i++ {
		res, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
		require.NoError(t, err)
		assert.Equal(t, ExitFindings, res.ExitCode)
		assert.Equal(t, "drift-breaker-T", res.BreakerTaskID)
	}
	assert.Equal(t, 1, fs.createCalls)

	req, _ := lanes.call(CoreLane)
	assert.True(t, req.WriteLog)
	assert.False(t, req.CreateFollowups)
}

func TestCheckerTextModeKeepsOutput(t *testing.T) {
	task := &types.Task{ID: "T", Title: "full suite please"}
	lanes := newFakeLanes(CoreLane)
	lanes.outputs[CoreLane] = LaneOutput{Stdout: []byte("all clear\n")}
	c, _ := newChecker(lanes, nil, task)

	res, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
	require.NoError(t, err)
	assert.Nil(t, res.Lanes[CoreLane].Report)
	assert.Equal(t, "all clear\n", res.Lanes[CoreLane].Output)
	assert.True(t, res.LanePlan.FullSuite)
	require.NotEmpty(t, res.Notes)
	assert.Contains(t, res.Notes[0], "lane preflight selected full suite")
}

func TestSelectLanes(t *testing.T) {
	ordered := OrderedOptionalLanes(policy.DefaultOrder)

	t.Run("all", func(t *testing.T) {
		plan := SelectLanes(&types.Task{ID: "T"}, ordered, "ALL")
		assert.Equal(t, ordered, plan.Selected)
		assert.True(t, plan.FullSuite)
		assert.Equal(t, "preflight full-suite", plan.LaneReasons["redrift"])
	})

	t.Run("fences only", func(t *testing.T) {
		task := &types.Task{ID: "T", Title: "full suite", Description: "```datadrift\n```"}
		plan := SelectLanes(task, ordered, "fences")
		assert.Equal(t, []string{"datadrift"}, plan.Selected)
		assert.False(t, plan.FullSuite)
		assert.Equal(t, "not selected", plan.LaneReasons["specdrift"])
	})

	t.Run("auto complexity points", func(t *testing.T) {
		task := &types.Task{
			ID:          "T",
			Title:       "database migration",
			BlockedBy:   []string{"a", "b", "c"},
			Description: "```datadrift\n```",
		}
		plan := SelectLanes(task, ordered, "auto")
		assert.True(t, plan.FullSuite)
		assert.Equal(t, []string{"3 upstream dependencies", "complexity keywords (migration, database)"}, plan.Reasons)
		assert.Equal(t, "task fence + preflight full-suite", plan.LaneReasons["datadrift"])
	})

	t.Run("one point is not enough", func(t *testing.T) {
		task := &types.Task{ID: "T", Description: "```wg-contract\nmax_files = 40\n```"}
		plan := SelectLanes(task, ordered, "auto")
		assert.False(t, plan.FullSuite)
		assert.Empty(t, plan.Selected)
	})

	t.Run("contract sizes", func(t *testing.T) {
		task := &types.Task{ID: "T", Description: "```wg-contract\nmax_files = 40\nmax_loc = 1200\n```"}
		plan := SelectLanes(task, ordered, "auto")
		assert.True(t, plan.FullSuite)
		assert.Equal(t, []string{"wg-contract max_files=40", "wg-contract max_loc=1200"}, plan.Reasons)
	})

	t.Run("smart falls back", func(t *testing.T) {
		plan := SelectLanes(&types.Task{ID: "T"}, ordered, "smart")
		assert.Equal(t, StrategyAuto, plan.Strategy)
		assert.Equal(t, []string{"smart routing unavailable; using auto"}, plan.Reasons)
	})

	t.Run("missing task", func(t *testing.T) {
		plan := SelectLanes(nil, ordered, "bogus")
		assert.Equal(t, StrategyAuto, plan.Strategy)
		assert.Empty(t, plan.Selected)
		assert.NotNil(t, plan.Reasons)
	})
}

func TestOrderedOptionalLanes(t *testing.T) {
	got := OrderedOptionalLanes([]string{"redrift", "coredrift", "bogus", " specdrift ", "redrift"})
	assert.Equal(t, []string{
		"redrift", "specdrift", "datadrift", "archdrift", "depsdrift",
		"uxdrift", "therapydrift", "fixdrift", "yagnidrift",
	}, got)
}

func TestLaneArgs(t *testing.T) {
	tests := []struct {
		name string
		req  LaneRequest
		want []string
	}{
		{
			name: "baseline json",
			req:  LaneRequest{Lane: CoreLane, TaskID: "T", JSON: true, WriteLog: true},
			want: []string{"--dir", "/p", "check", "--task", "T", "--write-log", "--json"},
		},
		{
			name: "ux",
			req:  LaneRequest{Lane: "uxdrift", TaskID: "T", JSON: true, CreateFollowups: true},
			want: []string{"wg", "--dir", "/p", "check", "--task", "T", "--create-followups"},
		},
		{
			name: "optional json",
			req:  LaneRequest{Lane: "specdrift", TaskID: "T", JSON: true, WriteLog: true, CreateFollowups: true},
			want: []string{"--dir", "/p", "--json", "wg", "check", "--task", "T", "--write-log", "--create-followups"},
		},
		{
			name: "optional text",
			req:  LaneRequest{Lane: "redrift", TaskID: "T"},
			want: []string{"--dir", "/p", "wg", "check", "--task", "T"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LaneArgs(tt.req, "/p"))
		})
	}
}

func TestDecodeReport(t *testing.T) {
	assert.Nil(t, decodeReport([]byte(`{"a":1}`), false))
	assert.Equal(t, map[string]any{}, decodeReport([]byte("  \n"), true))
	assert.Equal(t, map[string]any{"a": float64(1)}, decodeReport([]byte(`{"a":1}`), true))
	assert.Equal(t, map[string]any{"raw": "not json"}, decodeReport([]byte("not json"), true))
}

func TestCheckerLogsBlockedVerdict(t *testing.T) {
	tasks := append(readyDrift(2), &types.Task{ID: "T", Title: "feature"})
	pol := policy.Default()
	pol.LoopSafety.MaxReadyDriftFollowups = 0

	c, fs := newChecker(newFakeLanes(CoreLane), pol, tasks...)
	_, err := c.Run(context.Background(), CheckRequest{TaskID: "T", WriteLog: true})
	require.NoError(t, err)

	mem := fs.Store.(*memory.MemoryStorage)
	assert.Equal(t, []string{"driftdriver: follow-ups blocked by loop safety (ready_drift_queue_exceeded (2 > 0))"}, mem.Logs("T"))
}

type fakeUpdates struct {
	res      *updates.Result
	err      error
	interval time.Duration
}

func (f *fakeUpdates) Check(_ context.Context, interval time.Duration) (*updates.Result, error) {
	f.interval = interval
	return f.res, f.err
}

func TestCheckerContractAutoEnsure(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		lanes := newFakeLanes(CoreLane)
		c, _ := newChecker(lanes, nil, &types.Task{ID: "T"})
		res, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
		require.NoError(t, err)
		assert.Equal(t, types.ContractEnsure{Enabled: true, Attempted: true, Applied: true}, res.Contracts)
		require.NotEmpty(t, lanes.calls)
		assert.Equal(t, LaneRequest{Lane: CoreLane, Command: EnsureContractsCommand}, lanes.calls[0])
		assert.Equal(t, []string{"--dir", "/p", "ensure-contracts", "--apply"}, LaneArgs(lanes.calls[0], "/p"))
	})

	t.Run("failure continues", func(t *testing.T) {
		lanes := newFakeLanes(CoreLane)
		lanes.outputs[EnsureContractsCommand] = LaneOutput{ExitCode: 2, Stdout: []byte("bad contract\n")}
		c, _ := newChecker(lanes, nil, &types.Task{ID: "T"})
		res, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
		require.NoError(t, err)
		assert.Equal(t, ExitOK, res.ExitCode)
		assert.True(t, res.Contracts.Attempted)
		assert.False(t, res.Contracts.Applied)
		assert.Equal(t, "bad contract", res.Contracts.Error)
		assert.Contains(t, res.Notes, "contract auto-ensure failed; continuing")
		assert.True(t, res.Lanes[CoreLane].Ran)
	})

	t.Run("disabled", func(t *testing.T) {
		pol := policy.Default()
		pol.Contracts.AutoEnsure = false
		lanes := newFakeLanes(CoreLane)
		c, _ := newChecker(lanes, pol, &types.Task{ID: "T"})
		res, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
		require.NoError(t, err)
		assert.Equal(t, types.ContractEnsure{}, res.Contracts)
		require.Len(t, lanes.calls, 1)
		assert.Empty(t, lanes.calls[0].Command)
	})
}

func TestCheckerUpdatePreflight(t *testing.T) {
	moved := &updates.Result{
		Updates: []types.RepoUpdate{{Tool: "coredrift", Repo: "dbmcco/coredrift", PreviousSHA: "aaaaaaa111", CurrentSHA: "bbbbbbb222"}},
		Repos: []updates.RepoCheck{
			{Tool: "coredrift", Repo: "dbmcco/coredrift", Changed: true},
			{Tool: "specdrift", Repo: "dbmcco/specdrift", Error: "dbmcco/specdrift: HTTP 500"},
		},
	}

	t.Run("disabled without checker", func(t *testing.T) {
		c, _ := newChecker(newFakeLanes(CoreLane), nil, &types.Task{ID: "T"})
		res, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
		require.NoError(t, err)
		assert.False(t, res.Updates.Enabled)
		assert.False(t, res.Updates.Checked)
	})

	t.Run("updates logged and followup forced", func(t *testing.T) {
		fu := &fakeUpdates{res: moved}
		c, fs := newChecker(newFakeLanes(CoreLane), nil, &types.Task{ID: "T"})
		c.Updates = fu
		res, err := c.Run(context.Background(), CheckRequest{TaskID: "T", WriteLog: true, CreateFollowups: true})
		require.NoError(t, err)

		assert.Equal(t, 6*time.Hour, fu.interval)
		assert.True(t, res.Updates.Checked)
		assert.True(t, res.Updates.HasUpdates)
		assert.Equal(t, moved.Updates, res.Updates.Updates)
		assert.Equal(t, []string{"dbmcco/specdrift: HTTP 500"}, res.Updates.Errors)
		assert.Contains(t, res.Updates.Summary, "- coredrift: aaaaaaa -> bbbbbbb")
		assert.Contains(t, res.Notes, "ecosystem update lookup error: dbmcco/specdrift: HTTP 500")
		assert.Equal(t, UpdateFollowupID("T"), res.Updates.FollowupTaskID)

		mem := fs.Store.(*memory.MemoryStorage)
		require.Len(t, mem.Logs("T"), 1)
		assert.NotContains(t, mem.Logs("T")[0], "\n")
		assert.Contains(t, mem.Logs("T")[0], " | - coredrift: aaaaaaa -> bbbbbbb | ")
	})

	t.Run("no followup unless asked", func(t *testing.T) {
		c, fs := newChecker(newFakeLanes(CoreLane), nil, &types.Task{ID: "T"})
		c.Updates = &fakeUpdates{res: moved}
		res, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
		require.NoError(t, err)
		assert.Empty(t, res.Updates.FollowupTaskID)
		assert.Equal(t, 0, fs.createCalls)
	})

	t.Run("policy creates followup", func(t *testing.T) {
		pol := policy.Default()
		pol.Updates.CreateFollowup = true
		c, _ := newChecker(newFakeLanes(CoreLane), pol, &types.Task{ID: "T"})
		c.Updates = &fakeUpdates{res: moved}
		res, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
		require.NoError(t, err)
		assert.Equal(t, UpdateFollowupID("T"), res.Updates.FollowupTaskID)
	})

	t.Run("loop safety blocks followup", func(t *testing.T) {
		pol := policy.Default()
		pol.Updates.CreateFollowup = true
		pol.LoopSafety.MaxReadyDriftFollowups = 0
		tasks := append(readyDrift(1), &types.Task{ID: "T"})
		c, _ := newChecker(newFakeLanes(CoreLane), pol, tasks...)
		c.Updates = &fakeUpdates{res: moved}
		res, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
		require.NoError(t, err)
		assert.True(t, res.Updates.HasUpdates)
		assert.Empty(t, res.Updates.FollowupTaskID)
	})

	t.Run("state write failure is a note", func(t *testing.T) {
		c, _ := newChecker(newFakeLanes(CoreLane), nil, &types.Task{ID: "T"})
		c.Updates = &fakeUpdates{res: &updates.Result{Skipped: true}, err: errors.New("write update state: read-only")}
		res, err := c.Run(context.Background(), CheckRequest{TaskID: "T"})
		require.NoError(t, err)
		assert.True(t, res.Updates.Skipped)
		assert.Contains(t, res.Notes, "ecosystem update preflight failed: write update state: read-only")
	})
}
