// Package updates detects new commits in the drift tool repositories so a
// check can ask whether the toolchain should self-update.
//
// Heads seen on the previous run are kept in
// .workgraph/.driftdriver/update-state.json. A repository counts as updated
// only when it had a recorded head and that head changed.
package updates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/speedrift/driftdriver/internal/types"
)

const (
	stateDir         = ".driftdriver"
	stateFile        = "update-state.json"
	reviewConfigFile = "ecosystem-review.json"
)

// DefaultRepos maps each ecosystem tool to its GitHub repository.
var DefaultRepos = map[string]string{
	"driftdriver":                "dbmcco/driftdriver",
	"coredrift":                  "dbmcco/coredrift",
	"specdrift":                  "dbmcco/specdrift",
	"datadrift":                  "dbmcco/datadrift",
	"archdrift":                  "dbmcco/archdrift",
	"depsdrift":                  "dbmcco/depsdrift",
	"uxdrift":                    "dbmcco/uxdrift",
	"therapydrift":               "dbmcco/therapydrift",
	"yagnidrift":                 "dbmcco/yagnidrift",
	"redrift":                    "dbmcco/redrift",
	"speedrift-ecosystem":        "dbmcco/speedrift-ecosystem",
	"amplifier-bundle-speedrift": "dbmcco/amplifier-bundle-speedrift",
}

type repoState struct {
	Repo       string `json:"repo"`
	SHA        string `json:"sha"`
	CommitDate string `json:"commit_date,omitempty"`
	SeenAt     string `json:"seen_at"`
}

type state struct {
	LastCheckedAt string               `json:"last_checked_at,omitempty"`
	Repos         map[string]repoState `json:"repos"`
}

// RepoCheck is the lookup outcome for one repository.
type RepoCheck struct {
	Tool    string `json:"tool"`
	Repo    string `json:"repo"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

// Result is one update check.
type Result struct {
	CheckedAt      string             `json:"checked_at"`
	Skipped        bool               `json:"skipped"`
	ElapsedSeconds int                `json:"elapsed_seconds,omitempty"`
	Updates        []types.RepoUpdate `json:"updates"`
	Repos          []RepoCheck        `json:"repos"`
}

// HasUpdates reports whether any repository moved since the last check.
func (r *Result) HasUpdates() bool { return r != nil && len(r.Updates) > 0 }

// Errors returns the per-repository lookup errors.
func (r *Result) Errors() []string {
	var errs []string
	if r == nil {
		return errs
	}
	for _, rc := range r.Repos {
		if rc.Error != "" {
			errs = append(errs, rc.Error)
		}
	}
	return errs
}

// Checker compares current repository heads with the recorded ones.
type Checker struct {
	WgDir   string
	Repos   map[string]string
	Fetcher HeadFetcher
	Now     func() time.Time
}

// NewChecker returns a checker for wgDir using the review config repos, or
// DefaultRepos when none is configured.
func NewChecker(wgDir string) (*Checker, error) {
	repos, err := LoadRepos(wgDir)
	if err != nil {
		return nil, err
	}
	return &Checker{WgDir: wgDir, Repos: repos, Fetcher: NewGitHubClient(), Now: time.Now}, nil
}

func (c *Checker) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// Check looks up every repository unless the previous check is younger than
// interval. A zero interval always checks. Lookup failures are recorded per
// repository; only a state write failure is returned as an error.
func (c *Checker) Check(ctx context.Context, interval time.Duration) (*Result, error) {
	now := c.now()
	st := loadState(c.WgDir)
	res := &Result{CheckedAt: now.Format(time.RFC3339), Updates: []types.RepoUpdate{}, Repos: []RepoCheck{}}

	if last, err := time.Parse(time.RFC3339, st.LastCheckedAt); err == nil && interval > 0 {
		if elapsed := now.Sub(last); elapsed < interval {
			res.Skipped = true
			res.ElapsedSeconds = int(elapsed.Seconds())
			return res, nil
		}
	}

	repos := c.Repos
	if repos == nil {
		repos = DefaultRepos
	}
	tools := make([]string, 0, len(repos))
	for tool := range repos {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	for _, tool := range tools {
		repo := repos[tool]
		check := RepoCheck{Tool: tool, Repo: repo}
		head, err := c.Fetcher.Head(ctx, repo)
		if err != nil {
			check.Error = err.Error()
			res.Repos = append(res.Repos, check)
			continue
		}
		prev := st.Repos[tool].SHA
		if prev != "" && prev != head.SHA {
			check.Changed = true
			res.Updates = append(res.Updates, types.RepoUpdate{
				Tool:        tool,
				Repo:        repo,
				PreviousSHA: prev,
				CurrentSHA:  head.SHA,
				CurrentDate: head.Date,
			})
		}
		st.Repos[tool] = repoState{Repo: repo, SHA: head.SHA, CommitDate: head.Date, SeenAt: res.CheckedAt}
		res.Repos = append(res.Repos, check)
	}

	st.LastCheckedAt = res.CheckedAt
	if err := saveState(c.WgDir, st); err != nil {
		return res, err
	}
	return res, nil
}

func statePath(wgDir string) string {
	return filepath.Join(wgDir, stateDir, stateFile)
}

// loadState reads the recorded heads. A missing or corrupt file starts over.
func loadState(wgDir string) state {
	st := state{Repos: map[string]repoState{}}
	data, err := os.ReadFile(statePath(wgDir)) // #nosec G304 -- path is inside the workgraph dir
	if err != nil {
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return state{Repos: map[string]repoState{}}
	}
	if st.Repos == nil {
		st.Repos = map[string]repoState{}
	}
	return st
}

func saveState(wgDir string, st state) error {
	path := statePath(wgDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create update state dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { // #nosec G306 -- state is not secret
		return fmt.Errorf("write update state: %w", err)
	}
	return nil
}

type reviewConfig struct {
	Repos      map[string]string `json:"repos"`
	ExtraRepos map[string]string `json:"extra_repos"`
}

// LoadRepos returns the repositories to watch. The optional review config
// replaces the defaults with "repos" or extends them with "extra_repos".
func LoadRepos(wgDir string) (map[string]string, error) {
	path := filepath.Join(wgDir, stateDir, reviewConfigFile)
	data, err := os.ReadFile(path) // #nosec G304 -- path is inside the workgraph dir
	if errors.Is(err, os.ErrNotExist) {
		return copyRepos(DefaultRepos, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read review config: %w", err)
	}
	var cfg reviewConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse review config %s: %w", path, err)
	}
	if cfg.Repos != nil {
		return copyRepos(cfg.Repos, nil), nil
	}
	return copyRepos(DefaultRepos, cfg.ExtraRepos), nil
}

func copyRepos(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for _, m := range []map[string]string{base, extra} {
		for k, v := range m {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}

// Summarize renders the operator-facing summary of r.
func Summarize(r *Result) string {
	if !r.HasUpdates() {
		return "No ecosystem updates detected."
	}
	lines := []string{"Speedrift ecosystem updates detected:"}
	for _, u := range r.Updates {
		lines = append(lines, fmt.Sprintf("- %s: %s -> %s", u.Tool, shortSHA(u.PreviousSHA), shortSHA(u.CurrentSHA)))
	}
	lines = append(lines, "Decision needed: should the model/toolchain self-update now?")
	return strings.Join(lines, "\n")
}

func shortSHA(sha string) string {
	if sha == "" {
		return "unknown"
	}
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
