package updates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrift/driftdriver/internal/types"
)

type fakeFetcher struct {
	heads map[string]string
	errs  map[string]error
	calls int
}

func (f *fakeFetcher) Head(_ context.Context, repo string) (Head, error) {
	f.calls++
	if err := f.errs[repo]; err != nil {
		return Head{}, err
	}
	return Head{SHA: f.heads[repo], Date: "2026-01-01T00:00:00Z"}, nil
}

func newTestChecker(t *testing.T, f *fakeFetcher, now *time.Time) *Checker {
	t.Helper()
	return &Checker{
		WgDir:   t.TempDir(),
		Repos:   map[string]string{"coredrift": "o/coredrift", "specdrift": "o/specdrift"},
		Fetcher: f,
		Now:     func() time.Time { return *now },
	}
}

func TestCheckDetectsMovedHeads(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{heads: map[string]string{"o/coredrift": "aaaaaaaa1", "o/specdrift": "bbbbbbbb1"}}
	c := newTestChecker(t, f, &now)
	ctx := context.Background()

	first, err := c.Check(ctx, 0)
	require.NoError(t, err)
	assert.False(t, first.HasUpdates(), "first sighting is a baseline")
	assert.Len(t, first.Repos, 2)

	f.heads["o/coredrift"] = "cccccccc2"
	now = now.Add(time.Minute)
	second, err := c.Check(ctx, 0)
	require.NoError(t, err)
	require.True(t, second.HasUpdates())
	assert.Equal(t, []types.RepoUpdate{{
		Tool:        "coredrift",
		Repo:        "o/coredrift",
		PreviousSHA: "aaaaaaaa1",
		CurrentSHA:  "cccccccc2",
		CurrentDate: "2026-01-01T00:00:00Z",
	}}, second.Updates)
	assert.Equal(t, "coredrift", second.Repos[0].Tool)
	assert.True(t, second.Repos[0].Changed)
	assert.False(t, second.Repos[1].Changed)

	third, err := c.Check(ctx, 0)
	require.NoError(t, err)
	assert.False(t, third.HasUpdates())
}

func TestCheckHonoursInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{heads: map[string]string{}}
	c := newTestChecker(t, f, &now)
	ctx := context.Background()

	_, err := c.Check(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)

	now = now.Add(10 * time.Minute)
	res, err := c.Check(ctx, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 600, res.ElapsedSeconds)
	assert.Equal(t, 2, f.calls)

	now = now.Add(time.Hour)
	res, err = c.Check(ctx, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 4, f.calls)
}

func TestCheckRecordsLookupErrors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{
		heads: map[string]string{"o/coredrift": "aaaaaaa"},
		errs:  map[string]error{"o/specdrift": errors.New("o/specdrift: HTTP 500")},
	}
	c := newTestChecker(t, f, &now)

	res, err := c.Check(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"o/specdrift: HTTP 500"}, res.Errors())
	assert.False(t, res.HasUpdates())
}

func TestLoadStateResetsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, stateDir), 0o755))
	require.NoError(t, os.WriteFile(statePath(dir), []byte("{not json"), 0o644))

	st := loadState(dir)
	assert.Empty(t, st.LastCheckedAt)
	assert.NotNil(t, st.Repos)
}

func TestLoadRepos(t *testing.T) {
	write := func(t *testing.T, body string) string {
		t.Helper()
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, stateDir), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, stateDir, reviewConfigFile), []byte(body), 0o644))
		return dir
	}

	t.Run("defaults", func(t *testing.T) {
		repos, err := LoadRepos(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, DefaultRepos, repos)
	})

	t.Run("extra repos extend defaults", func(t *testing.T) {
		repos, err := LoadRepos(write(t, `{"extra_repos":{"mytool":"me/mytool"," ":"x"}}`))
		require.NoError(t, err)
		assert.Len(t, repos, len(DefaultRepos)+1)
		assert.Equal(t, "me/mytool", repos["mytool"])
	})

	t.Run("repos replace defaults", func(t *testing.T) {
		repos, err := LoadRepos(write(t, `{"repos":{"only":"me/only"}}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"only": "me/only"}, repos)
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := LoadRepos(write(t, `[`))
		assert.ErrorContains(t, err, "could not parse review config")
	})
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "No ecosystem updates detected.", Summarize(&Result{}))

	got := Summarize(&Result{Updates: []types.RepoUpdate{
		{Tool: "coredrift", PreviousSHA: "1234567890", CurrentSHA: "abcdef0123"},
		{Tool: "specdrift", CurrentSHA: "fed"},
	}})
	assert.Equal(t, "Speedrift ecosystem updates detected:\n"+
		"- coredrift: 1234567 -> abcdef0\n"+
		"- specdrift: unknown -> fed\n"+
		"Decision needed: should the model/toolchain self-update now?", got)
}
