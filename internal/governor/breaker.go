package governor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/speedrift/driftdriver/internal/debug"
	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/types"
)

// ErrIdempotencyRace is returned when a create reports the derived id as taken
// but the task still cannot be read back.
var ErrIdempotencyRace = errors.New("idempotency race")

const (
	breakerPrefix      = "drift-breaker-"
	updateFollowPrefix = "drift-self-update-"
)

// BreakerID derives the escalation task id for taskID.
func BreakerID(taskID string) string { return breakerPrefix + taskID }

// UpdateFollowupID derives the self-update decision task id for taskID.
func UpdateFollowupID(taskID string) string { return updateFollowPrefix + taskID }

// Breaker creates deterministic escalation tasks at most once per origin.
type Breaker struct {
	Store storage.Store
	// WgDir receives event log entries; empty disables them.
	WgDir string
	Now   func() time.Time
	// RetryWait is the pause before re-reading after a lost create race.
	RetryWait time.Duration
}

// NewBreaker returns a breaker writing through store.
func NewBreaker(store storage.Store, wgDir string) *Breaker {
	return &Breaker{
		Store:     store,
		WgDir:     wgDir,
		Now:       time.Now,
		RetryWait: 200 * time.Millisecond,
	}
}

func (b *Breaker) timestamp() string {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// Ensure returns the breaker task for taskID, creating it when absent.
func (b *Breaker) Ensure(ctx context.Context, taskID string) (string, error) {
	desc := fmt.Sprintf(`Circuit-breaker escalation for repeated drift.

Origin task: %s
Triggered at: %s

Run a bounded recovery pass:
- review open drift follow-ups
- tighten wg-contract touch scope
- close or merge stale remediation tasks
- re-run `+"`./.workgraph/drifts check --task %s --write-log --create-followups`"+`
`, taskID, b.timestamp(), taskID)

	return b.ensure(ctx, &types.NewTask{
		ID:          BreakerID(taskID),
		Title:       "breaker: " + taskID,
		Description: desc,
		BlockedBy:   []string{taskID},
		Tags:        []string{"drift", "breaker"},
	})
}

// EnsureUpdateFollowup returns the self-update decision task for taskID,
// creating it with summary when absent.
func (b *Breaker) EnsureUpdateFollowup(ctx context.Context, taskID, summary string) (string, error) {
	desc := fmt.Sprintf(`Ecosystem updates were detected during drift preflight.

Origin task: %s
Detected at: %s

Decision needed: should the toolchain self-update now?

Expected action:
- review new commits in ecosystem repos
- decide update now vs defer and log rationale
- if updating, rerun `+"`./.workgraph/drifts check --task %s --write-log --create-followups`"+`

Preflight summary:
%s
`, taskID, b.timestamp(), taskID, summary)

	return b.ensure(ctx, &types.NewTask{
		ID:          UpdateFollowupID(taskID),
		Title:       "self-update decision: " + taskID,
		Description: desc,
		BlockedBy:   []string{taskID},
		Tags:        []string{"drift", "updates"},
	})
}

func (b *Breaker) ensure(ctx context.Context, nt *types.NewTask) (string, error) {
	_, err := b.Store.ShowTask(ctx, nt.ID)
	if err == nil {
		return nt.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		debug.Logf("breaker: lookup of %s failed, creating: %v\n", nt.ID, err)
	}

	_, err = b.Store.CreateTask(ctx, nt)
	if err == nil {
		debug.LogEvent(b.WgDir, "task.created", nt.ID, "blocked_by="+nt.BlockedBy[0])
		return nt.ID, nil
	}
	if !errors.Is(err, storage.ErrAlreadyExists) {
		return "", fmt.Errorf("create %s: %w", nt.ID, err)
	}

	// Another run created it between our lookup and create.
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(b.RetryWait), 1)
	err = backoff.Retry(func() error {
		_, showErr := b.Store.ShowTask(ctx, nt.ID)
		return showErr
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return "", fmt.Errorf("%w: %s exists but cannot be read: %v", ErrIdempotencyRace, nt.ID, err)
	}
	return nt.ID, nil
}
