package agent

import (
	"context"
	"time"

	"github.com/nozcat/adam/internal/logging"
	"github.com/nozcat/adam/internal/tracker"
)

// Locker provides per-issue mutual exclusion between agent processes. The
// label-based implementation is best-effort; a backend with real
// compare-and-set semantics can be swapped in behind this interface.
type Locker interface {
	// Lock attempts to claim the issue. A false return with nil error means
	// another agent holds it (or a race was detected and the claim was
	// retracted).
	Lock(ctx context.Context, issue *tracker.Issue) (bool, error)

	// Unlock releases this agent's claim. Idempotent: unlocking an issue
	// that is not locked by this agent is a no-op success.
	Unlock(ctx context.Context, issue *tracker.Issue) error
}

// LabelLocker implements Locker over the tracker's shared label store.
//
// This is optimistic locking, not an atomic compare-and-set: between the
// pre-check and the re-check there is a narrow window in which two agents can
// both believe they hold the lock. The settle delay lets eventually
// consistent label writes propagate before the re-check, which narrows the
// window but does not close it. Detected races are resolved by retracting
// the caller's own label.
type LabelLocker struct {
	tracker     tracker.Client
	identity    Identity
	settleDelay time.Duration
	logger      *logging.Logger
}

// NewLabelLocker creates a label-based locker.
func NewLabelLocker(tc tracker.Client, identity Identity, settleDelay time.Duration, logger *logging.Logger) *LabelLocker {
	return &LabelLocker{
		tracker:     tc,
		identity:    identity,
		settleDelay: settleDelay,
		logger:      logger,
	}
}

func (l *LabelLocker) Lock(ctx context.Context, issue *tracker.Issue) (bool, error) {
	labels, err := l.tracker.ListLabels(ctx, issue.ID)
	if err != nil {
		return false, err
	}
	for _, label := range labels {
		if IsLockLabel(label.Name) {
			l.logger.Iconf(logging.IconLock, "%s already locked by %s", issue.Identifier, label.Name)
			return false, nil
		}
	}

	own, err := l.tracker.FindOrCreateLabel(ctx, l.identity.LockLabel())
	if err != nil {
		return false, err
	}
	if err := l.tracker.AddLabel(ctx, issue.ID, own.ID); err != nil {
		return false, err
	}

	if err := l.settle(ctx); err != nil {
		// Shutting down mid-claim: retract rather than hold a stale lock.
		l.removeOwn(context.WithoutCancel(ctx), issue, own)
		return false, err
	}

	// Re-read to detect a concurrent claim that landed in the window.
	labels, err = l.tracker.ListLabels(ctx, issue.ID)
	if err != nil {
		l.removeOwn(ctx, issue, own)
		return false, err
	}
	for _, label := range labels {
		if IsLockLabel(label.Name) && !l.identity.OwnsLabel(label.Name) {
			l.logger.Iconf(logging.IconRace, "lock race on %s with %s, retracting", issue.Identifier, label.Name)
			l.removeOwn(ctx, issue, own)
			return false, nil
		}
	}

	l.logger.Iconf(logging.IconLock, "locked %s", issue.Identifier)
	return true, nil
}

func (l *LabelLocker) Unlock(ctx context.Context, issue *tracker.Issue) error {
	labels, err := l.tracker.ListLabels(ctx, issue.ID)
	if err != nil {
		return err
	}
	for _, label := range labels {
		// Only ever remove our own label, never another agent's.
		if l.identity.OwnsLabel(label.Name) {
			if err := l.tracker.RemoveLabel(ctx, issue.ID, label.ID); err != nil {
				return err
			}
			l.logger.Iconf(logging.IconUnlock, "unlocked %s", issue.Identifier)
			return nil
		}
	}
	return nil
}

func (l *LabelLocker) removeOwn(ctx context.Context, issue *tracker.Issue, own tracker.Label) {
	if err := l.tracker.RemoveLabel(ctx, issue.ID, own.ID); err != nil {
		l.logger.Warnf("failed to retract lock label on %s: %v", issue.Identifier, err)
	}
}

func (l *LabelLocker) settle(ctx context.Context) error {
	if l.settleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(l.settleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
