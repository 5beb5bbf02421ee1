package agent

import (
	"context"
	"io"
	"testing"

	"github.com/nozcat/adam/internal/logging"
	"github.com/nozcat/adam/internal/tracker"
)

func newTestLocker(tc tracker.Client, id Identity) *LabelLocker {
	return NewLabelLocker(tc, id, 0, logging.New(io.Discard))
}

func TestLockUnlock(t *testing.T) {
	tc := tracker.NewMockClient()
	tc.AddIssue(&tracker.Issue{ID: "iss-1", Identifier: "ABC-1", State: tracker.StateTodo})

	locker := newTestLocker(tc, Identity("host-1-1-aaaa"))
	ctx := context.Background()
	issue := &tracker.Issue{ID: "iss-1", Identifier: "ABC-1"}

	got, err := locker.Lock(ctx, issue)
	if err != nil {
		t.Fatalf("Lock() error: %v", err)
	}
	if !got {
		t.Fatal("Lock() = false, want true on uncontended issue")
	}

	labels, _ := tc.ListLabels(ctx, "iss-1")
	if len(labels) != 1 || !IsLockLabel(labels[0].Name) {
		t.Fatalf("expected one lock label after Lock, got %v", labels)
	}

	if err := locker.Unlock(ctx, issue); err != nil {
		t.Fatalf("Unlock() error: %v", err)
	}
	labels, _ = tc.ListLabels(ctx, "iss-1")
	if len(labels) != 0 {
		t.Errorf("expected no labels after Unlock, got %v", labels)
	}

	// A second unlock is a no-op.
	if err := locker.Unlock(ctx, issue); err != nil {
		t.Errorf("repeated Unlock() error: %v", err)
	}
}

func TestLockRefusedWhenHeld(t *testing.T) {
	tc := tracker.NewMockClient()
	tc.AddIssue(&tracker.Issue{ID: "iss-1", Identifier: "ABC-1", State: tracker.StateTodo})
	ctx := context.Background()
	issue := &tracker.Issue{ID: "iss-1", Identifier: "ABC-1"}

	first := newTestLocker(tc, Identity("host-1-1-aaaa"))
	second := newTestLocker(tc, Identity("host-2-2-bbbb"))

	if got, _ := first.Lock(ctx, issue); !got {
		t.Fatal("first Lock() = false, want true")
	}
	if got, _ := second.Lock(ctx, issue); got {
		t.Error("second Lock() = true, want false while first agent holds the lock")
	}

	// The loser must not have left its own label behind.
	labels, _ := tc.ListLabels(ctx, "iss-1")
	if len(labels) != 1 {
		t.Errorf("expected exactly the holder's label, got %v", labels)
	}
}

func TestUnlockIdempotent(t *testing.T) {
	tc := tracker.NewMockClient()
	tc.AddIssue(&tracker.Issue{ID: "iss-1", Identifier: "ABC-1", State: tracker.StateTodo})

	locker := newTestLocker(tc, Identity("host-1-1-aaaa"))
	issue := &tracker.Issue{ID: "iss-1", Identifier: "ABC-1"}

	// Unlocking an issue never locked is a no-op success.
	if err := locker.Unlock(context.Background(), issue); err != nil {
		t.Errorf("Unlock() on unlocked issue: %v", err)
	}
}

func TestUnlockLeavesOtherAgentsLabel(t *testing.T) {
	tc := tracker.NewMockClient()
	tc.AddIssue(&tracker.Issue{ID: "iss-1", Identifier: "ABC-1", State: tracker.StateTodo})
	ctx := context.Background()
	issue := &tracker.Issue{ID: "iss-1", Identifier: "ABC-1"}

	holder := newTestLocker(tc, Identity("host-1-1-aaaa"))
	if got, _ := holder.Lock(ctx, issue); !got {
		t.Fatal("Lock() = false, want true")
	}

	other := newTestLocker(tc, Identity("host-2-2-bbbb"))
	if err := other.Unlock(ctx, issue); err != nil {
		t.Fatalf("Unlock() error: %v", err)
	}

	labels, _ := tc.ListLabels(ctx, "iss-1")
	if len(labels) != 1 {
		t.Errorf("expected holder's label to survive another agent's unlock, got %v", labels)
	}
}

func TestLockRaceRetraction(t *testing.T) {
	tc := tracker.NewMockClient()
	tc.AddIssue(&tracker.Issue{ID: "iss-1", Identifier: "ABC-1", State: tracker.StateTodo})
	ctx := context.Background()
	issue := &tracker.Issue{ID: "iss-1", Identifier: "ABC-1"}

	us := Identity("host-1-1-aaaa")
	rival := Identity("host-2-2-bbbb")

	// Slip the rival's label in right after ours lands, simulating a
	// concurrent claim in the pre-check/re-check window.
	injected := false
	tc.OnAddLabel = func(issueID string, label tracker.Label) {
		if injected || !us.OwnsLabel(label.Name) {
			return
		}
		injected = true
		rivalLabel, err := tc.FindOrCreateLabel(ctx, rival.LockLabel())
		if err != nil {
			t.Fatalf("create rival label: %v", err)
		}
		if err := tc.AddLabel(ctx, issueID, rivalLabel.ID); err != nil {
			t.Fatalf("add rival label: %v", err)
		}
	}

	locker := newTestLocker(tc, us)
	got, err := locker.Lock(ctx, issue)
	if err != nil {
		t.Fatalf("Lock() error: %v", err)
	}
	if got {
		t.Error("Lock() = true, want false when a rival claim landed in the window")
	}

	// Our label must be retracted; the rival's stays.
	labels, _ := tc.ListLabels(ctx, "iss-1")
	if len(labels) != 1 || !rival.OwnsLabel(labels[0].Name) {
		t.Errorf("expected only the rival's label after retraction, got %v", labels)
	}
}
