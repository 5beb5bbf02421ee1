package orchestrator

import (
	"context"
	"fmt"

	"github.com/nozcat/adam/internal/agent"
	"github.com/nozcat/adam/internal/claim"
	"github.com/nozcat/adam/internal/hosting"
	"github.com/nozcat/adam/internal/logging"
	"github.com/nozcat/adam/internal/tracker"
	"github.com/nozcat/adam/internal/workflow"
)

// RepoSyncer materializes working copies on disk.
type RepoSyncer interface {
	EnsureRepository(ctx context.Context, repo hosting.RepoRef) (string, bool)
	CheckoutBranch(ctx context.Context, dir, branch, base string) bool
}

// Orchestrator drives the full lifecycle of one issue at a time: claim it,
// prepare the working copy, implement or update it, and respond to review
// feedback. Issues are processed strictly sequentially.
type Orchestrator struct {
	claims     *claim.Manager
	tracker    tracker.Client
	locker     agent.Locker
	repos      RepoSyncer
	driver     *workflow.Driver
	reconciler *workflow.Reconciler
	threads    *workflow.ThreadProcessor
	base       string
	logger     *logging.Logger
}

// New wires an orchestrator from its collaborators.
func New(claims *claim.Manager, tc tracker.Client, locker agent.Locker, repos RepoSyncer, driver *workflow.Driver, reconciler *workflow.Reconciler, threads *workflow.ThreadProcessor, base string, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		claims:     claims,
		tracker:    tc,
		locker:     locker,
		repos:      repos,
		driver:     driver,
		reconciler: reconciler,
		threads:    threads,
		base:       base,
		logger:     logger,
	}
}

// RunCycle polls for claimable issues and processes them in tracker order.
// It returns after the first issue that produced work, so the caller can
// re-poll immediately with fresh state instead of acting on a stale list.
func (o *Orchestrator) RunCycle(ctx context.Context) (bool, error) {
	candidates, err := o.claims.PollClaimable(ctx)
	if err != nil {
		return false, fmt.Errorf("poll issues: %w", err)
	}

	o.logger.Iconf(logging.IconPoll, "%d candidate issue(s)", len(candidates))

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		worked, err := o.ProcessCandidate(ctx, cand)
		if err != nil {
			o.logger.Errorf("processing %s: %v", cand.Issue.Identifier, err)
			continue
		}
		if worked {
			return true, nil
		}
	}
	return false, nil
}

// RunIssue processes a single issue by ID, bypassing the assignment poll.
// Used by the one-shot command.
func (o *Orchestrator) RunIssue(ctx context.Context, issueID string) error {
	issue, err := o.tracker.GetIssue(ctx, issueID)
	if err != nil {
		return fmt.Errorf("fetch issue %s: %w", issueID, err)
	}
	if issue.State.Terminal() {
		return fmt.Errorf("issue %s is %s, nothing to do", issue.Identifier, issue.State)
	}

	cand := &claim.Candidate{Issue: issue, Repo: claim.ResolveRepository(issue)}
	if _, err := o.ProcessCandidate(ctx, cand); err != nil {
		return err
	}
	return nil
}

// ProcessCandidate runs one issue through the state machine. The returned
// bool reports whether any actual work happened (implementation, PR
// creation, or feedback handling) as opposed to a skip.
func (o *Orchestrator) ProcessCandidate(ctx context.Context, cand *claim.Candidate) (worked bool, err error) {
	issue := cand.Issue

	if cand.Repo == nil {
		o.logger.Warnf("skipping %s: no repo: label on issue or project", issue.Identifier)
		return false, nil
	}

	locked, err := o.locker.Lock(ctx, issue)
	if err != nil {
		return false, fmt.Errorf("lock: %w", err)
	}
	if !locked {
		return false, nil
	}
	defer func() {
		// Unlock even when shutting down, so no stale lock survives.
		if uerr := o.locker.Unlock(context.WithoutCancel(ctx), issue); uerr != nil {
			o.logger.Errorf("unlock %s: %v", issue.Identifier, uerr)
		}
	}()

	dir, ok := o.repos.EnsureRepository(ctx, *cand.Repo)
	if !ok {
		return false, fmt.Errorf("prepare repository %s", cand.Repo.FullName())
	}
	branch := issue.BranchName()
	if !o.repos.CheckoutBranch(ctx, dir, branch, o.base) {
		return false, fmt.Errorf("checkout %s in %s", branch, dir)
	}

	status, err := o.reconciler.FindExistingPR(ctx, *cand.Repo, branch)
	if err != nil {
		return false, fmt.Errorf("look up PR for %s: %w", branch, err)
	}

	switch {
	case status != nil && status.Merged:
		// The PR merged but the issue never left a workable state. Leave the
		// state alone for a human to reconcile.
		o.logger.Iconf(logging.IconRace, "%s already has a merged PR (%s), skipping", issue.Identifier, status.MergedURL)
		return false, nil

	case status != nil:
		return o.threads.ProcessFeedback(ctx, *cand.Repo, status.PR, issue, dir)

	default:
		return o.implementAndOpen(ctx, cand, dir)
	}
}

// implementAndOpen runs the first-pass implementation for an issue that has
// no PR yet and opens one.
func (o *Orchestrator) implementAndOpen(ctx context.Context, cand *claim.Candidate, dir string) (bool, error) {
	issue := cand.Issue

	if issue.State == tracker.StateTodo {
		if err := o.tracker.UpdateIssueState(ctx, issue.ID, tracker.StateInProgress); err != nil {
			return false, fmt.Errorf("move to In Progress: %w", err)
		}
	}

	// The lock settles after the state move; re-read in case the issue was
	// closed or reassigned in between.
	fresh, err := o.tracker.GetIssue(ctx, issue.ID)
	if err != nil {
		return false, fmt.Errorf("re-fetch issue: %w", err)
	}
	if fresh.State.Terminal() {
		o.logger.Iconf(logging.IconRace, "%s moved to %s before implementation, skipping", issue.Identifier, fresh.State)
		return false, nil
	}

	if _, err := o.driver.ImplementIssue(ctx, issue, dir, o.base); err != nil {
		return false, fmt.Errorf("implement: %w", err)
	}

	fresh, err = o.tracker.GetIssue(ctx, issue.ID)
	if err != nil {
		return false, fmt.Errorf("re-fetch issue after implementation: %w", err)
	}
	if fresh.State.Terminal() {
		// Closed mid-implementation. The commits stay on the local branch but
		// no PR is opened for a dead issue.
		o.logger.Iconf(logging.IconRace, "%s moved to %s during implementation, not opening a PR", issue.Identifier, fresh.State)
		return true, nil
	}

	pr := o.reconciler.CreatePR(ctx, *cand.Repo, issue, dir)
	if pr == nil {
		return false, fmt.Errorf("open PR for %s", issue.Identifier)
	}
	o.logger.Iconf(logging.IconDone, "%s implemented, PR #%d open for review", issue.Identifier, pr.Number)
	return true, nil
}
