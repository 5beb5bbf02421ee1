package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/nozcat/adam/internal/claude"
	"github.com/nozcat/adam/internal/hosting"
	"github.com/nozcat/adam/internal/logging"
	"github.com/nozcat/adam/internal/tracker"
)

// PRStatus is the result of looking up the PR for a branch. Exactly one of
// the cases holds: PR is the open pull request, Merged signals the
// race-condition abort path (the branch's PR already merged while the
// tracker still shows the issue as workable), or both are zero (no PR yet).
type PRStatus struct {
	PR        *hosting.PullRequest
	Merged    bool
	MergedURL string
}

// Reconciler finds, creates and updates the pull request for an issue's
// branch.
type Reconciler struct {
	hosting hosting.Client
	git     Git
	driver  *Driver
	base    string
	logger  *logging.Logger
}

// NewReconciler creates a PR reconciler targeting the given base branch.
func NewReconciler(hc hosting.Client, git Git, driver *Driver, base string, logger *logging.Logger) *Reconciler {
	return &Reconciler{
		hosting: hc,
		git:     git,
		driver:  driver,
		base:    base,
		logger:  logger,
	}
}

// FindExistingPR looks for a PR with the given head branch: open PRs first,
// then closed ones, where a merged PR is the explicit race-condition signal.
// Returns nil when no PR exists.
func (r *Reconciler) FindExistingPR(ctx context.Context, repo hosting.RepoRef, branch string) (*PRStatus, error) {
	open, err := r.hosting.ListPullRequests(ctx, repo, branch, "open")
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return &PRStatus{PR: open[0]}, nil
	}

	closed, err := r.hosting.ListPullRequests(ctx, repo, branch, "closed")
	if err != nil {
		return nil, err
	}
	for _, pr := range closed {
		if pr.Merged {
			return &PRStatus{Merged: true, MergedURL: pr.HTMLURL}, nil
		}
	}
	return nil, nil
}

// CreatePR pushes the branch and opens a pull request for the issue.
// Returns nil on failure; at most one PR is ever created per branch because
// callers reach here only after FindExistingPR returned nothing.
func (r *Reconciler) CreatePR(ctx context.Context, repo hosting.RepoRef, issue *tracker.Issue, dir string) *hosting.PullRequest {
	branch := issue.BranchName()

	if !r.PushBranchAndMergeIfNecessary(ctx, dir, branch, issue) {
		return nil
	}

	title := fmt.Sprintf("%s: %s", issue.Identifier, issue.Title)
	body := r.describeChanges(ctx, issue, dir)

	pr, err := r.hosting.CreatePullRequest(ctx, repo, branch, r.base, title, body)
	if err != nil {
		r.logger.Errorf("create PR for %s: %v", issue.Identifier, err)
		return nil
	}

	r.logger.Iconf(logging.IconPR, "created PR #%d for %s: %s", pr.Number, issue.Identifier, pr.HTMLURL)
	return pr
}

// describeChanges asks the assistant to summarize the commit range against
// the base branch, falling back to a templated description when there are no
// commits or the assistant produces nothing usable.
func (r *Reconciler) describeChanges(ctx context.Context, issue *tracker.Issue, dir string) string {
	fallback := fmt.Sprintf("Implements %s: %s", issue.Identifier, issue.Title)

	subjects, err := r.git.CommitSubjects(ctx, dir, "origin/"+r.base+"..HEAD")
	if err != nil || len(subjects) == 0 {
		return fallback
	}

	prompt := fmt.Sprintf(claude.Prompts.SummarizeChanges, r.base)
	out, err := r.driver.RunAssistant(ctx, prompt, dir)
	if err != nil || strings.TrimSpace(out) == "" {
		return fallback
	}
	return strings.TrimSpace(out)
}

// UpdateExistingPR brings the PR's branch up to date with the base branch,
// pushing only when a merge actually happened.
func (r *Reconciler) UpdateExistingPR(ctx context.Context, dir string, issue *tracker.Issue) bool {
	merged, ok := r.mergeBaseIfNecessary(ctx, dir, issue)
	if !ok {
		return false
	}
	if !merged {
		return true
	}
	if err := r.git.Push(ctx, dir, issue.BranchName()); err != nil {
		r.logger.Errorf("push after base merge: %v", err)
		return false
	}
	return true
}

// PushBranchAndMergeIfNecessary pushes optimistically; on failure it merges
// the base branch in and retries the push exactly once. The optimistic first
// push avoids a fetch/merge round-trip in the common case.
func (r *Reconciler) PushBranchAndMergeIfNecessary(ctx context.Context, dir, branch string, issue *tracker.Issue) bool {
	err := r.git.Push(ctx, dir, branch)
	if err == nil {
		return true
	}
	r.logger.Warnf("push %s rejected, merging base and retrying: %v", branch, err)

	if _, ok := r.mergeBaseIfNecessary(ctx, dir, issue); !ok {
		return false
	}

	if err := r.git.Push(ctx, dir, branch); err != nil {
		r.logger.Errorf("push %s failed after merge: %v", branch, err)
		return false
	}
	return true
}

// mergeBaseIfNecessary merges origin/<base> into the current branch via the
// assistant when the base has moved ahead. Returns (merged, ok): merged is
// false when the branch was already up to date, so callers can skip spurious
// pushes; ok is false on any failure, including surviving conflict markers.
func (r *Reconciler) mergeBaseIfNecessary(ctx context.Context, dir string, issue *tracker.Issue) (bool, bool) {
	if err := r.git.Fetch(ctx, dir, r.base); err != nil {
		r.logger.Errorf("fetch %s: %v", r.base, err)
		return false, false
	}

	ahead, err := r.git.CommitsAhead(ctx, dir, "HEAD", "origin/"+r.base)
	if err != nil {
		r.logger.Errorf("count commits behind %s: %v", r.base, err)
		return false, false
	}
	if ahead == 0 {
		return false, true
	}

	r.logger.Infof("%s is %d commits behind %s, merging", issue.BranchName(), ahead, r.base)

	prompt := fmt.Sprintf(claude.Prompts.MergeBaseBranch,
		issue.BranchName(), r.base, r.base, r.base, issue.Identifier, issue.Title)
	if _, err := r.driver.RunAssistant(ctx, prompt, dir); err != nil {
		r.logger.Errorf("assistant merge failed: %v", err)
		return false, false
	}

	conflicted, err := r.git.HasConflictMarkers(ctx, dir)
	if err != nil {
		r.logger.Errorf("conflict marker scan: %v", err)
		return false, false
	}
	if conflicted {
		r.logger.Errorf("conflict markers remain after assistant merge of %s", issue.BranchName())
		return false, false
	}

	// The merge only counts if the branch actually caught up.
	ahead, err = r.git.CommitsAhead(ctx, dir, "HEAD", "origin/"+r.base)
	if err != nil || ahead > 0 {
		r.logger.Errorf("branch still behind %s after assistant merge", r.base)
		return false, false
	}
	return true, true
}
