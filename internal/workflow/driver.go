package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/nozcat/adam/internal/claude"
	"github.com/nozcat/adam/internal/logging"
	"github.com/nozcat/adam/internal/retry"
	"github.com/nozcat/adam/internal/tracker"
)

// Git is the subset of git operations the workflow needs. gitrepo.Manager
// implements it; tests substitute a fake.
type Git interface {
	DirtyFiles(ctx context.Context, dir string) ([]string, error)
	Push(ctx context.Context, dir, branch string) error
	Fetch(ctx context.Context, dir, ref string) error
	CommitsAhead(ctx context.Context, dir, local, upstream string) (int, error)
	HasConflictMarkers(ctx context.Context, dir string) (bool, error)
	CommitSubjects(ctx context.Context, dir, revRange string) ([]string, error)
}

// maxCommitAttempts bounds the commit-enforcement retry loop.
const maxCommitAttempts = 3

// Driver turns an issue into assistant work and verifies commits landed.
type Driver struct {
	runner    claude.Runner
	git       Git
	retryOpts retry.Options
	logger    *logging.Logger
}

// NewDriver creates a work driver.
func NewDriver(runner claude.Runner, git Git, retryOpts retry.Options, logger *logging.Logger) *Driver {
	retryOpts.Classifier = retry.ClassifyAssistant
	return &Driver{
		runner:    runner,
		git:       git,
		retryOpts: retryOpts,
		logger:    logger,
	}
}

// RunAssistant invokes the coding assistant, retrying transient and
// rate-limit failures.
func (d *Driver) RunAssistant(ctx context.Context, prompt, dir string) (string, error) {
	return retry.DoWithResult(ctx, d.retryOpts, func() (string, error) {
		return d.runner.Run(ctx, prompt, dir)
	})
}

// ImplementIssue asks the assistant to implement the issue in dir and
// enforces that the result is committed. The returned text is the
// assistant's summary.
func (d *Driver) ImplementIssue(ctx context.Context, issue *tracker.Issue, dir, base string) (string, error) {
	d.logger.Iconf(logging.IconClaude, "implementing %s: %s", issue.Identifier, issue.Title)

	prompt := fmt.Sprintf(claude.Prompts.ImplementIssue,
		issue.Identifier, issue.Title, issue.Description,
		issue.BranchName(), base, issue.Identifier)

	out, err := d.RunAssistant(ctx, prompt, dir)
	if err != nil {
		return "", err
	}

	if !d.EnsureChangesCommitted(ctx, dir) {
		return out, fmt.Errorf("assistant left uncommitted changes after %d attempts", maxCommitAttempts)
	}
	return out, nil
}

// EnsureChangesCommitted verifies the working tree is clean, re-invoking the
// assistant with the dirty file list up to maxCommitAttempts times. Reports
// false when the tree is still dirty; nothing is rolled back — next cycle's
// checkout hard-resets to the last pushed state anyway.
func (d *Driver) EnsureChangesCommitted(ctx context.Context, dir string) bool {
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		files, err := d.git.DirtyFiles(ctx, dir)
		if err != nil {
			d.logger.Errorf("cannot inspect working tree: %v", err)
			return false
		}
		if len(files) == 0 {
			return true
		}

		d.logger.Warnf("uncommitted changes remain (attempt %d/%d): %s",
			attempt, maxCommitAttempts, strings.Join(files, ", "))

		prompt := fmt.Sprintf(claude.Prompts.CommitChanges, "- "+strings.Join(files, "\n- "))
		if _, err := d.RunAssistant(ctx, prompt, dir); err != nil {
			d.logger.Errorf("commit enforcement run failed: %v", err)
		}
	}

	files, err := d.git.DirtyFiles(ctx, dir)
	if err == nil && len(files) == 0 {
		return true
	}
	d.logger.Errorf("working tree still dirty after %d commit attempts", maxCommitAttempts)
	return false
}
