package claim

import (
	"context"

	"github.com/nozcat/adam/internal/agent"
	"github.com/nozcat/adam/internal/hosting"
	"github.com/nozcat/adam/internal/logging"
	"github.com/nozcat/adam/internal/tracker"
)

// Candidate is a workable issue annotated with its resolved repository. Repo
// is nil when no repo label matched; such candidates are skipped later with
// a warning rather than dropped here, so the skip is visible every cycle.
type Candidate struct {
	Issue *tracker.Issue
	Repo  *hosting.RepoRef
}

// Manager computes the set of issues this agent may claim.
type Manager struct {
	tracker  tracker.Client
	identity agent.Identity
	logger   *logging.Logger
}

// NewManager creates a claim manager.
func NewManager(tc tracker.Client, identity agent.Identity, logger *logging.Logger) *Manager {
	return &Manager{tracker: tc, identity: identity, logger: logger}
}

// PollClaimable lists assigned issues in workable states that are unblocked
// and not locked by another agent, each annotated with its repository.
func (m *Manager) PollClaimable(ctx context.Context) ([]*Candidate, error) {
	issues, err := m.tracker.ListAssignedIssues(ctx, tracker.WorkableStates)
	if err != nil {
		return nil, err
	}

	var candidates []*Candidate
	for _, issue := range issues {
		if m.isBlocked(ctx, issue) {
			continue
		}
		if lockedByOther(issue, m.identity) {
			m.logger.Iconf(logging.IconLock, "skipping %s: locked by another agent", issue.Identifier)
			continue
		}
		candidates = append(candidates, &Candidate{
			Issue: issue,
			Repo:  ResolveRepository(issue),
		})
	}
	return candidates, nil
}

// isBlocked resolves the issue's inbound "blocks" relations one level: any
// blocker not in Done excludes the candidate. A blocker that cannot be
// fetched is treated as not blocking (fail-open) and logged.
func (m *Manager) isBlocked(ctx context.Context, issue *tracker.Issue) bool {
	for _, blockerID := range issue.BlockedBy {
		blocker, err := m.tracker.GetIssue(ctx, blockerID)
		if err != nil {
			m.logger.Warnf("cannot resolve blocker %s of %s, assuming unblocked: %v", blockerID, issue.Identifier, err)
			continue
		}
		if blocker.State != tracker.StateDone {
			m.logger.Infof("skipping %s: blocked by %s (%s)", issue.Identifier, blocker.Identifier, blocker.State)
			return true
		}
	}
	return false
}

// ResolveRepository finds the owning repository from "repo:owner/name"
// labels. An issue-level label wins over a project label. Nil when the issue
// has no repository label at all.
func ResolveRepository(issue *tracker.Issue) *hosting.RepoRef {
	for _, label := range issue.Labels {
		if repo, ok := hosting.ParseRepoLabel(label.Name); ok {
			return &repo
		}
	}
	for _, label := range issue.ProjectLabels {
		if repo, ok := hosting.ParseRepoLabel(label.Name); ok {
			return &repo
		}
	}
	return nil
}

// lockedByOther reports whether the issue carries a lock label from a
// different agent.
func lockedByOther(issue *tracker.Issue, id agent.Identity) bool {
	for _, label := range issue.Labels {
		if agent.IsLockLabel(label.Name) && !id.OwnsLabel(label.Name) {
			return true
		}
	}
	return false
}
