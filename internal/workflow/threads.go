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

const (
	// processingReaction marks a comment as handled so re-polls skip it.
	processingReaction = "eyes"
	// approvalReaction lets the trusted reviewer endorse someone else's
	// comment as worth responding to.
	approvalReaction = "+1"
)

// ThreadProcessor turns review feedback on a PR into assistant-driven code
// changes and replies.
type ThreadProcessor struct {
	hosting         hosting.Client
	driver          *Driver
	reconciler      *Reconciler
	trustedReviewer string
	selfLogin       string
	logger          *logging.Logger
}

// NewThreadProcessor creates a feedback processor. trustedReviewer is the
// only login whose comments (or +1-endorsed comments) are acted on;
// selfLogin is the agent's own account, used to recognize its reactions.
func NewThreadProcessor(hc hosting.Client, driver *Driver, reconciler *Reconciler, trustedReviewer, selfLogin string, logger *logging.Logger) *ThreadProcessor {
	return &ThreadProcessor{
		hosting:         hc,
		driver:          driver,
		reconciler:      reconciler,
		trustedReviewer: trustedReviewer,
		selfLogin:       selfLogin,
		logger:          logger,
	}
}

// ProcessFeedback fetches all comments on the PR, selects the threads that
// need a response and processes each one sequentially. Returns true when at
// least one thread was acted on.
func (t *ThreadProcessor) ProcessFeedback(ctx context.Context, repo hosting.RepoRef, pr *hosting.PullRequest, issue *tracker.Issue, dir string) (bool, error) {
	issueComments, err := t.hosting.ListIssueComments(ctx, repo, pr.Number)
	if err != nil {
		return false, fmt.Errorf("list issue comments: %w", err)
	}
	reviewComments, err := t.hosting.ListReviewComments(ctx, repo, pr.Number)
	if err != nil {
		return false, fmt.Errorf("list review comments: %w", err)
	}

	all := make([]*hosting.Comment, 0, len(issueComments)+len(reviewComments))
	all = append(all, issueComments...)
	all = append(all, reviewComments...)

	leaves, err := t.FilterRelevantComments(ctx, repo, all)
	if err != nil {
		return false, err
	}
	if len(leaves) == 0 {
		return false, nil
	}

	worked := false
	for _, leaf := range leaves {
		if err := t.ProcessThread(ctx, repo, pr, issue, dir, leaf, all); err != nil {
			t.logger.Errorf("process thread ending at comment %d: %v", leaf.ID, err)
			continue
		}
		worked = true
	}
	return worked, nil
}

// FilterRelevantComments returns the leaf comments that require a response:
// no replies yet, written by the trusted reviewer or endorsed by them with a
// +1 reaction, and not already marked with the agent's processing reaction.
func (t *ThreadProcessor) FilterRelevantComments(ctx context.Context, repo hosting.RepoRef, all []*hosting.Comment) ([]*hosting.Comment, error) {
	hasReply := make(map[int64]bool)
	for _, c := range all {
		if c.InReplyTo != 0 {
			hasReply[c.InReplyTo] = true
		}
	}

	var relevant []*hosting.Comment
	for _, c := range all {
		if hasReply[c.ID] {
			continue
		}

		ok, processed, err := t.classify(ctx, repo, c)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if processed {
			// The reaction went up before the reply landed, so a crash in
			// between leaves the thread unanswered. Surface it rather than
			// risk double-committing the same feedback.
			t.logger.Warnf("comment %d already marked as processing, skipping (may need manual follow-up)", c.ID)
			continue
		}
		relevant = append(relevant, c)
	}
	return relevant, nil
}

// classify decides whether a leaf comment needs a response and whether the
// agent already reacted to it.
func (t *ThreadProcessor) classify(ctx context.Context, repo hosting.RepoRef, c *hosting.Comment) (relevant, processed bool, err error) {
	if c.Author == t.selfLogin {
		return false, false, nil
	}

	reactions, err := t.hosting.ListReactions(ctx, repo, c)
	if err != nil {
		return false, false, fmt.Errorf("list reactions on comment %d: %w", c.ID, err)
	}

	endorsed := c.Author == t.trustedReviewer
	for _, rc := range reactions {
		if rc.Content == approvalReaction && rc.User == t.trustedReviewer {
			endorsed = true
		}
		if rc.Content == processingReaction && rc.User == t.selfLogin {
			processed = true
		}
	}
	return endorsed, processed, nil
}

// BuildConversationThread reconstructs the reply chain ending at leaf,
// ordered root first. Comments may arrive in any order; a cycle guard keeps
// malformed reply links from looping.
func BuildConversationThread(leaf *hosting.Comment, all []*hosting.Comment) []*hosting.Comment {
	byID := make(map[int64]*hosting.Comment, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}

	var chain []*hosting.Comment
	seen := make(map[int64]bool)
	for c := leaf; c != nil && !seen[c.ID]; c = byID[c.InReplyTo] {
		seen[c.ID] = true
		chain = append(chain, c)
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// ProcessThread handles one feedback thread: mark it as being processed,
// have the assistant act on the conversation, post the reply in the right
// place and push whatever was committed.
func (t *ThreadProcessor) ProcessThread(ctx context.Context, repo hosting.RepoRef, pr *hosting.PullRequest, issue *tracker.Issue, dir string, leaf *hosting.Comment, all []*hosting.Comment) error {
	// React first so a concurrent poll never picks up the same thread.
	if err := t.hosting.AddReaction(ctx, repo, leaf, processingReaction); err != nil {
		return fmt.Errorf("mark comment %d as processing: %w", leaf.ID, err)
	}

	chain := BuildConversationThread(leaf, all)
	messages := make([]claude.ThreadMessage, 0, len(chain))
	for _, c := range chain {
		messages = append(messages, claude.ThreadMessage{
			Author:   c.Author,
			Body:     c.Body,
			Path:     c.Path,
			Line:     c.Line,
			DiffHunk: c.DiffHunk,
		})
	}

	t.logger.Iconf(logging.IconComment, "processing %s on PR #%d (%d messages)", hosting.CommentRef(leaf), pr.Number, len(chain))

	prompt := claude.BuildThreadPrompt(issue.Identifier, issue.Title, messages)
	out, err := t.driver.RunAssistant(ctx, prompt, dir)
	if err != nil {
		return fmt.Errorf("assistant on thread: %w", err)
	}

	reply := strings.TrimSpace(out)
	if reply == "" {
		reply = "Addressed, see the latest commits."
	}

	if leaf.IsReview {
		root := chain[0]
		if err := t.hosting.PostReviewReply(ctx, repo, pr.Number, root.ID, reply); err != nil {
			return fmt.Errorf("post review reply: %w", err)
		}
	} else {
		quoted := fmt.Sprintf("> **@%s:** %s\n\n%s", leaf.Author, firstLine(leaf.Body), reply)
		if err := t.hosting.PostIssueComment(ctx, repo, pr.Number, quoted); err != nil {
			return fmt.Errorf("post comment: %w", err)
		}
	}

	if !t.reconciler.PushBranchAndMergeIfNecessary(ctx, dir, issue.BranchName(), issue) {
		return fmt.Errorf("push after thread %d", leaf.ID)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
