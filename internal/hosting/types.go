package hosting

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// RepoRef identifies a repository on the hosting platform.
type RepoRef struct {
	Owner string
	Name  string
}

// FullName returns the "owner/name" form.
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}

var repoLabelRe = regexp.MustCompile(`^repo:([^/\s]+)/([^/\s]+)$`)

// ParseRepoLabel extracts a RepoRef from a "repo:owner/name" label.
func ParseRepoLabel(label string) (RepoRef, bool) {
	m := repoLabelRe.FindStringSubmatch(label)
	if m == nil {
		return RepoRef{}, false
	}
	return RepoRef{Owner: m[1], Name: m[2]}, true
}

// PullRequest is a hydrated pull request.
type PullRequest struct {
	Number  int
	Title   string
	Body    string
	State   string // "open", "closed", "merged"
	Merged  bool
	HTMLURL string
	HeadRef string
	BaseRef string
}

// Comment is an issue comment or a file-anchored review comment on a PR.
type Comment struct {
	ID        int64
	Body      string
	Author    string
	CreatedAt time.Time

	// Review-comment fields. IsReview distinguishes the two comment kinds,
	// which live under different API endpoints.
	IsReview  bool
	InReplyTo int64 // 0 when the comment is a thread root
	Path      string
	Line      int
	DiffHunk  string
}

// Reaction is an emoji reaction left on a comment.
type Reaction struct {
	Content string // e.g. "+1", "eyes"
	User    string
}

// Client is the hosting platform capability surface the agent depends on.
type Client interface {
	// ListPullRequests returns PRs whose head is the given branch, filtered
	// by state ("open" or "closed"). Closed PRs carry the Merged flag.
	ListPullRequests(ctx context.Context, repo RepoRef, headBranch, state string) ([]*PullRequest, error)

	// CreatePullRequest opens a PR from head into base.
	CreatePullRequest(ctx context.Context, repo RepoRef, head, base, title, body string) (*PullRequest, error)

	// ListIssueComments returns the top-level conversation comments on a PR.
	ListIssueComments(ctx context.Context, repo RepoRef, prNumber int) ([]*Comment, error)

	// ListReviewComments returns the file-anchored review comments on a PR.
	ListReviewComments(ctx context.Context, repo RepoRef, prNumber int) ([]*Comment, error)

	// PostIssueComment posts a top-level comment on the PR conversation.
	PostIssueComment(ctx context.Context, repo RepoRef, prNumber int, body string) error

	// PostReviewReply replies in-thread to a review comment.
	PostReviewReply(ctx context.Context, repo RepoRef, prNumber int, commentID int64, body string) error

	// AddReaction adds an emoji reaction to the given comment.
	AddReaction(ctx context.Context, repo RepoRef, comment *Comment, content string) error

	// ListReactions lists the reactions on the given comment.
	ListReactions(ctx context.Context, repo RepoRef, comment *Comment) ([]Reaction, error)
}

// CommentRef formats a comment for log lines.
func CommentRef(c *Comment) string {
	kind := "comment"
	if c.IsReview {
		kind = "review comment"
	}
	return fmt.Sprintf("%s %d by %s", kind, c.ID, c.Author)
}
