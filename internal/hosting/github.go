package hosting

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// GitHubClient implements Client using the gh CLI.
// Note: Authentication is handled by the gh CLI (via GH_TOKEN env var or gh auth login)
type GitHubClient struct{}

// NewGitHubClient creates a GitHub client. A non-empty token is exported for
// the gh CLI; provider creation happens once at startup, not concurrently.
func NewGitHubClient(token string) *GitHubClient {
	if token != "" {
		os.Setenv("GH_TOKEN", token)
	}
	return &GitHubClient{}
}

// runGH executes a gh command and returns stdout
func (g *GitHubClient) runGH(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("gh command failed: %s: %s", err, string(exitErr.Stderr))
		}
		return nil, err
	}
	return out, nil
}

// ghPR represents gh's JSON output for pull requests
type ghPR struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	URL         string     `json:"url"`
	HeadRefName string     `json:"headRefName"`
	BaseRefName string     `json:"baseRefName"`
	MergedAt    *time.Time `json:"mergedAt"`
}

func (p ghPR) toPullRequest() *PullRequest {
	merged := p.MergedAt != nil && !p.MergedAt.IsZero()
	state := p.State
	switch state {
	case "OPEN":
		state = "open"
	case "CLOSED":
		state = "closed"
	case "MERGED":
		state = "merged"
		merged = true
	}
	return &PullRequest{
		Number:  p.Number,
		Title:   p.Title,
		Body:    p.Body,
		State:   state,
		Merged:  merged,
		HTMLURL: p.URL,
		HeadRef: p.HeadRefName,
		BaseRef: p.BaseRefName,
	}
}

const prJSONFields = "number,title,body,state,url,headRefName,baseRefName,mergedAt"

func (g *GitHubClient) ListPullRequests(ctx context.Context, repo RepoRef, headBranch, state string) ([]*PullRequest, error) {
	out, err := g.runGH(ctx, "pr", "list", "--repo", repo.FullName(),
		"--head", headBranch, "--state", state, "--json", prJSONFields)
	if err != nil {
		return nil, err
	}

	var prs []ghPR
	if err := json.Unmarshal(out, &prs); err != nil {
		return nil, fmt.Errorf("failed to parse PR list: %w", err)
	}

	result := make([]*PullRequest, len(prs))
	for i, p := range prs {
		result[i] = p.toPullRequest()
	}
	return result, nil
}

func (g *GitHubClient) CreatePullRequest(ctx context.Context, repo RepoRef, head, base, title, body string) (*PullRequest, error) {
	_, err := g.runGH(ctx, "pr", "create", "--repo", repo.FullName(),
		"--title", title, "--body", body, "--head", head, "--base", base)
	if err != nil {
		return nil, err
	}

	// Fetch the PR we just created
	out, err := g.runGH(ctx, "pr", "view", head, "--repo", repo.FullName(), "--json", prJSONFields)
	if err != nil {
		return nil, err
	}

	var p ghPR
	if err := json.Unmarshal(out, &p); err != nil {
		return nil, fmt.Errorf("failed to parse PR: %w", err)
	}
	return p.toPullRequest(), nil
}

// ghComment represents the REST shape shared by issue and review comments.
// The REST endpoints are used instead of `gh pr view --json comments` because
// only REST exposes numeric IDs and reply-parent pointers.
type ghComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	CreatedAt   time.Time `json:"created_at"`
	InReplyToID int64     `json:"in_reply_to_id"`
	Path        string    `json:"path"`
	Line        int       `json:"line"`
	DiffHunk    string    `json:"diff_hunk"`
}

func (g *GitHubClient) ListIssueComments(ctx context.Context, repo RepoRef, prNumber int) ([]*Comment, error) {
	endpoint := fmt.Sprintf("repos/%s/issues/%d/comments", repo.FullName(), prNumber)
	out, err := g.runGH(ctx, "api", "--paginate", endpoint)
	if err != nil {
		return nil, err
	}

	var comments []ghComment
	if err := json.Unmarshal(out, &comments); err != nil {
		return nil, fmt.Errorf("failed to parse issue comments: %w", err)
	}

	result := make([]*Comment, len(comments))
	for i, c := range comments {
		result[i] = &Comment{
			ID:        c.ID,
			Body:      c.Body,
			Author:    c.User.Login,
			CreatedAt: c.CreatedAt,
		}
	}
	return result, nil
}

func (g *GitHubClient) ListReviewComments(ctx context.Context, repo RepoRef, prNumber int) ([]*Comment, error) {
	endpoint := fmt.Sprintf("repos/%s/pulls/%d/comments", repo.FullName(), prNumber)
	out, err := g.runGH(ctx, "api", "--paginate", endpoint)
	if err != nil {
		return nil, err
	}

	var comments []ghComment
	if err := json.Unmarshal(out, &comments); err != nil {
		return nil, fmt.Errorf("failed to parse review comments: %w", err)
	}

	result := make([]*Comment, len(comments))
	for i, c := range comments {
		result[i] = &Comment{
			ID:        c.ID,
			Body:      c.Body,
			Author:    c.User.Login,
			CreatedAt: c.CreatedAt,
			IsReview:  true,
			InReplyTo: c.InReplyToID,
			Path:      c.Path,
			Line:      c.Line,
			DiffHunk:  c.DiffHunk,
		}
	}
	return result, nil
}

func (g *GitHubClient) PostIssueComment(ctx context.Context, repo RepoRef, prNumber int, body string) error {
	_, err := g.runGH(ctx, "pr", "comment", strconv.Itoa(prNumber), "--repo", repo.FullName(), "--body", body)
	return err
}

func (g *GitHubClient) PostReviewReply(ctx context.Context, repo RepoRef, prNumber int, commentID int64, body string) error {
	endpoint := fmt.Sprintf("repos/%s/pulls/%d/comments/%d/replies", repo.FullName(), prNumber, commentID)
	_, err := g.runGH(ctx, "api", endpoint, "-X", "POST", "-f", "body="+body)
	return err
}

// reactionEndpoint picks the REST path for a comment's reactions; issue and
// review comments live under different resources.
func reactionEndpoint(repo RepoRef, c *Comment) string {
	if c.IsReview {
		return fmt.Sprintf("repos/%s/pulls/comments/%d/reactions", repo.FullName(), c.ID)
	}
	return fmt.Sprintf("repos/%s/issues/comments/%d/reactions", repo.FullName(), c.ID)
}

func (g *GitHubClient) AddReaction(ctx context.Context, repo RepoRef, comment *Comment, content string) error {
	_, err := g.runGH(ctx, "api", reactionEndpoint(repo, comment), "-X", "POST", "-f", "content="+content)
	return err
}

func (g *GitHubClient) ListReactions(ctx context.Context, repo RepoRef, comment *Comment) ([]Reaction, error) {
	out, err := g.runGH(ctx, "api", "--paginate", reactionEndpoint(repo, comment))
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Content string `json:"content"`
		User    struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse reactions: %w", err)
	}

	result := make([]Reaction, len(raw))
	for i, r := range raw {
		result[i] = Reaction{Content: r.Content, User: r.User.Login}
	}
	return result, nil
}
