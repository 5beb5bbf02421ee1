package hosting

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-memory Client for tests.
type MockClient struct {
	mu sync.Mutex

	PRs            map[string][]*PullRequest // repo full name -> PRs
	IssueComments  map[int][]*Comment        // pr number -> comments
	ReviewComments map[int][]*Comment
	CommentReacts  map[int64][]Reaction // comment ID -> reactions

	// Call records for assertions.
	CreatedPRs     []*PullRequest
	PostedTopLevel []MockPosted
	PostedReplies  []MockReply
	AddedReactions []MockReaction

	// SelfLogin is the user recorded for reactions added through AddReaction.
	SelfLogin string

	CreateErr error
}

// MockPosted records a top-level comment post.
type MockPosted struct {
	PRNumber int
	Body     string
}

// MockReply records an in-thread review reply.
type MockReply struct {
	PRNumber  int
	CommentID int64
	Body      string
}

// MockReaction records an added reaction.
type MockReaction struct {
	CommentID int64
	Content   string
}

// NewMockClient creates an empty mock hosting client.
func NewMockClient() *MockClient {
	return &MockClient{
		PRs:            make(map[string][]*PullRequest),
		IssueComments:  make(map[int][]*Comment),
		ReviewComments: make(map[int][]*Comment),
		CommentReacts:  make(map[int64][]Reaction),
	}
}

// AddPR registers an existing PR with the mock.
func (m *MockClient) AddPR(repo RepoRef, pr *PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PRs[repo.FullName()] = append(m.PRs[repo.FullName()], pr)
}

// AddReactionRecord pre-seeds reactions on a comment.
func (m *MockClient) AddReactionRecord(commentID int64, r Reaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommentReacts[commentID] = append(m.CommentReacts[commentID], r)
}

func (m *MockClient) ListPullRequests(ctx context.Context, repo RepoRef, headBranch, state string) ([]*PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*PullRequest
	for _, pr := range m.PRs[repo.FullName()] {
		if pr.HeadRef != headBranch {
			continue
		}
		switch state {
		case "open":
			if pr.State == "open" {
				result = append(result, pr)
			}
		case "closed":
			if pr.State == "closed" || pr.State == "merged" {
				result = append(result, pr)
			}
		default:
			result = append(result, pr)
		}
	}
	return result, nil
}

func (m *MockClient) CreatePullRequest(ctx context.Context, repo RepoRef, head, base, title, body string) (*PullRequest, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pr := &PullRequest{
		Number:  len(m.PRs[repo.FullName()]) + 1,
		Title:   title,
		Body:    body,
		State:   "open",
		HTMLURL: fmt.Sprintf("https://github.com/%s/pull/%d", repo.FullName(), len(m.PRs[repo.FullName()])+1),
		HeadRef: head,
		BaseRef: base,
	}
	m.PRs[repo.FullName()] = append(m.PRs[repo.FullName()], pr)
	m.CreatedPRs = append(m.CreatedPRs, pr)
	return pr, nil
}

func (m *MockClient) ListIssueComments(ctx context.Context, repo RepoRef, prNumber int) ([]*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Comment(nil), m.IssueComments[prNumber]...), nil
}

func (m *MockClient) ListReviewComments(ctx context.Context, repo RepoRef, prNumber int) ([]*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Comment(nil), m.ReviewComments[prNumber]...), nil
}

func (m *MockClient) PostIssueComment(ctx context.Context, repo RepoRef, prNumber int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostedTopLevel = append(m.PostedTopLevel, MockPosted{PRNumber: prNumber, Body: body})
	return nil
}

func (m *MockClient) PostReviewReply(ctx context.Context, repo RepoRef, prNumber int, commentID int64, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostedReplies = append(m.PostedReplies, MockReply{PRNumber: prNumber, CommentID: commentID, Body: body})
	return nil
}

func (m *MockClient) AddReaction(ctx context.Context, repo RepoRef, comment *Comment, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddedReactions = append(m.AddedReactions, MockReaction{CommentID: comment.ID, Content: content})
	m.CommentReacts[comment.ID] = append(m.CommentReacts[comment.ID], Reaction{Content: content, User: m.SelfLogin})
	return nil
}

func (m *MockClient) ListReactions(ctx context.Context, repo RepoRef, comment *Comment) ([]Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reaction(nil), m.CommentReacts[comment.ID]...), nil
}
