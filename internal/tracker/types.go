package tracker

import (
	"context"
	"strings"
)

// State is an issue's lifecycle state in the tracker.
type State string

const (
	StateBacklog    State = "Backlog"
	StateTodo       State = "Todo"
	StateInProgress State = "In Progress"
	StateInReview   State = "In Review"
	StateDone       State = "Done"
	StateCanceled   State = "Canceled"
	StateDuplicate  State = "Duplicate"
)

// WorkableStates are the states in which an assigned issue is a candidate for
// processing.
var WorkableStates = []State{StateTodo, StateInProgress, StateInReview}

// Terminal reports whether the state means no further work should happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCanceled || s == StateDuplicate
}

// Label is a tracker label, created lazily and shared across issues.
type Label struct {
	ID   string
	Name string
}

// Issue is a fully hydrated issue. All fields are populated before the issue
// reaches the workflow; nothing is fetched lazily.
type Issue struct {
	ID          string // Tracker-internal ID
	Identifier  string // Human-readable key, e.g. "ABC-12"
	Title       string
	Description string
	State       State
	Assignee    string
	Labels      []Label

	// ProjectLabels are labels on the issue's project, used as a fallback
	// when resolving the owning repository.
	ProjectLabels []Label

	// BlockedBy holds IDs of issues with an inbound "blocks" relation.
	BlockedBy []string
}

// BranchName derives the feature branch for the issue.
func (i *Issue) BranchName() string {
	return "feature/" + strings.ToLower(i.Identifier)
}

// HasLabel reports whether the issue carries a label with the given name.
func (i *Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

// Client is the issue tracker capability surface the agent depends on.
type Client interface {
	// ListAssignedIssues returns hydrated issues assigned to the API user in
	// any of the given states.
	ListAssignedIssues(ctx context.Context, states []State) ([]*Issue, error)

	// GetIssue re-fetches a single issue by tracker-internal ID.
	GetIssue(ctx context.Context, id string) (*Issue, error)

	// UpdateIssueState transitions the issue to the named workflow state.
	UpdateIssueState(ctx context.Context, id string, state State) error

	// ListLabels returns the labels currently attached to the issue.
	ListLabels(ctx context.Context, issueID string) ([]Label, error)

	// FindOrCreateLabel resolves a label by name, creating it when absent.
	FindOrCreateLabel(ctx context.Context, name string) (Label, error)

	// AddLabel attaches a label to an issue.
	AddLabel(ctx context.Context, issueID, labelID string) error

	// RemoveLabel detaches a label from an issue. Removing a label that is
	// not attached is a no-op.
	RemoveLabel(ctx context.Context, issueID, labelID string) error
}
