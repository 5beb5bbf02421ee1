package tracker

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-memory Client for tests. The label store is shared
// mutable state, so two MockClient-backed lockers pointed at the same
// MockClient exercise the same races the real label store allows.
type MockClient struct {
	mu sync.Mutex

	Issues map[string]*Issue // issue ID -> issue
	labels map[string]Label  // label name -> label
	nextID int

	// StateUpdates records UpdateIssueState calls in order.
	StateUpdates []StateUpdate

	// Hooks for injecting behavior mid-operation.
	OnAddLabel func(issueID string, label Label)
	GetErr     error
}

// StateUpdate records a single state transition request.
type StateUpdate struct {
	IssueID string
	State   State
}

// NewMockClient creates an empty mock tracker.
func NewMockClient() *MockClient {
	return &MockClient{
		Issues: make(map[string]*Issue),
		labels: make(map[string]Label),
	}
}

// AddIssue registers an issue with the mock.
func (m *MockClient) AddIssue(issue *Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Issues[issue.ID] = issue
}

func (m *MockClient) ListAssignedIssues(ctx context.Context, states []State) ([]*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Issue
	for _, issue := range m.Issues {
		for _, s := range states {
			if issue.State == s {
				result = append(result, issue)
				break
			}
		}
	}
	return result, nil
}

func (m *MockClient) GetIssue(ctx context.Context, id string) (*Issue, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.Issues[id]
	if !ok {
		return nil, fmt.Errorf("issue not found: %s", id)
	}
	return issue, nil
}

func (m *MockClient) UpdateIssueState(ctx context.Context, id string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.Issues[id]
	if !ok {
		return fmt.Errorf("issue not found: %s", id)
	}
	issue.State = state
	m.StateUpdates = append(m.StateUpdates, StateUpdate{IssueID: id, State: state})
	return nil
}

func (m *MockClient) ListLabels(ctx context.Context, issueID string) ([]Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.Issues[issueID]
	if !ok {
		return nil, fmt.Errorf("issue not found: %s", issueID)
	}
	labels := make([]Label, len(issue.Labels))
	copy(labels, issue.Labels)
	return labels, nil
}

func (m *MockClient) FindOrCreateLabel(ctx context.Context, name string) (Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.labels[name]; ok {
		return l, nil
	}
	m.nextID++
	l := Label{ID: fmt.Sprintf("label-%d", m.nextID), Name: name}
	m.labels[name] = l
	return l, nil
}

func (m *MockClient) AddLabel(ctx context.Context, issueID, labelID string) error {
	m.mu.Lock()

	issue, ok := m.Issues[issueID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("issue not found: %s", issueID)
	}

	var added Label
	for _, l := range m.labels {
		if l.ID == labelID {
			added = l
			break
		}
	}
	if added.ID == "" {
		m.mu.Unlock()
		return fmt.Errorf("label not found: %s", labelID)
	}

	for _, l := range issue.Labels {
		if l.ID == labelID {
			m.mu.Unlock()
			return nil
		}
	}
	issue.Labels = append(issue.Labels, added)
	hook := m.OnAddLabel
	m.mu.Unlock()

	if hook != nil {
		hook(issueID, added)
	}
	return nil
}

func (m *MockClient) RemoveLabel(ctx context.Context, issueID, labelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.Issues[issueID]
	if !ok {
		return fmt.Errorf("issue not found: %s", issueID)
	}

	var kept []Label
	for _, l := range issue.Labels {
		if l.ID != labelID {
			kept = append(kept, l)
		}
	}
	issue.Labels = kept
	return nil
}
