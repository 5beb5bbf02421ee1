package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const linearEndpoint = "https://api.linear.app/graphql"

// LinearClient implements Client against the Linear GraphQL API.
type LinearClient struct {
	apiKey   string
	endpoint string
	http     *http.Client

	mu       sync.Mutex
	stateIDs map[State]string // workflow state name -> id, resolved once
	labelIDs map[string]Label // label name -> label, resolved as seen
}

// NewLinearClient creates a Linear API client.
func NewLinearClient(apiKey string) *LinearClient {
	return &LinearClient{
		apiKey:   apiKey,
		endpoint: linearEndpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		stateIDs: make(map[State]string),
		labelIDs: make(map[string]Label),
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

// query runs a GraphQL request and decodes the "data" payload into out.
// Transient failures are retried with exponential backoff; HTTP 4xx other
// than 429 is permanent.
func (c *LinearClient) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return err
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("linear: HTTP %d: %s", resp.StatusCode, data)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("linear: HTTP %d: %s", resp.StatusCode, data))
		}

		var envelope struct {
			Data   json.RawMessage `json:"data"`
			Errors []gqlError      `json:"errors"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return backoff.Permanent(fmt.Errorf("linear: decode response: %w", err))
		}
		if len(envelope.Errors) > 0 {
			return backoff.Permanent(fmt.Errorf("linear: %s", envelope.Errors[0].Message))
		}
		if out != nil {
			if err := json.Unmarshal(envelope.Data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("linear: decode data: %w", err))
			}
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, b)
}

// GraphQL wire shapes. Linear nests collections under "nodes".

type gqlLabel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type gqlIssue struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       struct {
		Name string `json:"name"`
	} `json:"state"`
	Assignee struct {
		Name string `json:"name"`
	} `json:"assignee"`
	Labels struct {
		Nodes []gqlLabel `json:"nodes"`
	} `json:"labels"`
	Project struct {
		Labels struct {
			Nodes []gqlLabel `json:"nodes"`
		} `json:"labels"`
	} `json:"project"`
	InverseRelations struct {
		Nodes []struct {
			Type  string `json:"type"`
			Issue struct {
				ID string `json:"id"`
			} `json:"issue"`
		} `json:"nodes"`
	} `json:"inverseRelations"`
}

const issueFields = `
  id
  identifier
  title
  description
  state { name }
  assignee { name }
  labels { nodes { id name } }
  project { labels { nodes { id name } } }
  inverseRelations { nodes { type issue { id } } }
`

func hydrateIssue(gi gqlIssue) *Issue {
	issue := &Issue{
		ID:          gi.ID,
		Identifier:  gi.Identifier,
		Title:       gi.Title,
		Description: gi.Description,
		State:       State(gi.State.Name),
		Assignee:    gi.Assignee.Name,
	}
	for _, l := range gi.Labels.Nodes {
		issue.Labels = append(issue.Labels, Label{ID: l.ID, Name: l.Name})
	}
	for _, l := range gi.Project.Labels.Nodes {
		issue.ProjectLabels = append(issue.ProjectLabels, Label{ID: l.ID, Name: l.Name})
	}
	for _, r := range gi.InverseRelations.Nodes {
		if r.Type == "blocks" && r.Issue.ID != "" {
			issue.BlockedBy = append(issue.BlockedBy, r.Issue.ID)
		}
	}
	return issue
}

func (c *LinearClient) ListAssignedIssues(ctx context.Context, states []State) ([]*Issue, error) {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}

	q := fmt.Sprintf(`query AssignedIssues($states: [String!]) {
  issues(filter: { assignee: { isMe: { eq: true } }, state: { name: { in: $states } } }) {
    nodes {%s}
  }
}`, issueFields)

	var resp struct {
		Issues struct {
			Nodes []gqlIssue `json:"nodes"`
		} `json:"issues"`
	}
	if err := c.query(ctx, q, map[string]any{"states": names}, &resp); err != nil {
		return nil, err
	}

	issues := make([]*Issue, 0, len(resp.Issues.Nodes))
	for _, gi := range resp.Issues.Nodes {
		issues = append(issues, hydrateIssue(gi))
	}
	return issues, nil
}

func (c *LinearClient) GetIssue(ctx context.Context, id string) (*Issue, error) {
	q := fmt.Sprintf(`query Issue($id: String!) {
  issue(id: $id) {%s}
}`, issueFields)

	var resp struct {
		Issue gqlIssue `json:"issue"`
	}
	if err := c.query(ctx, q, map[string]any{"id": id}, &resp); err != nil {
		return nil, err
	}
	if resp.Issue.ID == "" {
		return nil, fmt.Errorf("linear: issue %s not found", id)
	}
	return hydrateIssue(resp.Issue), nil
}

func (c *LinearClient) UpdateIssueState(ctx context.Context, id string, state State) error {
	stateID, err := c.resolveStateID(ctx, state)
	if err != nil {
		return err
	}

	q := `mutation UpdateState($id: String!, $stateId: String!) {
  issueUpdate(id: $id, input: { stateId: $stateId }) { success }
}`
	var resp struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	if err := c.query(ctx, q, map[string]any{"id": id, "stateId": stateID}, &resp); err != nil {
		return err
	}
	if !resp.IssueUpdate.Success {
		return fmt.Errorf("linear: state update to %q rejected", state)
	}
	return nil
}

func (c *LinearClient) resolveStateID(ctx context.Context, state State) (string, error) {
	c.mu.Lock()
	if id, ok := c.stateIDs[state]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	q := `query States($name: String!) {
  workflowStates(filter: { name: { eq: $name } }) { nodes { id } }
}`
	var resp struct {
		WorkflowStates struct {
			Nodes []struct {
				ID string `json:"id"`
			} `json:"nodes"`
		} `json:"workflowStates"`
	}
	if err := c.query(ctx, q, map[string]any{"name": string(state)}, &resp); err != nil {
		return "", err
	}
	if len(resp.WorkflowStates.Nodes) == 0 {
		return "", fmt.Errorf("linear: no workflow state named %q", state)
	}

	id := resp.WorkflowStates.Nodes[0].ID
	c.mu.Lock()
	c.stateIDs[state] = id
	c.mu.Unlock()
	return id, nil
}

func (c *LinearClient) ListLabels(ctx context.Context, issueID string) ([]Label, error) {
	q := `query IssueLabels($id: String!) {
  issue(id: $id) { labels { nodes { id name } } }
}`
	var resp struct {
		Issue struct {
			Labels struct {
				Nodes []gqlLabel `json:"nodes"`
			} `json:"labels"`
		} `json:"issue"`
	}
	if err := c.query(ctx, q, map[string]any{"id": issueID}, &resp); err != nil {
		return nil, err
	}

	labels := make([]Label, 0, len(resp.Issue.Labels.Nodes))
	for _, l := range resp.Issue.Labels.Nodes {
		labels = append(labels, Label{ID: l.ID, Name: l.Name})
	}
	return labels, nil
}

func (c *LinearClient) FindOrCreateLabel(ctx context.Context, name string) (Label, error) {
	c.mu.Lock()
	if l, ok := c.labelIDs[name]; ok {
		c.mu.Unlock()
		return l, nil
	}
	c.mu.Unlock()

	q := `query Labels($name: String!) {
  issueLabels(filter: { name: { eq: $name } }) { nodes { id name } }
}`
	var resp struct {
		IssueLabels struct {
			Nodes []gqlLabel `json:"nodes"`
		} `json:"issueLabels"`
	}
	if err := c.query(ctx, q, map[string]any{"name": name}, &resp); err != nil {
		return Label{}, err
	}

	var label Label
	if len(resp.IssueLabels.Nodes) > 0 {
		label = Label{ID: resp.IssueLabels.Nodes[0].ID, Name: resp.IssueLabels.Nodes[0].Name}
	} else {
		m := `mutation CreateLabel($name: String!) {
  issueLabelCreate(input: { name: $name }) { issueLabel { id name } }
}`
		var created struct {
			IssueLabelCreate struct {
				IssueLabel gqlLabel `json:"issueLabel"`
			} `json:"issueLabelCreate"`
		}
		if err := c.query(ctx, m, map[string]any{"name": name}, &created); err != nil {
			return Label{}, err
		}
		label = Label{ID: created.IssueLabelCreate.IssueLabel.ID, Name: created.IssueLabelCreate.IssueLabel.Name}
	}

	c.mu.Lock()
	c.labelIDs[name] = label
	c.mu.Unlock()
	return label, nil
}

func (c *LinearClient) AddLabel(ctx context.Context, issueID, labelID string) error {
	q := `mutation AddLabel($id: String!, $labelId: String!) {
  issueAddLabel(id: $id, labelId: $labelId) { success }
}`
	var resp struct {
		IssueAddLabel struct {
			Success bool `json:"success"`
		} `json:"issueAddLabel"`
	}
	if err := c.query(ctx, q, map[string]any{"id": issueID, "labelId": labelID}, &resp); err != nil {
		return err
	}
	if !resp.IssueAddLabel.Success {
		return fmt.Errorf("linear: add label rejected")
	}
	return nil
}

func (c *LinearClient) RemoveLabel(ctx context.Context, issueID, labelID string) error {
	q := `mutation RemoveLabel($id: String!, $labelId: String!) {
  issueRemoveLabel(id: $id, labelId: $labelId) { success }
}`
	var resp struct {
		IssueRemoveLabel struct {
			Success bool `json:"success"`
		} `json:"issueRemoveLabel"`
	}
	// Linear treats removing an absent label as success, matching the
	// idempotence the unlock path relies on.
	return c.query(ctx, q, map[string]any{"id": issueID, "labelId": labelID}, &resp)
}
