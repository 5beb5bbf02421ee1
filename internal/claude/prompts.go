package claude

import (
	"fmt"
	"strings"
)

// Prompts contains the prompt templates used by the workflow
var Prompts = struct {
	ImplementIssue   string
	CommitChanges    string
	MergeBaseBranch  string
	SummarizeChanges string
}{
	ImplementIssue: `Implement the following issue in this repository.

Issue %s: %s

%s

You are on branch %s, cut from %s. When the implementation is complete:
- Stage everything with: git add -A
- Commit with a descriptive message referencing %s
- Do NOT push; the orchestrator pushes after verifying the commit.

Output a one-paragraph summary of what you changed when done.`,

	CommitChanges: `The working tree still has uncommitted changes after your last run.

Uncommitted files:
%s

Stage and commit ALL of these changes now:
- git add -A
- git commit with a descriptive message

Do not modify the files further and do not push.`,

	MergeBaseBranch: `The branch %s has fallen behind its base branch %s.

Merge origin/%s into the current branch:
- git merge origin/%s
- Resolve any conflicts in favor of the intent of issue %s: %s
- Make sure no conflict markers remain
- Commit the merge

Do not push; the orchestrator handles pushing.`,

	SummarizeChanges: `Summarize the code changes on this branch for a pull request description.

Run git log and git diff origin/%s...HEAD to see the changes, then provide a
concise summary in this format:

## Summary
[1-2 sentences describing what was implemented]

## Changes
[List each file changed with a brief description]

Keep it brief and focus on the "what" and "why". Do not include markdown code blocks in your response.`,
}

// ThreadMessage is one comment in a review conversation, oldest first.
type ThreadMessage struct {
	Author   string
	Body     string
	Path     string
	Line     int
	DiffHunk string
}

// BuildThreadPrompt renders a review conversation into a prompt asking the
// assistant to act on the feedback and produce a reply.
func BuildThreadPrompt(identifier, title string, messages []ThreadMessage) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are addressing review feedback on the pull request for issue %s: %s\n\n", identifier, title))
	sb.WriteString("Conversation thread, oldest first:\n\n")

	for i, msg := range messages {
		sb.WriteString(fmt.Sprintf("--- Message %d from @%s ---\n", i+1, msg.Author))
		if msg.Path != "" {
			sb.WriteString(fmt.Sprintf("File: %s", msg.Path))
			if msg.Line > 0 {
				sb.WriteString(fmt.Sprintf(" (line %d)", msg.Line))
			}
			sb.WriteString("\n")
		}
		if msg.DiffHunk != "" {
			sb.WriteString("Diff context:\n```\n")
			sb.WriteString(msg.DiffHunk)
			sb.WriteString("\n```\n")
		}
		sb.WriteString(msg.Body)
		sb.WriteString("\n\n")
	}

	sb.WriteString(`Decide whether the latest message warrants a code change.
- If it does: make the change, then git add -A and git commit with a descriptive message. Do not push.
- If it does not: change nothing.

Either way, end your output with a short reply suitable for posting back on the thread, explaining what you did or why no change was needed.`)
	return sb.String()
}
