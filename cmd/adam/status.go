package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nozcat/adam/internal/agent"
	"github.com/nozcat/adam/internal/claim"
	"github.com/nozcat/adam/internal/config"
	"github.com/nozcat/adam/internal/tracker"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List assigned issues and their claim status",
		Long: `List the issues currently assigned to the agent's tracker account,
with their state, owning repository and lock holder.

Example:
  adam status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
}

func showStatus() error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	trackerClient := tracker.NewLinearClient(cfg.Linear.APIKey)
	ctx := context.Background()

	issues, err := trackerClient.ListAssignedIssues(ctx, tracker.WorkableStates)
	if err != nil {
		return fmt.Errorf("failed to list issues: %w", err)
	}

	if len(issues) == 0 {
		fmt.Println("No workable issues assigned")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ISSUE\tTITLE\tSTATE\tREPO\tLOCK")
	fmt.Fprintln(w, "-----\t-----\t-----\t----\t----")

	for _, issue := range issues {
		title := issue.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}

		repo := "-"
		if r := claim.ResolveRepository(issue); r != nil {
			repo = r.FullName()
		}

		lock := "-"
		for _, label := range issue.Labels {
			if agent.IsLockLabel(label.Name) {
				lock = label.Name
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", issue.Identifier, title, issue.State, repo, lock)
	}

	w.Flush()
	return nil
}
