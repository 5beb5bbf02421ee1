package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nozcat/adam/internal/agent"
	"github.com/nozcat/adam/internal/config"
	"github.com/nozcat/adam/internal/logging"
)

func runCmd() *cobra.Command {
	var issueID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single poll cycle, or process one issue",
		Long: `Run one pass through the workflow and exit.

Without flags this polls once and processes issues until the first one
that produces work. With --issue it processes just that issue,
regardless of assignment.

Example:
  adam run
  adam run --issue a1b2c3d4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(issueID)
		},
	}

	cmd.Flags().StringVar(&issueID, "issue", "", "Tracker issue ID to process")

	return cmd
}

func runSingle(issueID string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Default()
	identity := agent.NewIdentity()
	orch := buildOrchestrator(cfg, identity, logger)

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Iconf(logging.IconShutdown, "received shutdown signal")
		cancel()
	}()

	if issueID != "" {
		return orch.RunIssue(ctx, issueID)
	}

	worked, err := orch.RunCycle(ctx)
	if err != nil {
		return err
	}
	if !worked {
		logger.Infof("nothing to do")
	}
	return nil
}
