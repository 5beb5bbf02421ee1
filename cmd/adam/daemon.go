package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nozcat/adam/internal/agent"
	"github.com/nozcat/adam/internal/api"
	"github.com/nozcat/adam/internal/claim"
	"github.com/nozcat/adam/internal/claude"
	"github.com/nozcat/adam/internal/config"
	"github.com/nozcat/adam/internal/gitrepo"
	"github.com/nozcat/adam/internal/hosting"
	"github.com/nozcat/adam/internal/logging"
	"github.com/nozcat/adam/internal/orchestrator"
	"github.com/nozcat/adam/internal/retry"
	"github.com/nozcat/adam/internal/tracker"
	"github.com/nozcat/adam/internal/workflow"
)

func daemonCmd() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run as a daemon, polling for assigned issues",
		Long: `Run Adam as a daemon that continuously polls the tracker for issues
assigned to it and processes them one at a time.

Example:
  adam daemon --config config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(logFile)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "Also write logs to this file")

	return cmd
}

func runDaemon(logFile string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// CLI flag takes precedence over config
	if logFile == "" {
		logFile = cfg.LogFile
	}

	logger, cleanup, err := setupLogger(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer cleanup()

	identity := agent.NewIdentity()
	orch := buildOrchestrator(cfg, identity, logger)

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			logger.Iconf(logging.IconShutdown, "received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.Port, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Errorf("status server: %v", err)
			}
		}()
	}

	logger.Iconf(logging.IconStart, "adam starting as %s, polling every %s", identity, cfg.PollInterval)
	orch.Poll(ctx, cfg.PollInterval)
	return nil
}

// buildOrchestrator wires the component graph from config. The gitrepo
// manager serves both as the orchestrator's repo syncer and the workflow's
// git surface.
func buildOrchestrator(cfg *config.Config, identity agent.Identity, logger *logging.Logger) *orchestrator.Orchestrator {
	trackerClient := tracker.NewLinearClient(cfg.Linear.APIKey)
	hostingClient := hosting.NewGitHubClient(cfg.GitHub.Token)

	locker := agent.NewLabelLocker(trackerClient, identity, cfg.Lock.SettleDelay, logger)
	claims := claim.NewManager(trackerClient, identity, logger)
	repos := gitrepo.NewManager(cfg.ReposDir, cfg.GitHub.Username, cfg.GitHub.Token, cfg.Commit.Name, cfg.Commit.Email, logger)

	runner := claude.NewClient(cfg.Claude.Command, cfg.Claude.Timeout, cfg.Claude.AllowedTools)
	driver := workflow.NewDriver(runner, repos, retry.FromConfig(cfg.Retry), logger)
	reconciler := workflow.NewReconciler(hostingClient, repos, driver, cfg.BaseBranch, logger)
	threads := workflow.NewThreadProcessor(hostingClient, driver, reconciler, cfg.GitHub.TrustedReviewer, cfg.GitHub.Username, logger)

	return orchestrator.New(claims, trackerClient, locker, repos, driver, reconciler, threads, cfg.BaseBranch, logger)
}

// setupLogger builds the logger, optionally teeing output to a log file. An
// unwritable log file degrades to stdout-only rather than stopping the daemon.
func setupLogger(logFile string) (*logging.Logger, func(), error) {
	if logFile == "" {
		return logging.Default(), func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "cannot create log directory, logging to stdout only: %v\n", err)
		return logging.Default(), func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file, logging to stdout only: %v\n", err)
		return logging.Default(), func() {}, nil
	}
	logger := logging.New(io.MultiWriter(os.Stdout, f))
	return logger, func() { f.Close() }, nil
}
