package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "adam",
		Short: "Drive Claude Code to implement tracker issues end to end",
		Long: `Adam polls the issue tracker for issues assigned to it, claims them
with a lock label so concurrent agents never collide, and drives the
Claude Code CLI to implement each one in a local clone.

For every claimed issue it:
- Checks out a feature branch derived from the issue identifier
- Has Claude implement the issue and commit the changes
- Opens a pull request against the base branch
- Responds to review feedback threads on existing pull requests`,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("adam v0.1.0")
		},
	}
}
