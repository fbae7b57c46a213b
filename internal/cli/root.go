// Package cli implements the stagehand command surface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hollowbranch/stagehand/internal/config"
	"github.com/hollowbranch/stagehand/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "Phase-gated orchestration for agent-driven feature pipelines",
	Long: `Stagehand drives a feature request through a fixed pipeline: drafting,
review, clarification, planned execution, implementation review, validation,
and evidence-verified acceptance. Collaborating agents do the work; stagehand
owns the state machine, the retry budgets, and the gates between phases.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("repo", "C", "", "repository root (default: current directory)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
}

// resolveRepoRoot returns the repository root the command operates on. An
// explicit --repo wins; otherwise the nearest stagehand or git root above the
// working directory is used, falling back to the working directory itself so
// init works in a bare tree.
func resolveRepoRoot(cmd *cobra.Command) (string, error) {
	root, err := cmd.Flags().GetString("repo")
	if err != nil {
		return "", err
	}
	if root != "" {
		return root, nil
	}
	discovered, err := repo.DiscoverRootFromCWD()
	if err == nil {
		return discovered, nil
	}
	if !errors.Is(err, repo.ErrRootNotFound) {
		return "", err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return cwd, nil
}

// loadConfig loads the layered configuration for the repository, surfacing
// normalization warnings on stderr.
func loadConfig(cmd *cobra.Command, repoRoot string) (config.Config, error) {
	cfg, err := config.Load(repoRoot, func(message string) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", message)
	})
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
