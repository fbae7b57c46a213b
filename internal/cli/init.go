package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hollowbranch/stagehand/internal/collab"
	"github.com/hollowbranch/stagehand/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the _stagehand layout in a repository",
	Long: `Init creates the _stagehand directory tree, a config file with documented
defaults, role definitions for the collaborating agents, and a .gitignore
that keeps run-local state out of version control. Existing files are left
untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, err := resolveRepoRoot(cmd)
		if err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		opts := config.InitOptions{Verbose: verbose, Writer: cmd.OutOrStdout()}
		if err := config.InitFullLayout(repoRoot, opts); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd, repoRoot)
		if err != nil {
			return err
		}
		if err := collab.WriteDefaultRoles(repoRoot, cfg.Workers.CLI); err != nil {
			return fmt.Errorf("write role definitions: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "initialized _stagehand layout in %s\n", repoRoot)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
