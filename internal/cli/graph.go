package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hollowbranch/stagehand/internal/dag"
	"github.com/hollowbranch/stagehand/internal/state"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the task dependency graph",
	Long: `Graph renders the planned tasks in dependency order, with the dispatch
wave each task can join, what it depends on, and what it blocks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, err := resolveRepoRoot(cmd)
		if err != nil {
			return err
		}
		current, found, err := state.Load(repoRoot)
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(cmd.OutOrStdout(), "no run state found")
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), dag.GetSummary(current.Tasks).String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
