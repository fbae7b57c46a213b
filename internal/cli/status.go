package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hollowbranch/stagehand/internal/status"
	"github.com/hollowbranch/stagehand/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted run state",
	Long: `Status prints the current phase, task table, gates, and retry budgets
for the persisted run. With --watch it opens a live board that refreshes
whenever the run state changes on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, err := resolveRepoRoot(cmd)
		if err != nil {
			return err
		}
		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			return tui.Run(repoRoot)
		}
		summary, err := status.GetSummary(repoRoot)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), summary.String())
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolP("watch", "w", false, "watch the run state in a live board")
	rootCmd.AddCommand(statusCmd)
}
