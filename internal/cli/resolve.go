package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/state"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <decision-id> <option>",
	Short: "Resolve an open decision point",
	Long: `Resolve records the operator's choice for an open decision point so the
next run can resume. Decision ids accept unambiguous prefixes; list open
decisions and their options with "stagehand status".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, err := resolveRepoRoot(cmd)
		if err != nil {
			return err
		}
		return resolveDecision(cmd, repoRoot, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func resolveDecision(cmd *cobra.Command, repoRoot string, decisionID string, option string) error {
	current, found, err := state.Load(repoRoot)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if !found {
		return fmt.Errorf("no run state found under %s", repoRoot)
	}

	decision, err := findDecision(current.DecisionPoints, decisionID)
	if err != nil {
		return err
	}
	if decision.Status != ledger.DecisionOpen {
		return fmt.Errorf("decision %s is already resolved as %q", decision.ID, decision.Resolution)
	}
	resolved, err := decision.Resolve(option)
	if err != nil {
		return err
	}

	next := state.Apply(current, state.Delta{DecisionPoints: []ledger.DecisionPoint{resolved}})
	if err := state.Save(repoRoot, next); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "decision %s resolved as %q\n", resolved.ID, resolved.Resolution)
	fmt.Fprintf(cmd.OutOrStdout(), "resume with: stagehand run \"RUN %s\"\n", next.FeatureID)
	return nil
}

// findDecision matches a decision by exact id or unambiguous prefix.
func findDecision(decisions []ledger.DecisionPoint, id string) (ledger.DecisionPoint, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ledger.DecisionPoint{}, fmt.Errorf("decision id is required")
	}
	var matches []ledger.DecisionPoint
	for _, decision := range decisions {
		if decision.ID == id {
			return decision, nil
		}
		if strings.HasPrefix(decision.ID, id) {
			matches = append(matches, decision)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return ledger.DecisionPoint{}, fmt.Errorf("no decision matches %q", id)
	default:
		return ledger.DecisionPoint{}, fmt.Errorf("decision id %q is ambiguous (%d matches)", id, len(matches))
	}
}
