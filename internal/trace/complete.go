package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CompletenessInput bundles everything the evidence-completeness gate
// inspects before the pipeline may reach DONE.
type CompletenessInput struct {
	// RequirementIDs lists every requirement referenced by the
	// specification documents.
	RequirementIDs []string
	// Ledger is the trace ledger for the feature.
	Ledger Ledger
	// Root anchors relative evidence paths for the on-disk existence check.
	Root string
	// PhasesRan names the validation phases that claim to have executed
	// (for example "build" and "test").
	PhasesRan []string
	// LogArtifacts counts persisted log artifacts per validation phase.
	LogArtifacts map[string]int
}

// Check returns every completeness violation. An empty slice means the
// evidence gate holds; passing validation alone is never sufficient.
func Check(input CompletenessInput) []string {
	var problems []string

	for _, id := range input.RequirementIDs {
		record, ok := input.Ledger.ByRequirement(id)
		if !ok {
			problems = append(problems, fmt.Sprintf("requirement %s has no trace record", id))
			continue
		}
		if record.Status == StatusUnknown {
			problems = append(problems, fmt.Sprintf("requirement %s has unknown trace status", id))
			continue
		}
		if record.Status != StatusPass {
			continue
		}
		if strings.TrimSpace(record.Evidence) == "" && len(record.EvidencePaths) == 0 {
			problems = append(problems, fmt.Sprintf("requirement %s passed without evidence", id))
		}
		for _, path := range record.EvidencePaths {
			resolved := path
			if !filepath.IsAbs(resolved) {
				resolved = filepath.Join(input.Root, resolved)
			}
			if _, err := os.Stat(resolved); err != nil {
				problems = append(problems, fmt.Sprintf("requirement %s evidence path %s is missing", id, path))
			}
		}
	}

	for _, ran := range input.PhasesRan {
		if input.LogArtifacts[ran] < 1 {
			problems = append(problems, fmt.Sprintf("validation phase %s ran without a log artifact", ran))
		}
	}

	return problems
}
