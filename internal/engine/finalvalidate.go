package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hollowbranch/stagehand/internal/artifact"
	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/state"
	"github.com/hollowbranch/stagehand/internal/task"
	"github.com/hollowbranch/stagehand/internal/trace"
)

// runFinalValidator performs acceptance sign-off: it writes the requirement
// trace ledger and refuses DONE unless every requirement carries a passing,
// evidence-backed record. Passing validation is necessary but not sufficient.
func (e *Engine) runFinalValidator(ctx context.Context, current state.State) Outcome {
	_ = ctx

	requirementIDs := make([]string, 0, len(current.AcceptanceCriteria))
	for _, criterion := range current.AcceptanceCriteria {
		requirementIDs = append(requirementIDs, criterion.ID)
	}

	tracePath := specdoc.TracePath(e.repoRoot, current.FeatureID)
	traceLedger, found, err := trace.LoadFile(tracePath)
	if err != nil {
		return e.recoverable(current, stepFinalValidator, fmt.Errorf("load trace ledger: %w", err), "")
	}
	if !found {
		traceLedger = trace.NewLedger(current.FeatureID, requirementIDs, e.now())
	}

	for _, criterion := range current.AcceptanceCriteria {
		if err := traceLedger.Upsert(e.traceRecord(criterion, current.Evidence)); err != nil {
			return e.recoverable(current, stepFinalValidator, fmt.Errorf("trace requirement %s: %w", criterion.ID, err), "")
		}
	}

	if err := trace.WriteFile(tracePath, traceLedger); err != nil {
		return e.recoverable(current, stepFinalValidator, fmt.Errorf("write trace ledger: %w", err), "")
	}
	reportPath := filepath.Join(specdoc.FeatureDir(e.repoRoot, current.FeatureID),
		specdoc.Filename(specdoc.KindVerifyReport))
	if err := trace.WriteReport(reportPath, traceLedger); err != nil {
		e.warn(fmt.Sprintf("write verification report: %v", err))
	}

	problems := trace.Check(trace.CompletenessInput{
		RequirementIDs: requirementIDs,
		Ledger:         traceLedger,
		Root:           e.repoRoot,
		PhasesRan:      e.claimedValidationPhases(),
		LogArtifacts:   e.countLogArtifacts(),
	})

	if len(problems) == 0 {
		e.writeDocument(current.FeatureID, specdoc.KindSummary, renderRunSummary(current))
		e.emitf("finalvalidator: all %d requirement(s) verified for %s", len(requirementIDs), current.FeatureID)
		delta := state.Delta{
			Phase: phase.Done,
			Messages: []state.Message{
				e.message(stepFinalValidator, "validator", fmt.Sprintf("acceptance complete: %d requirement(s) verified", len(requirementIDs))),
			},
		}
		return AdvanceVia(delta, phase.TraceValidation)
	}

	// Completeness failed after green validation: the run lands in FAILED,
	// never DONE.
	now := e.now().UTC()
	delta := state.Delta{Phase: phase.Failed}
	for _, problem := range problems {
		e.warn("completeness: " + problem)
		delta.ErrorLog = append(delta.ErrorLog, state.ErrorLogEntry{
			Step:      stepFinalValidator,
			Error:     problem,
			Phase:     current.Phase,
			Stage:     phase.StageValidation,
			Timestamp: now,
		})
	}
	delta.Messages = append(delta.Messages, e.message(stepFinalValidator, "validator",
		fmt.Sprintf("evidence completeness failed with %d problem(s)", len(problems))))
	e.emitf("finalvalidator: completeness failed for %s (%d problem(s))", current.FeatureID, len(problems))
	return AdvanceVia(delta, phase.TraceValidation)
}

// traceRecord maps one acceptance criterion and its evidence to a trace
// record. A satisfied criterion with no evidence still records as pass so
// the completeness check, not this mapping, is the authority that rejects it.
func (e *Engine) traceRecord(criterion ledger.AcceptanceCriterion, evidence []ledger.Evidence) trace.Record {
	record := trace.Record{
		RequirementID: criterion.ID,
		Status:        trace.StatusUnknown,
		UpdatedAt:     e.now().UTC(),
	}
	if !criterion.Satisfied {
		return record
	}

	record.Status = trace.StatusPass
	var descriptions []string
	for _, ev := range evidence {
		if ev.RequirementID != criterion.ID {
			continue
		}
		descriptions = append(descriptions, fmt.Sprintf("%s evidence %s (%s)", ev.Type, ev.ID, ev.Status))
		if ev.OutputPath != "" {
			record.EvidencePaths = append(record.EvidencePaths, ev.OutputPath)
		}
		if ev.Command != "" && record.VerificationMethod == "" {
			record.VerificationMethod = ev.Command
		}
	}
	record.Evidence = strings.Join(descriptions, "; ")
	if record.VerificationMethod == "" && record.Evidence != "" {
		record.VerificationMethod = "task validation"
	}
	return record
}

// claimedValidationPhases lists the phases the persisted validation summary
// says ran.
func (e *Engine) claimedValidationPhases() []string {
	summary, found, err := artifact.LoadSummary(e.repoRoot)
	if err != nil {
		e.warn(fmt.Sprintf("load validation summary: %v", err))
		return nil
	}
	if !found {
		return nil
	}
	phases := make([]string, 0, len(summary.Phases))
	for name := range summary.Phases {
		phases = append(phases, name)
	}
	sort.Strings(phases)
	return phases
}

// countLogArtifacts tallies persisted log artifacts per validation phase.
func (e *Engine) countLogArtifacts() map[string]int {
	counts, err := artifact.CountByType(e.repoRoot)
	if err != nil {
		e.warn(fmt.Sprintf("count log artifacts: %v", err))
		return nil
	}
	return counts
}

// renderRunSummary renders the final summary document for a finished run.
func renderRunSummary(current state.State) string {
	counts := task.CountByStatus(current.Tasks)
	var b strings.Builder
	b.WriteString("# Run Summary\n\n")
	fmt.Fprintf(&b, "Feature: %s\n\n", current.FeatureID)
	fmt.Fprintf(&b, "- tasks: %d completed, %d failed\n",
		counts[task.StatusCompleted], counts[task.StatusFailed])
	fmt.Fprintf(&b, "- requirements: %d\n", len(current.AcceptanceCriteria))
	fmt.Fprintf(&b, "- evidence records: %d\n", len(current.Evidence))
	if len(current.DeploymentURLs) > 0 {
		b.WriteString("\nDeployments:\n")
		keys := make([]string, 0, len(current.DeploymentURLs))
		for key := range current.DeploymentURLs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", key, current.DeploymentURLs[key])
		}
	}
	return b.String()
}
