// Package budget tracks per-stage retry budgets and converts exhausted
// budgets into blocking decision points.
package budget

import (
	"fmt"
	"time"

	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/state"
)

// Operator options offered on every budget-exhaustion decision point.
const (
	OptionManualFix      = "continue-with-manual-fix"
	OptionRetryDifferent = "retry-different-approach"
	OptionSkipStep       = "skip-step"
	OptionAbort          = "abort-and-review"
)

// EscalationOptions returns the fixed option set in presentation order.
func EscalationOptions() []string {
	return []string{OptionManualFix, OptionRetryDifferent, OptionSkipStep, OptionAbort}
}

// Outcome reports how a recoverable error was absorbed.
type Outcome struct {
	Delta     state.Delta
	Stage     phase.Stage
	Attempt   int
	Escalated bool
}

// HandleRecoverable books a recoverable error against the stage owning the
// current phase: it increments the stage counter, appends an error log
// entry, and, once the ceiling is reached, synthesizes an open decision
// point and forces the pipeline into NEEDS_USER_DECISION.
func HandleRecoverable(current state.State, step string, failure error, taskID string, now time.Time) (Outcome, error) {
	if failure == nil {
		return Outcome{}, fmt.Errorf("step %s: recoverable error is required", step)
	}

	stage := phase.StageFor(current.Phase)
	stageBudget := current.Budget(stage)
	attempt := stageBudget.Current + 1

	entry := state.ErrorLogEntry{
		Step:      step,
		Error:     failure.Error(),
		Phase:     current.Phase,
		Stage:     stage,
		Timestamp: now.UTC(),
		TaskID:    taskID,
	}

	delta := state.Delta{
		ErrorLog: []state.ErrorLogEntry{entry},
		RetryBudget: map[phase.Stage]state.BudgetDelta{
			stage: {Current: state.IntPtr(attempt)},
		},
	}

	outcome := Outcome{Delta: delta, Stage: stage, Attempt: attempt}
	if attempt < stageBudget.Max {
		return outcome, nil
	}

	description := fmt.Sprintf(
		"Retry limit reached for %s stage (%d/%d attempts). Error: %s",
		stage, attempt, stageBudget.Max, failure.Error(),
	)
	context := fmt.Sprintf("step=%s phase=%s", step, current.Phase)
	if taskID != "" {
		context += " task=" + taskID
	}
	decision, err := ledger.NewDecisionPoint(current.Phase, stage, description, EscalationOptions(), context, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("step %s: build decision point: %w", step, err)
	}

	outcome.Delta.DecisionPoints = []ledger.DecisionPoint{decision}
	outcome.Delta.Phase = phase.NeedsUserDecision
	outcome.Escalated = true
	return outcome, nil
}

// HandleStructural books a structural error: no retry, the run is forced
// into FAILED.
func HandleStructural(current state.State, step string, failure error, now time.Time) state.Delta {
	stage := phase.StageFor(current.Phase)
	entry := state.ErrorLogEntry{
		Step:      step,
		Error:     failure.Error(),
		Phase:     current.Phase,
		Stage:     stage,
		Timestamp: now.UTC(),
	}
	return state.Delta{
		ErrorLog: []state.ErrorLogEntry{entry},
		Phase:    phase.Failed,
	}
}
