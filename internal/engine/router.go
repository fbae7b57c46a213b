package engine

import (
	"context"
	"fmt"

	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/state"
	"github.com/hollowbranch/stagehand/internal/task"
)

// Step names used for routing, entry validation, and audit records.
const (
	stepPlanner        = "planner"
	stepReviewer       = "reviewer"
	stepAnswers        = "answers"
	stepSupervisor     = "supervisor"
	stepExecute        = "execute"
	stepImplReview     = "implreview"
	stepValidator      = "validator"
	stepFinalValidator = "finalvalidator"
)

// step pairs a runnable with the phases it may be entered from.
type step struct {
	name  string
	entry phase.Set
	run   func(ctx context.Context, current state.State) Outcome
}

// steps returns the registry of processing steps with their entry whitelists.
func (e *Engine) steps() map[string]step {
	return map[string]step{
		stepPlanner: {
			name:  stepPlanner,
			entry: phase.NewSet(phase.Intake, phase.QuestionsPending, phase.ExecPlanned),
			run:   e.runPlanner,
		},
		stepReviewer: {
			name:  stepReviewer,
			entry: phase.NewSet(phase.SpecDraft),
			run:   e.runReviewer,
		},
		stepAnswers: {
			name:  stepAnswers,
			entry: phase.NewSet(phase.QuestionsPending),
			run:   e.runAnswers,
		},
		stepSupervisor: {
			name:  stepSupervisor,
			entry: phase.NewSet(phase.SpecApproved, phase.ExecPlanned, phase.Executing, phase.ImplReview),
			run:   e.runSupervisor,
		},
		stepExecute: {
			name:  stepExecute,
			entry: phase.NewSet(phase.ExecPlanned, phase.Executing, phase.ImplReview),
			run:   e.runExecute,
		},
		stepImplReview: {
			name:  stepImplReview,
			entry: phase.NewSet(phase.Executing, phase.ImplReview),
			run:   e.runImplReview,
		},
		stepValidator: {
			name:  stepValidator,
			entry: phase.NewSet(phase.Validating, phase.ImplReview),
			run:   e.runValidator,
		},
		stepFinalValidator: {
			name:  stepFinalValidator,
			entry: phase.NewSet(phase.Executing, phase.Validating),
			run:   e.runFinalValidator,
		},
	}
}

// route picks the step to run for the current resting phase. SPEC_REVIEW and
// TRACE_VALIDATION never rest between steps (the reviewer and final validator
// transit them inside one outcome), so finding the run parked there is a
// structural fault.
func (e *Engine) route(current state.State) (step, error) {
	registry := e.steps()

	switch current.Phase {
	case phase.Intake:
		return registry[stepPlanner], nil

	case phase.SpecDraft:
		return registry[stepReviewer], nil

	case phase.QuestionsPending:
		if ledger.HasOpenQuestions(current.OpenQuestions) {
			return registry[stepAnswers], nil
		}
		return registry[stepPlanner], nil

	case phase.SpecApproved:
		return registry[stepSupervisor], nil

	case phase.ExecPlanned:
		if len(current.Tasks) == 0 {
			return registry[stepPlanner], nil
		}
		return registry[stepSupervisor], nil

	case phase.Executing:
		if hasDispatchableWork(current.Tasks) {
			return registry[stepExecute], nil
		}
		if executionSettled(current.Tasks) {
			return registry[stepImplReview], nil
		}
		return registry[stepSupervisor], nil

	case phase.ImplReview:
		if hasDispatchableWork(current.Tasks) {
			return registry[stepExecute], nil
		}
		return registry[stepImplReview], nil

	case phase.Validating:
		if current.ValidationStatus == state.ValidationPassed {
			return registry[stepFinalValidator], nil
		}
		return registry[stepValidator], nil
	}

	return step{}, fmt.Errorf("no step is routable from phase %q", current.Phase)
}

// hasDispatchableWork reports whether any task is running or could be
// promoted to running right now.
func hasDispatchableWork(tasks []task.Task) bool {
	for _, t := range tasks {
		if t.Status == task.StatusRunning {
			return true
		}
	}
	return len(task.Ready(tasks)) > 0
}

// executionSettled reports whether the task set has reached a reviewable
// end state: everything completed, or at least one terminal failure with
// nothing left to dispatch.
func executionSettled(tasks []task.Task) bool {
	counts := task.CountByStatus(tasks)
	if counts[task.StatusRunning] > 0 {
		return false
	}
	if counts[task.StatusFailed] > 0 {
		return true
	}
	return counts[task.StatusPending] == 0
}
