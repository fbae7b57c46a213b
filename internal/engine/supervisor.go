package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hollowbranch/stagehand/internal/digests"
	"github.com/hollowbranch/stagehand/internal/dispatch"
	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/state"
)

// runSupervisor moves the run across stage boundaries and surfaces
// execution deadlocks. It holds the second question gate: even a planned
// run does not start executing while clarifications are open.
func (e *Engine) runSupervisor(ctx context.Context, current state.State) Outcome {
	_ = ctx

	switch current.Phase {
	case phase.SpecApproved:
		delta := state.Delta{
			Phase: phase.ExecPlanned,
			Messages: []state.Message{
				e.message(stepSupervisor, "supervisor", "specification approved, planning execution"),
			},
		}
		if frozen, err := digests.Compute(e.repoRoot, current.FeatureID); err != nil {
			e.warn(fmt.Sprintf("fingerprint approved documents: %v", err))
		} else if len(frozen) > 0 {
			delta.DocDigests = frozen
		}
		e.emitf("supervisor: execution planning started for %s", current.FeatureID)
		return Advance(delta)

	case phase.ExecPlanned:
		if err := ledger.CheckExecutionGate(current.OpenQuestions); err != nil {
			return Blocked(fmt.Sprintf("%s; answer them in %s", err,
				specdoc.Filename(specdoc.KindClarifications)))
		}
		if ledger.HasOpenDecisions(current.DecisionPoints) {
			return Blocked("open decision points block execution")
		}
		e.emitf("supervisor: execution started for %s (%d task(s))", current.FeatureID, len(current.Tasks))
		return Advance(state.Delta{
			Phase: phase.Executing,
			Messages: []state.Message{
				e.message(stepSupervisor, "supervisor", fmt.Sprintf("execution started with %d task(s)", len(current.Tasks))),
			},
		})

	default:
		if description, stalled := dispatch.Stalled(current.Tasks); stalled {
			return Fatal(errors.New(description))
		}
		return Advance(state.Delta{
			Messages: []state.Message{
				e.message(stepSupervisor, "supervisor", "no progress required"),
			},
		})
	}
}
