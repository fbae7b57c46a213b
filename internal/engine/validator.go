package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hollowbranch/stagehand/internal/budget"
	"github.com/hollowbranch/stagehand/internal/digests"
	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/state"
	"github.com/hollowbranch/stagehand/internal/validate"
)

// runValidator runs whole-project validation and surfaces drift in the
// approved documents alongside the verdict.
func (e *Engine) runValidator(ctx context.Context, current state.State) Outcome {
	outcome := e.judgeValidation(ctx, current)
	if msgs := e.detectDocDrift(current); len(msgs) > 0 && outcome.Kind == KindDelta {
		outcome.Delta.Messages = append(msgs, outcome.Delta.Messages...)
	}
	return outcome
}

// detectDocDrift compares the digests frozen at approval against the current
// documents. Drift is surfaced, not fatal: a manual-fix recovery legitimately
// edits the spec mid-run.
func (e *Engine) detectDocDrift(current state.State) []state.Message {
	if len(current.DocDigests) == 0 {
		return nil
	}
	drift, err := digests.Detect(e.repoRoot, current.FeatureID, current.DocDigests)
	if err != nil {
		e.warn(fmt.Sprintf("check document drift: %v", err))
		return nil
	}
	if !drift.HasDrift {
		return nil
	}
	e.warn(drift.Message)
	return []state.Message{e.message(stepValidator, "validator", drift.Message)}
}

// judgeValidation runs build, tests, and an optional service healthcheck. A
// project with no test commands is never silently passed; it opens an
// operator decision instead.
func (e *Engine) judgeValidation(ctx context.Context, current state.State) Outcome {
	report, err := e.validate(ctx, e.repoRoot, current.FeatureID)
	if err != nil {
		return e.recoverable(current, stepValidator, fmt.Errorf("run validation: %w", err), "")
	}

	e.writeDocument(current.FeatureID, specdoc.KindValidationReport, renderValidationReport(report))

	if report.NeedsDecision {
		decision, derr := ledger.NewDecisionPoint(
			current.Phase,
			phase.StageValidation,
			report.DecisionReason,
			budget.EscalationOptions(),
			"step="+stepValidator,
			e.now(),
		)
		if derr != nil {
			return Fatal(derr)
		}
		e.emitf("validator: operator decision needed: %s", report.DecisionReason)
		if e.auditor != nil {
			if aerr := e.auditor.LogDecisionOpen(current.FeatureID, decision.ID, current.Phase.String()); aerr != nil {
				e.warn(fmt.Sprintf("audit decision open: %v", aerr))
			}
		}
		return Advance(state.Delta{
			Phase:          phase.NeedsUserDecision,
			DecisionPoints: []ledger.DecisionPoint{decision},
			Messages: []state.Message{
				e.message(stepValidator, "validator", "validation needs an operator decision: "+report.DecisionReason),
			},
		})
	}

	if report.Passed() {
		e.emitf("validator: validation passed for %s", current.FeatureID)
		return Advance(state.Delta{
			ValidationStatus: state.ValidationPassed,
			Evidence:         validationEvidence(report, e.now()),
			Messages: []state.Message{
				e.message(stepValidator, "validator", "project validation passed: "+strings.Join(report.PhasesRan(), ", ")),
			},
		})
	}

	failure := fmt.Errorf("project validation failed: %s", validationFailureSummary(report))
	outcome := e.recoverable(current, stepValidator, failure, "")
	if outcome.Kind == KindDelta {
		outcome.Delta.ValidationStatus = state.ValidationFailed
		if outcome.Delta.Phase == "" {
			outcome.Delta.Phase = phase.Executing
		}
	}
	return outcome
}

// validationEvidence records the validation passes as evidence tied to their
// log artifacts.
func validationEvidence(report validate.Report, now func() time.Time) []ledger.Evidence {
	at := now().UTC()
	var evidence []ledger.Evidence
	if report.Build.Ran {
		evidence = append(evidence, ledger.Evidence{
			ID:         "validation-build",
			Type:       "validation",
			Command:    "build",
			OutputPath: firstPath(report.Build.Logs),
			Status:     "passed",
			CreatedAt:  at,
		})
	}
	if report.Tests.Ran {
		evidence = append(evidence, ledger.Evidence{
			ID:         "validation-test",
			Type:       "validation",
			Command:    "test",
			OutputPath: firstPath(report.Tests.Logs),
			Status:     "passed",
			CreatedAt:  at,
		})
	}
	if report.Health.Checked {
		evidence = append(evidence, ledger.Evidence{
			ID:        "validation-healthcheck",
			Type:      "validation",
			Command:   "healthcheck",
			Status:    "passed",
			CreatedAt: at,
		})
	}
	return evidence
}

func firstPath(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

// validationFailureSummary names the passes that went red.
func validationFailureSummary(report validate.Report) string {
	var failed []string
	if report.Build.Ran && !report.Build.Passed {
		failed = append(failed, "build")
	}
	if report.Tests.Ran && !report.Tests.Passed {
		failed = append(failed, "test")
	}
	if report.Health.Checked && !report.Health.Passed {
		failed = append(failed, "healthcheck")
	}
	if len(failed) == 0 {
		return "no validation pass ran"
	}
	return strings.Join(failed, ", ")
}

// renderValidationReport renders the validation outcome document.
func renderValidationReport(report validate.Report) string {
	var b strings.Builder
	b.WriteString("# Validation Report\n\n")
	writeStep := func(name string, step validate.StepResult) {
		if !step.Ran {
			fmt.Fprintf(&b, "- %s: skipped\n", name)
			return
		}
		status := "passed"
		if !step.Passed {
			status = "failed"
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, status)
		for _, log := range step.Logs {
			fmt.Fprintf(&b, "  - log: %s\n", log)
		}
	}
	writeStep("build", report.Build)
	writeStep("test", report.Tests)
	if report.Health.Checked {
		status := "passed"
		if !report.Health.Passed {
			status = "failed"
		}
		fmt.Fprintf(&b, "- healthcheck: %s\n", status)
	}
	if report.NeedsDecision {
		fmt.Fprintf(&b, "\nOperator decision needed: %s\n", report.DecisionReason)
	}
	return b.String()
}
