package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hollowbranch/stagehand/internal/collab"
	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/state"
)

// runReviewer submits the drafted specification for review. The review
// itself happens in SPEC_REVIEW, which this step transits in one outcome:
// the draft either comes back approved, reopens clarification, or returns
// to drafting with reviewer feedback applied.
func (e *Engine) runReviewer(ctx context.Context, current state.State) Outcome {
	if err := ledger.CheckReviewGate(current.OpenQuestions, current.DecisionPoints); err != nil {
		if errors.Is(err, ledger.ErrQuestionsOpen) {
			e.writeDocument(current.FeatureID, specdoc.KindQuestions, renderQuestions(current.OpenQuestions))
			return Advance(state.Delta{
				Phase: phase.QuestionsPending,
				Messages: []state.Message{
					e.message(stepReviewer, "reviewer", "review deferred until open questions are answered"),
				},
			})
		}
		return Blocked(err.Error())
	}

	req := collab.ReviewRequest{
		FeatureID: current.FeatureID,
		Stage:     "spec",
		Documents: e.loadDocuments(current.FeatureID, specdoc.KindSpec, specdoc.KindClarifications),
	}

	e.auditCollabInvoke(current.FeatureID, "reviewer", stepReviewer)
	result, err := e.reviewer.Review(ctx, req)
	if err != nil {
		e.auditCollabOutcome(current.FeatureID, "reviewer", stepReviewer, "error")
		return e.recoverable(current, stepReviewer, fmt.Errorf("review specification: %w", err), "")
	}
	e.auditCollabOutcome(current.FeatureID, "reviewer", stepReviewer, "ok")

	if len(result.Questions) > 0 {
		e.writeDocument(current.FeatureID, specdoc.KindQuestions,
			renderQuestions(mergedOpenQuestions(current.OpenQuestions, result.Questions)))
		delta := state.Delta{
			Phase:         phase.QuestionsPending,
			OpenQuestions: result.Questions,
			Messages: []state.Message{
				e.message(stepReviewer, "reviewer", fmt.Sprintf("review raised %d question(s)", len(result.Questions))),
			},
		}
		return AdvanceVia(delta, phase.SpecReview)
	}

	if result.Approved {
		e.emitf("reviewer: specification approved for %s", current.FeatureID)
		delta := state.Delta{
			Phase: phase.SpecApproved,
			Messages: []state.Message{
				e.message(stepReviewer, "reviewer", "specification approved"),
			},
		}
		return AdvanceVia(delta, phase.SpecReview)
	}

	if len(result.Issues) == 0 {
		return e.recoverable(current, stepReviewer, errors.New("reviewer rejected the draft without naming issues"), "")
	}
	return e.redraftWithFeedback(ctx, current, result.Issues)
}

// redraftWithFeedback sends reviewer issues back through the planner so the
// run returns to SPEC_DRAFT with a revised document, not just a rejection.
func (e *Engine) redraftWithFeedback(ctx context.Context, current state.State, issues []string) Outcome {
	feedback := strings.Join(issues, "\n")
	req := collab.PlanRequest{
		FeatureID: current.FeatureID,
		Request:   current.Request,
		Documents: e.loadDocuments(current.FeatureID, specdoc.KindSpec, specdoc.KindClarifications),
		Feedback:  feedback,
	}

	e.auditCollabInvoke(current.FeatureID, "planner", stepReviewer)
	result, err := e.planner.Plan(ctx, req)
	if err != nil {
		e.auditCollabOutcome(current.FeatureID, "planner", stepReviewer, "error")
		return e.recoverable(current, stepReviewer, fmt.Errorf("redraft specification: %w", err), "")
	}
	e.auditCollabOutcome(current.FeatureID, "planner", stepReviewer, "ok")

	if strings.TrimSpace(result.Summary) == "" {
		return e.recoverable(current, stepReviewer, errors.New("planner returned an empty revision"), "")
	}
	e.writeDocument(current.FeatureID, specdoc.KindSpec, result.Summary)
	e.emitf("reviewer: revision requested for %s (%d issue(s))", current.FeatureID, len(issues))

	delta := state.Delta{
		Phase: phase.SpecDraft,
		Messages: []state.Message{
			e.message(stepReviewer, "reviewer", "revision requested: "+feedback),
			e.message(stepReviewer, "planner", "specification redrafted with review feedback"),
		},
	}
	if len(result.Questions) > 0 {
		delta.OpenQuestions = result.Questions
		e.writeDocument(current.FeatureID, specdoc.KindQuestions,
			renderQuestions(mergedOpenQuestions(current.OpenQuestions, result.Questions)))
	}
	return AdvanceVia(delta, phase.SpecReview)
}
