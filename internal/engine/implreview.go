package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hollowbranch/stagehand/internal/collab"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/state"
	"github.com/hollowbranch/stagehand/internal/task"
)

// correctiveLimit caps how many corrective tasks one original may spawn.
const correctiveLimit = 5

// runImplReview submits the implementation for review once execution settles.
// Failed tasks and actionable reviewer issues become corrective tasks that
// send the run back to EXECUTING; a clean approval moves it to VALIDATING.
func (e *Engine) runImplReview(ctx context.Context, current state.State) Outcome {
	var via []phase.Phase
	if current.Phase == phase.Executing {
		via = []phase.Phase{phase.ImplReview}
	}

	req := collab.ReviewRequest{
		FeatureID: current.FeatureID,
		Stage:     "implementation",
		Documents: e.loadDocuments(current.FeatureID, specdoc.KindSpec, specdoc.KindPlan, specdoc.KindTasks),
	}

	e.auditCollabInvoke(current.FeatureID, "reviewer", stepImplReview)
	result, err := e.reviewer.Review(ctx, req)
	if err != nil {
		e.auditCollabOutcome(current.FeatureID, "reviewer", stepImplReview, "error")
		return e.recoverable(current, stepImplReview, fmt.Errorf("review implementation: %w", err), "")
	}
	e.auditCollabOutcome(current.FeatureID, "reviewer", stepImplReview, "ok")

	correctives, unmatched, limited := e.deriveCorrectives(current, result.Issues)

	delta := state.Delta{}
	if len(result.Questions) > 0 {
		delta.OpenQuestions = result.Questions
		delta.Messages = append(delta.Messages,
			e.message(stepImplReview, "reviewer", fmt.Sprintf("review noted %d question(s)", len(result.Questions))))
	}
	for _, issue := range unmatched {
		delta.Messages = append(delta.Messages,
			e.message(stepImplReview, "reviewer", "review issue (no matching task): "+issue))
	}

	if len(correctives) > 0 {
		delta.Tasks = correctives
		delta.Phase = phase.Executing
		delta.Messages = append(delta.Messages,
			e.message(stepImplReview, "reviewer", fmt.Sprintf("%d corrective task(s) created", len(correctives))))
		e.writeDocument(current.FeatureID, specdoc.KindTasks,
			renderTasks(state.Apply(current, state.Delta{Tasks: correctives}).Tasks))
		e.emitf("implreview: %d corrective task(s) for %s", len(correctives), current.FeatureID)
		return AdvanceVia(delta, via...)
	}

	if limited {
		return e.recoverable(current, stepImplReview,
			errors.New("corrective limit reached and review found remaining problems"), "")
	}

	if result.Approved && !anyFailed(current.Tasks) {
		delta.Phase = phase.Validating
		delta.Messages = append(delta.Messages,
			e.message(stepImplReview, "reviewer", "implementation approved"))
		e.emitf("implreview: implementation approved for %s", current.FeatureID)
		return AdvanceVia(delta, via...)
	}

	return e.recoverable(current, stepImplReview,
		fmt.Errorf("review requested changes but no corrective tasks could be derived: %s",
			strings.Join(result.Issues, "; ")), "")
}

// deriveCorrectives builds corrective tasks for terminally failed tasks and
// for reviewer issues that name a task. Failed originals return to pending
// with their feedback so the corrective chain can complete.
func (e *Engine) deriveCorrectives(current state.State, issues []string) (correctives []task.Task, unmatched []string, limited bool) {
	known := append([]task.Task(nil), current.Tasks...)
	seen := make(map[string]bool)

	addCorrective := func(orig task.Task, description string) {
		if seen[orig.ID] {
			return
		}
		seen[orig.ID] = true

		sequence := countCorrectives(known, orig.ID) + 1
		if sequence > correctiveLimit {
			limited = true
			e.warn(fmt.Sprintf("task %s already has %d corrective(s), not creating another", orig.ID, sequence-1))
			return
		}
		corrective := task.Task{
			ID:           fmt.Sprintf("corrective_%s_%d", orig.ID, sequence),
			Description:  description,
			Role:         orig.Role,
			Status:       task.StatusPending,
			Dependencies: []string{orig.ID},
		}
		known = append(known, corrective)
		correctives = append(correctives, corrective)

		if orig.Status == task.StatusFailed {
			reset := orig.Clone()
			reset.Status = task.StatusPending
			reset.Feedback = description
			e.auditTaskTransition(current.FeatureID, reset.ID, string(task.StatusFailed), string(task.StatusPending))
			correctives = append(correctives, reset)
		}
	}

	for _, t := range current.Tasks {
		if t.Status != task.StatusFailed {
			continue
		}
		description := t.Feedback
		if strings.TrimSpace(description) == "" {
			description = "address repeated failures in: " + t.Description
		}
		addCorrective(t, description)
	}

	for _, issue := range issues {
		orig, ok := matchIssueToTask(issue, current.Tasks)
		if !ok {
			unmatched = append(unmatched, issue)
			continue
		}
		addCorrective(orig, issue)
	}
	return correctives, unmatched, limited
}

// countCorrectives counts correctives already derived from the task.
func countCorrectives(tasks []task.Task, origID string) int {
	prefix := "corrective_" + origID + "_"
	count := 0
	for _, t := range tasks {
		if strings.HasPrefix(t.ID, prefix) {
			count++
		}
	}
	return count
}

// matchIssueToTask finds the task whose id the issue names, preferring the
// longest id when several are substrings of each other.
func matchIssueToTask(issue string, tasks []task.Task) (task.Task, bool) {
	var best task.Task
	found := false
	for _, t := range tasks {
		if !strings.Contains(issue, t.ID) {
			continue
		}
		if !found || len(t.ID) > len(best.ID) {
			best = t
			found = true
		}
	}
	return best, found
}

// anyFailed reports whether any task is terminally failed.
func anyFailed(tasks []task.Task) bool {
	for _, t := range tasks {
		if t.Status == task.StatusFailed {
			return true
		}
	}
	return false
}
