package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hollowbranch/stagehand/internal/collab"
	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/state"
	"github.com/hollowbranch/stagehand/internal/task"
)

// runPlanner drafts the specification or decomposes the approved plan into
// tasks, depending on where the run sits.
func (e *Engine) runPlanner(ctx context.Context, current state.State) Outcome {
	if current.Phase == phase.ExecPlanned {
		return e.decomposeTasks(ctx, current)
	}
	return e.draftSpec(ctx, current)
}

// draftSpec asks the planner for a specification draft. Entered fresh from
// INTAKE, or from QUESTIONS_PENDING with all answers collected for a redraft.
func (e *Engine) draftSpec(ctx context.Context, current state.State) Outcome {
	req := collab.PlanRequest{
		FeatureID: current.FeatureID,
		Request:   current.Request,
		Documents: e.loadDocuments(current.FeatureID, specdoc.KindSpec, specdoc.KindClarifications),
	}
	if current.Phase == phase.QuestionsPending {
		req.Answered = answeredQuestions(current.OpenQuestions)
	}

	e.auditCollabInvoke(current.FeatureID, "planner", stepPlanner)
	result, err := e.planner.Plan(ctx, req)
	if err != nil {
		e.auditCollabOutcome(current.FeatureID, "planner", stepPlanner, "error")
		return e.recoverable(current, stepPlanner, fmt.Errorf("draft specification: %w", err), "")
	}
	e.auditCollabOutcome(current.FeatureID, "planner", stepPlanner, "ok")

	if strings.TrimSpace(result.Summary) == "" {
		return e.recoverable(current, stepPlanner, errors.New("planner returned an empty specification draft"), "")
	}
	e.writeDocument(current.FeatureID, specdoc.KindSpec, result.Summary)

	delta := state.Delta{
		Phase:    phase.SpecDraft,
		Messages: []state.Message{e.message(stepPlanner, "planner", "specification drafted")},
	}
	if len(result.Questions) > 0 {
		delta.OpenQuestions = result.Questions
		e.writeDocument(current.FeatureID, specdoc.KindQuestions,
			renderQuestions(mergedOpenQuestions(current.OpenQuestions, result.Questions)))
		delta.Messages = append(delta.Messages,
			e.message(stepPlanner, "planner", fmt.Sprintf("%d clarification question(s) raised", len(result.Questions))))
	}
	e.emitf("planner: specification drafted for %s", current.FeatureID)
	return Advance(delta)
}

// decomposeTasks asks the planner to break the approved specification into
// role-assigned tasks. Open questions are a hard stop here even though the
// phase already reads EXEC_PLANNED.
func (e *Engine) decomposeTasks(ctx context.Context, current state.State) Outcome {
	if err := ledger.CheckExecutionGate(current.OpenQuestions); err != nil {
		return Blocked(fmt.Sprintf("%s; answer them in %s", err,
			specdoc.Filename(specdoc.KindClarifications)))
	}

	req := collab.PlanRequest{
		FeatureID: current.FeatureID,
		Request:   current.Request,
		Documents: e.loadDocuments(current.FeatureID, specdoc.KindSpec, specdoc.KindPlan, specdoc.KindClarifications),
	}

	e.auditCollabInvoke(current.FeatureID, "planner", stepPlanner)
	result, err := e.planner.Plan(ctx, req)
	if err != nil {
		e.auditCollabOutcome(current.FeatureID, "planner", stepPlanner, "error")
		return e.recoverable(current, stepPlanner, fmt.Errorf("decompose plan: %w", err), "")
	}
	e.auditCollabOutcome(current.FeatureID, "planner", stepPlanner, "ok")

	if len(result.Tasks) == 0 {
		return e.recoverable(current, stepPlanner, errors.New("planner returned no tasks for the approved plan"), "")
	}

	tasks, err := normalizeTasks(result.Tasks)
	if err != nil {
		return e.recoverable(current, stepPlanner, err, "")
	}
	if err := task.DetectCycles(tasks); err != nil {
		return e.recoverable(current, stepPlanner, err, "")
	}

	delta := state.Delta{
		Tasks:              tasks,
		AcceptanceCriteria: criteriaForTasks(tasks),
		Messages: []state.Message{
			e.message(stepPlanner, "planner", fmt.Sprintf("plan decomposed into %d task(s)", len(tasks))),
		},
	}

	if missing := task.MissingDependencies(tasks); len(missing) > 0 {
		delta.Messages = append(delta.Messages,
			e.message(stepPlanner, "planner", describeMissingDependencies(missing)))
	}
	if len(result.Questions) > 0 {
		delta.OpenQuestions = result.Questions
		e.writeDocument(current.FeatureID, specdoc.KindQuestions,
			renderQuestions(mergedOpenQuestions(current.OpenQuestions, result.Questions)))
	}

	if strings.TrimSpace(result.Summary) != "" {
		e.writeDocument(current.FeatureID, specdoc.KindPlan, result.Summary)
	}
	e.writeDocument(current.FeatureID, specdoc.KindTasks, renderTasks(tasks))
	e.emitf("planner: %d task(s) planned for %s", len(tasks), current.FeatureID)
	return Advance(delta)
}

// normalizeTasks validates planner-produced tasks and defaults their status.
func normalizeTasks(tasks []task.Task) ([]task.Task, error) {
	normalized := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		clone := t.Clone()
		if strings.TrimSpace(clone.ID) == "" {
			return nil, errors.New("planner produced a task without an id")
		}
		if _, err := task.ParseRole(string(clone.Role)); err != nil {
			return nil, fmt.Errorf("task %s: %w", clone.ID, err)
		}
		if clone.Status == "" {
			clone.Status = task.StatusPending
		}
		normalized = append(normalized, clone)
	}
	return normalized, nil
}

// criteriaForTasks derives one acceptance criterion per planned task.
func criteriaForTasks(tasks []task.Task) []ledger.AcceptanceCriterion {
	criteria := make([]ledger.AcceptanceCriterion, 0, len(tasks))
	for _, t := range tasks {
		criteria = append(criteria, ledger.AcceptanceCriterion{
			ID:          criterionID(t.ID),
			Description: t.Description,
		})
	}
	return criteria
}

// criterionID names the acceptance criterion derived from a task.
func criterionID(taskID string) string {
	return "AC-" + taskID
}

// mergedOpenQuestions overlays incoming questions by id, preserving order.
func mergedOpenQuestions(current []ledger.OpenQuestion, incoming []ledger.OpenQuestion) []ledger.OpenQuestion {
	seen := make(map[string]int, len(current))
	merged := make([]ledger.OpenQuestion, 0, len(current)+len(incoming))
	for _, q := range current {
		seen[q.ID] = len(merged)
		merged = append(merged, q)
	}
	for _, q := range incoming {
		if at, ok := seen[q.ID]; ok {
			merged[at] = q
			continue
		}
		seen[q.ID] = len(merged)
		merged = append(merged, q)
	}
	return merged
}

// answeredQuestions filters to questions the user already resolved.
func answeredQuestions(questions []ledger.OpenQuestion) []ledger.OpenQuestion {
	var answered []ledger.OpenQuestion
	for _, q := range questions {
		if q.Status == ledger.QuestionAnswered {
			answered = append(answered, q)
		}
	}
	return answered
}

// describeMissingDependencies summarizes dangling dependency ids. Dangling
// edges are legal but never satisfiable, so the run surfaces them early.
func describeMissingDependencies(missing map[string][]string) string {
	ids := make([]string, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		deps := append([]string(nil), missing[id]...)
		sort.Strings(deps)
		parts = append(parts, fmt.Sprintf("%s waits on unknown %s", id, strings.Join(deps, ", ")))
	}
	return "dangling dependencies will never be satisfied: " + strings.Join(parts, "; ")
}

// renderQuestions renders the questions document the user answers against.
// Numbering follows the open questions in listed order, matching the answer
// parser's expectations.
func renderQuestions(questions []ledger.OpenQuestion) string {
	open := ledger.OpenQuestions(questions)
	if len(open) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Open Questions\n\n")
	b.WriteString("Answer in ")
	b.WriteString(specdoc.Filename(specdoc.KindClarifications))
	b.WriteString(", one numbered line per question, e.g. `#1: your answer`.\n\n")
	for i, q := range open {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Question)
		if len(q.Options) > 0 {
			fmt.Fprintf(&b, "   Options: %s\n", strings.Join(q.Options, " / "))
		}
	}
	return b.String()
}

// renderTasks renders the task breakdown document.
func renderTasks(tasks []task.Task) string {
	var b strings.Builder
	b.WriteString("# Tasks\n\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "- **%s** (%s): %s\n", t.ID, t.Role, t.Description)
		if len(t.Dependencies) > 0 {
			fmt.Fprintf(&b, "  - depends on: %s\n", strings.Join(t.Dependencies, ", "))
		}
	}
	return b.String()
}
