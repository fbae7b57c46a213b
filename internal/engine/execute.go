package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hollowbranch/stagehand/internal/budget"
	"github.com/hollowbranch/stagehand/internal/collab"
	"github.com/hollowbranch/stagehand/internal/dispatch"
	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/snapshot"
	"github.com/hollowbranch/stagehand/internal/state"
	"github.com/hollowbranch/stagehand/internal/task"
	"github.com/hollowbranch/stagehand/internal/validate"
)

// branchResult pairs one running task with its executor's answer.
type branchResult struct {
	task task.Task
	work collab.WorkResult
	err  error
}

// runExecute promotes ready tasks, fans them out to the executor under the
// concurrency limit, validates each result, and folds all branch deltas into
// one outcome. Branches never see each other's in-flight state; every branch
// reads the snapshot taken before the fan-out.
func (e *Engine) runExecute(ctx context.Context, current state.State) Outcome {
	working := current.Clone()
	var agg state.Delta

	selection := dispatch.Select(working.Tasks, e.cfg.Concurrency.MaxParallelTasks)
	if len(selection.Promoted) > 0 {
		for _, t := range selection.Promoted {
			e.auditTaskDispatch(working.FeatureID, t.ID, string(t.Role))
			e.auditTaskTransition(working.FeatureID, t.ID, string(task.StatusPending), string(task.StatusRunning))
		}
		promote := state.Delta{Tasks: selection.Promoted}
		agg = combineDelta(agg, promote)
		working = state.Apply(working, promote)
	}

	branches := working.RunningTasks()
	if len(branches) == 0 {
		agg.Messages = append(agg.Messages, e.message(stepExecute, "dispatcher", "nothing to execute"))
		return Advance(agg)
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].ID < branches[j].ID })

	snap := working.FilesSnapshot
	if len(snap) == 0 {
		scanned, err := snapshot.Scan(e.repoRoot)
		if err != nil {
			e.warn(fmt.Sprintf("scan workspace: %v", err))
		} else {
			snap = scanned
		}
	}

	results := e.fanOut(ctx, working.FeatureID, branches, snap)

	escalated := false
	for _, result := range results {
		var delta state.Delta
		switch {
		case result.err != nil:
			delta = e.failBranch(working, result.task,
				fmt.Errorf("execute task %s: %w", result.task.ID, result.err), &escalated)
		default:
			delta = e.judgeBranch(working, result)
		}
		agg = combineDelta(agg, delta)
		working = state.Apply(working, delta)
	}

	if scanned, err := snapshot.Scan(e.repoRoot); err == nil && len(scanned) > 0 {
		agg.FilesSnapshot = scanned
	}

	counts := task.CountByStatus(working.Tasks)
	summary := fmt.Sprintf("executed %d branch(es): %d completed, %d pending, %d failed",
		len(branches), counts[task.StatusCompleted], counts[task.StatusPending], counts[task.StatusFailed])
	agg.Messages = append(agg.Messages, e.message(stepExecute, "dispatcher", summary))
	e.emitf("execute: %s", summary)

	if !escalated && current.Phase != phase.Executing {
		agg.Phase = phase.Executing
	}
	return Advance(agg)
}

// fanOut runs every branch concurrently and returns results in branch order.
func (e *Engine) fanOut(ctx context.Context, featureID string, branches []task.Task, snap map[string]string) []branchResult {
	results := make([]branchResult, len(branches))
	var wg sync.WaitGroup
	for i, t := range branches {
		e.auditCollabInvoke(featureID, string(t.Role), stepExecute)
		wg.Add(1)
		go func(slot int, t task.Task) {
			defer wg.Done()
			work, err := e.executor.Execute(ctx, collab.WorkRequest{
				FeatureID: featureID,
				Task:      t,
				Snapshot:  snap,
			})
			results[slot] = branchResult{task: t, work: work, err: err}
		}(i, t.Clone())
	}
	wg.Wait()

	for _, result := range results {
		status := "ok"
		if result.err != nil {
			status = "error"
		}
		e.auditCollabOutcome(featureID, string(result.task.Role), stepExecute, status)
	}
	return results
}

// judgeBranch validates a successful executor result and produces the
// branch's delta: completion with evidence, or a task-local retry.
func (e *Engine) judgeBranch(working state.State, result branchResult) state.Delta {
	report, err := validate.ValidateTask(validate.TaskInput{
		RepoRoot:     e.repoRoot,
		Task:         result.task,
		ChangedFiles: result.work.ChangedFiles,
		WorkerOutput: result.work.Narrative,
		Now:          e.now(),
	})
	if err != nil {
		updated := retreatTask(result.task, err.Error(), e.taskRetryCeiling())
		e.auditTaskTransition(working.FeatureID, updated.ID, string(task.StatusRunning), string(updated.Status))
		return state.Delta{
			Tasks: []task.Task{updated},
			Messages: []state.Message{
				e.message(stepExecute, "validator", fmt.Sprintf("task %s validation errored: %v", updated.ID, err)),
			},
		}
	}

	if report.Passed {
		return e.completeBranch(working, result, report)
	}

	updated := retreatTask(result.task, report.Summary(), e.taskRetryCeiling())
	e.auditTaskTransition(working.FeatureID, updated.ID, string(task.StatusRunning), string(updated.Status))
	return state.Delta{
		Tasks: []task.Task{updated},
		Messages: []state.Message{
			e.message(stepExecute, "validator", fmt.Sprintf("task %s failed validation: %s", updated.ID, report.Summary())),
		},
	}
}

// completeBranch marks the task done and records its evidence and any
// deployment URLs the validator extracted.
func (e *Engine) completeBranch(working state.State, result branchResult, report validate.TaskReport) state.Delta {
	updated := result.task.Clone()
	updated.Status = task.StatusCompleted
	updated.Feedback = ""
	e.auditTaskTransition(working.FeatureID, updated.ID, string(task.StatusRunning), string(task.StatusCompleted))

	delta := state.Delta{
		Tasks:    []task.Task{updated},
		Evidence: e.branchEvidence(updated, result.work.Evidence),
		AcceptanceCriteria: []ledger.AcceptanceCriterion{
			{ID: criterionID(updated.ID), Description: updated.Description, Satisfied: true},
		},
		Messages: []state.Message{
			e.message(stepExecute, "validator", fmt.Sprintf("task %s completed", updated.ID)),
		},
	}
	if len(report.DeploymentURLs) > 0 {
		delta.DeploymentURLs = report.DeploymentURLs
	}
	return delta
}

// branchEvidence normalizes worker-reported evidence for a completed task,
// synthesizing a minimal record when the worker reported none.
func (e *Engine) branchEvidence(t task.Task, reported []ledger.Evidence) []ledger.Evidence {
	now := e.now().UTC()
	if len(reported) == 0 {
		return []ledger.Evidence{{
			ID:            "task-" + t.ID,
			Type:          "task",
			RequirementID: criterionID(t.ID),
			Status:        "completed",
			CreatedAt:     now,
		}}
	}

	normalized := make([]ledger.Evidence, 0, len(reported))
	for i, ev := range reported {
		if ev.ID == "" {
			ev.ID = fmt.Sprintf("task-%s-%d", t.ID, i+1)
		}
		if ev.Type == "" {
			ev.Type = "task"
		}
		if ev.Status == "" {
			ev.Status = "completed"
		}
		if ev.RequirementID == "" {
			ev.RequirementID = criterionID(t.ID)
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = now
		}
		normalized = append(normalized, ev)
	}
	return normalized
}

// failBranch books an executor failure: the task retreats or fails, and the
// error counts against the stage budget. Once one branch exhausts the budget
// in a pass, sibling failures keep logging and counting without opening a
// second decision point.
func (e *Engine) failBranch(working state.State, t task.Task, failure error, escalated *bool) state.Delta {
	updated := retreatTask(t, failure.Error(), e.taskRetryCeiling())
	e.auditTaskTransition(working.FeatureID, updated.ID, string(task.StatusRunning), string(updated.Status))
	delta := state.Delta{Tasks: []task.Task{updated}}

	if *escalated {
		stage := phase.StageFor(working.Phase)
		delta.ErrorLog = []state.ErrorLogEntry{{
			Step:      stepExecute,
			Error:     failure.Error(),
			Phase:     working.Phase,
			Stage:     stage,
			Timestamp: e.now().UTC(),
			TaskID:    t.ID,
		}}
		delta.RetryBudget = map[phase.Stage]state.BudgetDelta{
			stage: {Current: state.IntPtr(working.Budget(stage).Current + 1)},
		}
		return delta
	}

	bo, err := budget.HandleRecoverable(working, stepExecute, failure, t.ID, e.now())
	if err != nil {
		e.warn(fmt.Sprintf("book task failure: %v", err))
		return delta
	}
	e.warn(fmt.Sprintf("%s: %v", stepExecute, failure))
	if bo.Escalated {
		*escalated = true
		e.auditEscalation(working.FeatureID, bo, working.Phase)
	}
	return combineDelta(delta, bo.Delta)
}

// retreatTask returns a failed task to pending with feedback, or marks it
// terminally failed once its own retry ceiling is spent.
func retreatTask(t task.Task, feedback string, ceiling int) task.Task {
	updated := t.Clone()
	updated.RetryCount++
	updated.Feedback = feedback
	if updated.Retryable(ceiling) {
		updated.Status = task.StatusPending
	} else {
		updated.Status = task.StatusFailed
	}
	return updated
}

// taskRetryCeiling returns the per-task retry limit.
func (e *Engine) taskRetryCeiling() int {
	if e.cfg.Retry.TaskMax > 0 {
		return e.cfg.Retry.TaskMax
	}
	return task.DefaultRetryCeiling
}

// combineDelta folds a later delta into an accumulated one. List fields
// append (id overlays resolve on apply), map fields overlay with the later
// writer winning, and scalar fields overwrite when set.
func combineDelta(agg state.Delta, delta state.Delta) state.Delta {
	agg.Messages = append(agg.Messages, delta.Messages...)
	agg.Tasks = append(agg.Tasks, delta.Tasks...)
	agg.ErrorLog = append(agg.ErrorLog, delta.ErrorLog...)
	agg.OpenQuestions = append(agg.OpenQuestions, delta.OpenQuestions...)
	agg.AcceptanceCriteria = append(agg.AcceptanceCriteria, delta.AcceptanceCriteria...)
	agg.Evidence = append(agg.Evidence, delta.Evidence...)
	agg.DecisionPoints = append(agg.DecisionPoints, delta.DecisionPoints...)

	if len(delta.FilesSnapshot) > 0 {
		if agg.FilesSnapshot == nil {
			agg.FilesSnapshot = make(map[string]string, len(delta.FilesSnapshot))
		}
		for path, digest := range delta.FilesSnapshot {
			agg.FilesSnapshot[path] = digest
		}
	}
	if len(delta.DeploymentURLs) > 0 {
		if agg.DeploymentURLs == nil {
			agg.DeploymentURLs = make(map[string]string, len(delta.DeploymentURLs))
		}
		for key, url := range delta.DeploymentURLs {
			agg.DeploymentURLs[key] = url
		}
	}
	if len(delta.RetryBudget) > 0 {
		if agg.RetryBudget == nil {
			agg.RetryBudget = make(map[phase.Stage]state.BudgetDelta, len(delta.RetryBudget))
		}
		for stage, update := range delta.RetryBudget {
			merged := agg.RetryBudget[stage]
			if update.Current != nil {
				merged.Current = update.Current
			}
			if update.Max != nil {
				merged.Max = update.Max
			}
			agg.RetryBudget[stage] = merged
		}
	}

	if delta.Phase != "" {
		agg.Phase = delta.Phase
	}
	if delta.ValidationStatus != "" {
		agg.ValidationStatus = delta.ValidationStatus
	}
	if delta.RecursionDepth > agg.RecursionDepth {
		agg.RecursionDepth = delta.RecursionDepth
	}
	agg.Usage = agg.Usage.Add(delta.Usage)
	return agg
}
