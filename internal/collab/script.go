package collab

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedPlanner replays queued results in call order, recording requests.
// The last result repeats once the queue is exhausted.
type ScriptedPlanner struct {
	Results []PlanResult
	Errs    []error

	mu       sync.Mutex
	Requests []PlanRequest
	calls    int
}

// Plan returns the next scripted result.
func (p *ScriptedPlanner) Plan(_ context.Context, req PlanRequest) (PlanResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	call := p.calls
	p.calls++
	if call < len(p.Errs) && p.Errs[call] != nil {
		return PlanResult{}, p.Errs[call]
	}
	if len(p.Results) == 0 {
		return PlanResult{}, nil
	}
	if call >= len(p.Results) {
		call = len(p.Results) - 1
	}
	return p.Results[call], nil
}

// Calls reports how many times Plan ran.
func (p *ScriptedPlanner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// ScriptedExecutor returns per-task results, recording requests. Tasks
// without a scripted entry succeed with a generated narrative.
type ScriptedExecutor struct {
	Results map[string]WorkResult
	Errs    map[string]error

	mu       sync.Mutex
	Requests []WorkRequest
}

// Execute returns the scripted result for the task id.
func (e *ScriptedExecutor) Execute(_ context.Context, req WorkRequest) (WorkResult, error) {
	e.mu.Lock()
	e.Requests = append(e.Requests, req)
	e.mu.Unlock()
	if err, ok := e.Errs[req.Task.ID]; ok && err != nil {
		return WorkResult{}, err
	}
	if result, ok := e.Results[req.Task.ID]; ok {
		return result, nil
	}
	return WorkResult{Narrative: fmt.Sprintf("completed %s", req.Task.ID)}, nil
}

// Executed reports the task ids handled so far, in call order.
func (e *ScriptedExecutor) Executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.Requests))
	for _, req := range e.Requests {
		ids = append(ids, req.Task.ID)
	}
	return ids
}

// ScriptedReviewer replays queued verdicts in call order, recording requests.
// The last verdict repeats once the queue is exhausted.
type ScriptedReviewer struct {
	Results []ReviewResult
	Errs    []error

	mu       sync.Mutex
	Requests []ReviewRequest
	calls    int
}

// Review returns the next scripted verdict.
func (r *ScriptedReviewer) Review(_ context.Context, req ReviewRequest) (ReviewResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, req)
	call := r.calls
	r.calls++
	if call < len(r.Errs) && r.Errs[call] != nil {
		return ReviewResult{}, r.Errs[call]
	}
	if len(r.Results) == 0 {
		return ReviewResult{Approved: true}, nil
	}
	if call >= len(r.Results) {
		call = len(r.Results) - 1
	}
	return r.Results[call], nil
}

// Calls reports how many times Review ran.
func (r *ScriptedReviewer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
