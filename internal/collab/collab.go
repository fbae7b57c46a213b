// Package collab defines the collaborator contracts the engine drives and a
// CLI-backed implementation that runs local agent processes.
package collab

import (
	"context"

	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/task"
)

// PlanRequest carries the context a planner needs to draft or decompose work.
type PlanRequest struct {
	FeatureID string
	Request   string
	Documents map[specdoc.Kind]string
	Answered  []ledger.OpenQuestion
	Feedback  string
}

// PlanResult is the planner's answer: new tasks, clarifying questions, or
// neither when the planner has nothing to add.
type PlanResult struct {
	Summary   string
	Tasks     []task.Task
	Questions []ledger.OpenQuestion
}

// WorkRequest carries one task plus the workspace context an executor needs.
// Retry feedback travels on the task itself.
type WorkRequest struct {
	FeatureID string
	Task      task.Task
	Snapshot  map[string]string
}

// WorkResult reports what an executor changed and the evidence it produced.
type WorkResult struct {
	Narrative    string
	ChangedFiles []string
	Evidence     []ledger.Evidence
}

// ReviewRequest carries the documents a reviewer inspects and the stage the
// review targets.
type ReviewRequest struct {
	FeatureID string
	Stage     string
	Documents map[specdoc.Kind]string
}

// ReviewResult is the reviewer's verdict. Questions reopen clarification;
// issues feed corrective work.
type ReviewResult struct {
	Approved  bool
	Issues    []string
	Questions []ledger.OpenQuestion
}

// Planner drafts specifications and decomposes approved plans into tasks.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (PlanResult, error)
}

// Executor performs one task and reports its changes.
type Executor interface {
	Execute(ctx context.Context, req WorkRequest) (WorkResult, error)
}

// Reviewer evaluates documents or implementations and raises issues.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (ReviewResult, error)
}
