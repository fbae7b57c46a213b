// Package state defines the pipeline's single mutable record and the merge
// rules that reconcile concurrent step emissions.
package state

import (
	"time"

	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/task"
)

// DefaultStageMax is the per-stage retry budget ceiling fixed at process
// start.
const DefaultStageMax = 3

// Validation outcome labels recorded on the aggregate.
const (
	// ValidationPassed marks the whole-project validation workflow as green.
	ValidationPassed = "passed"
	// ValidationFailed marks the whole-project validation workflow as red.
	ValidationFailed = "failed"
)

// Message is one append-only entry in the run's conversation history.
type Message struct {
	Step    string    `json:"step"`
	Role    string    `json:"role,omitempty"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Usage accumulates collaborator token consumption. Fields sum under merge,
// so each step must emit its usage exactly once.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns the field-wise sum of two usage records.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// ErrorLogEntry records one failure observation. The error log is strictly
// accumulating: duplicates are kept because frequency is itself signal.
type ErrorLogEntry struct {
	Step      string      `json:"step"`
	Error     string      `json:"error"`
	Phase     phase.Phase `json:"phase"`
	Stage     phase.Stage `json:"stage"`
	Timestamp time.Time   `json:"timestamp"`
	TaskID    string      `json:"task_id,omitempty"`
}

// StageBudget tracks consumed and allowed attempts for one budget stage.
type StageBudget struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Exhausted reports whether the stage has consumed its full budget.
func (b StageBudget) Exhausted() bool {
	return b.Current >= b.Max
}

// State is the aggregate record threaded through every pipeline step. All
// mutation happens by whole-field replacement through Apply; steps never
// write to a shared instance directly.
type State struct {
	FeatureID          string                        `json:"feature_id"`
	Request            string                        `json:"request"`
	Phase              phase.Phase                   `json:"phase"`
	Messages           []Message                     `json:"messages,omitempty"`
	Tasks              []task.Task                   `json:"tasks,omitempty"`
	FilesSnapshot      map[string]string             `json:"files_snapshot,omitempty"`
	DocDigests         map[string]string             `json:"doc_digests,omitempty"`
	ErrorLog           []ErrorLogEntry               `json:"error_log,omitempty"`
	RecursionDepth     int                           `json:"recursion_depth"`
	Usage              Usage                         `json:"usage"`
	DeploymentURLs     map[string]string             `json:"deployment_urls,omitempty"`
	OpenQuestions      []ledger.OpenQuestion         `json:"open_questions,omitempty"`
	AcceptanceCriteria []ledger.AcceptanceCriterion  `json:"acceptance_criteria,omitempty"`
	Evidence           []ledger.Evidence             `json:"evidence,omitempty"`
	DecisionPoints     []ledger.DecisionPoint        `json:"decision_points,omitempty"`
	RetryBudget        map[phase.Stage]StageBudget   `json:"retry_budget"`
	ValidationStatus   string                        `json:"validation_status,omitempty"`
}

// New constructs the initial state for a feature request.
func New(featureID string, request string) State {
	return State{
		FeatureID:   featureID,
		Request:     request,
		Phase:       phase.Intake,
		RetryBudget: defaultBudget(),
	}
}

// defaultBudget seeds every stage with a zeroed counter at the default max.
func defaultBudget() map[phase.Stage]StageBudget {
	budget := make(map[phase.Stage]StageBudget, 3)
	for _, stage := range phase.Stages() {
		budget[stage] = StageBudget{Current: 0, Max: DefaultStageMax}
	}
	return budget
}

// Budget returns the stage budget, defaulting untouched stages.
func (s State) Budget(stage phase.Stage) StageBudget {
	if b, ok := s.RetryBudget[stage]; ok {
		return b
	}
	return StageBudget{Current: 0, Max: DefaultStageMax}
}

// TaskByID returns the stored task with the given id.
func (s State) TaskByID(id string) (task.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return task.Task{}, false
}

// RunningTasks returns the tasks currently dispatched.
func (s State) RunningTasks() []task.Task {
	var running []task.Task
	for _, t := range s.Tasks {
		if t.Status == task.StatusRunning {
			running = append(running, t)
		}
	}
	return running
}

// Clone returns a deep copy safe to hand to a fan-out branch.
func (s State) Clone() State {
	clone := s
	clone.Messages = append([]Message(nil), s.Messages...)
	clone.ErrorLog = append([]ErrorLogEntry(nil), s.ErrorLog...)
	clone.OpenQuestions = append([]ledger.OpenQuestion(nil), s.OpenQuestions...)
	clone.AcceptanceCriteria = append([]ledger.AcceptanceCriterion(nil), s.AcceptanceCriteria...)
	clone.Evidence = append([]ledger.Evidence(nil), s.Evidence...)
	clone.DecisionPoints = append([]ledger.DecisionPoint(nil), s.DecisionPoints...)
	if s.Tasks != nil {
		clone.Tasks = make([]task.Task, len(s.Tasks))
		for i, t := range s.Tasks {
			clone.Tasks[i] = t.Clone()
		}
	}
	clone.FilesSnapshot = cloneStringMap(s.FilesSnapshot)
	clone.DocDigests = cloneStringMap(s.DocDigests)
	clone.DeploymentURLs = cloneStringMap(s.DeploymentURLs)
	if s.RetryBudget != nil {
		clone.RetryBudget = make(map[phase.Stage]StageBudget, len(s.RetryBudget))
		for k, v := range s.RetryBudget {
			clone.RetryBudget[k] = v
		}
	}
	return clone
}

// cloneStringMap copies a string map, preserving nil.
func cloneStringMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
