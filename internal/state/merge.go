package state

import (
	"reflect"

	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/task"
)

// Delta is a partial state emission from one step. Zero-valued fields are
// ignored during Apply, so a step only names what it changed.
type Delta struct {
	FeatureID          string
	Request            string
	Phase              phase.Phase
	Messages           []Message
	Tasks              []task.Task
	FilesSnapshot      map[string]string
	DocDigests         map[string]string
	ErrorLog           []ErrorLogEntry
	RecursionDepth     int
	Usage              Usage
	DeploymentURLs     map[string]string
	OpenQuestions      []ledger.OpenQuestion
	AcceptanceCriteria []ledger.AcceptanceCriterion
	Evidence           []ledger.Evidence
	DecisionPoints     []ledger.DecisionPoint
	RetryBudget        map[phase.Stage]BudgetDelta
	ValidationStatus   string
}

// BudgetDelta partially updates one stage's budget. Nil fields leave the
// stored value untouched; untouched stages default to {0, DefaultStageMax}.
type BudgetDelta struct {
	Current *int
	Max     *int
}

// reducer pairs a state field with its named merge function. The table is
// fixed: every mergeable field appears exactly once, and Apply walks it in
// order.
type reducer struct {
	field string
	merge func(dst *State, d Delta)
}

// reducers is the authoritative merge table. Field semantics:
// last-writer-wins for scalars and map keys, merge-by-id for keyed lists,
// append-all for logs and messages, max for the recursion counter, and
// field-wise sums for usage.
var reducers = []reducer{
	{"feature_id", mergeFeatureID},
	{"request", mergeRequest},
	{"phase", mergePhase},
	{"messages", mergeMessages},
	{"tasks", mergeTaskList},
	{"files_snapshot", mergeFilesSnapshot},
	{"doc_digests", mergeDocDigests},
	{"error_log", mergeErrorLog},
	{"recursion_depth", mergeRecursionDepth},
	{"usage", mergeUsageField},
	{"deployment_urls", mergeDeploymentURLs},
	{"open_questions", mergeOpenQuestions},
	{"acceptance_criteria", mergeAcceptanceCriteria},
	{"evidence", mergeEvidence},
	{"decision_points", mergeDecisionPoints},
	{"retry_budget", mergeRetryBudget},
	{"validation_status", mergeValidationStatus},
}

// Apply reconciles a step's delta into a copy of the current state. Deltas
// touching disjoint ids commute; conflicting ids resolve last-applied-wins.
func Apply(current State, delta Delta) State {
	next := current.Clone()
	for _, r := range reducers {
		r.merge(&next, delta)
	}
	return next
}

func mergeFeatureID(dst *State, d Delta) {
	if d.FeatureID != "" {
		dst.FeatureID = d.FeatureID
	}
}

func mergeRequest(dst *State, d Delta) {
	if d.Request != "" {
		dst.Request = d.Request
	}
}

func mergePhase(dst *State, d Delta) {
	if d.Phase != "" {
		dst.Phase = d.Phase
	}
}

func mergeMessages(dst *State, d Delta) {
	if len(d.Messages) > 0 {
		dst.Messages = append(dst.Messages, d.Messages...)
	}
}

// mergeTaskList replaces stored tasks with matching ids in place and appends
// unknown ids after all known ones, preserving the stored relative order.
// This makes a worker's "I only touched my task" emission safe to apply
// blind.
func mergeTaskList(dst *State, d Delta) {
	if len(d.Tasks) == 0 {
		return
	}
	dst.Tasks = overlayByID(dst.Tasks, d.Tasks, func(t task.Task) string { return t.ID })
}

func mergeFilesSnapshot(dst *State, d Delta) {
	dst.FilesSnapshot = overlayStringMap(dst.FilesSnapshot, d.FilesSnapshot)
}

func mergeDocDigests(dst *State, d Delta) {
	dst.DocDigests = overlayStringMap(dst.DocDigests, d.DocDigests)
}

func mergeErrorLog(dst *State, d Delta) {
	if len(d.ErrorLog) > 0 {
		dst.ErrorLog = append(dst.ErrorLog, d.ErrorLog...)
	}
}

// mergeRecursionDepth keeps the maximum observed depth, tolerating replays
// and out-of-order delivery.
func mergeRecursionDepth(dst *State, d Delta) {
	if d.RecursionDepth > dst.RecursionDepth {
		dst.RecursionDepth = d.RecursionDepth
	}
}

// mergeUsageField sums token counters. Safe only because the scheduler
// guarantees at-most-once emission per step.
func mergeUsageField(dst *State, d Delta) {
	dst.Usage = dst.Usage.Add(d.Usage)
}

func mergeDeploymentURLs(dst *State, d Delta) {
	dst.DeploymentURLs = overlayStringMap(dst.DeploymentURLs, d.DeploymentURLs)
}

func mergeOpenQuestions(dst *State, d Delta) {
	if len(d.OpenQuestions) == 0 {
		return
	}
	dst.OpenQuestions = overlayByID(dst.OpenQuestions, d.OpenQuestions, func(q ledger.OpenQuestion) string { return q.ID })
}

func mergeAcceptanceCriteria(dst *State, d Delta) {
	if len(d.AcceptanceCriteria) == 0 {
		return
	}
	dst.AcceptanceCriteria = overlayByID(dst.AcceptanceCriteria, d.AcceptanceCriteria, func(c ledger.AcceptanceCriterion) string { return c.ID })
}

func mergeEvidence(dst *State, d Delta) {
	if len(d.Evidence) == 0 {
		return
	}
	dst.Evidence = overlayByID(dst.Evidence, d.Evidence, func(e ledger.Evidence) string { return e.ID })
}

func mergeDecisionPoints(dst *State, d Delta) {
	if len(d.DecisionPoints) == 0 {
		return
	}
	dst.DecisionPoints = overlayByID(dst.DecisionPoints, d.DecisionPoints, func(p ledger.DecisionPoint) string { return p.ID })
}

// mergeRetryBudget overlays each named stage partially, defaulting stages
// never previously touched.
func mergeRetryBudget(dst *State, d Delta) {
	if len(d.RetryBudget) == 0 {
		return
	}
	if dst.RetryBudget == nil {
		dst.RetryBudget = make(map[phase.Stage]StageBudget, len(d.RetryBudget))
	}
	for stage, update := range d.RetryBudget {
		budget, ok := dst.RetryBudget[stage]
		if !ok {
			budget = StageBudget{Current: 0, Max: DefaultStageMax}
		}
		if update.Current != nil {
			budget.Current = *update.Current
		}
		if update.Max != nil {
			budget.Max = *update.Max
		}
		dst.RetryBudget[stage] = budget
	}
}

func mergeValidationStatus(dst *State, d Delta) {
	if d.ValidationStatus != "" {
		dst.ValidationStatus = d.ValidationStatus
	}
}

// overlayByID replaces current items whose id matches an incoming item and
// appends unmatched incoming items in arrival order. Items with an empty id
// are deduplicated by deep equality instead.
func overlayByID[T any](current []T, incoming []T, id func(T) string) []T {
	merged := append([]T(nil), current...)
	position := make(map[string]int, len(merged))
	for i, item := range merged {
		if key := id(item); key != "" {
			position[key] = i
		}
	}
	for _, item := range incoming {
		key := id(item)
		if key == "" {
			if containsEqual(merged, item) {
				continue
			}
			merged = append(merged, item)
			continue
		}
		if i, ok := position[key]; ok {
			merged[i] = item
			continue
		}
		position[key] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// containsEqual reports whether an equal item is already present.
func containsEqual[T any](items []T, candidate T) bool {
	for _, item := range items {
		if reflect.DeepEqual(item, candidate) {
			return true
		}
	}
	return false
}

// overlayStringMap performs a shallow last-writer-wins merge.
func overlayStringMap(current map[string]string, incoming map[string]string) map[string]string {
	if len(incoming) == 0 {
		return current
	}
	merged := make(map[string]string, len(current)+len(incoming))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

// IntPtr returns a pointer to the supplied int, for BudgetDelta literals.
func IntPtr(value int) *int {
	return &value
}
