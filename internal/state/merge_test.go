package state

import (
	"reflect"
	"testing"
	"time"

	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/task"
)

func testTask(t *testing.T, id string, role task.Role, status task.Status) task.Task {
	t.Helper()
	created, err := task.New(id, "work for "+id, role)
	if err != nil {
		t.Fatalf("task.New(%s) error: %v", id, err)
	}
	created.Status = status
	return created
}

// TestMergeTasksReplacesKnownAndAppendsUnknown verifies the task overlay
// keeps stored order, replaces matching ids in place, and appends new ids
// after all known ones.
func TestMergeTasksReplacesKnownAndAppendsUnknown(t *testing.T) {
	a := testTask(t, "a", task.RoleDB, task.StatusPending)
	b := testTask(t, "b", task.RoleLogic, task.StatusPending)
	current := New("feat", "req")
	current.Tasks = []task.Task{a, b}

	updatedA := a.Clone()
	updatedA.Status = task.StatusRunning
	c := testTask(t, "c", task.RoleUI, task.StatusPending)

	next := Apply(current, Delta{Tasks: []task.Task{c, updatedA}})

	got := make([]string, 0, len(next.Tasks))
	for _, each := range next.Tasks {
		got = append(got, each.ID)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("task order = %v, want %v", got, want)
	}
	if next.Tasks[0].Status != task.StatusRunning {
		t.Fatalf("task a status = %q, want %q", next.Tasks[0].Status, task.StatusRunning)
	}
	if current.Tasks[0].Status != task.StatusPending {
		t.Fatal("Apply mutated the input state")
	}
}

// TestDisjointDeltasCommute verifies the documented merge property: two
// update batches touching disjoint ids produce the same state in either
// application order.
func TestDisjointDeltasCommute(t *testing.T) {
	a := testTask(t, "a", task.RoleDB, task.StatusRunning)
	b := testTask(t, "b", task.RoleLogic, task.StatusRunning)
	base := New("feat", "req")
	base.Tasks = []task.Task{a, b}

	doneA := a.Clone()
	doneA.Status = task.StatusCompleted
	doneB := b.Clone()
	doneB.Status = task.StatusCompleted

	deltaA := Delta{
		Tasks:          []task.Task{doneA},
		FilesSnapshot:  map[string]string{"db/schema.sql": "h1"},
		DeploymentURLs: map[string]string{"preview": "https://a.example.dev"},
	}
	deltaB := Delta{
		Tasks:         []task.Task{doneB},
		FilesSnapshot: map[string]string{"internal/api.go": "h2"},
	}

	ab := Apply(Apply(base, deltaA), deltaB)
	ba := Apply(Apply(base, deltaB), deltaA)

	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("disjoint merges diverged:\nab = %+v\nba = %+v", ab, ba)
	}
}

// TestOverlappingIdsLastAppliedWins verifies the documented conflict edge:
// the same id in sequential deltas resolves to the later application.
func TestOverlappingIdsLastAppliedWins(t *testing.T) {
	a := testTask(t, "a", task.RoleDB, task.StatusRunning)
	base := New("feat", "req")
	base.Tasks = []task.Task{a}

	first := a.Clone()
	first.Feedback = "first"
	second := a.Clone()
	second.Feedback = "second"

	next := Apply(Apply(base, Delta{Tasks: []task.Task{first}}), Delta{Tasks: []task.Task{second}})
	if next.Tasks[0].Feedback != "second" {
		t.Fatalf("feedback = %q, want %q", next.Tasks[0].Feedback, "second")
	}
}

// TestMergeRecursionDepthKeepsMax verifies replayed or out-of-order depth
// updates never lower the counter.
func TestMergeRecursionDepthKeepsMax(t *testing.T) {
	base := New("feat", "req")
	next := Apply(base, Delta{RecursionDepth: 5})
	next = Apply(next, Delta{RecursionDepth: 3})
	if next.RecursionDepth != 5 {
		t.Fatalf("recursion depth = %d, want 5", next.RecursionDepth)
	}
}

// TestMergeUsageSums verifies token counters accumulate field-wise.
func TestMergeUsageSums(t *testing.T) {
	base := New("feat", "req")
	next := Apply(base, Delta{Usage: Usage{InputTokens: 10, OutputTokens: 4, TotalTokens: 14}})
	next = Apply(next, Delta{Usage: Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}})
	want := Usage{InputTokens: 11, OutputTokens: 6, TotalTokens: 17}
	if next.Usage != want {
		t.Fatalf("usage = %+v, want %+v", next.Usage, want)
	}
}

// TestMergeErrorLogKeepsDuplicates verifies the error log concatenates
// without deduplication.
func TestMergeErrorLogKeepsDuplicates(t *testing.T) {
	entry := ErrorLogEntry{
		Step:      "validator",
		Error:     "build failed",
		Phase:     phase.Validating,
		Stage:     phase.StageValidation,
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	base := New("feat", "req")
	next := Apply(base, Delta{ErrorLog: []ErrorLogEntry{entry}})
	next = Apply(next, Delta{ErrorLog: []ErrorLogEntry{entry}})
	if len(next.ErrorLog) != 2 {
		t.Fatalf("error log length = %d, want 2", len(next.ErrorLog))
	}
}

// TestMergeDeploymentURLsLastWriterWins verifies incoming keys overwrite.
func TestMergeDeploymentURLsLastWriterWins(t *testing.T) {
	base := New("feat", "req")
	next := Apply(base, Delta{DeploymentURLs: map[string]string{"preview": "https://old.example.dev"}})
	next = Apply(next, Delta{DeploymentURLs: map[string]string{"preview": "https://new.example.dev", "production": "https://prod.example.dev"}})
	if next.DeploymentURLs["preview"] != "https://new.example.dev" {
		t.Fatalf("preview url = %q, want overwrite", next.DeploymentURLs["preview"])
	}
	if len(next.DeploymentURLs) != 2 {
		t.Fatalf("deployment urls = %v, want 2 entries", next.DeploymentURLs)
	}
}

// TestMergeQuestionsOverlayById verifies question updates replace by id and
// unknown ids append.
func TestMergeQuestionsOverlayById(t *testing.T) {
	q1, err := ledger.NewOpenQuestion("q1", "Which database?")
	if err != nil {
		t.Fatalf("NewOpenQuestion error: %v", err)
	}
	base := New("feat", "req")
	next := Apply(base, Delta{OpenQuestions: []ledger.OpenQuestion{q1}})

	answered := q1
	answered.Status = ledger.QuestionAnswered
	answered.Answer = "postgres"
	q2, err := ledger.NewOpenQuestion("q2", "Which region?")
	if err != nil {
		t.Fatalf("NewOpenQuestion error: %v", err)
	}

	next = Apply(next, Delta{OpenQuestions: []ledger.OpenQuestion{answered, q2}})
	if len(next.OpenQuestions) != 2 {
		t.Fatalf("questions length = %d, want 2", len(next.OpenQuestions))
	}
	if next.OpenQuestions[0].Status != ledger.QuestionAnswered {
		t.Fatalf("q1 status = %q, want answered", next.OpenQuestions[0].Status)
	}
	if next.OpenQuestions[1].ID != "q2" {
		t.Fatalf("second question id = %q, want q2", next.OpenQuestions[1].ID)
	}
}

// TestMergeCriteriaDedupesUnkeyedItems verifies plain items without ids are
// deduplicated by equality.
func TestMergeCriteriaDedupesUnkeyedItems(t *testing.T) {
	criterion := ledger.AcceptanceCriterion{Description: "user can log in"}
	base := New("feat", "req")
	next := Apply(base, Delta{AcceptanceCriteria: []ledger.AcceptanceCriterion{criterion}})
	next = Apply(next, Delta{AcceptanceCriteria: []ledger.AcceptanceCriterion{criterion}})
	if len(next.AcceptanceCriteria) != 1 {
		t.Fatalf("criteria length = %d, want 1", len(next.AcceptanceCriteria))
	}
}

// TestMergeRetryBudgetPartialOverlay verifies a stage update touches only
// the keys present and untouched stages default to {0, 3}.
func TestMergeRetryBudgetPartialOverlay(t *testing.T) {
	base := State{Phase: phase.Executing}

	next := Apply(base, Delta{RetryBudget: map[phase.Stage]BudgetDelta{
		phase.StageCode: {Current: IntPtr(2)},
	}})

	code := next.Budget(phase.StageCode)
	if code.Current != 2 || code.Max != DefaultStageMax {
		t.Fatalf("code budget = %+v, want current=2 max=%d", code, DefaultStageMax)
	}
	spec := next.Budget(phase.StageSpec)
	if spec.Current != 0 || spec.Max != DefaultStageMax {
		t.Fatalf("untouched spec budget = %+v, want default", spec)
	}
}

// TestMergeDocDigestsOverlay verifies frozen document digests overlay per
// filename and survive unrelated deltas.
func TestMergeDocDigestsOverlay(t *testing.T) {
	base := New("feat", "req")
	next := Apply(base, Delta{DocDigests: map[string]string{"spec.md": "sha256:aa"}})
	next = Apply(next, Delta{DocDigests: map[string]string{"clarifications.md": "sha256:bb"}})
	next = Apply(next, Delta{RecursionDepth: 3})

	if next.DocDigests["spec.md"] != "sha256:aa" {
		t.Fatalf("spec digest = %q, want sha256:aa", next.DocDigests["spec.md"])
	}
	if len(next.DocDigests) != 2 {
		t.Fatalf("doc digests = %v, want 2 entries", next.DocDigests)
	}
}
