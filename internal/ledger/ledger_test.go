package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/hollowbranch/stagehand/internal/phase"
)

var testClock = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// TestNewOpenQuestionGeneratesIdWhenAbsent verifies constructor defaults.
func TestNewOpenQuestionGeneratesIdWhenAbsent(t *testing.T) {
	q, err := NewOpenQuestion("", "Which auth provider?")
	if err != nil {
		t.Fatalf("NewOpenQuestion error: %v", err)
	}
	if q.ID == "" {
		t.Fatal("generated question id is empty")
	}
	if q.Status != QuestionOpen {
		t.Fatalf("status = %q, want open", q.Status)
	}

	if _, err := NewOpenQuestion("q1", "  "); err == nil {
		t.Fatal("NewOpenQuestion with blank text = nil error, want error")
	}
}

// TestNewDecisionPointRequiresOptions verifies constructor validation.
func TestNewDecisionPointRequiresOptions(t *testing.T) {
	if _, err := NewDecisionPoint(phase.Executing, phase.StageCode, "stuck", nil, "", testClock); err == nil {
		t.Fatal("NewDecisionPoint without options = nil error, want error")
	}

	d, err := NewDecisionPoint(phase.Executing, phase.StageCode, "stuck", []string{"abort"}, "ctx", testClock)
	if err != nil {
		t.Fatalf("NewDecisionPoint error: %v", err)
	}
	if d.Status != DecisionOpen {
		t.Fatalf("status = %q, want open", d.Status)
	}
	if !d.CreatedAt.Equal(testClock) {
		t.Fatalf("created at = %v, want %v", d.CreatedAt, testClock)
	}
}

// TestCheckReviewGateBlocksOnQuestionsAndDecisions verifies both ledgers
// independently block reviewer approval.
func TestCheckReviewGateBlocksOnQuestionsAndDecisions(t *testing.T) {
	open, err := NewOpenQuestion("q1", "Which database?")
	if err != nil {
		t.Fatalf("NewOpenQuestion error: %v", err)
	}

	if got := CheckReviewGate([]OpenQuestion{open}, nil); !errors.Is(got, ErrQuestionsOpen) {
		t.Fatalf("gate error = %v, want ErrQuestionsOpen", got)
	}

	answered := open
	answered.Status = QuestionAnswered
	if got := CheckReviewGate([]OpenQuestion{answered}, nil); got != nil {
		t.Fatalf("gate error = %v, want nil once answered", got)
	}

	decision, err := NewDecisionPoint(phase.Executing, phase.StageCode, "stuck", []string{"abort"}, "", testClock)
	if err != nil {
		t.Fatalf("NewDecisionPoint error: %v", err)
	}
	if got := CheckReviewGate(nil, []DecisionPoint{decision}); !errors.Is(got, ErrDecisionsOpen) {
		t.Fatalf("gate error = %v, want ErrDecisionsOpen", got)
	}

	resolved := decision
	resolved.Status = DecisionResolved
	if got := CheckReviewGate(nil, []DecisionPoint{resolved}); got != nil {
		t.Fatalf("gate error = %v, want nil once resolved", got)
	}
}

// TestCheckExecutionGateIsGlobal verifies a single open question blocks the
// execution transition no matter what it is attached to.
func TestCheckExecutionGateIsGlobal(t *testing.T) {
	unrelated, err := NewOpenQuestion("q9", "Color of the logout button?")
	if err != nil {
		t.Fatalf("NewOpenQuestion error: %v", err)
	}
	if got := CheckExecutionGate([]OpenQuestion{unrelated}); !errors.Is(got, ErrQuestionsOpen) {
		t.Fatalf("gate error = %v, want ErrQuestionsOpen", got)
	}
	if got := CheckExecutionGate(nil); got != nil {
		t.Fatalf("gate error = %v, want nil without questions", got)
	}
}
