package ledger

import "errors"

// ErrQuestionsOpen signals that open clarification questions block the
// requested progression.
var ErrQuestionsOpen = errors.New("open questions block progression")

// ErrDecisionsOpen signals that open decision points block the requested
// progression.
var ErrDecisionsOpen = errors.New("open decision points block progression")

// OpenQuestions returns the questions still awaiting answers.
func OpenQuestions(questions []OpenQuestion) []OpenQuestion {
	var open []OpenQuestion
	for _, q := range questions {
		if q.Status == QuestionOpen {
			open = append(open, q)
		}
	}
	return open
}

// HasOpenQuestions reports whether any question still awaits an answer.
// A single open question blocks all development transitions regardless of
// which requirement it is attached to.
func HasOpenQuestions(questions []OpenQuestion) bool {
	return len(OpenQuestions(questions)) > 0
}

// OpenDecisions returns the decision points still awaiting resolution.
func OpenDecisions(decisions []DecisionPoint) []DecisionPoint {
	var open []DecisionPoint
	for _, d := range decisions {
		if d.Status == DecisionOpen {
			open = append(open, d)
		}
	}
	return open
}

// HasOpenDecisions reports whether any decision point is unresolved.
func HasOpenDecisions(decisions []DecisionPoint) bool {
	return len(OpenDecisions(decisions)) > 0
}

// CheckReviewGate returns the gate error blocking reviewer approval, if any.
// Open questions and open decision points each block independently.
func CheckReviewGate(questions []OpenQuestion, decisions []DecisionPoint) error {
	if HasOpenQuestions(questions) {
		return ErrQuestionsOpen
	}
	if HasOpenDecisions(decisions) {
		return ErrDecisionsOpen
	}
	return nil
}

// CheckExecutionGate returns the gate error blocking entry into the
// execution stage, if any. This is a hard rule: an execution-start command
// cannot override it.
func CheckExecutionGate(questions []OpenQuestion) error {
	if HasOpenQuestions(questions) {
		return ErrQuestionsOpen
	}
	return nil
}
