// Package phase defines the pipeline lifecycle phases and transition guards.
package phase

import (
	"fmt"
	"strings"
)

// Phase labels the single global lifecycle position of a feature run.
type Phase string

const (
	// Intake indicates a new request has been received but not yet drafted.
	Intake Phase = "INTAKE"
	// SpecDraft indicates specification documents are being drafted.
	SpecDraft Phase = "SPEC_DRAFT"
	// SpecReview indicates drafted documents are under review.
	SpecReview Phase = "SPEC_REVIEW"
	// QuestionsPending indicates open clarification questions block drafting.
	QuestionsPending Phase = "QUESTIONS_PENDING"
	// SpecApproved indicates the specification passed review.
	SpecApproved Phase = "SPEC_APPROVED"
	// ExecPlanned indicates execution tasks have been planned.
	ExecPlanned Phase = "EXEC_PLANNED"
	// Executing indicates worker tasks are being dispatched and run.
	Executing Phase = "EXECUTING"
	// ImplReview indicates completed work is under implementation review.
	ImplReview Phase = "IMPL_REVIEW"
	// Validating indicates the whole-project validation workflow is running.
	Validating Phase = "VALIDATING"
	// TraceValidation indicates the requirement trace ledger is being verified.
	TraceValidation Phase = "TRACE_VALIDATION"
	// Done is the terminal success phase.
	Done Phase = "DONE"
	// Failed is a recovery phase reached after an unrecoverable failure.
	Failed Phase = "FAILED"
	// NeedsUserDecision is a recovery phase awaiting operator resolution.
	NeedsUserDecision Phase = "NEEDS_USER_DECISION"
)

// ordered lists every phase in lifecycle order.
var ordered = []Phase{
	Intake,
	SpecDraft,
	SpecReview,
	QuestionsPending,
	SpecApproved,
	ExecPlanned,
	Executing,
	ImplReview,
	Validating,
	TraceValidation,
	Done,
	Failed,
	NeedsUserDecision,
}

// allowedTransitions defines the permitted phase changes. Recovery phases are
// handled separately in IsValidTransition.
var allowedTransitions = map[Phase]map[Phase]struct{}{
	Intake: {
		SpecDraft: {},
	},
	SpecDraft: {
		SpecReview:       {},
		QuestionsPending: {},
	},
	SpecReview: {
		SpecApproved:     {},
		QuestionsPending: {},
		SpecDraft:        {},
	},
	QuestionsPending: {
		SpecDraft:         {},
		NeedsUserDecision: {},
	},
	SpecApproved: {
		ExecPlanned: {},
	},
	ExecPlanned: {
		Executing: {},
	},
	Executing: {
		ImplReview: {},
	},
	ImplReview: {
		Validating: {},
		Executing:  {},
	},
	Validating: {
		TraceValidation: {},
		Executing:       {},
	},
	TraceValidation: {
		Done:      {},
		Executing: {},
	},
	Done: {},
}

// All returns every phase in lifecycle order.
func All() []Phase {
	phases := make([]Phase, len(ordered))
	copy(phases, ordered)
	return phases
}

// String returns the phase name.
func (p Phase) String() string {
	return string(p)
}

// IsValid reports whether the phase is a known lifecycle value.
func (p Phase) IsValid() bool {
	for _, known := range ordered {
		if p == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the phase has no outgoing transitions.
func (p Phase) IsTerminal() bool {
	return p == Done
}

// IsRecovery reports whether the phase permits operator-driven transitions to
// any other phase and unrestricted step re-entry.
func (p Phase) IsRecovery() bool {
	return p == Failed || p == NeedsUserDecision
}

// Parse resolves a phase from its string name.
func Parse(name string) (Phase, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("phase name is required")
	}
	candidate := Phase(trimmed)
	if !candidate.IsValid() {
		return "", fmt.Errorf("unknown phase %q", trimmed)
	}
	return candidate, nil
}

// IsValidTransition reports whether the lifecycle allows the requested change.
// Recovery phases may transition to any valid phase.
func IsValidTransition(from Phase, to Phase) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from.IsRecovery() {
		return true
	}
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// ValidateTransition returns an error when a phase change is not allowed.
func ValidateTransition(from Phase, to Phase) error {
	if !IsValidTransition(from, to) {
		return fmt.Errorf("invalid phase transition from %q to %q", from, to)
	}
	return nil
}
