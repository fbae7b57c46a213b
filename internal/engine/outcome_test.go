package engine

import (
	"errors"
	"testing"

	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/state"
)

// TestOutcomeConstructors verifies each constructor tags its variant.
func TestOutcomeConstructors(t *testing.T) {
	delta := state.Delta{Phase: phase.SpecDraft}
	if got := Advance(delta); got.Kind != KindDelta || got.Delta.Phase != phase.SpecDraft {
		t.Fatalf("Advance = %+v, want delta outcome", got)
	}

	hopped := AdvanceVia(delta, phase.SpecReview)
	if hopped.Kind != KindDelta || len(hopped.Via) != 1 || hopped.Via[0] != phase.SpecReview {
		t.Fatalf("AdvanceVia = %+v, want one SPEC_REVIEW hop", hopped)
	}

	if got := Blocked("waiting for answers"); got.Kind != KindBlocked || got.Reason != "waiting for answers" {
		t.Fatalf("Blocked = %+v", got)
	}

	failure := errors.New("boom")
	if got := Fatal(failure); got.Kind != KindFatal || !errors.Is(got.Err, failure) {
		t.Fatalf("Fatal = %+v", got)
	}
}

// TestKindString names every outcome kind for logs.
func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindDelta:   "delta",
		KindBlocked: "blocked",
		KindFatal:   "fatal",
		Kind(99):    "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", int(kind), got, want)
		}
	}
}

// TestValidateHopsChecksEveryEdge verifies hop validation walks the
// transition table edge by edge and permits forced recovery landings.
func TestValidateHopsChecksEveryEdge(t *testing.T) {
	legal := AdvanceVia(state.Delta{Phase: phase.SpecApproved}, phase.SpecReview)
	if err := validateHops(phase.SpecDraft, legal); err != nil {
		t.Fatalf("legal approval path rejected: %v", err)
	}

	illegal := AdvanceVia(state.Delta{Phase: phase.Done}, phase.SpecReview)
	if err := validateHops(phase.SpecDraft, illegal); err == nil {
		t.Fatal("illegal SPEC_REVIEW to DONE landing accepted")
	}

	badHop := AdvanceVia(state.Delta{Phase: phase.Done}, phase.Validating)
	if err := validateHops(phase.SpecDraft, badHop); err == nil {
		t.Fatal("illegal SPEC_DRAFT to VALIDATING hop accepted")
	}

	forced := Advance(state.Delta{Phase: phase.NeedsUserDecision})
	if err := validateHops(phase.Executing, forced); err != nil {
		t.Fatalf("forced recovery landing rejected: %v", err)
	}

	rest := Advance(state.Delta{})
	if err := validateHops(phase.Executing, rest); err != nil {
		t.Fatalf("resting outcome rejected: %v", err)
	}
}
