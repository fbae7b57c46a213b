package phase

import "testing"

// TestIsValidTransitionAllowsDocumentedEdges verifies the directed transition
// graph accepts every documented edge.
func TestIsValidTransitionAllowsDocumentedEdges(t *testing.T) {
	cases := []struct {
		from Phase
		to   Phase
	}{
		{Intake, SpecDraft},
		{SpecDraft, SpecReview},
		{SpecDraft, QuestionsPending},
		{SpecReview, SpecApproved},
		{SpecReview, QuestionsPending},
		{SpecReview, SpecDraft},
		{QuestionsPending, SpecDraft},
		{QuestionsPending, NeedsUserDecision},
		{SpecApproved, ExecPlanned},
		{ExecPlanned, Executing},
		{Executing, ImplReview},
		{ImplReview, Validating},
		{ImplReview, Executing},
		{Validating, TraceValidation},
		{Validating, Executing},
		{TraceValidation, Done},
		{TraceValidation, Executing},
	}

	for _, tc := range cases {
		if !IsValidTransition(tc.from, tc.to) {
			t.Fatalf("IsValidTransition(%q, %q) = false, want true", tc.from, tc.to)
		}
	}
}

// TestIsValidTransitionRejectsUndeclaredEdges verifies transitions outside
// the table are rejected, including anything leaving the terminal phase.
func TestIsValidTransitionRejectsUndeclaredEdges(t *testing.T) {
	cases := []struct {
		from Phase
		to   Phase
	}{
		{Intake, Executing},
		{SpecDraft, SpecApproved},
		{SpecApproved, Executing},
		{Executing, Validating},
		{Validating, Done},
		{Done, Executing},
		{Done, Failed},
		{Executing, Phase("BOGUS")},
		{Phase("BOGUS"), Executing},
	}

	for _, tc := range cases {
		if IsValidTransition(tc.from, tc.to) {
			t.Fatalf("IsValidTransition(%q, %q) = true, want false", tc.from, tc.to)
		}
	}
}

// TestRecoveryPhasesTransitionAnywhere verifies FAILED and
// NEEDS_USER_DECISION may move to any valid phase.
func TestRecoveryPhasesTransitionAnywhere(t *testing.T) {
	for _, from := range []Phase{Failed, NeedsUserDecision} {
		for _, to := range All() {
			if !IsValidTransition(from, to) {
				t.Fatalf("IsValidTransition(%q, %q) = false, want true", from, to)
			}
		}
	}
}

// TestValidateTransitionErrorMessage verifies the guard names both phases.
func TestValidateTransitionErrorMessage(t *testing.T) {
	err := ValidateTransition(Done, Executing)
	if err == nil {
		t.Fatal("ValidateTransition(Done, Executing) = nil, want error")
	}
	want := `invalid phase transition from "DONE" to "EXECUTING"`
	if err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

// TestParse verifies name resolution for known, unknown, and empty input.
func TestParse(t *testing.T) {
	got, err := Parse("EXECUTING")
	if err != nil {
		t.Fatalf("Parse(EXECUTING) error: %v", err)
	}
	if got != Executing {
		t.Fatalf("Parse(EXECUTING) = %q, want %q", got, Executing)
	}

	if _, err := Parse("NOT_A_PHASE"); err == nil {
		t.Fatal("Parse(NOT_A_PHASE) = nil error, want error")
	}
	if _, err := Parse("  "); err == nil {
		t.Fatal("Parse of blank input = nil error, want error")
	}
}

// TestStageFor verifies the fixed phase-to-stage budget mapping.
func TestStageFor(t *testing.T) {
	cases := []struct {
		phase Phase
		want  Stage
	}{
		{Intake, StageSpec},
		{SpecDraft, StageSpec},
		{SpecReview, StageSpec},
		{QuestionsPending, StageSpec},
		{SpecApproved, StageSpec},
		{ExecPlanned, StageCode},
		{Executing, StageCode},
		{ImplReview, StageCode},
		{Validating, StageValidation},
		{TraceValidation, StageValidation},
		{Done, StageValidation},
		{Failed, StageSpec},
		{NeedsUserDecision, StageSpec},
	}

	for _, tc := range cases {
		if got := StageFor(tc.phase); got != tc.want {
			t.Fatalf("StageFor(%q) = %q, want %q", tc.phase, got, tc.want)
		}
	}
}

// TestCanEnterHonorsWhitelistAndRecovery verifies step entry checks permit
// whitelisted phases, reject others, and always admit recovery phases.
func TestCanEnterHonorsWhitelistAndRecovery(t *testing.T) {
	allowed := NewSet(ExecPlanned, Executing)

	if !CanEnter(Executing, allowed) {
		t.Fatal("CanEnter(Executing) = false, want true")
	}
	if CanEnter(SpecDraft, allowed) {
		t.Fatal("CanEnter(SpecDraft) = true, want false")
	}
	if !CanEnter(Failed, allowed) {
		t.Fatal("CanEnter(Failed) = false, want true for recovery phase")
	}
	if !CanEnter(NeedsUserDecision, allowed) {
		t.Fatal("CanEnter(NeedsUserDecision) = false, want true for recovery phase")
	}

	err := ValidateEntry("dispatcher", SpecDraft, allowed)
	if err == nil {
		t.Fatal("ValidateEntry from SPEC_DRAFT = nil, want error")
	}
	want := `step "dispatcher" cannot run from phase "SPEC_DRAFT"`
	if err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}
