package phase

// Stage labels the coarse retry-budget bucket spanning several phases.
type Stage string

const (
	// StageSpec covers intake, drafting, review, and clarification phases.
	StageSpec Stage = "spec"
	// StageCode covers planning, execution, and implementation review phases.
	StageCode Stage = "code"
	// StageValidation covers validation and trace verification phases.
	StageValidation Stage = "validation"
)

// Stages returns every budget stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageSpec, StageCode, StageValidation}
}

// stageByPhase maps each phase to the stage that owns its retry budget.
// Recovery phases book against the spec stage.
var stageByPhase = map[Phase]Stage{
	Intake:            StageSpec,
	SpecDraft:         StageSpec,
	SpecReview:        StageSpec,
	QuestionsPending:  StageSpec,
	SpecApproved:      StageSpec,
	ExecPlanned:       StageCode,
	Executing:         StageCode,
	ImplReview:        StageCode,
	Validating:        StageValidation,
	TraceValidation:   StageValidation,
	Done:              StageValidation,
	Failed:            StageSpec,
	NeedsUserDecision: StageSpec,
}

// StageFor resolves the retry-budget stage for a phase.
func StageFor(p Phase) Stage {
	if stage, ok := stageByPhase[p]; ok {
		return stage
	}
	return StageSpec
}

// IsValid reports whether the stage is a known budget bucket.
func (s Stage) IsValid() bool {
	switch s {
	case StageSpec, StageCode, StageValidation:
		return true
	}
	return false
}
