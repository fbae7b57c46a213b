package engine

import (
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/state"
)

// Kind tags a step outcome. Steps never panic or throw past their boundary;
// every result is one of these three variants.
type Kind int

const (
	// KindDelta is a normal outcome carrying a state delta to apply.
	KindDelta Kind = iota
	// KindBlocked halts the run cleanly until an operator or user acts.
	KindBlocked
	// KindFatal is a structural failure that forces the run into FAILED.
	KindFatal
)

// String names the outcome kind for logs.
func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindBlocked:
		return "blocked"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one step. Via lists intermediate phases the
// step transited before the delta's landing phase, so the scheduler can
// validate and audit every hop of a multi-edge step.
type Outcome struct {
	Kind   Kind
	Delta  state.Delta
	Via    []phase.Phase
	Reason string
	Err    error
}

// Advance wraps a state delta in a normal outcome.
func Advance(delta state.Delta) Outcome {
	return Outcome{Kind: KindDelta, Delta: delta}
}

// AdvanceVia wraps a state delta that lands after transiting intermediate
// phases within a single step.
func AdvanceVia(delta state.Delta, via ...phase.Phase) Outcome {
	return Outcome{Kind: KindDelta, Delta: delta, Via: via}
}

// Blocked reports a step that cannot proceed without external input.
func Blocked(reason string) Outcome {
	return Outcome{Kind: KindBlocked, Reason: reason}
}

// Fatal reports a structural failure.
func Fatal(err error) Outcome {
	return Outcome{Kind: KindFatal, Err: err}
}
