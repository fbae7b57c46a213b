package phase

import "fmt"

// Set is an unordered collection of phases used for step entry whitelists.
type Set map[Phase]struct{}

// NewSet builds a Set from the supplied phases.
func NewSet(phases ...Phase) Set {
	set := make(Set, len(phases))
	for _, p := range phases {
		set[p] = struct{}{}
	}
	return set
}

// Contains reports whether the set includes the phase.
func (s Set) Contains(p Phase) bool {
	_, ok := s[p]
	return ok
}

// CanEnter reports whether a step whitelisted for allowed may run while the
// pipeline sits at current. Recovery phases may enter any step.
func CanEnter(current Phase, allowed Set) bool {
	if current.IsRecovery() {
		return true
	}
	return allowed.Contains(current)
}

// ValidateEntry returns a structural error when a step is invoked from a
// phase outside its whitelist.
func ValidateEntry(step string, current Phase, allowed Set) error {
	if !CanEnter(current, allowed) {
		return fmt.Errorf("step %q cannot run from phase %q", step, current)
	}
	return nil
}
