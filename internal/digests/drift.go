package digests

import (
	"fmt"
	"sort"
	"strings"
)

// DriftReport summarizes whether stored digests still match the feature's
// documents on disk.
type DriftReport struct {
	HasDrift bool
	Message  string
	Details  []string
}

// Detect compares stored digests against the feature's current documents.
func Detect(repoRoot string, featureID string, stored map[string]string) (DriftReport, error) {
	current, err := Compute(repoRoot, featureID)
	if err != nil {
		return DriftReport{}, err
	}

	reasons := driftReasons(stored, current)
	if len(reasons) == 0 {
		return DriftReport{HasDrift: false, Message: "no document drift detected"}, nil
	}
	return DriftReport{
		HasDrift: true,
		Message:  fmt.Sprintf("approved documents drifted: %s", strings.Join(reasons, "; ")),
		Details:  reasons,
	}, nil
}

func driftReasons(stored map[string]string, current map[string]string) []string {
	var reasons []string
	for _, name := range sortedKeys(stored) {
		digest, ok := current[name]
		switch {
		case !ok:
			reasons = append(reasons, fmt.Sprintf("%s was removed after approval", name))
		case digest != stored[name]:
			reasons = append(reasons, fmt.Sprintf("%s changed after approval", name))
		}
	}
	for _, name := range sortedKeys(current) {
		if _, ok := stored[name]; !ok {
			reasons = append(reasons, fmt.Sprintf("%s appeared after approval", name))
		}
	}
	return reasons
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
