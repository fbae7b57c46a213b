package task

import (
	"fmt"
	"sort"
	"strings"
)

// ByID builds a lookup map from task id to task. Later duplicates are
// ignored so the first occurrence stays authoritative.
func ByID(tasks []Task) map[string]Task {
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if _, ok := byID[t.ID]; ok {
			continue
		}
		byID[t.ID] = t
	}
	return byID
}

// IsReady reports whether the task is pending with every dependency
// completed and none failed. A dependency id absent from the lookup is
// unsatisfied forever, so the task is not ready.
func IsReady(t Task, byID map[string]Task) bool {
	if t.Status != StatusPending {
		return false
	}
	for _, dep := range t.Dependencies {
		dependency, ok := byID[dep]
		if !ok {
			return false
		}
		if dependency.Status == StatusFailed {
			return false
		}
		if dependency.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Ready returns the ready tasks preserving their list order.
func Ready(tasks []Task) []Task {
	byID := ByID(tasks)
	ready := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if IsReady(t, byID) {
			ready = append(ready, t)
		}
	}
	return ready
}

// CountByStatus tallies tasks per status.
func CountByStatus(tasks []Task) map[Status]int {
	counts := make(map[Status]int, 4)
	for _, t := range tasks {
		counts[t.Status]++
	}
	return counts
}

// MissingDependencies maps each task id to the dependency ids absent from
// the graph. Tasks blocked this way can never become ready, which the
// scheduler must surface as a deadlock rather than ignore.
func MissingDependencies(tasks []Task) map[string][]string {
	byID := ByID(tasks)
	missing := make(map[string][]string)
	for _, t := range tasks {
		var absent []string
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep]; !ok {
				absent = append(absent, dep)
			}
		}
		if len(absent) > 0 {
			sort.Strings(absent)
			missing[t.ID] = absent
		}
	}
	return missing
}

// DetectCycles reports a cycle in the dependency graph when present.
// Dangling dependency ids are skipped; they are handled separately as
// unsatisfiable edges.
func DetectCycles(tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := ByID(tasks)

	visitState := make(map[string]int, len(byID))
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if visitState[id] != 0 {
			continue
		}
		if err := visitDependencies(id, byID, visitState, nil); err != nil {
			return err
		}
	}
	return nil
}

// visitDependencies performs a DFS walk and stops on the first detected cycle.
func visitDependencies(id string, byID map[string]Task, visitState map[string]int, stack []string) error {
	if visitState[id] == 1 {
		return fmt.Errorf("circular dependency detected: %s", strings.Join(cyclePath(stack, id), " -> "))
	}
	if visitState[id] == 2 {
		return nil
	}
	visitState[id] = 1
	stack = append(stack, id)
	for _, dep := range byID[id].Dependencies {
		if _, ok := byID[dep]; !ok {
			continue
		}
		if err := visitDependencies(dep, byID, visitState, stack); err != nil {
			return err
		}
	}
	visitState[id] = 2
	return nil
}

// cyclePath returns a cycle slice starting at the repeated id.
func cyclePath(stack []string, repeat string) []string {
	start := indexOf(stack, repeat)
	if start == -1 {
		return []string{repeat, repeat}
	}
	path := append([]string{}, stack[start:]...)
	return append(path, repeat)
}

// indexOf returns the index of the target string or -1 when missing.
func indexOf(values []string, target string) int {
	for i, value := range values {
		if value == target {
			return i
		}
	}
	return -1
}
