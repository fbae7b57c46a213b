// Package dispatch selects ready tasks for execution under the global slot
// limit and the one-running-task-per-role rule.
package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hollowbranch/stagehand/internal/task"
)

// DefaultMaxParallel is the default global concurrency limit.
const DefaultMaxParallel = 2

// Decision captures the selection outcome for one ready task and the reason.
type Decision struct {
	Task     task.Task
	Selected bool
	Reason   string
}

// Result summarizes a dispatch pass. Promoted holds only the tasks whose
// status changed to running; the merge layer reconciles them against the
// authoritative list.
type Result struct {
	Decisions []Decision
	Promoted  []task.Task
	Slots     int
}

// Selection reasons describe why a ready task was promoted or skipped.
const (
	ReasonSelectedPriority = "selected (role priority pass)"
	ReasonSelectedFill     = "selected (slot fill pass)"
	ReasonRoleBusy         = "skipped (role already running)"
	ReasonNoSlots          = "skipped (no slots available)"
)

// Select promotes up to maxParallel - |running| ready tasks to running.
// The first pass walks the fixed role priority order picking one ready task
// per role; remaining slots fill from the ready list in order, still
// honoring one running task per role.
func Select(tasks []task.Task, maxParallel int) Result {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	busy := make(map[task.Role]bool, 4)
	running := 0
	for _, t := range tasks {
		if t.Status == task.StatusRunning {
			busy[t.Role] = true
			running++
		}
	}

	slots := maxParallel - running
	result := Result{Slots: slots}
	if slots <= 0 {
		return result
	}

	ready := task.Ready(tasks)
	selected := make(map[string]bool, slots)

	promote := func(t task.Task, reason string) {
		promoted := t.Clone()
		promoted.Status = task.StatusRunning
		result.Promoted = append(result.Promoted, promoted)
		result.Decisions = append(result.Decisions, Decision{Task: t, Selected: true, Reason: reason})
		busy[t.Role] = true
		selected[t.ID] = true
	}

	for _, role := range task.RolePriority() {
		if len(result.Promoted) >= slots {
			break
		}
		if busy[role] {
			continue
		}
		for _, t := range ready {
			if t.Role != role || selected[t.ID] {
				continue
			}
			promote(t, ReasonSelectedPriority)
			break
		}
	}

	for _, t := range ready {
		if selected[t.ID] {
			continue
		}
		if len(result.Promoted) >= slots {
			result.Decisions = append(result.Decisions, Decision{Task: t, Selected: false, Reason: ReasonNoSlots})
			continue
		}
		if busy[t.Role] {
			result.Decisions = append(result.Decisions, Decision{Task: t, Selected: false, Reason: ReasonRoleBusy})
			continue
		}
		promote(t, ReasonSelectedFill)
	}

	return result
}

// Stalled reports a deadlock description when pending tasks exist but
// nothing is running and nothing can become ready. Dangling dependencies
// and failed dependency chains are named so the operator can intervene.
func Stalled(tasks []task.Task) (string, bool) {
	counts := task.CountByStatus(tasks)
	if counts[task.StatusPending] == 0 || counts[task.StatusRunning] > 0 {
		return "", false
	}
	if len(task.Ready(tasks)) > 0 {
		return "", false
	}

	missing := task.MissingDependencies(tasks)
	if len(missing) > 0 {
		ids := make([]string, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, fmt.Sprintf("%s waits on missing %s", id, strings.Join(missing[id], ", ")))
		}
		return "unsatisfiable dependencies: " + strings.Join(parts, "; "), true
	}

	byID := task.ByID(tasks)
	var blocked []string
	for _, t := range tasks {
		if t.Status != task.StatusPending {
			continue
		}
		for _, dep := range t.Dependencies {
			if d, ok := byID[dep]; ok && d.Status == task.StatusFailed {
				blocked = append(blocked, fmt.Sprintf("%s blocked by failed %s", t.ID, dep))
				break
			}
		}
	}
	if len(blocked) > 0 {
		return "failed dependency chains: " + strings.Join(blocked, "; "), true
	}
	return "pending tasks cannot become ready", true
}
