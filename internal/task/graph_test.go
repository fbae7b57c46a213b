package task

import (
	"strings"
	"testing"
)

func mustTask(t *testing.T, id string, role Role, deps ...string) Task {
	t.Helper()
	created, err := New(id, "work for "+id, role)
	if err != nil {
		t.Fatalf("New(%s) error: %v", id, err)
	}
	created.Dependencies = deps
	return created
}

// TestReadyRequiresCompletedDependencies verifies pending tasks become ready
// only once every dependency completed.
func TestReadyRequiresCompletedDependencies(t *testing.T) {
	a := mustTask(t, "a", RoleDB)
	b := mustTask(t, "b", RoleLogic, "a")
	c := mustTask(t, "c", RoleUI)

	ready := Ready([]Task{a, b, c})
	if len(ready) != 2 || ready[0].ID != "a" || ready[1].ID != "c" {
		t.Fatalf("ready = %v, want [a c]", ids(ready))
	}

	a.Status = StatusCompleted
	ready = Ready([]Task{a, b, c})
	if len(ready) != 2 || ready[0].ID != "b" || ready[1].ID != "c" {
		t.Fatalf("ready after a completes = %v, want [b c]", ids(ready))
	}
}

// TestReadyExcludesFailedDependencyChains verifies a task with any failed
// dependency is never selected.
func TestReadyExcludesFailedDependencyChains(t *testing.T) {
	a := mustTask(t, "a", RoleDB)
	a.Status = StatusFailed
	b := mustTask(t, "b", RoleLogic, "a")

	ready := Ready([]Task{a, b})
	if len(ready) != 0 {
		t.Fatalf("ready = %v, want empty", ids(ready))
	}
}

// TestReadyTreatsDanglingDependenciesAsUnsatisfied verifies a missing
// dependency id blocks readiness forever and is reported as missing.
func TestReadyTreatsDanglingDependenciesAsUnsatisfied(t *testing.T) {
	b := mustTask(t, "b", RoleLogic, "ghost")

	if got := Ready([]Task{b}); len(got) != 0 {
		t.Fatalf("ready = %v, want empty", ids(got))
	}

	missing := MissingDependencies([]Task{b})
	absent, ok := missing["b"]
	if !ok {
		t.Fatal("MissingDependencies has no entry for b")
	}
	if len(absent) != 1 || absent[0] != "ghost" {
		t.Fatalf("missing deps for b = %v, want [ghost]", absent)
	}
}

// TestDetectCyclesReportsPath verifies cycle detection names the cycle.
func TestDetectCyclesReportsPath(t *testing.T) {
	a := mustTask(t, "a", RoleDB, "b")
	b := mustTask(t, "b", RoleLogic, "a")

	err := DetectCycles([]Task{a, b})
	if err == nil {
		t.Fatal("DetectCycles = nil, want error")
	}
	if !strings.Contains(err.Error(), "circular dependency detected") {
		t.Fatalf("error = %q, want circular dependency message", err.Error())
	}
}

// TestDetectCyclesIgnoresDanglingEdges verifies missing dependency ids do
// not trip the cycle walk.
func TestDetectCyclesIgnoresDanglingEdges(t *testing.T) {
	a := mustTask(t, "a", RoleDB, "ghost")
	if err := DetectCycles([]Task{a}); err != nil {
		t.Fatalf("DetectCycles error: %v", err)
	}
}

// TestCountByStatus verifies status tallies.
func TestCountByStatus(t *testing.T) {
	a := mustTask(t, "a", RoleDB)
	b := mustTask(t, "b", RoleLogic)
	b.Status = StatusCompleted
	c := mustTask(t, "c", RoleUI)
	c.Status = StatusCompleted

	counts := CountByStatus([]Task{a, b, c})
	if counts[StatusPending] != 1 || counts[StatusCompleted] != 2 {
		t.Fatalf("counts = %v, want pending=1 completed=2", counts)
	}
}

func ids(tasks []Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
