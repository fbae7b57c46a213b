package validate

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestWorkflowRunPasses verifies a profile whose commands succeed yields a
// passing report with logs.
func TestWorkflowRunPasses(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "project_profile.yaml", `
build_commands:
  - echo built
test_commands:
  - echo 1 passing
`)

	workflow := NewWorkflow(root, "feat-1")
	report, err := workflow.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.ProfileLoaded {
		t.Fatal("Run() did not load profile")
	}
	if !report.Build.Ran || !report.Build.Passed {
		t.Fatalf("build = %+v", report.Build)
	}
	if !report.Tests.Ran || !report.Tests.Passed {
		t.Fatalf("tests = %+v", report.Tests)
	}
	if !report.Passed() {
		t.Fatal("Passed() = false for clean run")
	}
	if len(report.Logs) != 2 {
		t.Fatalf("logs = %v, want one per command", report.Logs)
	}
}

// TestWorkflowRunBuildFailure verifies a failing build command fails the
// report.
func TestWorkflowRunBuildFailure(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "project_profile.yaml", `
build_commands:
  - false
test_commands:
  - echo 1 passing
`)

	report, err := NewWorkflow(root, "feat-1").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Build.Passed {
		t.Fatal("build passed despite non-zero exit")
	}
	if report.Passed() {
		t.Fatal("Passed() = true with failed build")
	}
}

// TestWorkflowRunTestOutputHeuristic verifies test output mentioning
// failures fails the step even on clean exit.
func TestWorkflowRunTestOutputHeuristic(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "project_profile.yaml", `
test_commands:
  - echo 2 failing
`)

	report, err := NewWorkflow(root, "feat-1").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Tests.Passed {
		t.Fatal("tests passed despite failing output")
	}
}

// TestWorkflowRunNoTestsNeedsDecision verifies a profile without test
// commands asks for an operator decision.
func TestWorkflowRunNoTestsNeedsDecision(t *testing.T) {
	root := t.TempDir()
	writeProfile(t, root, "project_profile.yaml", `
build_commands:
  - echo built
`)

	report, err := NewWorkflow(root, "feat-1").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.NeedsDecision {
		t.Fatal("Run() did not flag missing tests for decision")
	}
	if report.DecisionReason != NoTestsDecisionReason {
		t.Fatalf("DecisionReason = %q", report.DecisionReason)
	}
	if report.Passed() {
		t.Fatal("Passed() = true while a decision is pending")
	}
}

// TestWorkflowRunNoProfile verifies the fallback path without a profile.
func TestWorkflowRunNoProfile(t *testing.T) {
	report, err := NewWorkflow(t.TempDir(), "feat-1").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.ProfileLoaded {
		t.Fatal("ProfileLoaded = true without profile")
	}
	if report.Tests.Ran {
		t.Fatal("tests ran without package.json")
	}
}

// TestCheckHealthURL verifies the URL healthcheck against a live server.
func TestCheckHealthURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	workflow := NewWorkflow(t.TempDir(), "feat-1")
	result := workflow.checkHealth(context.Background(), &Healthcheck{Type: "url", Value: server.URL, Timeout: 5})
	if !result.Checked || !result.Passed {
		t.Fatalf("checkHealth() = %+v", result)
	}
}

// TestCheckHealthPort verifies the port healthcheck against a listener.
func TestCheckHealthPort(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer listener.Close()

	workflow := NewWorkflow(t.TempDir(), "feat-1")
	result := workflow.checkHealth(context.Background(), &Healthcheck{Type: "port", Value: listener.Addr().String(), Timeout: 5})
	if !result.Checked || !result.Passed {
		t.Fatalf("checkHealth() = %+v", result)
	}
}

// TestCheckHealthMissingValue verifies an unset healthcheck value is
// reported without probing.
func TestCheckHealthMissingValue(t *testing.T) {
	workflow := NewWorkflow(t.TempDir(), "feat-1")
	result := workflow.checkHealth(context.Background(), &Healthcheck{Type: "url"})
	if result.Checked {
		t.Fatalf("checkHealth() = %+v, want unchecked", result)
	}
}

// TestReportPhasesRan verifies executed phases are listed for the trace
// completeness gate.
func TestReportPhasesRan(t *testing.T) {
	report := Report{
		Build:  StepResult{Ran: true, Passed: true},
		Tests:  StepResult{Ran: true, Passed: true},
		Health: HealthResult{Checked: true, Passed: true},
	}
	phases := report.PhasesRan()
	if len(phases) != 3 {
		t.Fatalf("PhasesRan() = %v", phases)
	}
}
