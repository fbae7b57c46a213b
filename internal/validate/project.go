package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hollowbranch/stagehand/internal/artifact"
)

const (
	// defaultCommandTimeout bounds each build or test command.
	defaultCommandTimeout = 5 * time.Minute
	// legacyTestTimeout bounds the fallback npm test run.
	legacyTestTimeout = 60 * time.Second
)

// NoTestsDecisionReason is surfaced when a project defines no test commands
// and the operator must confirm the acceptance criteria.
const NoTestsDecisionReason = "No test commands are defined for this project. Confirm the acceptance criteria before completion."

// StepResult reports one build or test pass.
type StepResult struct {
	Ran    bool     `json:"ran"`
	Passed bool     `json:"passed"`
	Output string   `json:"output,omitempty"`
	Logs   []string `json:"logs,omitempty"`
}

// HealthResult reports a service healthcheck.
type HealthResult struct {
	Checked bool   `json:"checked"`
	Passed  bool   `json:"passed"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report is the outcome of a whole-project validation run.
type Report struct {
	ProfileLoaded  bool
	Build          StepResult
	Tests          StepResult
	Health         HealthResult
	Logs           []string
	NeedsDecision  bool
	DecisionReason string
}

// Passed reports whether every validation pass that ran succeeded. A report
// needing an operator decision never passes on its own.
func (r Report) Passed() bool {
	if r.NeedsDecision {
		return false
	}
	if r.Build.Ran && !r.Build.Passed {
		return false
	}
	if r.Tests.Ran && !r.Tests.Passed {
		return false
	}
	if r.Health.Checked && !r.Health.Passed {
		return false
	}
	return true
}

// PhasesRan lists the validation phases that executed, for the requirement
// trace completeness gate.
func (r Report) PhasesRan() []string {
	var phases []string
	if r.Build.Ran {
		phases = append(phases, "build")
	}
	if r.Tests.Ran {
		phases = append(phases, "test")
	}
	if r.Health.Checked {
		phases = append(phases, "healthcheck")
	}
	return phases
}

// Workflow runs profile-driven validation: build commands, test commands,
// and a service healthcheck, logging every command as an artifact.
type Workflow struct {
	RepoRoot       string
	FeatureID      string
	CommandTimeout time.Duration
	Warn           func(string)
	now            func() time.Time
}

// NewWorkflow constructs a validation workflow for a repository.
func NewWorkflow(repoRoot string, featureID string) *Workflow {
	return &Workflow{
		RepoRoot:       repoRoot,
		FeatureID:      featureID,
		CommandTimeout: defaultCommandTimeout,
		now:            time.Now,
	}
}

func (w *Workflow) timestamp() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

func (w *Workflow) timeout() time.Duration {
	if w.CommandTimeout > 0 {
		return w.CommandTimeout
	}
	return defaultCommandTimeout
}

func (w *Workflow) warn(message string) {
	if w.Warn != nil {
		w.Warn(message)
	}
}

// Run executes the full validation workflow. A project without a profile
// falls back to a bare npm test probe; a project without test commands
// raises an operator decision instead of passing silently.
func (w *Workflow) Run(ctx context.Context) (Report, error) {
	var report Report

	if err := artifact.AppendRunLog(w.RepoRoot, "validation", "starting validation workflow", w.timestamp()); err != nil {
		return Report{}, err
	}

	profile, err := LoadProfile(w.RepoRoot)
	if err != nil {
		return Report{}, err
	}
	if profile == nil {
		if err := artifact.AppendRunLog(w.RepoRoot, "validation", "no project profile found, using fallback checks", w.timestamp()); err != nil {
			return Report{}, err
		}
		report.Tests = w.runLegacyTests(ctx)
		w.writeSummary(report)
		return report, nil
	}
	report.ProfileLoaded = true

	report.Build = w.runCommandStep(ctx, "build", profile.BuildCommands, nil)
	report.Logs = append(report.Logs, report.Build.Logs...)

	if len(profile.TestCommands) == 0 {
		report.NeedsDecision = true
		report.DecisionReason = NoTestsDecisionReason
		if err := artifact.AppendRunLog(w.RepoRoot, "validation", "no test commands found, requires operator decision", w.timestamp()); err != nil {
			return Report{}, err
		}
	} else {
		report.Tests = w.runCommandStep(ctx, "test", profile.TestCommands, testOutputFailed)
		report.Logs = append(report.Logs, report.Tests.Logs...)
	}

	if profile.IsService() {
		if err := artifact.AppendRunLog(w.RepoRoot, "validation",
			fmt.Sprintf("service project detected, start commands: %s", strings.Join(profile.RunCommands, "; ")), w.timestamp()); err != nil {
			return Report{}, err
		}
		report.Health = w.checkHealth(ctx, profile.Healthcheck)
	}

	w.writeSummary(report)
	return report, nil
}

// runCommandStep executes each command in order, logging output per command.
// An optional outputFailed check can fail a step whose exit code was clean.
func (w *Workflow) runCommandStep(ctx context.Context, logType string, commands []string, outputFailed func(string) bool) StepResult {
	result := StepResult{}
	if len(commands) == 0 {
		result.Output = fmt.Sprintf("no %s commands specified", logType)
		return result
	}

	result.Ran = true
	allPassed := true
	var output strings.Builder

	for _, command := range commands {
		commandOutput, exitCode, err := w.execute(ctx, command, w.timeout())

		logPath, logErr := artifact.SaveCommandLog(w.RepoRoot, logType, command, commandOutput, w.timestamp())
		if logErr != nil {
			w.warn(fmt.Sprintf("failed to save %s log: %v", logType, logErr))
		} else {
			result.Logs = append(result.Logs, logPath)
		}

		switch {
		case err != nil:
			allPassed = false
			fmt.Fprintf(&output, "%s command errored: %s\n%v\n", logType, command, err)
		case exitCode != 0:
			allPassed = false
			fmt.Fprintf(&output, "%s command failed: %s (exit %d)\n%s\n", logType, command, exitCode, truncate(commandOutput, 1000))
		case outputFailed != nil && outputFailed(commandOutput):
			allPassed = false
			fmt.Fprintf(&output, "%s command reported failures: %s\n%s\n", logType, command, truncate(commandOutput, 1000))
		default:
			fmt.Fprintf(&output, "%s command succeeded: %s\n%s\n", logType, command, truncate(commandOutput, 500))
		}
	}

	result.Passed = allPassed
	result.Output = output.String()
	return result
}

// checkHealth probes the service per the profile healthcheck.
func (w *Workflow) checkHealth(ctx context.Context, healthcheck *Healthcheck) HealthResult {
	result := HealthResult{}
	if healthcheck == nil || strings.TrimSpace(healthcheck.Value) == "" {
		result.Error = "healthcheck value not specified"
		return result
	}

	result.Checked = true
	timeout := time.Duration(healthcheck.Timeout) * time.Second

	switch healthcheck.Type {
	case "url":
		client := &http.Client{Timeout: timeout}
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, healthcheck.Value, nil)
		if err != nil {
			result.Error = err.Error()
			break
		}
		response, err := client.Do(request)
		if err != nil {
			result.Error = err.Error()
			result.Output = fmt.Sprintf("healthcheck error: %v", err)
			break
		}
		response.Body.Close()
		result.Passed = response.StatusCode == http.StatusOK
		result.Output = fmt.Sprintf("healthcheck URL %s: status %d", healthcheck.Value, response.StatusCode)

	case "port":
		host, port := splitHostPort(healthcheck.Value)
		conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), timeout)
		if err != nil {
			result.Output = fmt.Sprintf("healthcheck port %s:%s: closed", host, port)
			break
		}
		conn.Close()
		result.Passed = true
		result.Output = fmt.Sprintf("healthcheck port %s:%s: open", host, port)

	case "command":
		output, exitCode, err := w.execute(ctx, healthcheck.Value, timeout)
		result.Passed = err == nil && exitCode == 0
		result.Output = fmt.Sprintf("healthcheck command: %s", truncate(output, 500))
		if err != nil {
			result.Error = err.Error()
		}

	default:
		result.Error = fmt.Sprintf("unknown healthcheck type %q", healthcheck.Type)
	}

	if _, err := artifact.SaveCommandLog(w.RepoRoot, "healthcheck",
		fmt.Sprintf("healthcheck (%s)", healthcheck.Type), result.Output, w.timestamp()); err != nil {
		w.warn(fmt.Sprintf("failed to save healthcheck log: %v", err))
	}
	return result
}

// runLegacyTests probes a profile-less project with npm test when a
// package.json is present.
func (w *Workflow) runLegacyTests(ctx context.Context) StepResult {
	result := StepResult{}
	if _, err := os.Stat(filepath.Join(w.RepoRoot, "package.json")); err != nil {
		result.Output = "no package.json found, skipping tests"
		return result
	}

	output, exitCode, err := w.execute(ctx, "npm test", legacyTestTimeout)
	result.Ran = true
	result.Output = output
	if logPath, logErr := artifact.SaveCommandLog(w.RepoRoot, "test", "npm test", output, w.timestamp()); logErr == nil {
		result.Logs = append(result.Logs, logPath)
	}
	result.Passed = err == nil && exitCode == 0 && !testOutputFailed(output)
	return result
}

// execute runs one whitespace-separated command in the repo root with a
// timeout, returning combined output and the exit code.
func (w *Workflow) execute(ctx context.Context, command string, timeout time.Duration) (string, int, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return "", -1, errors.New("command is required")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = w.RepoRoot

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output.String(), -1, fmt.Errorf("command timed out after %s", timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output.String(), exitErr.ExitCode(), nil
		}
		return output.String(), -1, fmt.Errorf("run command: %w", err)
	}
	return output.String(), 0, nil
}

// writeSummary persists the report as the validation summary artifact.
func (w *Workflow) writeSummary(report Report) {
	phases := make(map[string]string)
	for _, phase := range report.PhasesRan() {
		status := "passed"
		switch phase {
		case "build":
			if !report.Build.Passed {
				status = "failed"
			}
		case "test":
			if !report.Tests.Passed {
				status = "failed"
			}
		case "healthcheck":
			if !report.Health.Passed {
				status = "failed"
			}
		}
		phases[phase] = status
	}

	summary := artifact.Summary{
		FeatureID: w.FeatureID,
		Passed:    report.Passed(),
		Phases:    phases,
		Logs:      report.Logs,
		CreatedAt: w.timestamp(),
	}
	if err := artifact.WriteSummary(w.RepoRoot, summary); err != nil {
		w.warn(fmt.Sprintf("failed to save validation summary: %v", err))
	}
}

// testOutputFailed applies the test output heuristic: failing tests often
// exit zero under wrapper scripts, so the text is checked too.
func testOutputFailed(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "failing") || strings.Contains(lower, "failed")
}

// splitHostPort separates a healthcheck target, defaulting to localhost.
func splitHostPort(value string) (string, string) {
	if host, port, found := strings.Cut(value, ":"); found {
		return host, port
	}
	return "localhost", value
}

// truncate truncates a string to the specified width with ellipsis.
func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}
