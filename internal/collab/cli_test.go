package collab

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hollowbranch/stagehand/internal/task"
)

// mustTask builds a task fixture, failing the test on invalid input.
func mustTask(t *testing.T, id string, description string, role string) task.Task {
	t.Helper()
	parsed, err := task.ParseRole(role)
	if err != nil {
		t.Fatalf("parse role: %v", err)
	}
	built, err := task.New(id, description, parsed)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return built
}

// TestExtractJSONObject covers fenced, prose-wrapped, and missing payloads.
func TestExtractJSONObject(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", `Here is the result: {"a":1} hope that helps`, `{"a":1}`},
		{"missing", "no structured data here", ""},
	}
	for _, tc := range cases {
		if got := extractJSONObject(tc.input); got != tc.want {
			t.Fatalf("%s: extractJSONObject = %q, want %q", tc.name, got, tc.want)
		}
	}
}

// TestParsePlanResult ensures tasks and questions decode with dependencies
// and generated ids.
func TestParsePlanResult(t *testing.T) {
	t.Parallel()
	output := `{"summary":"two steps","tasks":[{"id":"t1","description":"create schema","role":"db"},{"id":"t2","description":"wire api","role":"logic","depends_on":["t1","t2",""]}],"questions":[{"question":"Which region?","options":["us","eu"]}]}`

	result, err := parsePlanResult(output)
	if err != nil {
		t.Fatalf("parsePlanResult failed: %v", err)
	}
	if result.Summary != "two steps" {
		t.Fatalf("summary = %q", result.Summary)
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(result.Tasks))
	}
	if got := result.Tasks[1].Dependencies; len(got) != 1 || got[0] != "t1" {
		t.Fatalf("t2 dependencies = %v, want [t1]", got)
	}
	if len(result.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(result.Questions))
	}
	if result.Questions[0].ID == "" {
		t.Fatal("question id should be generated")
	}
	if result.Questions[0].Status != "open" {
		t.Fatalf("question status = %q, want open", result.Questions[0].Status)
	}
}

// TestParsePlanResultRejectsUnknownRole ensures bad roles are structured
// errors, not silent drops.
func TestParsePlanResultRejectsUnknownRole(t *testing.T) {
	t.Parallel()
	_, err := parsePlanResult(`{"tasks":[{"id":"t1","description":"x","role":"backend"}]}`)
	if err == nil || !strings.Contains(err.Error(), `unknown role "backend"`) {
		t.Fatalf("err = %v, want unknown role error", err)
	}
}

// TestParseWorkResult ensures changes and evidence decode into records.
func TestParseWorkResult(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	output := `done: {"narrative":"added login","changed_files":["src/auth.ts"," ","migrations/001.sql"],"evidence":[{"type":"test","requirement_id":"REQ-1","command":"npm test","status":"pass"}]}`

	result, err := parseWorkResult(output, now)
	if err != nil {
		t.Fatalf("parseWorkResult failed: %v", err)
	}
	if result.Narrative != "added login" {
		t.Fatalf("narrative = %q", result.Narrative)
	}
	if len(result.ChangedFiles) != 2 {
		t.Fatalf("changed files = %v, want 2 entries", result.ChangedFiles)
	}
	if len(result.Evidence) != 1 {
		t.Fatalf("evidence = %d, want 1", len(result.Evidence))
	}
	record := result.Evidence[0]
	if record.ID == "" {
		t.Fatal("evidence id should be generated")
	}
	if record.RequirementID != "REQ-1" || record.Status != "pass" {
		t.Fatalf("evidence = %+v", record)
	}
	if !record.CreatedAt.Equal(now) {
		t.Fatalf("created at = %v, want %v", record.CreatedAt, now)
	}
}

// TestParseWorkResultMissingJSON ensures unstructured output is rejected.
func TestParseWorkResultMissingJSON(t *testing.T) {
	t.Parallel()
	if _, err := parseWorkResult("I made some changes", time.Now()); err == nil || !strings.Contains(err.Error(), "missing JSON object") {
		t.Fatalf("err = %v, want missing JSON error", err)
	}
}

// TestParseReviewResult ensures verdicts decode with issues and questions.
func TestParseReviewResult(t *testing.T) {
	t.Parallel()
	output := "```json\n" + `{"approved":false,"issues":["missing error handling",""],"questions":[{"question":"Which DB?"}]}` + "\n```"

	result, err := parseReviewResult(output)
	if err != nil {
		t.Fatalf("parseReviewResult failed: %v", err)
	}
	if result.Approved {
		t.Fatal("verdict should not be approved")
	}
	if len(result.Issues) != 1 || result.Issues[0] != "missing error handling" {
		t.Fatalf("issues = %v", result.Issues)
	}
	if len(result.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(result.Questions))
	}
}

// TestCLIPlannerRunsConfiguredCommand runs a real scripted command through
// the full plan path.
func TestCLIPlannerRunsConfiguredCommand(t *testing.T) {
	t.Parallel()
	repoRoot := t.TempDir()
	script := `echo '{"summary":"ok","tasks":[{"id":"t1","description":"create schema","role":"db"}]}'`
	set := RoleSet{Roles: map[string]RoleSpec{
		PlannerRole: {Command: []string{"sh", "-c", script, "{prompt_path}"}},
	}}

	cli := NewCLI(repoRoot, set)
	cli.Timeout = 5 * time.Second
	result, err := cli.Plan(context.Background(), PlanRequest{FeatureID: "user-auth", Request: "add login"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(result.Tasks) != 1 || result.Tasks[0].ID != "t1" {
		t.Fatalf("tasks = %+v", result.Tasks)
	}

	prompt, err := os.ReadFile(filepath.Join(repoRoot, "_stagehand", "_local-state", "prompts", "planner.md"))
	if err != nil {
		t.Fatalf("read prompt: %v", err)
	}
	if !strings.Contains(string(prompt), "user-auth") {
		t.Fatalf("prompt missing feature id: %q", string(prompt))
	}
}

// TestCLIExecutorAppliesRolePreamble ensures the role prompt file prefixes
// the composed prompt.
func TestCLIExecutorAppliesRolePreamble(t *testing.T) {
	t.Parallel()
	repoRoot := t.TempDir()
	rolesDir := filepath.Join(repoRoot, "_stagehand", "roles")
	if err := os.MkdirAll(rolesDir, 0o755); err != nil {
		t.Fatalf("mkdir roles: %v", err)
	}
	if err := os.WriteFile(filepath.Join(rolesDir, "db.md"), []byte("You are the database specialist.\n"), 0o644); err != nil {
		t.Fatalf("write role prompt: %v", err)
	}

	script := `echo '{"narrative":"schema created","changed_files":["migrations/001.sql"]}'`
	set := RoleSet{Roles: map[string]RoleSpec{
		"db": {Command: []string{"sh", "-c", script, "{prompt_path}"}},
	}}

	cli := NewCLI(repoRoot, set)
	cli.Timeout = 5 * time.Second
	result, err := cli.Execute(context.Background(), WorkRequest{
		FeatureID: "user-auth",
		Task:      mustTask(t, "t1", "create schema", "db"),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Narrative != "schema created" {
		t.Fatalf("narrative = %q", result.Narrative)
	}

	prompt, err := os.ReadFile(filepath.Join(repoRoot, "_stagehand", "_local-state", "prompts", "db.md"))
	if err != nil {
		t.Fatalf("read prompt: %v", err)
	}
	if !strings.HasPrefix(string(prompt), "You are the database specialist.") {
		t.Fatalf("prompt missing preamble: %q", string(prompt))
	}
	if !strings.Contains(string(prompt), "create schema") {
		t.Fatalf("prompt missing task description: %q", string(prompt))
	}
}

// TestScriptedPlannerReplaysResults ensures queued results replay in order
// and the last repeats.
func TestScriptedPlannerReplaysResults(t *testing.T) {
	t.Parallel()
	planner := &ScriptedPlanner{Results: []PlanResult{
		{Summary: "first"},
		{Summary: "second"},
	}}
	for i, want := range []string{"first", "second", "second"} {
		result, err := planner.Plan(context.Background(), PlanRequest{FeatureID: "f"})
		if err != nil {
			t.Fatalf("call %d failed: %v", i+1, err)
		}
		if result.Summary != want {
			t.Fatalf("call %d summary = %q, want %q", i+1, result.Summary, want)
		}
	}
	if planner.Calls() != 3 {
		t.Fatalf("calls = %d, want 3", planner.Calls())
	}
}

// TestScriptedExecutorDefaults ensures unscripted tasks succeed and errors
// map by task id.
func TestScriptedExecutorDefaults(t *testing.T) {
	t.Parallel()
	executor := &ScriptedExecutor{Errs: map[string]error{"bad": errors.New("broke")}}

	result, err := executor.Execute(context.Background(), WorkRequest{Task: mustTask(t, "t9", "anything", "logic")})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Narrative != "completed t9" {
		t.Fatalf("narrative = %q", result.Narrative)
	}

	if _, err := executor.Execute(context.Background(), WorkRequest{Task: mustTask(t, "bad", "anything", "logic")}); err == nil {
		t.Fatal("expected scripted error")
	}
	if got := executor.Executed(); len(got) != 2 || got[0] != "t9" {
		t.Fatalf("executed = %v", got)
	}
}
