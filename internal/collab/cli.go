package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/task"
)

// CLI runs collaborators as local agent processes resolved from the role set.
// It implements Planner, Executor, and Reviewer.
type CLI struct {
	RepoRoot string
	Roles    RoleSet
	Timeout  time.Duration
	Warn     func(string)

	now func() time.Time
}

// NewCLI constructs a CLI collaborator suite rooted at the repository.
func NewCLI(repoRoot string, set RoleSet) *CLI {
	return &CLI{RepoRoot: repoRoot, Roles: set, now: time.Now}
}

// Plan invokes the planner role and parses its task or question output.
func (c *CLI) Plan(ctx context.Context, req PlanRequest) (PlanResult, error) {
	output, err := c.run(ctx, PlannerRole, buildPlanPrompt(req))
	if err != nil {
		return PlanResult{}, err
	}
	return parsePlanResult(output)
}

// Execute invokes the worker role assigned to the task. One running task per
// role keeps the per-role prompt and log files collision free.
func (c *CLI) Execute(ctx context.Context, req WorkRequest) (WorkResult, error) {
	if strings.TrimSpace(req.Task.ID) == "" {
		return WorkResult{}, errors.New("task id is required")
	}
	output, err := c.run(ctx, string(req.Task.Role), buildWorkPrompt(req))
	if err != nil {
		return WorkResult{}, err
	}
	return parseWorkResult(output, c.timestamp())
}

// Review invokes the reviewer role over the supplied documents.
func (c *CLI) Review(ctx context.Context, req ReviewRequest) (ReviewResult, error) {
	output, err := c.run(ctx, ReviewerRole, buildReviewPrompt(req))
	if err != nil {
		return ReviewResult{}, err
	}
	return parseReviewResult(output)
}

// run composes the prompt, resolves the role command, and executes it with
// retry, returning captured stdout.
func (c *CLI) run(ctx context.Context, role string, prompt string) (string, error) {
	preamble, err := rolePrompt(c.RepoRoot, role)
	if err != nil {
		return "", err
	}
	if preamble != "" {
		prompt = strings.TrimRight(preamble, "\n") + "\n\n" + prompt
	}
	promptPath, err := writePrompt(c.RepoRoot, role, prompt)
	if err != nil {
		return "", err
	}
	command, err := ResolveCommand(c.Roles, role, promptPath, c.RepoRoot)
	if err != nil {
		return "", err
	}
	var output string
	err = invokeWithRetry(ctx, role, c.Warn, func() error {
		result, invokeErr := Invoke(ctx, Invocation{
			Command: command,
			Dir:     c.RepoRoot,
			Label:   role,
			Timeout: c.timeout(),
			Warn:    c.Warn,
		})
		if invokeErr != nil {
			return invokeErr
		}
		output = result.Output
		return nil
	})
	if err != nil {
		return "", err
	}
	return output, nil
}

// timestamp returns the current UTC time through the injected clock.
func (c *CLI) timestamp() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}
	return c.now().UTC()
}

// timeout returns the configured invocation timeout or the default.
func (c *CLI) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// buildPlanPrompt renders the planning prompt with documents and answers.
func buildPlanPrompt(req PlanRequest) string {
	var b strings.Builder
	b.WriteString("Plan the feature described below.\n")
	fmt.Fprintf(&b, "\nFeature: %s\n", req.FeatureID)
	if strings.TrimSpace(req.Request) != "" {
		fmt.Fprintf(&b, "Request: %s\n", strings.TrimSpace(req.Request))
	}
	writeDocumentSections(&b, req.Documents)
	if len(req.Answered) > 0 {
		b.WriteString("\nAnswered clarifications:\n")
		for _, question := range req.Answered {
			fmt.Fprintf(&b, "- Q: %s\n  A: %s\n", question.Question, question.Answer)
		}
	}
	if strings.TrimSpace(req.Feedback) != "" {
		fmt.Fprintf(&b, "\nFeedback from the previous attempt:\n%s\n", strings.TrimSpace(req.Feedback))
	}
	b.WriteString("\nRespond with a single JSON object.\n")
	b.WriteString("Schema example: {\"summary\": \"...\", \"tasks\": [{\"id\": \"t1\", \"description\": \"...\", \"role\": \"db\", \"depends_on\": []}], \"questions\": [{\"question\": \"...\", \"options\": []}]}\n")
	b.WriteString("Roles must be one of db, logic, ui, deploy. Ask questions instead of guessing when requirements are unclear. Return empty tasks when nothing needs to change.\n")
	return b.String()
}

// buildWorkPrompt renders the implementation prompt for one task.
func buildWorkPrompt(req WorkRequest) string {
	var b strings.Builder
	b.WriteString("Implement the task described below.\n")
	fmt.Fprintf(&b, "\nFeature: %s\nTask: %s\nRole: %s\n", req.FeatureID, req.Task.ID, req.Task.Role)
	fmt.Fprintf(&b, "Description: %s\n", req.Task.Description)
	if strings.TrimSpace(req.Task.Feedback) != "" {
		fmt.Fprintf(&b, "\nFeedback from the previous attempt:\n%s\n", strings.TrimSpace(req.Task.Feedback))
	}
	if len(req.Snapshot) > 0 {
		paths := make([]string, 0, len(req.Snapshot))
		for path := range req.Snapshot {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		fmt.Fprintf(&b, "\nWorkspace files (%d):\n", len(paths))
		for _, path := range paths {
			fmt.Fprintf(&b, "- %s\n", path)
		}
	}
	b.WriteString("\nApply your changes directly to the working tree.\n")
	b.WriteString("Respond with a single JSON object.\n")
	b.WriteString("Schema example: {\"narrative\": \"...\", \"changed_files\": [\"src/app.ts\"], \"evidence\": [{\"type\": \"test\", \"requirement_id\": \"REQ-1\", \"command\": \"npm test\", \"output_path\": \"logs/test.log\", \"status\": \"pass\"}]}\n")
	return b.String()
}

// buildReviewPrompt renders the review prompt over feature documents.
func buildReviewPrompt(req ReviewRequest) string {
	stage := strings.TrimSpace(req.Stage)
	if stage == "" {
		stage = "feature"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Review the %s documents below.\n", stage)
	fmt.Fprintf(&b, "\nFeature: %s\n", req.FeatureID)
	writeDocumentSections(&b, req.Documents)
	b.WriteString("\nRespond with a single JSON object.\n")
	b.WriteString("Schema example: {\"approved\": false, \"issues\": [\"...\"], \"questions\": [{\"question\": \"...\", \"options\": []}]}\n")
	b.WriteString("Approve only when the documents are complete and consistent. Raise questions for anything underspecified.\n")
	return b.String()
}

// writeDocumentSections appends non-empty documents in stable kind order.
func writeDocumentSections(b *strings.Builder, docs map[specdoc.Kind]string) {
	kinds := make([]specdoc.Kind, 0, len(docs))
	for kind := range docs {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, kind := range kinds {
		content := strings.TrimSpace(docs[kind])
		if content == "" {
			continue
		}
		fmt.Fprintf(b, "\n--- %s ---\n%s\n", kind, content)
	}
}

// questionPayload is the wire shape for clarifying questions.
type questionPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// parseQuestions builds open questions from decoded payload entries.
func parseQuestions(raw []questionPayload, source string) ([]ledger.OpenQuestion, error) {
	var questions []ledger.OpenQuestion
	for i, item := range raw {
		question, err := ledger.NewOpenQuestion("", item.Question)
		if err != nil {
			return nil, fmt.Errorf("%s question %d: %w", source, i+1, err)
		}
		if len(item.Options) > 0 {
			question.Options = append([]string(nil), item.Options...)
		}
		questions = append(questions, question)
	}
	return questions, nil
}

// parsePlanResult decodes planner output into tasks and questions.
func parsePlanResult(output string) (PlanResult, error) {
	blob := extractJSONObject(output)
	if blob == "" {
		return PlanResult{}, errors.New("planner output missing JSON object")
	}
	var payload struct {
		Summary string `json:"summary"`
		Tasks   []struct {
			ID          string   `json:"id"`
			Description string   `json:"description"`
			Role        string   `json:"role"`
			DependsOn   []string `json:"depends_on"`
		} `json:"tasks"`
		Questions []questionPayload `json:"questions"`
	}
	if err := json.Unmarshal([]byte(blob), &payload); err != nil {
		return PlanResult{}, fmt.Errorf("parse planner output: %w", err)
	}

	result := PlanResult{Summary: strings.TrimSpace(payload.Summary)}
	for i, item := range payload.Tasks {
		role, err := task.ParseRole(item.Role)
		if err != nil {
			return PlanResult{}, fmt.Errorf("planner task %d: %w", i+1, err)
		}
		planned, err := task.New(item.ID, item.Description, role)
		if err != nil {
			return PlanResult{}, fmt.Errorf("planner task %d: %w", i+1, err)
		}
		for _, dep := range item.DependsOn {
			dep = strings.TrimSpace(dep)
			if dep == "" || dep == planned.ID {
				continue
			}
			planned.Dependencies = append(planned.Dependencies, dep)
		}
		result.Tasks = append(result.Tasks, planned)
	}
	questions, err := parseQuestions(payload.Questions, "planner")
	if err != nil {
		return PlanResult{}, err
	}
	result.Questions = questions
	return result, nil
}

// parseWorkResult decodes executor output into changes and evidence.
func parseWorkResult(output string, now time.Time) (WorkResult, error) {
	blob := extractJSONObject(output)
	if blob == "" {
		return WorkResult{}, errors.New("executor output missing JSON object")
	}
	var payload struct {
		Narrative    string   `json:"narrative"`
		ChangedFiles []string `json:"changed_files"`
		Evidence     []struct {
			Type          string `json:"type"`
			RequirementID string `json:"requirement_id"`
			Command       string `json:"command"`
			OutputPath    string `json:"output_path"`
			Status        string `json:"status"`
		} `json:"evidence"`
	}
	if err := json.Unmarshal([]byte(blob), &payload); err != nil {
		return WorkResult{}, fmt.Errorf("parse executor output: %w", err)
	}

	result := WorkResult{Narrative: strings.TrimSpace(payload.Narrative)}
	for _, path := range payload.ChangedFiles {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		result.ChangedFiles = append(result.ChangedFiles, filepath.ToSlash(path))
	}
	for i, item := range payload.Evidence {
		record, err := ledger.NewEvidence("", item.Type, item.Status, now)
		if err != nil {
			return WorkResult{}, fmt.Errorf("executor evidence %d: %w", i+1, err)
		}
		record.RequirementID = strings.TrimSpace(item.RequirementID)
		record.Command = strings.TrimSpace(item.Command)
		record.OutputPath = strings.TrimSpace(item.OutputPath)
		result.Evidence = append(result.Evidence, record)
	}
	return result, nil
}

// parseReviewResult decodes reviewer output into a verdict.
func parseReviewResult(output string) (ReviewResult, error) {
	blob := extractJSONObject(output)
	if blob == "" {
		return ReviewResult{}, errors.New("reviewer output missing JSON object")
	}
	var payload struct {
		Approved  bool              `json:"approved"`
		Issues    []string          `json:"issues"`
		Questions []questionPayload `json:"questions"`
	}
	if err := json.Unmarshal([]byte(blob), &payload); err != nil {
		return ReviewResult{}, fmt.Errorf("parse reviewer output: %w", err)
	}

	result := ReviewResult{Approved: payload.Approved}
	for _, issue := range payload.Issues {
		issue = strings.TrimSpace(issue)
		if issue == "" {
			continue
		}
		result.Issues = append(result.Issues, issue)
	}
	questions, err := parseQuestions(payload.Questions, "reviewer")
	if err != nil {
		return ReviewResult{}, err
	}
	result.Questions = questions
	return result, nil
}

// extractJSONObject pulls the outermost JSON object from collaborator output,
// tolerating surrounding prose and markdown fences.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
