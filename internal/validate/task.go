package validate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/hollowbranch/stagehand/internal/artifact"
	"github.com/hollowbranch/stagehand/internal/task"
)

// deployErrorIndicators mark a deployment as failed when found in output.
var deployErrorIndicators = []string{
	"deployment failed",
	"deploy failed",
	"error deploying",
	"error:",
	"missing credentials",
	"authentication failed",
	"permission denied",
}

// deploySuccessIndicators mark a deployment as succeeded.
var deploySuccessIndicators = []string{
	"deployed successfully",
	"deployment successful",
	"deployment_url",
	"preview_url",
	"vercel.app",
	"supabase.co",
	`"success": true`,
}

// deployURLRegexes extract deployment URLs from worker output, keyed by the
// kind of URL each pattern yields.
var deployURLRegexes = []struct {
	key     string
	pattern *regexp2.Regexp
}{
	{key: "vercel", pattern: regexp2.MustCompile(`https://[a-zA-Z0-9-]+\.vercel\.app`, regexp2.IgnoreCase)},
	{key: "vercel", pattern: regexp2.MustCompile(`https://[a-zA-Z0-9-]+\.[a-zA-Z0-9-]+\.vercel\.app`, regexp2.IgnoreCase)},
	{key: "vercel", pattern: regexp2.MustCompile(`deployment_url["\s:]+["'](https://[^\s"']+)["']`, regexp2.IgnoreCase)},
	{key: "vercel", pattern: regexp2.MustCompile(`preview_url["\s:]+["'](https://[^\s"']+)["']`, regexp2.IgnoreCase)},
	{key: "supabase", pattern: regexp2.MustCompile(`https://[a-zA-Z0-9-]+\.supabase\.co`, regexp2.IgnoreCase)},
	{key: "supabase", pattern: regexp2.MustCompile(`project_url["\s:]+["'](https://[^\s"']+)["']`, regexp2.IgnoreCase)},
	{key: "supabase", pattern: regexp2.MustCompile(`function_url["\s:]+["'](https://[^\s"']+)["']`, regexp2.IgnoreCase)},
}

// TaskInput carries everything needed to validate one finished task.
type TaskInput struct {
	RepoRoot     string
	Task         task.Task
	ChangedFiles []string
	WorkerOutput string
	WorkerErrors []string
	Now          time.Time
}

// TaskReport is the validation outcome for one task.
type TaskReport struct {
	TaskID         string
	Passed         bool
	Problems       []string
	DeploymentURLs map[string]string
}

// ValidateTask checks a finished task's output. Deploy tasks are judged by
// their command output and extracted URLs; other roles get a syntax sweep
// over the changed files. Worker-reported errors fail validation outright.
func ValidateTask(input TaskInput) (TaskReport, error) {
	report := TaskReport{TaskID: input.Task.ID, Passed: true}

	if err := artifact.AppendRunLog(input.RepoRoot, "validation",
		fmt.Sprintf("validating task %s for role %s", input.Task.ID, input.Task.Role), input.Now); err != nil {
		return TaskReport{}, err
	}

	if len(input.WorkerErrors) > 0 {
		report.Passed = false
		report.Problems = append(report.Problems,
			fmt.Sprintf("worker reported errors: %s", input.WorkerErrors[len(input.WorkerErrors)-1]))
	}

	if input.Task.Role == task.RoleDeploy {
		passed, problems, urls := checkDeployOutput(input.Task.Description, input.WorkerOutput)
		if !passed {
			report.Passed = false
			report.Problems = append(report.Problems, problems...)
		}
		report.DeploymentURLs = urls
	} else {
		problems, err := sweepSyntax(input.RepoRoot, input.ChangedFiles, input.Now)
		if err != nil {
			return TaskReport{}, err
		}
		if len(problems) > 0 {
			report.Passed = false
			report.Problems = append(report.Problems, problems...)
		}
	}

	verdict := "PASSED"
	if !report.Passed {
		verdict = "FAILED"
	}
	if err := artifact.AppendRunLog(input.RepoRoot, "validation",
		fmt.Sprintf("task %s %s validation", input.Task.ID, verdict), input.Now); err != nil {
		return TaskReport{}, err
	}
	return report, nil
}

// Summary condenses a report's problems into one feedback line.
func (r TaskReport) Summary() string {
	problems := r.Problems
	if len(problems) > 3 {
		problems = problems[:3]
	}
	return strings.Join(problems, "; ")
}

// sweepSyntax checks every changed file and logs the outcome as a syntax
// artifact.
func sweepSyntax(repoRoot string, changed []string, now time.Time) ([]string, error) {
	var problems []string
	paths := append([]string(nil), changed...)
	sort.Strings(paths)

	for _, path := range paths {
		ok, problem, err := CheckSyntax(repoRoot, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			problems = append(problems, problem)
		}
	}

	if len(changed) > 0 {
		body := "all files passed syntax validation"
		if len(problems) > 0 {
			body = strings.Join(problems, "\n")
		}
		if _, err := artifact.SaveCommandLog(repoRoot, "syntax", "syntax_validation", body, now); err != nil {
			return nil, err
		}
	}
	return problems, nil
}

// checkDeployOutput judges a deployment by its output text.
func checkDeployOutput(description string, output string) (bool, []string, map[string]string) {
	lowerOutput := strings.ToLower(output)
	lowerDescription := strings.ToLower(description)

	hasErrors := false
	for _, indicator := range deployErrorIndicators {
		if strings.Contains(lowerOutput, indicator) {
			hasErrors = true
			break
		}
	}
	hasSuccess := false
	for _, indicator := range deploySuccessIndicators {
		if strings.Contains(lowerOutput, strings.ToLower(indicator)) {
			hasSuccess = true
			break
		}
	}

	urls := extractDeployURLs(lowerDescription, output)

	var problems []string
	if strings.Contains(lowerDescription, "vercel") {
		if _, ok := urls["vercel_preview"]; !ok {
			if _, prodOK := urls["vercel_production"]; !prodOK && !hasSuccess {
				problems = append(problems, "deployment did not return a deployment URL")
			}
		}
	}
	if strings.Contains(lowerDescription, "supabase") {
		switch {
		case strings.Contains(lowerDescription, "migration"):
			if hasErrors && !hasSuccess {
				problems = append(problems, "migration push may have failed")
			}
		case strings.Contains(lowerDescription, "function"):
			if _, ok := urls["supabase_function"]; !ok && !hasSuccess {
				problems = append(problems, "function deployment did not return a function URL")
			}
		}
	}

	passed := (hasSuccess || len(urls) > 0) && !hasErrors
	if hasErrors && !hasSuccess {
		passed = false
		if len(problems) == 0 {
			problems = append(problems, "deployment reported errors in output")
		}
	}
	return passed, problems, urls
}

// extractDeployURLs pulls platform URLs out of worker output, keyed by the
// deployment kind the task description implies.
func extractDeployURLs(lowerDescription string, output string) map[string]string {
	urls := make(map[string]string)

	wantVercel := strings.Contains(lowerDescription, "vercel") || strings.Contains(lowerDescription, "deploy")
	wantSupabase := strings.Contains(lowerDescription, "supabase") ||
		strings.Contains(lowerDescription, "migration") || strings.Contains(lowerDescription, "function")

	for _, entry := range deployURLRegexes {
		if entry.key == "vercel" && !wantVercel {
			continue
		}
		if entry.key == "supabase" && !wantSupabase {
			continue
		}

		match, err := entry.pattern.FindStringMatch(output)
		if err != nil || match == nil {
			continue
		}
		url := match.String()
		if match.GroupCount() > 1 {
			url = match.GroupByNumber(1).String()
		}

		switch entry.key {
		case "vercel":
			if _, seen := urls["vercel_preview"]; seen {
				continue
			}
			if _, seen := urls["vercel_production"]; seen {
				continue
			}
			if strings.Contains(lowerDescription, "prod") {
				urls["vercel_production"] = url
			} else {
				urls["vercel_preview"] = url
			}
		case "supabase":
			if strings.Contains(lowerDescription, "function") {
				if _, seen := urls["supabase_function"]; !seen {
					urls["supabase_function"] = url
				}
			} else {
				if _, seen := urls["supabase_project"]; !seen {
					urls["supabase_project"] = url
				}
			}
		}
	}
	if len(urls) == 0 {
		return nil
	}
	return urls
}
