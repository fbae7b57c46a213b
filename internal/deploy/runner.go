package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hollowbranch/stagehand/internal/artifact"
)

const (
	// DefaultTimeout bounds Supabase deploy commands.
	DefaultTimeout = 5 * time.Minute
	// VercelTimeout bounds Vercel deploys, which build remotely.
	VercelTimeout = 10 * time.Minute
)

// Runner executes allowlisted deploy commands in the repository root and
// saves each command's output as a validation artifact.
type Runner struct {
	RepoRoot string
	Env      map[string]string
	Warn     func(string)
}

// Result captures one deploy command execution.
type Result struct {
	Command  string
	ExitCode int
	Output   string
	TimedOut bool
	LogPath  string
	Duration time.Duration
}

// Run executes one deploy command with the given timeout. Command output is
// captured, logged as an artifact, and returned. A non-zero exit is reported
// through the error while the Result still carries the output.
func (r *Runner) Run(ctx context.Context, argv []string, timeout time.Duration) (Result, error) {
	if strings.TrimSpace(r.RepoRoot) == "" {
		return Result{}, errors.New("repo root is required")
	}
	if err := CheckCommand(argv); err != nil {
		return Result{}, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.RepoRoot

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if len(r.Env) > 0 {
		env := os.Environ()
		for key, value := range r.Env {
			env = append(env, fmt.Sprintf("%s=%s", key, value))
		}
		cmd.Env = env
	}

	start := time.Now()
	runErr := cmd.Run()
	result := Result{
		Command:  strings.Join(argv, " "),
		Output:   output.String(),
		Duration: time.Since(start),
	}

	logPath, logErr := artifact.SaveCommandLog(r.RepoRoot, "deploy", result.Command, result.Output, time.Now())
	if logErr != nil {
		r.warn(fmt.Sprintf("failed to save deploy log: %v", logErr))
	}
	result.LogPath = logPath

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			return result, fmt.Errorf("deploy command timed out after %s", timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("deploy command exited with code %d", result.ExitCode)
		}
		result.ExitCode = -1
		return result, fmt.Errorf("deploy command failed: %w", runErr)
	}
	return result, nil
}

// MigrationResult reports a database migration push.
type MigrationResult struct {
	Result
	MigrationID string
	ProjectURL  string
}

// PushMigrations applies all pending database migrations.
func (r *Runner) PushMigrations(ctx context.Context) (MigrationResult, error) {
	if err := requireCredentials(TargetSupabase); err != nil {
		return MigrationResult{}, err
	}

	result, err := r.Run(ctx, MigrationCommand(ProjectRef()), DefaultTimeout)
	migration := MigrationResult{Result: result}
	if id, ok := ExtractMigrationID(result.Output); ok {
		migration.MigrationID = id
	}
	if ref := ProjectRef(); ref != "" {
		migration.ProjectURL = SupabaseProjectURL(ref)
	}
	return migration, err
}

// FunctionResult reports an edge function deploy.
type FunctionResult struct {
	Result
	FunctionURL string
	ProjectURL  string
}

// DeployFunction deploys one edge function.
func (r *Runner) DeployFunction(ctx context.Context, functionName string) (FunctionResult, error) {
	if strings.TrimSpace(functionName) == "" {
		return FunctionResult{}, errors.New("function name is required")
	}
	if err := requireCredentials(TargetSupabase); err != nil {
		return FunctionResult{}, err
	}

	result, err := r.Run(ctx, FunctionCommand(functionName, ProjectRef()), DefaultTimeout)
	deployed := FunctionResult{Result: result}
	if ref := ProjectRef(); ref != "" {
		deployed.ProjectURL = SupabaseProjectURL(ref)
		deployed.FunctionURL = SupabaseFunctionURL(ref, functionName)
	}
	return deployed, err
}

// AppResult reports an application deploy.
type AppResult struct {
	Result
	DeploymentURL string
	IsProduction  bool
}

// DeployApp deploys the application, as a preview unless production is set.
func (r *Runner) DeployApp(ctx context.Context, production bool) (AppResult, error) {
	if err := requireCredentials(TargetVercel); err != nil {
		return AppResult{}, err
	}

	result, err := r.Run(ctx, AppCommand(production), VercelTimeout)
	deployed := AppResult{Result: result, IsProduction: production}
	if url, ok := ExtractVercelURL(result.Output); ok {
		deployed.DeploymentURL = url
	}
	return deployed, err
}

// LinkProject links the workspace to its hosting project on the platform.
func (r *Runner) LinkProject(ctx context.Context, target Target) (Result, error) {
	if err := requireCredentials(target); err != nil {
		return Result{}, err
	}
	switch target {
	case TargetSupabase:
		ref := ProjectRef()
		if ref == "" {
			return Result{}, errors.New("no project reference configured; set SUPABASE_PROJECT_REF")
		}
		return r.Run(ctx, []string{"supabase", "link", "--project-ref", ref}, DefaultTimeout)
	case TargetVercel:
		return r.Run(ctx, []string{"vercel", "link", "--yes"}, DefaultTimeout)
	default:
		return Result{}, fmt.Errorf("unknown deploy target %q", target)
	}
}

// MigrationCommand builds the migration push command.
func MigrationCommand(projectRef string) []string {
	argv := []string{"supabase", "db", "push"}
	if projectRef != "" {
		argv = append(argv, "--project-ref", projectRef)
	}
	return argv
}

// FunctionCommand builds the edge function deploy command.
func FunctionCommand(functionName string, projectRef string) []string {
	argv := []string{"supabase", "functions", "deploy", functionName}
	if projectRef != "" {
		argv = append(argv, "--project-ref", projectRef)
	}
	return argv
}

// AppCommand builds the application deploy command.
func AppCommand(production bool) []string {
	argv := []string{"vercel", "deploy", "--yes"}
	if production {
		argv = append(argv, "--prod")
	}
	return argv
}

func (r *Runner) warn(message string) {
	if r.Warn == nil {
		return
	}
	r.Warn(message)
}
