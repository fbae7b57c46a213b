package collab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// logsDirName is the relative path for collaborator execution logs.
	logsDirName = "_stagehand/_local-state/logs"
	// promptsDirName is the relative path for composed prompt files.
	promptsDirName = "_stagehand/_local-state/prompts"
	// logFileMode is the file mode for log and prompt files.
	logFileMode = 0o644
	// logDirMode is the directory mode for log directories.
	logDirMode = 0o755

	// DefaultTimeout bounds a single collaborator invocation.
	DefaultTimeout = 10 * time.Minute

	// invokeAttempts is the fixed attempt count at the collaborator boundary.
	invokeAttempts = 3
	// backoffBase is the first retry delay; later delays double it.
	backoffBase = time.Second
)

// Invocation describes one collaborator process run.
type Invocation struct {
	Command []string
	Dir     string
	Label   string
	Timeout time.Duration
	Env     map[string]string
	Warn    func(string)
}

// InvokeResult captures a collaborator process run.
type InvokeResult struct {
	Output     string
	Errors     string
	ExitCode   int
	TimedOut   bool
	StdoutPath string
	StderrPath string
	Duration   time.Duration
}

// collabLogFiles groups log paths and handles for one invocation.
type collabLogFiles struct {
	stdoutPath string
	stderrPath string
	stdoutFile *os.File
	stderrFile *os.File
}

// Invoke runs a collaborator process with timeout and log capture. Output is
// streamed to log files and kept in memory for parsing.
func Invoke(ctx context.Context, inv Invocation) (InvokeResult, error) {
	if len(inv.Command) == 0 {
		return InvokeResult{}, errors.New("command is required")
	}
	if strings.TrimSpace(inv.Dir) == "" {
		return InvokeResult{}, errors.New("working directory is required")
	}
	if strings.TrimSpace(inv.Label) == "" {
		return InvokeResult{}, errors.New("invocation label is required")
	}
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logs, err := createLogFiles(inv.Dir, inv.Label)
	if err != nil {
		return InvokeResult{}, err
	}
	defer logs.stdoutFile.Close()
	defer logs.stderrFile.Close()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, inv.Command[0], inv.Command[1:]...)
	cmd.Dir = inv.Dir
	cmd.Stdout = io.MultiWriter(logs.stdoutFile, &stdout)
	cmd.Stderr = io.MultiWriter(logs.stderrFile, &stderr)
	if len(inv.Env) > 0 {
		env := os.Environ()
		for key, value := range inv.Env {
			env = append(env, fmt.Sprintf("%s=%s", key, value))
		}
		cmd.Env = env
	}

	start := time.Now()
	runErr := cmd.Run()
	result := InvokeResult{
		Output:     stdout.String(),
		Errors:     stderr.String(),
		StdoutPath: relativePath(inv.Dir, logs.stdoutPath),
		StderrPath: relativePath(inv.Dir, logs.stderrPath),
		Duration:   time.Since(start),
	}

	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.ExitCode = -1
			emitWarning(inv.Warn, fmt.Sprintf("%s timed out after %s", inv.Label, timeout))
			return result, fmt.Errorf("%s timed out after %s", inv.Label, timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("%s exited with code %d", inv.Label, result.ExitCode)
		}
		result.ExitCode = -1
		return result, fmt.Errorf("run %s: %w", inv.Label, runErr)
	}
	result.ExitCode = 0
	return result, nil
}

// invokeWithRetry runs fn with exponential backoff between failed attempts.
// Context cancellation stops the retry loop immediately.
func invokeWithRetry(ctx context.Context, label string, warn func(string), fn func() error) error {
	var err error
	for attempt := 0; attempt < invokeAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s retry aborted: %w", label, ctx.Err())
			case <-time.After(delay):
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		emitWarning(warn, fmt.Sprintf("%s attempt %d failed: %v", label, attempt+1, err))
	}
	return fmt.Errorf("%s failed after %d attempts: %w", label, invokeAttempts, err)
}

// writePrompt persists a composed prompt and returns its repo-relative path.
func writePrompt(repoRoot string, label string, content string) (string, error) {
	dir := filepath.Join(repoRoot, filepath.FromSlash(promptsDirName))
	if err := os.MkdirAll(dir, logDirMode); err != nil {
		return "", fmt.Errorf("create prompts directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, label+".md")
	if err := os.WriteFile(path, []byte(content), logFileMode); err != nil {
		return "", fmt.Errorf("write prompt %s: %w", path, err)
	}
	return relativePath(repoRoot, path), nil
}

// createLogFiles creates stdout/stderr log files for one invocation.
func createLogFiles(repoRoot string, label string) (collabLogFiles, error) {
	logsDir := filepath.Join(repoRoot, filepath.FromSlash(logsDirName))
	if err := os.MkdirAll(logsDir, logDirMode); err != nil {
		return collabLogFiles{}, fmt.Errorf("create logs directory %s: %w", logsDir, err)
	}

	timestamp := time.Now().Format("20060102-150405")
	stdoutPath := filepath.Join(logsDir, fmt.Sprintf("%s-%s-stdout.log", label, timestamp))
	stderrPath := filepath.Join(logsDir, fmt.Sprintf("%s-%s-stderr.log", label, timestamp))

	stdoutFile, err := os.Create(stdoutPath)
	if err != nil {
		return collabLogFiles{}, fmt.Errorf("create stdout log %s: %w", stdoutPath, err)
	}
	stderrFile, err := os.Create(stderrPath)
	if err != nil {
		stdoutFile.Close()
		return collabLogFiles{}, fmt.Errorf("create stderr log %s: %w", stderrPath, err)
	}

	return collabLogFiles{
		stdoutPath: stdoutPath,
		stderrPath: stderrPath,
		stdoutFile: stdoutFile,
		stderrFile: stderrFile,
	}, nil
}

// relativePath returns a repository-relative path using forward slashes.
func relativePath(root string, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// emitWarning sends a warning to the configured sink.
func emitWarning(warn func(string), message string) {
	if warn == nil {
		return
	}
	warn(message)
}
