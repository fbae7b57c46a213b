// Package audit provides append-only audit logging for stagehand runs.
package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// localStateDirName is the relative path for transient stagehand state.
	localStateDirName = "_stagehand/_local-state"
	// auditLogFileName is the filename used for audit logging.
	auditLogFileName = "audit.log"
	// auditLogFileMode defines the permissions for the audit log file.
	auditLogFileMode = 0o644
	// auditLogDirMode defines the permissions for the audit log directory.
	auditLogDirMode = 0o755
)

const (
	// EventRunStart records the beginning of a pipeline run.
	EventRunStart = "run.start"
	// EventRunFinish records the end of a pipeline run.
	EventRunFinish = "run.finish"
	// EventPhaseTransition records pipeline phase transitions.
	EventPhaseTransition = "phase.transition"
	// EventTaskDispatch records a task moving into execution.
	EventTaskDispatch = "task.dispatch"
	// EventTaskTransition records task lifecycle transitions.
	EventTaskTransition = "task.transition"
	// EventBudgetEscalate records a retry budget exhausting into a decision.
	EventBudgetEscalate = "budget.escalate"
	// EventDecisionOpen records a decision point opening.
	EventDecisionOpen = "decision.open"
	// EventCollabInvoke records a collaborator invocation.
	EventCollabInvoke = "collab.invoke"
	// EventCollabOutcome records a collaborator completion.
	EventCollabOutcome = "collab.outcome"
)

// Logger appends audit entries to a log file.
type Logger struct {
	path     string
	warnings io.Writer
	now      func() time.Time
	mu       sync.Mutex
}

// Field represents a logfmt key/value pair.
type Field struct {
	Key   string
	Value string
}

// Entry captures the required audit log fields and any optional fields.
type Entry struct {
	Feature string
	Event   string
	Fields  []Field
}

// LogPath returns the audit log location for a repository.
func LogPath(repoRoot string) string {
	return filepath.Join(repoRoot, filepath.FromSlash(localStateDirName), auditLogFileName)
}

// NewLogger builds an audit logger rooted at the provided repo.
func NewLogger(repoRoot string, warnings io.Writer) (*Logger, error) {
	if repoRoot == "" {
		return nil, errors.New("repo root is required")
	}
	if warnings == nil {
		warnings = os.Stderr
	}
	return &Logger{
		path:     LogPath(repoRoot),
		warnings: warnings,
		now:      time.Now,
	}, nil
}

// Log writes a generic audit entry to the log file.
func (logger *Logger) Log(entry Entry) error {
	if logger == nil {
		return errors.New("audit logger is nil")
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()

	line, err := logger.formatEntry(entry)
	if err != nil {
		logger.warnf("audit log entry rejected: %v", err)
		return err
	}

	exists, err := fileExists(logger.path)
	if err != nil {
		logger.warnf("audit log check failed for %s: %v", logger.path, err)
		return err
	}
	if !exists {
		logger.warnf("audit log missing at %s; creating new file", logger.path)
	}

	if err := logger.appendLine(line); err != nil {
		logger.warnf("audit log write failed for %s: %v", logger.path, err)
		return err
	}
	return nil
}

// LogRunStart records the start of a run with its originating request.
func (logger *Logger) LogRunStart(feature string, request string) error {
	return logger.Log(Entry{
		Feature: feature,
		Event:   EventRunStart,
		Fields: []Field{
			{Key: "request", Value: request},
		},
	})
}

// LogRunFinish records the end of a run with its final phase.
func (logger *Logger) LogRunFinish(feature string, phase string, status string) error {
	return logger.Log(Entry{
		Feature: feature,
		Event:   EventRunFinish,
		Fields: []Field{
			{Key: "phase", Value: phase},
			{Key: "status", Value: status},
		},
	})
}

// LogPhaseTransition records a pipeline phase transition.
func (logger *Logger) LogPhaseTransition(feature string, from string, to string) error {
	if from == "" || to == "" {
		return errors.New("phase transition requires from and to phases")
	}
	return logger.Log(Entry{
		Feature: feature,
		Event:   EventPhaseTransition,
		Fields: []Field{
			{Key: "from", Value: from},
			{Key: "to", Value: to},
		},
	})
}

// LogTaskDispatch records a task entering execution.
func (logger *Logger) LogTaskDispatch(feature string, taskID string, role string) error {
	return logger.Log(Entry{
		Feature: feature,
		Event:   EventTaskDispatch,
		Fields: []Field{
			{Key: "task_id", Value: taskID},
			{Key: "role", Value: role},
		},
	})
}

// LogTaskTransition records a task status transition.
func (logger *Logger) LogTaskTransition(feature string, taskID string, from string, to string) error {
	if from == "" || to == "" {
		return errors.New("task transition requires from and to statuses")
	}
	return logger.Log(Entry{
		Feature: feature,
		Event:   EventTaskTransition,
		Fields: []Field{
			{Key: "task_id", Value: taskID},
			{Key: "from", Value: from},
			{Key: "to", Value: to},
		},
	})
}

// LogBudgetEscalate records a retry budget exhausting into a decision point.
func (logger *Logger) LogBudgetEscalate(feature string, stage string, errorCount int) error {
	return logger.Log(Entry{
		Feature: feature,
		Event:   EventBudgetEscalate,
		Fields: []Field{
			{Key: "stage", Value: stage},
			{Key: "errors", Value: strconv.Itoa(errorCount)},
		},
	})
}

// LogDecisionOpen records a decision point opening.
func (logger *Logger) LogDecisionOpen(feature string, decisionID string, phase string) error {
	return logger.Log(Entry{
		Feature: feature,
		Event:   EventDecisionOpen,
		Fields: []Field{
			{Key: "decision_id", Value: decisionID},
			{Key: "phase", Value: phase},
		},
	})
}

// LogCollabInvoke records a collaborator invocation.
func (logger *Logger) LogCollabInvoke(feature string, role string, step string) error {
	return logger.Log(Entry{
		Feature: feature,
		Event:   EventCollabInvoke,
		Fields: []Field{
			{Key: "role", Value: role},
			{Key: "step", Value: step},
		},
	})
}

// LogCollabOutcome records a collaborator completion.
func (logger *Logger) LogCollabOutcome(feature string, role string, step string, status string) error {
	return logger.Log(Entry{
		Feature: feature,
		Event:   EventCollabOutcome,
		Fields: []Field{
			{Key: "role", Value: role},
			{Key: "step", Value: step},
			{Key: "status", Value: status},
		},
	})
}

// formatEntry renders an audit entry in logfmt-style order.
func (logger *Logger) formatEntry(entry Entry) (string, error) {
	if entry.Feature == "" {
		return "", errors.New("feature is required")
	}
	if entry.Event == "" {
		return "", errors.New("event is required")
	}
	now := logger.now
	if now == nil {
		now = time.Now
	}

	ts := now().UTC().Format(time.RFC3339)
	fields := []string{
		formatField("ts", ts),
		formatField("feature", entry.Feature),
		formatField("event", entry.Event),
	}

	for _, field := range entry.Fields {
		if field.Value == "" {
			continue
		}
		if field.Key == "" {
			return "", errors.New("field key is required")
		}
		fields = append(fields, formatField(field.Key, field.Value))
	}
	return strings.Join(fields, " "), nil
}

// formatField encodes a logfmt key/value pair.
func formatField(key string, value string) string {
	encoded := sanitizeValue(value)
	if needsQuoting(encoded) {
		return fmt.Sprintf(`%s="%s"`, key, escapeLogfmt(encoded))
	}
	return fmt.Sprintf("%s=%s", key, encoded)
}

// sanitizeValue ensures values stay single-line.
func sanitizeValue(value string) string {
	value = strings.ReplaceAll(value, "\n", `\n`)
	return strings.ReplaceAll(value, "\r", `\r`)
}

// needsQuoting reports whether the value needs logfmt quoting.
func needsQuoting(value string) bool {
	if value == "" {
		return true
	}
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}

// escapeLogfmt escapes characters that must be quoted in logfmt values.
func escapeLogfmt(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}

// appendLine writes the log entry to the audit log file.
func (logger *Logger) appendLine(line string) error {
	if logger.path == "" {
		return errors.New("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(logger.path), auditLogDirMode); err != nil {
		return fmt.Errorf("create audit log directory %s: %w", filepath.Dir(logger.path), err)
	}
	file, err := os.OpenFile(logger.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, auditLogFileMode)
	if err != nil {
		return fmt.Errorf("open audit log %s: %w", logger.path, err)
	}
	if _, err := file.WriteString(line + "\n"); err != nil {
		_ = file.Close()
		return fmt.Errorf("write audit log %s: %w", logger.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close audit log %s: %w", logger.path, err)
	}
	return nil
}

// warnf writes a warning message to the configured warnings writer.
func (logger *Logger) warnf(format string, args ...any) {
	if logger == nil || logger.warnings == nil {
		return
	}
	_, _ = fmt.Fprintf(logger.warnings, format+"\n", args...)
}

// fileExists reports whether the file exists at the path.
func fileExists(path string) (bool, error) {
	if path == "" {
		return false, errors.New("path is required")
	}
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
