// Package artifact persists validation command logs and summaries under the
// repo-local state directory.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// validationDirName is the relative path for validation artifacts.
	validationDirName = "_stagehand/_local-state/artifacts/validation"
	// summaryFileName is the filename for the validation summary.
	summaryFileName = "summary.json"
	// artifactFileMode defines the permissions for artifact files.
	artifactFileMode = 0o644
	// artifactDirMode defines the permissions for artifact directories.
	artifactDirMode = 0o755
	// timestampLayout names log files sortably by creation time.
	timestampLayout = "20060102T150405"
)

// Dir returns the validation artifact directory for a repository.
func Dir(repoRoot string) string {
	return filepath.Join(repoRoot, validationDirName)
}

// SaveCommandLog writes one command's output as a timestamped log artifact
// and returns the path relative to the repo root.
func SaveCommandLog(repoRoot string, logType string, command string, output string, now time.Time) (string, error) {
	if strings.TrimSpace(repoRoot) == "" {
		return "", errors.New("repo root is required")
	}
	if strings.TrimSpace(logType) == "" {
		return "", errors.New("log type is required")
	}

	dir := Dir(repoRoot)
	if err := os.MkdirAll(dir, artifactDirMode); err != nil {
		return "", fmt.Errorf("create artifact directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("%s_%s.log", logType, now.UTC().Format(timestampLayout))
	path := filepath.Join(dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s validation\n", logType)
	fmt.Fprintf(&b, "# command: %s\n", command)
	fmt.Fprintf(&b, "# captured: %s\n\n", now.UTC().Format(time.RFC3339))
	b.WriteString(output)
	if !strings.HasSuffix(output, "\n") {
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), artifactFileMode); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}

	rel, err := filepath.Rel(repoRoot, path)
	if err != nil {
		return path, nil
	}
	return rel, nil
}

// AppendRunLog appends a timestamped line to the running log for a
// validation phase. Unlike command logs, run logs accumulate across calls.
func AppendRunLog(repoRoot string, logType string, message string, now time.Time) error {
	if strings.TrimSpace(logType) == "" {
		return errors.New("log type is required")
	}
	dir := Dir(repoRoot)
	if err := os.MkdirAll(dir, artifactDirMode); err != nil {
		return fmt.Errorf("create artifact directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, logType+".log")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, artifactFileMode)
	if err != nil {
		return fmt.Errorf("open run log %s: %w", path, err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "[%s] %s\n", now.UTC().Format(time.RFC3339), message); err != nil {
		return fmt.Errorf("append run log %s: %w", path, err)
	}
	return nil
}

// Summary captures the machine-readable outcome of one validation run.
type Summary struct {
	FeatureID string            `json:"feature_id"`
	Passed    bool              `json:"passed"`
	Phases    map[string]string `json:"phases"`
	Logs      []string          `json:"logs,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// WriteSummary persists the validation summary for the run.
func WriteSummary(repoRoot string, summary Summary) error {
	if strings.TrimSpace(repoRoot) == "" {
		return errors.New("repo root is required")
	}
	dir := Dir(repoRoot)
	if err := os.MkdirAll(dir, artifactDirMode); err != nil {
		return fmt.Errorf("create artifact directory %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode validation summary: %w", err)
	}
	data = append(data, '\n')
	path := filepath.Join(dir, summaryFileName)
	if err := os.WriteFile(path, data, artifactFileMode); err != nil {
		return fmt.Errorf("write validation summary %s: %w", path, err)
	}
	return nil
}

// LoadSummary reads the persisted validation summary. A missing summary
// returns false rather than an error.
func LoadSummary(repoRoot string) (Summary, bool, error) {
	path := filepath.Join(Dir(repoRoot), summaryFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Summary{}, false, nil
		}
		return Summary{}, false, fmt.Errorf("read validation summary %s: %w", path, err)
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return Summary{}, false, fmt.Errorf("decode validation summary %s: %w", path, err)
	}
	return summary, true, nil
}

// CountByType tallies persisted log artifacts per validation phase, keyed
// by the type prefix of each log file name.
func CountByType(repoRoot string) (map[string]int, error) {
	counts := make(map[string]int)
	entries, err := os.ReadDir(Dir(repoRoot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return counts, nil
		}
		return nil, fmt.Errorf("read artifact directory %s: %w", Dir(repoRoot), err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), ".log")
		logType, _, found := strings.Cut(base, "_")
		if !found || logType == "" {
			continue
		}
		counts[logType]++
	}
	return counts, nil
}
