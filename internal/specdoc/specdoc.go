// Package specdoc manages the per-feature document tree under
// _stagehand/features, where planning and review output is persisted.
package specdoc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// featuresDirName is the relative path for feature documents.
	featuresDirName = "_stagehand/features"
	// docFileMode defines the permissions for feature documents.
	docFileMode = 0o644
	// docDirMode defines the permissions for feature directories.
	docDirMode = 0o755
)

// Kind identifies one document within a feature directory.
type Kind string

const (
	// KindSpec is the feature specification drafted by the planner.
	KindSpec Kind = "spec"
	// KindPlan is the execution plan.
	KindPlan Kind = "plan"
	// KindTasks is the task breakdown.
	KindTasks Kind = "tasks"
	// KindClarifications records answered questions.
	KindClarifications Kind = "clarifications"
	// KindQuestions records questions awaiting answers.
	KindQuestions Kind = "questions"
	// KindVerifyReport is the rendered requirement trace report.
	KindVerifyReport Kind = "verify-report"
	// KindSummary is the final run summary.
	KindSummary Kind = "summary"
	// KindValidationReport is the validation outcome report.
	KindValidationReport Kind = "validation-report"
	// KindRisksDebt records known risks and accepted debt.
	KindRisksDebt Kind = "risks-debt"
)

// fileNames maps each document kind to its on-disk filename.
var fileNames = map[Kind]string{
	KindSpec:             "spec.md",
	KindPlan:             "plan.md",
	KindTasks:            "tasks.md",
	KindClarifications:   "clarifications.md",
	KindQuestions:        "questions.md",
	KindVerifyReport:     "verify-report.md",
	KindSummary:          "summary.md",
	KindValidationReport: "validation_report.md",
	KindRisksDebt:        "risks_debt.md",
}

// Kinds returns every document kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindSpec,
		KindPlan,
		KindTasks,
		KindClarifications,
		KindQuestions,
		KindVerifyReport,
		KindSummary,
		KindValidationReport,
		KindRisksDebt,
	}
}

// Filename returns the on-disk filename for a document kind.
func Filename(kind Kind) string {
	if name, ok := fileNames[kind]; ok {
		return name
	}
	return string(kind) + ".md"
}

// FeaturesDir returns the directory holding all feature document trees.
func FeaturesDir(repoRoot string) string {
	return filepath.Join(repoRoot, featuresDirName)
}

// FeatureDir returns the document directory for one feature.
func FeatureDir(repoRoot string, featureID string) string {
	return filepath.Join(FeaturesDir(repoRoot), featureID)
}

// TracePath returns the requirement trace file for one feature.
func TracePath(repoRoot string, featureID string) string {
	return filepath.Join(FeatureDir(repoRoot, featureID), "trace.json")
}

// EnsureFeatureDir creates the document directory for a feature.
func EnsureFeatureDir(repoRoot string, featureID string) error {
	if strings.TrimSpace(featureID) == "" {
		return errors.New("feature id is required")
	}
	dir := FeatureDir(repoRoot, featureID)
	if err := os.MkdirAll(dir, docDirMode); err != nil {
		return fmt.Errorf("create feature directory %s: %w", dir, err)
	}
	return nil
}

// Read returns the content of one feature document. A missing document
// reads as empty rather than an error.
func Read(repoRoot string, featureID string, kind Kind) (string, error) {
	path := filepath.Join(FeatureDir(repoRoot, featureID), Filename(kind))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read feature document %s: %w", path, err)
	}
	return string(data), nil
}

// Write persists one feature document, creating the directory as needed.
func Write(repoRoot string, featureID string, kind Kind, content string) error {
	if err := EnsureFeatureDir(repoRoot, featureID); err != nil {
		return err
	}
	path := filepath.Join(FeatureDir(repoRoot, featureID), Filename(kind))
	if err := os.WriteFile(path, []byte(content), docFileMode); err != nil {
		return fmt.Errorf("write feature document %s: %w", path, err)
	}
	return nil
}

// ListFeatures returns the ids of all features with a document directory,
// sorted alphabetically.
func ListFeatures(repoRoot string) ([]string, error) {
	entries, err := os.ReadDir(FeaturesDir(repoRoot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read features directory: %w", err)
	}
	var features []string
	for _, entry := range entries {
		if entry.IsDir() {
			features = append(features, entry.Name())
		}
	}
	sort.Strings(features)
	return features, nil
}

// Structure reports which documents exist for a feature.
func Structure(repoRoot string, featureID string) map[Kind]bool {
	dir := FeatureDir(repoRoot, featureID)
	present := make(map[Kind]bool, len(fileNames))
	for kind, name := range fileNames {
		_, err := os.Stat(filepath.Join(dir, name))
		present[kind] = err == nil
	}
	return present
}
