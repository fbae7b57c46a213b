// Package report renders the final console summary for a pipeline run.
// A summary is produced on every exit path so partial progress is never
// silently discarded.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hollowbranch/stagehand/internal/artifact"
	"github.com/hollowbranch/stagehand/internal/audit"
	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/state"
	"github.com/hollowbranch/stagehand/internal/task"
)

// Run outcome labels.
const (
	OutcomeDone    = "done"
	OutcomeBlocked = "blocked"
	OutcomeFailed  = "failed"
)

const (
	stageColumnWidth  = 12
	stepColumnWidth   = 16
	taskColumnWidth   = 16
	targetColumnWidth = 16
)

// Report captures everything the final run summary shows.
type Report struct {
	FeatureID        string
	Phase            phase.Phase
	Outcome          string
	Reason           string
	Elapsed          time.Duration
	TotalTasks       int
	Counts           map[task.Status]int
	ValidationStatus string
	Requirements     int
	Satisfied        int
	EvidenceRecords  int
	OpenQuestions    int
	OpenDecisions    int
	Budgets          map[phase.Stage]state.StageBudget
	Usage            state.Usage
	DeploymentURLs   map[string]string
	ErrorLog         []state.ErrorLogEntry
	ArtifactPaths    []string
}

// Build assembles the report from a run's end state. Artifact paths are
// included only when they exist on disk.
func Build(repoRoot string, final state.State, outcome string, reason string, elapsed time.Duration) Report {
	satisfied := 0
	for _, criterion := range final.AcceptanceCriteria {
		if criterion.Satisfied {
			satisfied++
		}
	}

	budgets := make(map[phase.Stage]state.StageBudget, len(phase.Stages()))
	for _, stage := range phase.Stages() {
		budgets[stage] = final.Budget(stage)
	}

	return Report{
		FeatureID:        final.FeatureID,
		Phase:            final.Phase,
		Outcome:          outcome,
		Reason:           strings.TrimSpace(reason),
		Elapsed:          elapsed,
		TotalTasks:       len(final.Tasks),
		Counts:           task.CountByStatus(final.Tasks),
		ValidationStatus: final.ValidationStatus,
		Requirements:     len(final.AcceptanceCriteria),
		Satisfied:        satisfied,
		EvidenceRecords:  len(final.Evidence),
		OpenQuestions:    len(ledger.OpenQuestions(final.OpenQuestions)),
		OpenDecisions:    len(ledger.OpenDecisions(final.DecisionPoints)),
		Budgets:          budgets,
		Usage:            final.Usage,
		DeploymentURLs:   final.DeploymentURLs,
		ErrorLog:         final.ErrorLog,
		ArtifactPaths:    existingArtifacts(repoRoot, final.FeatureID),
	}
}

// existingArtifacts lists the run's on-disk artifacts relative to the repo
// root, skipping anything not written yet.
func existingArtifacts(repoRoot string, featureID string) []string {
	candidates := []string{
		specdoc.FeatureDir(repoRoot, featureID),
		specdoc.TracePath(repoRoot, featureID),
		state.Path(repoRoot),
		audit.LogPath(repoRoot),
		artifact.Dir(repoRoot),
	}

	var paths []string
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		rel, err := filepath.Rel(repoRoot, candidate)
		if err != nil {
			rel = candidate
		}
		paths = append(paths, rel)
	}
	return paths
}

// String returns the formatted run summary.
func (r Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "run feature=%s phase=%s outcome=%s elapsed=%s",
		normalizeToken(r.FeatureID),
		normalizeToken(string(r.Phase)),
		normalizeToken(r.Outcome),
		durationShort(r.Elapsed),
	)
	if r.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", strconv.Quote(r.Reason))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "tasks total=%d completed=%d running=%d pending=%d failed=%d\n",
		r.TotalTasks,
		r.Counts[task.StatusCompleted],
		r.Counts[task.StatusRunning],
		r.Counts[task.StatusPending],
		r.Counts[task.StatusFailed],
	)

	fmt.Fprintf(&b, "validation status=%s requirements=%d satisfied=%d evidence=%d\n",
		normalizeToken(r.ValidationStatus),
		r.Requirements,
		r.Satisfied,
		r.EvidenceRecords,
	)

	fmt.Fprintf(&b, "gates open_questions=%d open_decisions=%d\n", r.OpenQuestions, r.OpenDecisions)

	budgets := make([]string, 0, len(phase.Stages()))
	for _, stage := range phase.Stages() {
		budget := r.Budgets[stage]
		budgets = append(budgets, fmt.Sprintf("%s=%d/%d", stage, budget.Current, budget.Max))
	}
	fmt.Fprintf(&b, "budget %s\n", strings.Join(budgets, " "))

	if r.Usage.TotalTokens > 0 {
		fmt.Fprintf(&b, "usage input=%s output=%s total=%s\n",
			tokens(r.Usage.InputTokens),
			tokens(r.Usage.OutputTokens),
			tokens(r.Usage.TotalTokens),
		)
	}

	if len(r.DeploymentURLs) > 0 {
		fmt.Fprintf(&b, "deployments=%d\n", len(r.DeploymentURLs))
		fmt.Fprintf(&b, "%-*s %s\n", targetColumnWidth, "target", "url")
		targets := make([]string, 0, len(r.DeploymentURLs))
		for target := range r.DeploymentURLs {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			fmt.Fprintf(&b, "%-*s %s\n", targetColumnWidth, target, r.DeploymentURLs[target])
		}
	}

	if len(r.ErrorLog) > 0 {
		fmt.Fprintf(&b, "errors=%d\n", len(r.ErrorLog))
		fmt.Fprintf(&b, "%-*s %-*s %-*s %s\n",
			stageColumnWidth, "stage",
			stepColumnWidth, "step",
			taskColumnWidth, "task",
			"error",
		)
		for _, entry := range r.ErrorLog {
			fmt.Fprintf(&b, "%-*s %-*s %-*s %s\n",
				stageColumnWidth, normalizeToken(string(entry.Stage)),
				stepColumnWidth, normalizeToken(entry.Step),
				taskColumnWidth, normalizeToken(entry.TaskID),
				entry.Error,
			)
		}
	}

	if len(r.ArtifactPaths) > 0 {
		fmt.Fprintf(&b, "artifacts=%d\n", len(r.ArtifactPaths))
		for _, path := range r.ArtifactPaths {
			fmt.Fprintf(&b, "%s\n", path)
		}
	}

	return strings.TrimSpace(b.String())
}

// durationShort formats a duration into a short string (e.g., "1h2m3s").
func durationShort(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalSeconds := int64(d.Seconds())
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

// tokens formats a token count with thousand separators (e.g., "1,234").
func tokens(n int) string {
	if n < 0 {
		n = 0
	}
	s := fmt.Sprintf("%d", n)
	var result strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}

// normalizeToken keeps logfmt tokens non-empty.
func normalizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "none"
	}
	return value
}
