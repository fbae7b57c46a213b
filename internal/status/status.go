// Package status provides run state summaries for the CLI and watch board.
package status

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/runlock"
	"github.com/hollowbranch/stagehand/internal/state"
	"github.com/hollowbranch/stagehand/internal/task"
)

const (
	idColumnWidth      = 18
	statusColumnWidth  = 10
	roleColumnWidth    = 8
	retriesColumnWidth = 8
	attrsColumnWidth   = 14
	titleMaxWidth      = 40
)

var statusRank = map[task.Status]int{
	task.StatusRunning:   0,
	task.StatusPending:   1,
	task.StatusFailed:    2,
	task.StatusCompleted: 3,
}

// Row is one task line in the status table.
type Row struct {
	ID      string
	Status  string
	Role    string
	Retries string
	Attrs   string
	Title   string
	order   int
}

// BudgetLine reports one stage's consumed and allowed retry attempts.
type BudgetLine struct {
	Stage   phase.Stage
	Current int
	Max     int
}

// LockHolder describes the process currently holding the run lock.
type LockHolder struct {
	PID       int
	Feature   string
	StartedAt time.Time
}

// Summary represents the run position, gate counts, and the task table.
type Summary struct {
	Found         bool
	FeatureID     string
	Phase         phase.Phase
	Stage         phase.Stage
	Validation    string
	Total         int
	Completed     int
	InProgress    int
	Failed        int
	OpenQuestions []ledger.OpenQuestion
	OpenDecisions []ledger.DecisionPoint
	Budgets       []BudgetLine
	Rows          []Row
	Lock          *LockHolder
	UpdatedAt     time.Time
}

// String returns the formatted status output. Question numbering matches
// the order answers are parsed in, so users can answer by the shown index.
func (s Summary) String() string {
	if !s.Found {
		return "no run state found"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "feature=%s phase=%s stage=%s validation=%s updated=%s\n",
		normalizeToken(s.FeatureID),
		normalizeToken(string(s.Phase)),
		normalizeToken(string(s.Stage)),
		normalizeToken(s.Validation),
		normalizeToken(formatTime(s.UpdatedAt)),
	)
	if s.Lock != nil {
		fmt.Fprintf(&b, "lock pid=%d feature=%s started_at=%s\n",
			s.Lock.PID, normalizeToken(s.Lock.Feature), formatTime(s.Lock.StartedAt))
	}

	budgets := make([]string, 0, len(s.Budgets))
	for _, line := range s.Budgets {
		budgets = append(budgets, fmt.Sprintf("%s=%d/%d", line.Stage, line.Current, line.Max))
	}
	if len(budgets) > 0 {
		fmt.Fprintf(&b, "budget %s\n", strings.Join(budgets, " "))
	}

	fmt.Fprintf(&b, "tasks total=%d completed=%d in-progress=%d failed=%d\n",
		s.Total, s.Completed, s.InProgress, s.Failed)
	if len(s.Rows) > 0 {
		fmt.Fprintf(&b, "%-*s %-*s %-*s %-*s %-*s %s\n",
			idColumnWidth, "id",
			statusColumnWidth, "status",
			roleColumnWidth, "role",
			retriesColumnWidth, "retries",
			attrsColumnWidth, "attrs",
			"title",
		)
		for _, row := range s.Rows {
			fmt.Fprintf(&b, "%-*s %-*s %-*s %-*s %-*s %s\n",
				idColumnWidth, row.ID,
				statusColumnWidth, row.Status,
				roleColumnWidth, row.Role,
				retriesColumnWidth, row.Retries,
				attrsColumnWidth, row.Attrs,
				row.Title,
			)
		}
	}

	if len(s.OpenQuestions) > 0 {
		fmt.Fprintf(&b, "questions open=%d\n", len(s.OpenQuestions))
		for i, question := range s.OpenQuestions {
			fmt.Fprintf(&b, "#%d %s\n", i+1, question.Question)
		}
	}
	if len(s.OpenDecisions) > 0 {
		fmt.Fprintf(&b, "decisions open=%d\n", len(s.OpenDecisions))
		for _, decision := range s.OpenDecisions {
			fmt.Fprintf(&b, "%s [%s] %s options=%s\n",
				decision.ID, decision.Stage, decision.Description,
				strings.Join(decision.Options, "|"))
		}
	}

	return strings.TrimSpace(b.String())
}

// GetSummary reads the persisted run state and returns a detailed summary.
// A repository with no recorded run yields Found=false rather than an error.
func GetSummary(repoRoot string) (Summary, error) {
	snapshot, found, err := state.Load(repoRoot)
	if err != nil {
		return Summary{}, fmt.Errorf("load run state: %w", err)
	}
	if !found {
		return Summary{}, nil
	}

	summary := Summary{
		Found:         true,
		FeatureID:     snapshot.FeatureID,
		Phase:         snapshot.Phase,
		Stage:         phase.StageFor(snapshot.Phase),
		Validation:    snapshot.ValidationStatus,
		Total:         len(snapshot.Tasks),
		OpenQuestions: ledger.OpenQuestions(snapshot.OpenQuestions),
		OpenDecisions: ledger.OpenDecisions(snapshot.DecisionPoints),
	}

	counts := task.CountByStatus(snapshot.Tasks)
	summary.Completed = counts[task.StatusCompleted]
	summary.Failed = counts[task.StatusFailed]
	summary.InProgress = counts[task.StatusRunning] + counts[task.StatusPending]

	for _, stage := range phase.Stages() {
		budget := snapshot.Budget(stage)
		summary.Budgets = append(summary.Budgets, BudgetLine{
			Stage:   stage,
			Current: budget.Current,
			Max:     budget.Max,
		})
	}

	ready := make(map[string]bool)
	for _, t := range task.Ready(snapshot.Tasks) {
		ready[t.ID] = true
	}

	var rows []Row
	for _, t := range snapshot.Tasks {
		if t.Status == task.StatusCompleted {
			continue
		}
		rows = append(rows, Row{
			ID:      t.ID,
			Status:  string(t.Status),
			Role:    string(t.Role),
			Retries: formatRetries(t.RetryCount),
			Attrs:   formatAttrs(t, ready),
			Title:   truncateTitle(t.Description, titleMaxWidth),
			order:   rankStatus(t.Status),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].order != rows[j].order {
			return rows[i].order < rows[j].order
		}
		return rows[i].ID < rows[j].ID
	})
	summary.Rows = rows

	if holder, ok, err := runlock.Read(repoRoot); err != nil {
		return Summary{}, fmt.Errorf("read run lock: %w", err)
	} else if ok {
		summary.Lock = &LockHolder{
			PID:       holder.PID,
			Feature:   holder.Feature,
			StartedAt: holder.StartedAt,
		}
	}

	if info, err := os.Stat(state.Path(repoRoot)); err == nil {
		summary.UpdatedAt = info.ModTime().UTC()
	}

	return summary, nil
}

func rankStatus(status task.Status) int {
	if rank, ok := statusRank[status]; ok {
		return rank
	}
	return len(statusRank)
}

func formatRetries(count int) string {
	if count <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", count)
}

func formatAttrs(t task.Task, ready map[string]bool) string {
	var attrs []string
	if t.Status == task.StatusPending && len(t.Dependencies) > 0 && !ready[t.ID] {
		attrs = append(attrs, "waiting")
	}
	if strings.TrimSpace(t.Feedback) != "" {
		attrs = append(attrs, "feedback")
	}
	return strings.Join(attrs, ",")
}

func truncateTitle(title string, maxLen int) string {
	title = strings.TrimSpace(title)
	if title == "" || len(title) <= maxLen {
		return title
	}
	if maxLen <= 3 {
		return title[:maxLen]
	}
	return title[:maxLen-3] + "..."
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func normalizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "none"
	}
	return value
}
