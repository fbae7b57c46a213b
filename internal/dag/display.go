// Package dag renders the planned task graph in dependency order.
package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hollowbranch/stagehand/internal/task"
)

const (
	idColumnWidth     = 18
	statusColumnWidth = 10
	waveColumnWidth   = 5
	depsColumnWidth   = 20
	blocksColumnWidth = 20
	titleColumnWidth  = 40
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	summaryStyle = lipgloss.NewStyle().
			Bold(true)
)

// Summary is the dependency graph of one run's planned tasks.
type Summary struct {
	Rows      []Row
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// Row is one task with its resolved scheduling wave and edges.
type Row struct {
	ID        string
	Status    string
	Wave      int
	DependsOn string
	Blocks    string
	Title     string
}

// String returns the formatted graph output.
func (s Summary) String() string {
	var b strings.Builder

	summary := summaryStyle.Render(fmt.Sprintf(
		"Tasks (%d total: %d pending, %d running, %d completed, %d failed)",
		s.Total, s.Pending, s.Running, s.Completed, s.Failed,
	))
	b.WriteString(summary)
	b.WriteString("\n\n")

	if len(s.Rows) == 0 {
		b.WriteString("No tasks planned.\n")
		return b.String()
	}

	headers := []string{
		padRight("ID", idColumnWidth),
		padRight("Status", statusColumnWidth),
		padRight("Wave", waveColumnWidth),
		padRight("Depends On", depsColumnWidth),
		padRight("Blocks", blocksColumnWidth),
		"Description",
	}
	b.WriteString(headerStyle.Render(strings.Join(headers, "  ")))
	b.WriteString("\n")

	totalWidth := idColumnWidth + statusColumnWidth + waveColumnWidth +
		depsColumnWidth + blocksColumnWidth + titleColumnWidth + 10
	b.WriteString(separatorStyle.Render(strings.Repeat("─", totalWidth)))
	b.WriteString("\n")

	for _, row := range s.Rows {
		wave := "-"
		if row.Wave > 0 {
			wave = fmt.Sprintf("%d", row.Wave)
		}
		line := fmt.Sprintf("%s  %s  %s  %s  %s  %s",
			padRight(row.ID, idColumnWidth),
			padRight(row.Status, statusColumnWidth),
			padRight(wave, waveColumnWidth),
			padRight(row.DependsOn, depsColumnWidth),
			padRight(row.Blocks, blocksColumnWidth),
			truncate(row.Title, titleColumnWidth),
		)
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

// GetSummary builds the graph from the run's task list. A task's wave is the
// earliest dispatch round it can join: one past its deepest dependency.
func GetSummary(tasks []task.Task) Summary {
	counts := task.CountByStatus(tasks)
	summary := Summary{
		Total:     len(tasks),
		Pending:   counts[task.StatusPending],
		Running:   counts[task.StatusRunning],
		Completed: counts[task.StatusCompleted],
		Failed:    counts[task.StatusFailed],
	}

	byID := make(map[string]task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	blockedBy := make(map[string][]string)
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			blockedBy[dep] = append(blockedBy[dep], t.ID)
		}
	}
	for id := range blockedBy {
		sort.Strings(blockedBy[id])
	}

	waves := make(map[string]int, len(tasks))
	for _, t := range tasks {
		resolveWave(t.ID, byID, waves, make(map[string]bool))
	}

	rows := make([]Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, Row{
			ID:        t.ID,
			Status:    string(t.Status),
			Wave:      waves[t.ID],
			DependsOn: joinOrDash(t.Dependencies),
			Blocks:    joinOrDash(blockedBy[t.ID]),
			Title:     t.Description,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		wi, wj := sortWave(rows[i].Wave), sortWave(rows[j].Wave)
		if wi != wj {
			return wi < wj
		}
		return rows[i].ID < rows[j].ID
	})
	summary.Rows = rows
	return summary
}

// resolveWave computes the longest dependency chain ending at the task.
// Cycles and dangling dependency ids resolve to wave 0, rendered as "-".
func resolveWave(id string, byID map[string]task.Task, waves map[string]int, visiting map[string]bool) int {
	if wave, ok := waves[id]; ok {
		return wave
	}
	t, ok := byID[id]
	if !ok || visiting[id] {
		return 0
	}
	visiting[id] = true
	wave := 1
	for _, dep := range t.Dependencies {
		depWave := resolveWave(dep, byID, waves, visiting)
		if depWave == 0 {
			wave = 0
			break
		}
		if depWave+1 > wave {
			wave = depWave + 1
		}
	}
	delete(visiting, id)
	waves[id] = wave
	return wave
}

// sortWave orders unresolvable tasks after every scheduled wave.
func sortWave(wave int) int {
	if wave == 0 {
		return 1 << 30
	}
	return wave
}

func joinOrDash(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ",")
}

// padRight pads a string to the specified width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// truncate truncates a string to the specified width with ellipsis.
func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}
