// Package tui provides the interactive status watch board.
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/state"
	"github.com/hollowbranch/stagehand/internal/status"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginLeft(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginLeft(1).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			MarginLeft(1)

	countsStyle = lipgloss.NewStyle().
			Bold(true).
			MarginLeft(1).
			MarginBottom(1)

	gateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			MarginLeft(1)
)

// Model represents the interactive status board state.
type Model struct {
	table      table.Model
	repoRoot   string
	watcher    *fsnotify.Watcher
	summary    status.Summary
	lastUpdate time.Time
	err        error
	quitting   bool
}

type tickMsg time.Time
type statusMsg struct {
	summary status.Summary
}
type stateChangedMsg struct{}
type errMsg error

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// New creates a new status board model.
func New(repoRoot string) Model {
	columns := []table.Column{
		{Title: "ID", Width: 18},
		{Title: "Status", Width: 10},
		{Title: "Role", Width: 8},
		{Title: "Retries", Width: 8},
		{Title: "Attrs", Width: 14},
		{Title: "Title", Width: 50},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(20),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color("12"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		table:    t,
		repoRoot: repoRoot,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.waitForChange(),
		m.updateStatus(),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.updateStatus()
		}

	case tea.WindowSizeMsg:
		// Reserve space for header, counts, and footer.
		m.table.SetHeight(msg.Height - 10)
		return m, nil

	case tickMsg:
		return m, tea.Batch(
			tickCmd(),
			m.updateStatus(),
		)

	case stateChangedMsg:
		return m, tea.Batch(
			m.waitForChange(),
			m.updateStatus(),
		)

	case statusMsg:
		m.lastUpdate = time.Now()
		m.summary = msg.summary
		m.err = nil

		rows := make([]table.Row, len(msg.summary.Rows))
		for i, row := range msg.summary.Rows {
			rows[i] = table.Row{
				row.ID,
				row.Status,
				row.Role,
				row.Retries,
				row.Attrs,
				row.Title,
			}
		}
		m.table.SetRows(rows)
		return m, nil

	case errMsg:
		m.err = msg
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the board.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder

	title := titleStyle.Render("Stagehand Status")
	timestamp := timestampStyle.Render(fmt.Sprintf("Last update: %s", m.lastUpdate.Format("15:04:05")))

	header := lipgloss.JoinHorizontal(
		lipgloss.Top,
		title,
		strings.Repeat(" ", 5),
		timestamp,
	)
	b.WriteString(header)
	b.WriteString("\n\n")

	b.WriteString(countsStyle.Render(m.countsLine()))
	b.WriteString("\n")

	b.WriteString(m.table.View())
	b.WriteString("\n")

	if hint := m.gateHint(); hint != "" {
		b.WriteString(gateStyle.Render(hint))
		b.WriteString("\n")
	}

	help := helpStyle.Render("↑/↓: navigate • r: refresh • q/esc: quit")
	b.WriteString(help)

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	return b.String()
}

// countsLine summarizes the run position above the table.
func (m Model) countsLine() string {
	s := m.summary
	if !s.Found {
		return "No run state found"
	}
	return fmt.Sprintf(
		"Phase: %s (%s) | Tasks: total=%d completed=%d in-progress=%d failed=%d | Questions: %d | Decisions: %d",
		s.Phase, s.Stage, s.Total, s.Completed, s.InProgress, s.Failed,
		len(s.OpenQuestions), len(s.OpenDecisions),
	)
}

// gateHint names the action that unblocks a gated run.
func (m Model) gateHint() string {
	s := m.summary
	if !s.Found {
		return ""
	}
	if len(s.OpenQuestions) > 0 {
		target := specdoc.FeatureDir(m.repoRoot, s.FeatureID)
		if rel, err := filepath.Rel(m.repoRoot, target); err == nil {
			target = rel
		}
		return fmt.Sprintf("%d open question(s); answer them in %s",
			len(s.OpenQuestions), filepath.Join(target, specdoc.Filename(specdoc.KindClarifications)))
	}
	if len(s.OpenDecisions) > 0 {
		return fmt.Sprintf("%d open decision(s); resolve with: stagehand resolve <decision-id> <option>",
			len(s.OpenDecisions))
	}
	return ""
}

func (m Model) updateStatus() tea.Cmd {
	return func() tea.Msg {
		summary, err := status.GetSummary(m.repoRoot)
		if err != nil {
			return errMsg(err)
		}
		return statusMsg{summary: summary}
	}
}

// waitForChange blocks on the next state-file event so the board refreshes
// the moment a run persists progress, not just on the tick.
func (m Model) waitForChange() tea.Cmd {
	if m.watcher == nil {
		return nil
	}
	stateFile := filepath.Base(state.Path(m.repoRoot))
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) == stateFile {
					return stateChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

// Run starts the interactive board. State-file watching is best effort; a
// repository that cannot be watched still refreshes on the tick.
func Run(repoRoot string) error {
	model := New(repoRoot)

	if watcher, err := fsnotify.NewWatcher(); err == nil {
		dir := filepath.Dir(state.Path(repoRoot))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = watcher.Close()
		} else if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
		} else {
			defer watcher.Close()
			model.watcher = watcher
		}
	}

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}
