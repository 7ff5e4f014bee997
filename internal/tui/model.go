// Package tui implements the live-progress display for the `rgsearch watch`
// subcommand: a bubbletea program that renders a spinner, a running match
// count, and the most recent few results while a search.Service query is
// still streaming.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rgsearch/rgsearch/internal/search"
)

const maxPreviewLines = 8

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	pathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// progressMsg wraps one search.ProgressEvent as it arrives on the channel.
type progressMsg search.ProgressEvent

// closedMsg marks that the progress channel has been drained and closed.
type closedMsg struct{}

// Model is a bubbletea.Model rendering a single in-flight search.
type Model struct {
	events  <-chan search.ProgressEvent
	cancel  context.CancelFunc
	spinner spinner.Model

	total    int
	lines    []string
	done     bool
	limitHit bool
	err      error
}

// New constructs a Model that reads from events until it is closed or the
// user quits (which calls cancel to stop the underlying search).
func New(events <-chan search.ProgressEvent, cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{events: events, cancel: cancel, spinner: sp}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func waitForEvent(events <-chan search.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return progressMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case progressMsg:
		ev := search.ProgressEvent(msg)
		m.total = ev.Total
		for _, f := range ev.Files {
			m.pushLine(f.RelativePath)
		}
		for _, t := range ev.Text {
			m.pushLine(fmt.Sprintf("%s (%d match(es))", t.AbsolutePath, len(t.Matches)))
		}
		if ev.Done {
			m.done = true
			m.limitHit = ev.LimitHit
			if ev.Err != nil {
				m.err = ev.Err
			}
			return m, nil
		}
		return m, waitForEvent(m.events)

	case closedMsg:
		m.done = true
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) pushLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxPreviewLines {
		m.lines = m.lines[len(m.lines)-maxPreviewLines:]
	}
}

func (m Model) View() string {
	var b strings.Builder

	status := m.spinner.View() + " searching…"
	if m.done {
		status = "done"
		if m.err != nil {
			status = errStyle.Render("failed: " + m.err.Error())
		} else if m.limitHit {
			status = "stopped at result limit"
		}
	}
	b.WriteString(headerStyle.Render(status))
	b.WriteString(fmt.Sprintf("  %d result(s)\n\n", m.total))

	for _, line := range m.lines {
		b.WriteString(pathStyle.Render(line))
		b.WriteByte('\n')
	}

	if !m.done {
		b.WriteString(dimStyle.Render("\npress q to cancel\n"))
	}
	return b.String()
}

// Run drives a bubbletea program over events until the search completes or
// the user quits.
func Run(events <-chan search.ProgressEvent, cancel context.CancelFunc) error {
	p := tea.NewProgram(New(events, cancel))
	_, err := p.Run()
	return err
}
