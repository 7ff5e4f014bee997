package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rgsearch/rgsearch/internal/search"
)

func TestModelAccumulatesFileLines(t *testing.T) {
	events := make(chan search.ProgressEvent, 1)
	m := New(events, nil)

	next, _ := m.Update(progressMsg(search.ProgressEvent{
		Files: []search.RawFileMatch{{RelativePath: "a.go"}, {RelativePath: "b.go"}},
		Total: 2,
	}))
	updated := next.(Model)

	if updated.total != 2 {
		t.Fatalf("expected total 2, got %d", updated.total)
	}
	if len(updated.lines) != 2 || updated.lines[0] != "a.go" {
		t.Fatalf("expected both file lines recorded, got %v", updated.lines)
	}
}

func TestModelTerminalEventMarksDone(t *testing.T) {
	events := make(chan search.ProgressEvent, 1)
	m := New(events, nil)

	next, cmd := m.Update(progressMsg(search.ProgressEvent{Total: 5, Done: true, LimitHit: true}))
	updated := next.(Model)

	if !updated.done || !updated.limitHit {
		t.Fatalf("expected done and limitHit to be set, got %+v", updated)
	}
	if cmd != nil {
		t.Fatalf("expected no further command once the terminal event is handled")
	}
}

func TestModelQuitCancelsSearch(t *testing.T) {
	events := make(chan search.ProgressEvent, 1)
	canceled := false
	m := New(events, func() { canceled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !canceled {
		t.Fatalf("expected pressing q to invoke cancel")
	}
	if cmd == nil {
		t.Fatalf("expected a tea.Quit command")
	}
}

func TestModelClosedChannelMarksDone(t *testing.T) {
	events := make(chan search.ProgressEvent)
	close(events)
	m := New(events, nil)

	next, _ := m.Update(closedMsg{})
	updated := next.(Model)
	if !updated.done {
		t.Fatalf("expected closedMsg to mark the model done")
	}
}
