package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeRecorder struct {
	toggles int
	err     error
}

func (f *fakeRecorder) Toggle(context.Context) error {
	f.toggles++
	return f.err
}

func (f *fakeRecorder) Recording() bool { return f.toggles%2 == 1 }

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return nm, cmd
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDisplayMessagesUpdatePane(t *testing.T) {
	var msgs []tea.Msg
	d := &Display{send: func(m tea.Msg) { msgs = append(msgs, m) }}
	d.Write("Connected to OpenAI API")
	d.Replace("Hel")
	d.Replace("Hello")
	d.Write("Transcribed Text: Hello")
	d.SetSessionID("sess_1")
	d.SetRecording(true)

	m := NewModel(context.Background(), nil)
	for _, msg := range msgs {
		m, _ = update(t, m, msg)
	}
	want := []string{"Connected to OpenAI API", "Hello", "Transcribed Text: Hello"}
	if got := m.Lines(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected lines %q", got)
	}
	if m.SessionID() != "sess_1" || !m.IsRecording() {
		t.Fatalf("unexpected header state %q %v", m.SessionID(), m.IsRecording())
	}
	if !strings.Contains(m.View(), "sess_1") {
		t.Fatal("view should show session id")
	}

	m, _ = update(t, m, clearMsg{})
	if len(m.Lines()) != 0 {
		t.Fatalf("expected empty pane after clear, got %q", m.Lines())
	}
}

func TestKeyToggleRunsRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewModel(context.Background(), rec)
	_, cmd := update(t, m, key("k"))
	if cmd == nil {
		t.Fatal("expected toggle command")
	}
	if msg := cmd(); msg != nil {
		t.Fatalf("unexpected msg %v", msg)
	}
	if rec.toggles != 1 {
		t.Fatalf("expected 1 toggle, got %d", rec.toggles)
	}
}

func TestToggleErrorShown(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("not connected")}
	m := NewModel(context.Background(), rec)
	_, cmd := update(t, m, key("k"))
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.View(), "not connected") {
		t.Fatal("expected toggle error in view")
	}
}

func TestQuitKeys(t *testing.T) {
	m := NewModel(context.Background(), nil)
	for _, k := range []tea.KeyMsg{key("q"), {Type: tea.KeyCtrlC}} {
		_, cmd := update(t, m, k)
		if cmd == nil {
			t.Fatalf("expected quit command for %q", k.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("expected QuitMsg for %q", k.String())
		}
	}
}

func TestPaneIsBounded(t *testing.T) {
	m := NewModel(context.Background(), nil)
	for i := 0; i < maxLines+20; i++ {
		m, _ = update(t, m, writeMsg{text: "line"})
	}
	if got := len(m.Lines()); got != maxLines {
		t.Fatalf("expected %d lines, got %d", maxLines, got)
	}
}
