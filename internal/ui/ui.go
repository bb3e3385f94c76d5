// Package ui is the terminal front end of the audio mode.
package ui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/onchain-voice-lab/internal/logging"
)

const maxLines = 500

// Recorder is the part of voice.Streamer the UI drives.
type Recorder interface {
	Toggle(ctx context.Context) error
	Recording() bool
}

type (
	writeMsg     struct{ text string }
	replaceMsg   struct{ text string }
	clearMsg     struct{}
	sessionMsg   struct{ id string }
	recordingMsg struct{ on bool }
	toggleErrMsg struct{ err error }
)

type theme struct {
	title     lipgloss.Style
	session   lipgloss.Style
	recording lipgloss.Style
	idle      lipgloss.Style
	pane      lipgloss.Style
	live      lipgloss.Style
	help      lipgloss.Style
	err       lipgloss.Style
}

func newTheme() theme {
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	muted := lipgloss.Color("#9ca3d8")
	return theme{
		title:     lipgloss.NewStyle().Foreground(blue).Bold(true),
		session:   lipgloss.NewStyle().Foreground(muted),
		recording: lipgloss.NewStyle().Foreground(pink).Bold(true),
		idle:      lipgloss.NewStyle().Foreground(muted),
		pane: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		live: lipgloss.NewStyle().Foreground(mint),
		help: lipgloss.NewStyle().Foreground(muted),
		err:  lipgloss.NewStyle().Foreground(pink),
	}
}

// Model is the bubbletea model: a session line, a recording indicator and
// a scrolling output pane whose last line can be replaced while a response
// streams in.
type Model struct {
	ctx       context.Context
	recorder  Recorder
	sessionID string
	recording bool
	lines     []string
	live      string
	lastErr   string
	width     int
	height    int
	theme     theme
}

func NewModel(ctx context.Context, recorder Recorder) Model {
	return Model{ctx: ctx, recorder: recorder, theme: newTheme()}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) toggleCmd() tea.Cmd {
	rec := m.recorder
	ctx := m.ctx
	return func() tea.Msg {
		if err := rec.Toggle(ctx); err != nil {
			return toggleErrMsg{err: err}
		}
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "k", "K":
			if m.recorder == nil {
				return m, nil
			}
			return m, m.toggleCmd()
		case "q", "Q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case writeMsg:
		m.commitLive()
		m.appendLine(msg.text)
	case replaceMsg:
		m.live = msg.text
	case clearMsg:
		m.lines = nil
		m.live = ""
		m.lastErr = ""
	case sessionMsg:
		m.sessionID = msg.id
	case recordingMsg:
		m.recording = msg.on
	case toggleErrMsg:
		logging.Warnw("toggle recording failed", "error", msg.err)
		m.lastErr = msg.err.Error()
	}
	return m, nil
}

func (m *Model) commitLive() {
	if m.live != "" {
		m.appendLine(m.live)
		m.live = ""
	}
}

func (m *Model) appendLine(s string) {
	m.lines = append(m.lines, s)
	if n := len(m.lines); n > maxLines {
		m.lines = append([]string(nil), m.lines[n-maxLines:]...)
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.theme.title.Render("onchain voice lab"))
	b.WriteString("  ")
	session := m.sessionID
	if session == "" {
		session = "not connected"
	}
	b.WriteString(m.theme.session.Render("session: " + session))
	b.WriteString("  ")
	if m.recording {
		b.WriteString(m.theme.recording.Render("● recording"))
	} else {
		b.WriteString(m.theme.idle.Render("○ idle"))
	}
	b.WriteString("\n")

	body := m.visibleLines()
	pane := m.theme.pane
	if m.width > 4 {
		pane = pane.Width(m.width - 2)
	}
	b.WriteString(pane.Render(strings.Join(body, "\n")))
	b.WriteString("\n")
	if m.lastErr != "" {
		b.WriteString(m.theme.err.Render(m.lastErr))
		b.WriteString("\n")
	}
	b.WriteString(m.theme.help.Render("k: start/stop recording  q: quit"))
	return b.String()
}

// visibleLines returns the tail of the pane that fits the window.
func (m Model) visibleLines() []string {
	lines := m.lines
	if m.live != "" {
		lines = append(append([]string(nil), lines...), m.theme.live.Render(m.live))
	}
	room := m.height - 5
	if m.height > 0 && room > 0 && len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	return lines
}

// Lines returns the committed pane lines followed by the live line, if any.
func (m Model) Lines() []string {
	out := append([]string(nil), m.lines...)
	if m.live != "" {
		out = append(out, m.live)
	}
	return out
}

func (m Model) SessionID() string { return m.sessionID }

func (m Model) IsRecording() bool { return m.recording }
