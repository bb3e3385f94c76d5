package ui

import tea "github.com/charmbracelet/bubbletea"

// Display forwards display calls to a running program. It satisfies
// voice.Display.
type Display struct {
	send func(tea.Msg)
}

func NewDisplay(p *tea.Program) *Display { return &Display{send: p.Send} }

func (d *Display) Write(line string)      { d.send(writeMsg{text: line}) }
func (d *Display) Replace(text string)    { d.send(replaceMsg{text: text}) }
func (d *Display) Clear()                 { d.send(clearMsg{}) }
func (d *Display) SetSessionID(id string) { d.send(sessionMsg{id: id}) }
func (d *Display) SetRecording(on bool)   { d.send(recordingMsg{on: on}) }
