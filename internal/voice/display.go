package voice

// Display is the user-facing surface the loops write to. Implementations
// must be safe for concurrent use.
type Display interface {
	// Write appends a line to the pane.
	Write(line string)
	// Replace swaps the pane's live line, used while a response streams in.
	Replace(text string)
	// Clear empties the pane.
	Clear()
	SetSessionID(id string)
	SetRecording(on bool)
}

type nopDisplay struct{}

func (nopDisplay) Write(string)        {}
func (nopDisplay) Replace(string)      {}
func (nopDisplay) Clear()              {}
func (nopDisplay) SetSessionID(string) {}
func (nopDisplay) SetRecording(bool)   {}
