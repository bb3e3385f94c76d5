package voice

import (
	"strings"
	"sync"
)

// Accumulator concatenates streamed text deltas for the item currently
// being spoken. Only one item is tracked: a delta for a new item id drops
// whatever was collected for the previous one.
type Accumulator struct {
	mu     sync.Mutex
	itemID string
	text   strings.Builder
}

// Append adds delta to itemID's text and returns the text so far.
func (a *Accumulator) Append(itemID, delta string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if itemID != a.itemID {
		a.itemID = itemID
		a.text.Reset()
	}
	a.text.WriteString(delta)
	return a.text.String()
}

// Text returns what was collected for itemID, or false when itemID is not
// the item being tracked.
func (a *Accumulator) Text(itemID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if itemID == "" || itemID != a.itemID {
		return "", false
	}
	return a.text.String(), true
}
