package voice

import (
	"sync"
	"time"
)

// Entry origins recorded in the context log.
const (
	OriginVoice      = "voice"
	OriginAgent      = "agent"
	OriginAgentError = "agent-error"
)

type Entry struct {
	Role    string
	Content string
	Origin  string
	At      time.Time
}

// ContextLog is an append-only record of the conversation. It is never
// replayed to the realtime session.
type ContextLog struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

func NewContextLog() *ContextLog {
	return &ContextLog{now: time.Now}
}

func (l *ContextLog) Append(role, content, origin string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Role: role, Content: content, Origin: origin, At: l.now()})
}

func (l *ContextLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the log.
func (l *ContextLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
