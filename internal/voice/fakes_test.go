package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/onchain-voice-lab/internal/agent"
	"github.com/onchain-voice-lab/internal/realtime"
)

type fakeStream struct {
	mu        sync.Mutex
	sent      []realtime.ClientEvent
	sendErr   error
	events    chan any
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan any, 16), closed: make(chan struct{})}
}

func (f *fakeStream) Send(ev realtime.ClientEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, ev)
	return nil
}

// Recv returns queued events; a queued error is returned as a receive
// failure.
func (f *fakeStream) Recv() (realtime.Event, error) {
	select {
	case v, ok := <-f.events:
		if !ok {
			return nil, realtime.ErrClosed
		}
		if err, isErr := v.(error); isErr {
			return nil, err
		}
		return v.(realtime.Event), nil
	case <-f.closed:
		return nil, realtime.ErrClosed
	}
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, ev := range f.sent {
		out[i] = ev.ClientEventType()
	}
	return out
}

func (f *fakeStream) count(eventType string) int {
	n := 0
	for _, t := range f.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type recordingDisplay struct {
	mu        sync.Mutex
	lines     []string
	live      string
	clears    int
	sessionID string
	recording bool
}

func (d *recordingDisplay) Write(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = append(d.lines, line)
}

func (d *recordingDisplay) Replace(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live = text
}

func (d *recordingDisplay) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
}

func (d *recordingDisplay) SetSessionID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionID = id
}

func (d *recordingDisplay) SetRecording(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording = on
}

func (d *recordingDisplay) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

func (d *recordingDisplay) countPrefix(prefix string) int {
	n := 0
	for _, l := range d.snapshot() {
		if len(l) >= len(prefix) && l[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type fakeAgent struct {
	mu     sync.Mutex
	inputs []string
	steps  []agent.Step
	reply  string
	err    error
	panics bool
}

func (a *fakeAgent) Run(ctx context.Context, threadID, input string, onStep func(agent.Step)) (string, error) {
	a.mu.Lock()
	a.inputs = append(a.inputs, input)
	a.mu.Unlock()
	if a.panics {
		panic("agent exploded")
	}
	for _, s := range a.steps {
		onStep(s)
	}
	return a.reply, a.err
}

func (a *fakeAgent) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inputs)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
