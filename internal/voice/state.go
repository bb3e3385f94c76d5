package voice

import (
	"context"
	"sync"

	"github.com/onchain-voice-lab/internal/realtime"
)

// Stream is the live realtime connection as the loops use it.
type Stream interface {
	Send(ev realtime.ClientEvent) error
	Recv() (realtime.Event, error)
	Close() error
}

// State is shared by the connection manager, streamer and router. It holds
// the current stream and a connected signal others can wait on. A handle is
// only ever replaced, never modified.
type State struct {
	mu      sync.RWMutex
	stream  Stream
	ready   chan struct{}
	session realtime.Session
}

func NewState() *State {
	return &State{ready: make(chan struct{})}
}

// Publish installs s as the current stream and sets the connected signal.
func (st *State) Publish(s Stream) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stream = s
	select {
	case <-st.ready:
	default:
		close(st.ready)
	}
}

// Reset drops the current stream and clears the connected signal.
func (st *State) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stream = nil
	select {
	case <-st.ready:
		st.ready = make(chan struct{})
	default:
	}
}

// Connected reports whether a stream is currently published.
func (st *State) Connected() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.stream != nil
}

// Stream waits for the connected signal and returns the current stream.
func (st *State) Stream(ctx context.Context) (Stream, error) {
	for {
		st.mu.RLock()
		s, ready := st.stream, st.ready
		st.mu.RUnlock()
		if s != nil {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ready:
		}
	}
}

// Ready returns a channel closed while a stream is published.
func (st *State) Ready() <-chan struct{} {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.ready
}

func (st *State) SetSession(s realtime.Session) {
	st.mu.Lock()
	st.session = s
	st.mu.Unlock()
}

func (st *State) Session() realtime.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.session
}
