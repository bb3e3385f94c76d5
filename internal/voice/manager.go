package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/onchain-voice-lab/internal/logging"
	"github.com/onchain-voice-lab/internal/realtime"
)

// ErrRetriesExhausted is returned by Manager.Run once every connection
// attempt has failed.
var ErrRetriesExhausted = errors.New("realtime connection retries exhausted")

// Dialer opens a realtime stream.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context) (Stream, error)

func (f DialFunc) Dial(ctx context.Context) (Stream, error) { return f(ctx) }

// Player plays pcm16 audio from the assistant.
type Player interface {
	Write(pcm []byte) error
	// Reset marks the start of a new output item.
	Reset() error
	Close() error
}

type ManagerConfig struct {
	Dialer         Dialer
	State          *State
	Router         *Router
	Player         Player
	Display        Display
	Session        realtime.SessionConfig
	MaxRetries     int
	RetryDelay     time.Duration
	ConnectTimeout time.Duration
}

// Manager owns the realtime connection: it dials with a bounded number of
// attempts, publishes the stream in State and dispatches server events in
// arrival order.
type Manager struct {
	dialer         Dialer
	state          *State
	router         *Router
	player         Player
	display        Display
	session        realtime.SessionConfig
	maxRetries     int
	retryDelay     time.Duration
	connectTimeout time.Duration

	acc             Accumulator
	lastAudioItemID string
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		dialer:         cfg.Dialer,
		state:          cfg.State,
		router:         cfg.Router,
		player:         cfg.Player,
		display:        cfg.Display,
		session:        cfg.Session,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
		connectTimeout: cfg.ConnectTimeout,
	}
	if m.maxRetries < 1 {
		m.maxRetries = 1
	}
	if m.display == nil {
		m.display = nopDisplay{}
	}
	if m.state == nil {
		m.state = NewState()
	}
	return m
}

// Run connects and processes events until the stream ends cleanly, ctx is
// cancelled or the retry budget is spent. In the last case exactly one
// terminal message is shown and the error wraps ErrRetriesExhausted.
func (m *Manager) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if attempt == 0 {
			m.display.Write("Connecting to OpenAI API...")
		} else {
			m.display.Write(fmt.Sprintf("Retrying connection (attempt %d/%d)...", attempt+1, m.maxRetries))
			if err := sleepContext(ctx, m.retryDelay); err != nil {
				return err
			}
		}

		err := m.runSession(ctx)
		m.state.Reset()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warnw("realtime connection failed", "attempt", attempt+1, "max_retries", m.maxRetries, "error", err)
		if attempt+1 >= m.maxRetries {
			if errors.Is(err, context.DeadlineExceeded) {
				m.display.Write("Connection timed out after multiple attempts. Please check your internet connection and try again.")
			} else {
				m.display.Write(fmt.Sprintf("Connection error after multiple attempts: %v", err))
			}
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, m.maxRetries, err)
		}
	}
}

// runSession returns nil only when the server closed the stream normally.
func (m *Manager) runSession(ctx context.Context) error {
	dialCtx := ctx
	if m.connectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
	}
	stream, err := m.dialer.Dial(dialCtx)
	if err != nil {
		return err
	}
	defer stream.Close()

	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	m.state.Publish(stream)
	m.display.Write("Connected to OpenAI API")
	m.display.Write("Ready to record. Press K to start, Q to quit.")
	logging.Infow("realtime connected")

	if err := stream.Send(realtime.SessionUpdate{Session: m.session}); err != nil {
		return err
	}

	for {
		ev, err := stream.Recv()
		if errors.Is(err, realtime.ErrClosed) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Infow("realtime stream closed by server")
			return nil
		}
		if errors.Is(err, realtime.ErrMalformedEvent) {
			logging.Warnw("ignoring malformed realtime event", "error", err)
			continue
		}
		if err != nil {
			return err
		}
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev realtime.Event) {
	switch e := ev.(type) {
	case realtime.SessionCreated:
		m.state.SetSession(e.Session)
		m.display.SetSessionID(e.Session.ID)
		logging.Infow("realtime session created", "session.id", e.Session.ID, "model", e.Session.Model)
	case realtime.SessionUpdated:
		m.state.SetSession(e.Session)
	case realtime.ResponseAudioDelta:
		m.playAudio(e)
	case realtime.ResponseTextDelta:
		m.display.Replace(m.acc.Append(e.ItemID, e.Delta))
	case realtime.ResponseAudioTranscriptDelta:
		m.display.Replace(m.acc.Append(e.ItemID, e.Delta))
	case realtime.ResponseTextDone:
		m.finish(e.ItemID, e.Text)
	case realtime.ResponseAudioTranscriptDone:
		m.finish(e.ItemID, e.Transcript)
	case realtime.Error:
		logging.Warnw("realtime server error", "type", e.Detail.Type, "code", e.Detail.Code, "message", e.Detail.Message)
		m.display.Write("Server error: " + e.Detail.Message)
	case realtime.Unknown:
		logging.Debugw("ignoring realtime event", "type", e.Type)
	}
}

func (m *Manager) playAudio(e realtime.ResponseAudioDelta) {
	if m.player == nil {
		return
	}
	if e.ItemID != m.lastAudioItemID {
		if err := m.player.Reset(); err != nil {
			logging.Warnw("audio player reset failed", "error", err)
		}
		m.lastAudioItemID = e.ItemID
	}
	pcm, err := base64.StdEncoding.DecodeString(e.Delta)
	if err != nil {
		logging.Warnw("bad audio delta", "item.id", e.ItemID, "error", err)
		return
	}
	if err := m.player.Write(pcm); err != nil {
		logging.Warnw("audio playback failed", "item.id", e.ItemID, "error", err)
	}
}

// finish routes the text collected for itemID, falling back to the full
// text carried by the done event.
func (m *Manager) finish(itemID, full string) {
	text, ok := m.acc.Text(itemID)
	if !ok || strings.TrimSpace(text) == "" {
		text = full
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	logging.Debugw("transcript finalised", logging.ItemFields(itemID, len(text))...)
	if m.router != nil {
		m.router.Route(text)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
