package voice

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onchain-voice-lab/internal/realtime"
)

type countingDialer struct {
	calls atomic.Int32
	err   error
}

func (d *countingDialer) Dial(ctx context.Context) (Stream, error) {
	d.calls.Add(1)
	return nil, d.err
}

func TestManagerRetriesThenGivesUpOnce(t *testing.T) {
	dialer := &countingDialer{err: errors.New("connection refused")}
	disp := &recordingDisplay{}
	m := NewManager(ManagerConfig{
		Dialer:     dialer,
		Display:    disp,
		MaxRetries: 3,
	})

	err := m.Run(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if got := dialer.calls.Load(); got != 3 {
		t.Fatalf("expected 3 dial attempts, got %d", got)
	}
	if n := disp.countPrefix("Connection error after multiple attempts"); n != 1 {
		t.Fatalf("expected exactly one terminal message, got %d in %q", n, disp.snapshot())
	}
	if n := disp.countPrefix("Retrying connection"); n != 2 {
		t.Fatalf("expected 2 retry messages, got %d", n)
	}
}

func TestManagerTimeoutMessage(t *testing.T) {
	dialer := &countingDialer{err: context.DeadlineExceeded}
	disp := &recordingDisplay{}
	m := NewManager(ManagerConfig{Dialer: dialer, Display: disp, MaxRetries: 2})

	if err := m.Run(context.Background()); !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if n := disp.countPrefix("Connection timed out after multiple attempts"); n != 1 {
		t.Fatalf("expected one timeout message, got %q", disp.snapshot())
	}
}

func TestManagerCancelledDuringRetryDelay(t *testing.T) {
	dialer := &countingDialer{err: errors.New("refused")}
	m := NewManager(ManagerConfig{Dialer: dialer, MaxRetries: 3, RetryDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := m.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := dialer.calls.Load(); got != 1 {
		t.Fatalf("expected 1 dial attempt, got %d", got)
	}
}

func TestManagerDispatchesAndRoutesDomainRequest(t *testing.T) {
	fs := newFakeStream()
	st := NewState()
	disp := &recordingDisplay{}
	ag := &fakeAgent{reply: "Your balance is 1 ETH"}
	tasks := NewTasks(context.Background())
	log := NewContextLog()
	router := NewRouter(RouterConfig{
		State:      st,
		Agent:      ag,
		ThreadID:   "thread",
		Classifier: NewClassifier([]string{"balance"}),
		Log:        log,
		Tasks:      tasks,
		Display:    disp,
	})
	m := NewManager(ManagerConfig{
		Dialer:  DialFunc(func(context.Context) (Stream, error) { return fs, nil }),
		State:   st,
		Router:  router,
		Player:  DiscardPlayer(),
		Display: disp,
		Session: realtime.SessionConfig{Voice: "alloy"},
	})

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	fs.events <- realtime.SessionCreated{Session: realtime.Session{ID: "sess_1"}}
	fs.events <- realtime.ResponseAudioTranscriptDelta{ItemID: "item_1", Delta: "What's my wallet "}
	fs.events <- realtime.ResponseAudioTranscriptDelta{ItemID: "item_1", Delta: "balance?"}
	fs.events <- realtime.Unknown{Type: "rate_limits.updated"}
	fs.events <- realtime.ResponseAudioTranscriptDone{ItemID: "item_1", Transcript: "ignored"}

	waitFor(t, "agent reply", func() bool { return fs.count("conversation.item.create") == 1 })
	close(fs.events)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not return after server close")
	}

	if got := fs.types()[0]; got != "session.update" {
		t.Fatalf("first event should be session.update, got %s", got)
	}
	if len(ag.inputs) != 1 || ag.inputs[0] != "What's my wallet balance?" {
		t.Fatalf("agent got %q", ag.inputs)
	}
	if st.Session().ID != "sess_1" {
		t.Fatalf("session not recorded: %+v", st.Session())
	}
	if st.Connected() {
		t.Fatal("state should be reset after the stream ends")
	}
	entries := log.Entries()
	if len(entries) != 2 || entries[0].Origin != OriginVoice || entries[1].Origin != OriginAgent {
		t.Fatalf("unexpected context log %+v", entries)
	}
}

func TestManagerFallsBackToDoneText(t *testing.T) {
	fs := newFakeStream()
	disp := &recordingDisplay{}
	router := NewRouter(RouterConfig{Display: disp})
	m := NewManager(ManagerConfig{
		Dialer:  DialFunc(func(context.Context) (Stream, error) { return fs, nil }),
		Router:  router,
		Display: disp,
	})
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	fs.events <- realtime.ResponseTextDone{ItemID: "item_9", Text: "Tell me a joke"}
	close(fs.events)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := disp.countPrefix("Transcribed Text: Tell me a joke"); n != 1 {
		t.Fatalf("expected routed done text, got %q", disp.snapshot())
	}
	if n := disp.countPrefix("Assistant Response:"); n != 1 {
		t.Fatalf("expected non-domain path, got %q", disp.snapshot())
	}
}

func TestManagerIgnoresMalformedEvents(t *testing.T) {
	fs := newFakeStream()
	st := NewState()
	disp := &recordingDisplay{}
	var dials atomic.Int32
	m := NewManager(ManagerConfig{
		Dialer: DialFunc(func(context.Context) (Stream, error) {
			dials.Add(1)
			return fs, nil
		}),
		State:      st,
		Router:     NewRouter(RouterConfig{Display: disp}),
		Display:    disp,
		MaxRetries: 1,
	})
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	fs.events <- fmt.Errorf("%w: response.text.delta: bad output_index", realtime.ErrMalformedEvent)
	fs.events <- realtime.ResponseTextDelta{ItemID: "item_1", Delta: "Tell me a joke"}
	fs.events <- realtime.ResponseTextDone{ItemID: "item_1"}
	waitFor(t, "routed text", func() bool { return disp.countPrefix("Transcribed Text: Tell me a joke") == 1 })
	if !st.Connected() {
		t.Fatal("session should survive a malformed event")
	}
	close(fs.events)

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := dials.Load(); got != 1 {
		t.Fatalf("expected a single connection, got %d dials", got)
	}
}
