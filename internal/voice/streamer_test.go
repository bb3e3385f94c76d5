package voice

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

type chanSource struct {
	frames chan []byte
	err    error
}

func newChanSource() *chanSource { return &chanSource{frames: make(chan []byte)} }

func (s *chanSource) Frames() <-chan []byte { return s.frames }
func (s *chanSource) Err() error            { return s.err }
func (s *chanSource) Close() error          { return nil }

func testFrame() []byte { return make([]byte, 960) }

func TestStreamerIgnoresFramesWhileNotRecording(t *testing.T) {
	st := NewState()
	fs := newFakeStream()
	st.Publish(fs)
	s := NewStreamer(newChanSource(), st, nil)

	for i := 0; i < 5; i++ {
		if err := s.forward(context.Background(), testFrame()); err != nil {
			t.Fatalf("forward: %v", err)
		}
	}
	if n := len(fs.types()); n != 0 {
		t.Fatalf("expected nothing sent while not recording, got %v", fs.types())
	}
	if s.Forwarded() != 0 {
		t.Fatalf("expected 0 forwarded frames, got %d", s.Forwarded())
	}
}

func TestStreamerRecordingCycle(t *testing.T) {
	ctx := context.Background()
	st := NewState()
	fs := newFakeStream()
	st.Publish(fs)
	disp := &recordingDisplay{}
	s := NewStreamer(newChanSource(), st, disp)

	if err := s.Toggle(ctx); err != nil {
		t.Fatalf("Toggle on: %v", err)
	}
	if !s.Recording() || !disp.recording {
		t.Fatal("expected recording on")
	}
	for i := 0; i < 2; i++ {
		if err := s.forward(ctx, testFrame()); err != nil {
			t.Fatalf("forward: %v", err)
		}
	}
	if err := s.Toggle(ctx); err != nil {
		t.Fatalf("Toggle off: %v", err)
	}
	// A repeated clear is not a transition.
	if err := s.SetRecording(ctx, false); err != nil {
		t.Fatalf("SetRecording(false): %v", err)
	}

	want := []string{
		"response.cancel",
		"input_audio_buffer.append",
		"input_audio_buffer.append",
		"input_audio_buffer.commit",
		"response.create",
	}
	if got := fs.types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events\n got %v\nwant %v", got, want)
	}
	if disp.clears != 1 {
		t.Fatalf("expected display cleared once, got %d", disp.clears)
	}
	if s.Forwarded() != 2 {
		t.Fatalf("expected 2 forwarded frames, got %d", s.Forwarded())
	}

	// The next recording cancels again on its first frame.
	_ = s.SetRecording(ctx, true)
	_ = s.forward(ctx, testFrame())
	if fs.count("response.cancel") != 2 {
		t.Fatalf("expected a cancel per recording, got %v", fs.types())
	}
}

func TestStreamerRunSkipsSendErrorsAndEndsWithSource(t *testing.T) {
	st := NewState()
	fs := newFakeStream()
	fs.sendErr = errors.New("socket gone")
	st.Publish(fs)
	src := newChanSource()
	s := NewStreamer(src, st, nil)
	_ = s.SetRecording(context.Background(), true)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	src.frames <- testFrame()
	src.frames <- testFrame()
	close(src.frames)

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "input closed") {
			t.Fatalf("expected input closed error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the source closed")
	}
}

func TestStreamerRunStopsOnContext(t *testing.T) {
	st := NewState()
	s := NewStreamer(newChanSource(), st, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestStreamerStopWaitingForReconnectDoesNotBlockOthers(t *testing.T) {
	st := NewState()
	s := NewStreamer(newChanSource(), st, nil)
	if err := s.SetRecording(context.Background(), true); err != nil {
		t.Fatalf("SetRecording(true): %v", err)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.SetRecording(context.Background(), false) }()

	// A second stop gives up with its own context instead of queueing
	// behind the first.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	finished := make(chan error, 1)
	go func() { finished <- s.SetRecording(ctx, false) }()
	select {
	case err := <-finished:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second stop blocked behind the first")
	}
	if err := s.SetRecording(context.Background(), true); err != nil {
		t.Fatalf("SetRecording(true) while stopping: %v", err)
	}

	fs := newFakeStream()
	st.Publish(fs)
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not finish after reconnect")
	}
	if s.Recording() {
		t.Fatal("expected recording off")
	}
	want := []string{"input_audio_buffer.commit", "response.create"}
	if got := fs.types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events\n got %v\nwant %v", got, want)
	}
}
