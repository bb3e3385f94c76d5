package voice

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/onchain-voice-lab/internal/logging"
	"github.com/onchain-voice-lab/internal/realtime"
)

// Source yields fixed-size pcm16 frames from an input device. The frame
// channel is closed when the device stops; Err then reports why.
type Source interface {
	Frames() <-chan []byte
	Err() error
	Close() error
}

// Streamer forwards microphone frames to the realtime session while
// recording is on. The first frame of a recording cancels any in-flight
// response; turning recording off commits the buffer and asks for a reply.
type Streamer struct {
	source  Source
	state   *State
	display Display

	recording atomic.Bool
	// mu orders frame forwarding against recording transitions so no
	// append follows the commit of the same recording.
	mu        sync.Mutex
	sentAudio bool
	forwarded atomic.Int64
}

func NewStreamer(source Source, state *State, display Display) *Streamer {
	if display == nil {
		display = nopDisplay{}
	}
	return &Streamer{source: source, state: state, display: display}
}

// Recording reports the recording flag.
func (s *Streamer) Recording() bool { return s.recording.Load() }

// Forwarded is the number of frames sent to the session so far.
func (s *Streamer) Forwarded() int64 { return s.forwarded.Load() }

// Toggle flips the recording flag.
func (s *Streamer) Toggle(ctx context.Context) error {
	return s.SetRecording(ctx, !s.recording.Load())
}

// SetRecording sets the recording flag. A set-to-clear transition sends
// input_audio_buffer.commit then response.create, once.
func (s *Streamer) SetRecording(ctx context.Context, on bool) error {
	if s.recording.Load() == on {
		return nil
	}
	// Never wait for a reconnect while holding mu.
	var stream Stream
	if !on {
		var err error
		if stream, err = s.state.Stream(ctx); err != nil {
			return fmt.Errorf("commit audio: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording.CompareAndSwap(!on, on) {
		return nil
	}
	s.display.SetRecording(on)
	if on {
		logging.Debugw("recording started")
		return nil
	}
	wasSending := s.sentAudio
	s.sentAudio = false
	logging.Debugw("recording stopped", "sent_audio", wasSending)

	if err := stream.Send(realtime.InputAudioBufferCommit{}); err != nil {
		return err
	}
	return stream.Send(realtime.ResponseCreate{})
}

// Run forwards frames until ctx ends or the source stops. Send failures
// are logged and skipped; a stopped source ends Run with its error.
func (s *Streamer) Run(ctx context.Context) error {
	frames := s.source.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				if err := s.source.Err(); err != nil {
					return fmt.Errorf("microphone: %w", err)
				}
				return fmt.Errorf("microphone: input closed")
			}
			if err := s.forward(ctx, frame); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logging.Warnw("failed to forward audio frame", "error", err)
			}
		}
	}
}

func (s *Streamer) forward(ctx context.Context, frame []byte) error {
	if !s.recording.Load() {
		return nil
	}
	stream, err := s.state.Stream(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording.Load() {
		return nil
	}
	if !s.sentAudio {
		s.sentAudio = true
		s.display.Clear()
		if err := stream.Send(realtime.ResponseCancel{}); err != nil {
			logging.Debugw("response cancel failed", "error", err)
		}
	}
	if err := stream.Send(realtime.InputAudioBufferAppend{Audio: base64.StdEncoding.EncodeToString(frame)}); err != nil {
		return err
	}
	s.forwarded.Add(1)
	return nil
}
