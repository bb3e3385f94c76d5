package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/onchain-voice-lab/internal/logging"
)

const frameQueueSize = 50

type CaptureConfig struct {
	FFmpegPath string
	// Format and Device select the ffmpeg input; empty picks the platform
	// default (pulse/default on linux, avfoundation/:0 on macOS).
	Format     string
	Device     string
	SampleRate int
	FrameMs    int
}

// FrameBytes is the size of one mono s16le frame.
func (c CaptureConfig) FrameBytes() int {
	return c.SampleRate * c.FrameMs / 1000 * 2
}

// FFmpegSource captures mono s16le audio through an ffmpeg child process
// and slices it into fixed frames of SampleRate*FrameMs/1000 samples.
type FFmpegSource struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	frames  chan []byte
	dropped atomic.Int64

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	done      chan struct{}
}

// StartFFmpegSource starts capturing. The process is killed when ctx ends
// or Close is called.
func StartFFmpegSource(ctx context.Context, cfg CaptureConfig) (*FFmpegSource, error) {
	bin := cfg.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("ffmpeg is required for microphone capture: %w", err)
	}
	if cfg.SampleRate <= 0 || cfg.FrameMs <= 0 {
		return nil, fmt.Errorf("invalid capture format %d Hz / %d ms", cfg.SampleRate, cfg.FrameMs)
	}
	args, err := captureArgs(runtime.GOOS, cfg)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg capture: %w", err)
	}
	s := &FFmpegSource{
		cmd:    cmd,
		stdout: stdout,
		frames: make(chan []byte, frameQueueSize),
		done:   make(chan struct{}),
	}
	frameBytes := cfg.FrameBytes()
	go s.readLoop(frameBytes)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	logging.Infow("microphone capture started", "format", args[4], "device", args[6], "sample_rate", cfg.SampleRate, "frame_bytes", frameBytes)
	return s, nil
}

func captureArgs(goos string, cfg CaptureConfig) ([]string, error) {
	format, device := cfg.Format, cfg.Device
	if format == "" {
		switch goos {
		case "darwin":
			format = "avfoundation"
		case "linux":
			format = "pulse"
		default:
			return nil, fmt.Errorf("microphone capture is not supported on %s; set audio.input_format", goos)
		}
	}
	if device == "" {
		device = "default"
		if format == "avfoundation" {
			device = ":0"
		}
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", device,
		"-ac", "1", "-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le", "-",
	}, nil
}

// readLoop drops frames when the consumer falls behind rather than
// stalling ffmpeg.
func (s *FFmpegSource) readLoop(frameBytes int) {
	defer close(s.frames)
	for {
		frame := make([]byte, frameBytes)
		if _, err := io.ReadFull(s.stdout, frame); err != nil {
			select {
			case <-s.done:
			default:
				if errors.Is(err, io.ErrUnexpectedEOF) {
					err = io.EOF
				}
				s.setErr(fmt.Errorf("capture stopped: %w", err))
			}
			return
		}
		select {
		case s.frames <- frame:
		default:
			if n := s.dropped.Add(1); n%frameQueueSize == 1 {
				logging.Warnw("dropping microphone frames; consumer is slow", "dropped", n)
			}
		}
	}
}

func (s *FFmpegSource) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *FFmpegSource) Frames() <-chan []byte { return s.frames }

func (s *FFmpegSource) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *FFmpegSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
	})
	return nil
}
