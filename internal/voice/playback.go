package voice

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/onchain-voice-lab/internal/logging"
)

// FFplayPlayer pipes pcm16 mono audio into an ffplay child process. If
// ffplay exits it is restarted on the next write.
type FFplayPlayer struct {
	bin        string
	sampleRate int

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	itemBytes int64
	items     int
}

// NewFFplayPlayer starts ffplay at sampleRate.
func NewFFplayPlayer(bin string, sampleRate int) (*FFplayPlayer, error) {
	if bin == "" {
		bin = "ffplay"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("ffplay is required for playback: %w", err)
	}
	p := &FFplayPlayer{bin: bin, sampleRate: sampleRate}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.startLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FFplayPlayer) startLocked() error {
	cmd := exec.Command(p.bin,
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(p.sampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	p.cmd, p.stdin = cmd, stdin
	return nil
}

func (p *FFplayPlayer) stopLocked() {
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
	}
	p.cmd, p.stdin = nil, nil
}

func (p *FFplayPlayer) Write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		if err := p.startLocked(); err != nil {
			return err
		}
	}
	if _, err := p.stdin.Write(pcm); err != nil {
		p.stopLocked()
		return fmt.Errorf("ffplay write: %w", err)
	}
	p.itemBytes += int64(len(pcm))
	return nil
}

// Reset starts accounting for a new output item. Audio already queued
// keeps playing.
func (p *FFplayPlayer) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.items > 0 {
		ms := p.itemBytes * 1000 / int64(2*p.sampleRate)
		logging.Debugw("playback item finished", "bytes", p.itemBytes, "duration_ms", ms)
	}
	p.items++
	p.itemBytes = 0
	return nil
}

func (p *FFplayPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

// discardPlayer is used when no audio output is available.
type discardPlayer struct{}

// DiscardPlayer returns a Player that drops all audio.
func DiscardPlayer() Player { return discardPlayer{} }

func (discardPlayer) Write([]byte) error { return nil }
func (discardPlayer) Reset() error       { return nil }
func (discardPlayer) Close() error       { return nil }
