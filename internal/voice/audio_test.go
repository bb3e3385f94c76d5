package voice

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestBuildWAVHeader(t *testing.T) {
	pcm := make([]byte, 480)
	wav := BuildWAV(pcm, 24000, 1, 16)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("unexpected length %d", len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:16], []byte("WAVEfmt ")) || !bytes.Equal(wav[36:40], []byte("data")) {
		t.Fatal("bad WAV markers")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 24000 {
		t.Fatalf("unexpected sample rate %d", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != uint32(len(pcm)) {
		t.Fatalf("unexpected data size %d", size)
	}
}

func pcmFrame(sample int16, samples int) []byte {
	b := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(sample))
	}
	return b
}

func TestFrameRMS(t *testing.T) {
	if FrameRMS(nil) != 0 {
		t.Fatal("empty frame should be 0")
	}
	if got := FrameRMS(pcmFrame(1000, 480)); got != 1000 {
		t.Fatalf("unexpected rms %v", got)
	}
	if got := FrameRMS(pcmFrame(-1000, 480)); got != 1000 {
		t.Fatalf("unexpected rms for negative samples %v", got)
	}
}

type bufferedSource struct {
	frames chan []byte
	err    error
}

func newBufferedSource(frames ...[]byte) *bufferedSource {
	s := &bufferedSource{frames: make(chan []byte, len(frames))}
	for _, f := range frames {
		s.frames <- f
	}
	close(s.frames)
	return s
}

func (s *bufferedSource) Frames() <-chan []byte { return s.frames }
func (s *bufferedSource) Err() error            { return s.err }
func (s *bufferedSource) Close() error          { return nil }

func TestMicrophoneReportsSignalAndSavesWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mic.wav")
	src := newBufferedSource(pcmFrame(0, 480), pcmFrame(2000, 480))
	report, err := TestMicrophone(context.Background(), src, time.Second, 24000, path)
	if err != nil {
		t.Fatalf("TestMicrophone: %v", err)
	}
	if report.Frames != 2 || report.Silent || report.PeakRMS != 2000 {
		t.Fatalf("unexpected report %+v", report)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("wav not written: %v", err)
	}
	if info.Size() != int64(44+2*960) {
		t.Fatalf("unexpected wav size %d", info.Size())
	}
}

func TestMicrophoneSilence(t *testing.T) {
	report, err := TestMicrophone(context.Background(), newBufferedSource(pcmFrame(3, 480)), time.Second, 24000, "")
	if err != nil {
		t.Fatalf("TestMicrophone: %v", err)
	}
	if !report.Silent {
		t.Fatalf("expected silence, got %+v", report)
	}
}

func TestMicrophoneDeviceError(t *testing.T) {
	src := newBufferedSource()
	src.err = errors.New("no such device")
	if _, err := TestMicrophone(context.Background(), src, time.Second, 24000, ""); err == nil || err.Error() != "no such device" {
		t.Fatalf("expected device error, got %v", err)
	}
}

func TestCaptureFrameBytes(t *testing.T) {
	if got := (CaptureConfig{SampleRate: 24000, FrameMs: 20}).FrameBytes(); got != 960 {
		t.Fatalf("24kHz 20ms frame should be 960 bytes, got %d", got)
	}
	if got := (CaptureConfig{SampleRate: 16000, FrameMs: 20}).FrameBytes(); got != 640 {
		t.Fatalf("16kHz 20ms frame should be 640 bytes, got %d", got)
	}
}

func TestCaptureArgs(t *testing.T) {
	cfg := CaptureConfig{SampleRate: 24000, FrameMs: 20}
	linux, err := captureArgs("linux", cfg)
	if err != nil {
		t.Fatalf("linux: %v", err)
	}
	want := []string{"-hide_banner", "-loglevel", "error", "-f", "pulse", "-i", "default", "-ac", "1", "-ar", "24000", "-f", "s16le", "-"}
	if !reflect.DeepEqual(linux, want) {
		t.Fatalf("unexpected linux args %v", linux)
	}
	mac, err := captureArgs("darwin", cfg)
	if err != nil {
		t.Fatalf("darwin: %v", err)
	}
	if mac[4] != "avfoundation" || mac[6] != ":0" {
		t.Fatalf("unexpected darwin args %v", mac)
	}
	if _, err := captureArgs("plan9", cfg); err == nil {
		t.Fatal("expected error for unsupported platform without a format")
	}
	cfg.Format, cfg.Device = "alsa", "hw:1"
	custom, err := captureArgs("plan9", cfg)
	if err != nil || custom[4] != "alsa" || custom[6] != "hw:1" {
		t.Fatalf("unexpected custom args %v %v", custom, err)
	}
}
