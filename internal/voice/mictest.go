package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onchain-voice-lab/internal/fileio"
	"github.com/onchain-voice-lab/internal/logging"
)

// silenceRMS is the level under which a capture is reported as silent.
const silenceRMS = 50.0

var errNoSamples = errors.New("no audio captured")

// MicReport summarises a microphone test capture.
type MicReport struct {
	Frames  int
	Bytes   int
	PeakRMS float64
	MeanRMS float64
	Silent  bool
	WAVPath string
}

func (r MicReport) String() string {
	status := "signal detected"
	if r.Silent {
		status = "silence only; check the input device"
	}
	s := fmt.Sprintf("captured %d frames (%d bytes), mean level %.0f, peak level %.0f: %s",
		r.Frames, r.Bytes, r.MeanRMS, r.PeakRMS, status)
	if r.WAVPath != "" {
		s += "\nrecording saved to " + r.WAVPath
	}
	return s
}

// TestMicrophone reads from src for d and measures the input level. When
// wavPath is set the capture is also written there as a WAV file.
func TestMicrophone(ctx context.Context, src Source, d time.Duration, sampleRate int, wavPath string) (MicReport, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	var (
		report MicReport
		pcm    []byte
		sum    float64
	)
	frames := src.Frames()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case frame, ok := <-frames:
			if !ok {
				if err := src.Err(); err != nil && report.Frames == 0 {
					return report, err
				}
				break loop
			}
			rms := FrameRMS(frame)
			sum += rms
			if rms > report.PeakRMS {
				report.PeakRMS = rms
			}
			report.Frames++
			report.Bytes += len(frame)
			if wavPath != "" {
				pcm = append(pcm, frame...)
			}
		}
	}
	if report.Frames == 0 {
		return report, errNoSamples
	}
	report.MeanRMS = sum / float64(report.Frames)
	report.Silent = report.PeakRMS < silenceRMS
	frameMs := 0
	if sampleRate > 0 {
		frameMs = report.Bytes / report.Frames / 2 * 1000 / sampleRate
	}
	logging.Infow("microphone test finished", append(logging.AudioFields(report.Frames, sampleRate, frameMs), "peak_rms", report.PeakRMS)...)

	if wavPath != "" {
		if err := fileio.SaveFileAtomic(wavPath, BuildWAV(pcm, sampleRate, 1, 16), 0o644); err != nil {
			return report, fmt.Errorf("save %s: %w", wavPath, err)
		}
		report.WAVPath = wavPath
	}
	return report, nil
}
