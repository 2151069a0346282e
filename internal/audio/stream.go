package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-voice/internal/config"
)

// ErrClosed is returned by streams read after Close.
var ErrClosed = errors.New("audio stream closed")

// Stream yields fixed-size mono 16-bit frames. ReadFrame returns io.EOF
// when a finite source is exhausted.
type Stream interface {
	ReadFrame(ctx context.Context) ([]int16, error)
	SampleRate() int
	Close() error
}

// Utterance is one captured command.
type Utterance struct {
	Samples    []int16
	SampleRate int
	Duration   time.Duration
}

// NewUtterance derives the duration from the sample count.
func NewUtterance(samples []int16, sampleRate int) Utterance {
	return Utterance{
		Samples:    samples,
		SampleRate: sampleRate,
		Duration:   SamplesDuration(len(samples), sampleRate),
	}
}

// Empty reports whether the utterance carries no audio.
func (u Utterance) Empty() bool {
	return len(u.Samples) == 0 || u.SampleRate <= 0
}

// SamplesDuration converts a sample count into playback time.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// FrameSamples returns the number of samples per frame.
func FrameSamples(sampleRate, frameMS int) int {
	n := sampleRate * frameMS / 1000
	if n <= 0 {
		n = 1
	}
	return n
}

// Open builds the capture stream selected by cfg.CaptureMode.
func Open(ctx context.Context, cfg config.AudioConfig, log *slog.Logger) (Stream, error) {
	frame := FrameSamples(cfg.SampleRate, cfg.FrameDurationMS)
	switch cfg.CaptureMode {
	case "exec":
		return StartExecStream(ctx, cfg.CaptureCommand, cfg.SampleRate, frame, log)
	case "file":
		return OpenWAVStream(cfg.CaptureFile, frame)
	case "portaudio":
		return openPortAudio(cfg.SampleRate, frame)
	}
	return nil, fmt.Errorf("unsupported capture mode %q", cfg.CaptureMode)
}
