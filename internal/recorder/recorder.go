package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/config"
)

// ErrNoAudio is returned when the stream ends before any audio is recorded.
var ErrNoAudio = errors.New("no audio captured")

// Stop reasons.
const (
	StopSilence     = "silence"
	StopMaxDuration = "max_duration"
	StopEndOfStream = "end_of_stream"
)

type Settings struct {
	Calibration       time.Duration
	SpeechMultiplier  float64
	SilenceDuration   time.Duration
	MinSpeechDuration time.Duration
	MaxDuration       time.Duration
	MinNoiseFloor     float64
	Normalize         bool
	TargetRMS         float64
	MaxGain           float64
	// WallClockSlack bounds how long Capture may block beyond MaxDuration
	// on a stream that stops delivering frames.
	WallClockSlack time.Duration
}

func SettingsFrom(cfg config.VADConfig) Settings {
	return Settings{
		Calibration:       time.Duration(cfg.CalibrationMS) * time.Millisecond,
		SpeechMultiplier:  cfg.SpeechMultiplier,
		SilenceDuration:   config.Seconds(cfg.SilenceSeconds),
		MinSpeechDuration: config.Seconds(cfg.MinSpeechSeconds),
		MaxDuration:       config.Seconds(cfg.MaxRecordingSeconds),
		MinNoiseFloor:     cfg.MinNoiseFloor,
		Normalize:         cfg.Normalize,
		TargetRMS:         cfg.TargetRMS,
		MaxGain:           cfg.MaxGain,
		WallClockSlack:    5 * time.Second,
	}
}

// Result describes one capture.
type Result struct {
	Utterance  audio.Utterance
	NoiseFloor float64
	Speech     time.Duration
	Elapsed    time.Duration
	Reason     string
}

// Recorder captures a single utterance, ending on trailing silence after
// enough speech or at the maximum duration.
type Recorder struct {
	settings Settings
	newVAD   func() audio.VAD
	log      *slog.Logger
}

// New builds a recorder. newVAD may be nil for the energy detector.
func New(settings Settings, newVAD func() audio.VAD, log *slog.Logger) *Recorder {
	if newVAD == nil {
		newVAD = func() audio.VAD { return audio.NewEnergyVAD() }
	}
	return &Recorder{
		settings: settings,
		newVAD:   newVAD,
		log:      log.With(slog.String("component", "recorder")),
	}
}

// Capture blocks until the utterance ends and returns it.
func (r *Recorder) Capture(ctx context.Context, stream audio.Stream) (audio.Utterance, error) {
	res, err := r.Record(ctx, stream)
	if err != nil {
		return audio.Utterance{}, err
	}
	return res.Utterance, nil
}

// Record is Capture with endpointing details.
func (r *Recorder) Record(ctx context.Context, stream audio.Stream) (Result, error) {
	s := r.settings
	if s.MaxDuration > 0 && s.WallClockSlack > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.MaxDuration+s.WallClockSlack)
		defer cancel()
	}
	rate := stream.SampleRate()
	vad := r.newVAD()

	var (
		elapsed  time.Duration
		energies []float64
		samples  []int16
		speech   time.Duration
		silence  time.Duration
	)

	for elapsed < s.Calibration && (s.MaxDuration <= 0 || elapsed < s.MaxDuration) {
		frame, err := stream.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Result{}, ErrNoAudio
			}
			return Result{}, fmt.Errorf("calibrate: %w", err)
		}
		elapsed += audio.SamplesDuration(len(frame), rate)
		energies = append(energies, audio.RMS(frame))
	}
	floor := audio.Median(energies)
	if floor < s.MinNoiseFloor {
		floor = s.MinNoiseFloor
	}
	threshold := floor * s.SpeechMultiplier

	reason := ""
	for reason == "" {
		if s.MaxDuration > 0 && elapsed >= s.MaxDuration {
			reason = StopMaxDuration
			break
		}
		frame, err := stream.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(samples) == 0 {
					return Result{}, ErrNoAudio
				}
				reason = StopEndOfStream
				break
			}
			return Result{}, fmt.Errorf("record: %w", err)
		}
		d := audio.SamplesDuration(len(frame), rate)
		elapsed += d
		samples = append(samples, frame...)

		if vad.IsSpeech(frame) && audio.RMS(frame) >= threshold {
			speech += d
			silence = 0
		} else {
			silence += d
		}
		if silence >= s.SilenceDuration && speech >= s.MinSpeechDuration {
			reason = StopSilence
		}
	}

	if s.Normalize && len(samples) > 0 {
		samples = audio.Normalize(samples, s.TargetRMS, s.MaxGain)
	}
	res := Result{
		Utterance:  audio.NewUtterance(samples, rate),
		NoiseFloor: floor,
		Speech:     speech,
		Elapsed:    elapsed,
		Reason:     reason,
	}
	r.log.Debug("capture finished",
		slog.String("reason", reason),
		slog.Float64("noise_floor", floor),
		slog.Duration("speech", speech),
		slog.Duration("elapsed", elapsed))
	return res, nil
}
