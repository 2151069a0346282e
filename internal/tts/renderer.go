package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/loqalabs/loqa-voice/internal/config"
)

// ErrNoAudio is returned when synthesis produced nothing to play.
var ErrNoAudio = errors.New("tts: synthesizer produced no audio")

// Renderer gives audible feedback.
type Renderer interface {
	Speak(ctx context.Context, text string) error
	Tone(ctx context.Context) error
}

// Speaker synthesizes text and plays it through a sink.
type Speaker struct {
	synth      Synthesizer
	sink       Sink
	voice      string
	sampleRate int
	channels   int
	tone       []byte
	log        *slog.Logger
}

// New wires the synthesizer and sink selected by cfg.Mode.
func New(cfg config.TTSConfig, log *slog.Logger) (*Speaker, error) {
	var (
		synth Synthesizer
		sink  Sink
	)
	switch cfg.Mode {
	case "", "mock":
		synth = NewMockSynth(cfg.SampleRate, cfg.Channels)
		sink = &MemorySink{}
	case "exec":
		s, err := NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
		if err != nil {
			return nil, err
		}
		out, err := NewExecSink(cfg.OutputCommand)
		if err != nil {
			return nil, err
		}
		synth, sink = s, out
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
	return NewSpeaker(synth, sink, cfg, log), nil
}

func NewSpeaker(synth Synthesizer, sink Sink, cfg config.TTSConfig, log *slog.Logger) *Speaker {
	return &Speaker{
		synth:      synth,
		sink:       sink,
		voice:      cfg.Voice,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		tone:       TonePCM(cfg.ToneHz, cfg.ToneMS, cfg.SampleRate, cfg.Channels),
		log:        log.With(slog.String("component", "tts")),
	}
}

// Speak synthesizes text and blocks until playback finishes.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	chunks, errs := s.synth.Synthesize(ctx, SynthRequest{RunID: runIDFrom(ctx), Text: text, Voice: s.voice})
	var pcm []byte
	var synthErr error
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			pcm = append(pcm, chunk.PCM...)
		case err, ok := <-errs:
			if ok && err != nil {
				synthErr = err
			}
			errs = nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if synthErr != nil {
		return fmt.Errorf("synthesize: %w", synthErr)
	}
	if len(pcm) == 0 {
		return ErrNoAudio
	}
	s.log.Debug("speaking", slog.String("text", text), slog.Int("bytes", len(pcm)))
	return s.sink.Play(ctx, pcm, s.sampleRate, s.channels)
}

// Tone plays the short feedback cue.
func (s *Speaker) Tone(ctx context.Context) error {
	if len(s.tone) == 0 {
		return ErrNoAudio
	}
	return s.sink.Play(ctx, s.tone, s.sampleRate, s.channels)
}

// TonePCM renders a sine cue with short linear fades as PCM16.
func TonePCM(hz, ms, sampleRate, channels int) []byte {
	if hz <= 0 || ms <= 0 || sampleRate <= 0 {
		return nil
	}
	if channels <= 0 {
		channels = 1
	}
	n := sampleRate * ms / 1000
	fade := n / 10
	out := make([]byte, 0, n*channels*2)
	for i := 0; i < n; i++ {
		amp := 0.5
		switch {
		case fade > 0 && i < fade:
			amp *= float64(i) / float64(fade)
		case fade > 0 && i >= n-fade:
			amp *= float64(n-1-i) / float64(fade)
		}
		v := int16(amp * math.MaxInt16 * math.Sin(2*math.Pi*float64(hz)*float64(i)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}
	}
	return out
}

type runIDKey struct{}

// WithRunID tags synthesis requests made with ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
