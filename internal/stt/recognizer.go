package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/config"
)

// TranscriptResult captures engine output. Empty text is a valid result.
type TranscriptResult struct {
	Text     string
	Attempts int
}

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, utt audio.Utterance) (string, error)
	Close() error
}

// Factory builds a fresh recognizer; the engine calls it on first use and
// on every rebuild.
type Factory func(ctx context.Context) (Recognizer, error)

// FactoryFor returns the factory selected by cfg.Mode.
func FactoryFor(cfg config.STTConfig) (Factory, error) {
	switch cfg.Mode {
	case "mock":
		return func(context.Context) (Recognizer, error) { return NewMockRecognizer(), nil }, nil
	case "exec":
		return func(context.Context) (Recognizer, error) { return NewExecRecognizer(cfg) }, nil
	case "whisper":
		return func(context.Context) (Recognizer, error) { return newWhisperRecognizer(cfg) }, nil
	}
	return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
}
