//go:build whisper

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/resilience"
)

const whisperSampleRate = 16000

type whisperRecognizer struct {
	model    whisper.Model
	language string
}

func newWhisperRecognizer(cfg config.STTConfig) (Recognizer, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = "auto"
	}
	return &whisperRecognizer{model: m, language: lang}, nil
}

func (r *whisperRecognizer) Transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	if r.model == nil {
		return "", errors.New("nil model")
	}
	if utt.SampleRate != whisperSampleRate {
		return "", fmt.Errorf("whisper needs %d Hz audio, got %d", whisperSampleRate, utt.SampleRate)
	}
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", resilience.Transient(fmt.Errorf("new context: %w", err))
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	wctx.SetThreads(uint(runtime.NumCPU()))

	pcm := make([]float32, len(utt.Samples))
	for i, s := range utt.Samples {
		pcm[i] = float32(s) / 32768
	}
	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", resilience.Transient(fmt.Errorf("process: %w", err))
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (r *whisperRecognizer) Close() error {
	if r.model == nil {
		return nil
	}
	return r.model.Close()
}
