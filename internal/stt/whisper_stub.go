//go:build !whisper

package stt

import (
	"errors"

	"github.com/loqalabs/loqa-voice/internal/config"
)

func newWhisperRecognizer(config.STTConfig) (Recognizer, error) {
	return nil, errors.New("whisper backend not compiled in (build with -tags whisper)")
}
