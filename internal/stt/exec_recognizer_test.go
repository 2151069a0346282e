package stt

import (
	"context"
	"errors"
	"testing"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/resilience"
)

func TestExecRecognizerParsesJSON(t *testing.T) {
	r, err := NewExecRecognizer(config.STTConfig{Command: `sh -c 'printf "{\"text\": \"play frozen\"}"'`})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	text, err := r.Transcribe(context.Background(), speech())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "play frozen" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExecRecognizerExitIsTransient(t *testing.T) {
	r, err := NewExecRecognizer(config.STTConfig{Command: "sh -c 'exit 3'"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = r.Transcribe(context.Background(), speech())
	if err == nil || !resilience.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestExecRecognizerBadOutputIsPermanent(t *testing.T) {
	r, err := NewExecRecognizer(config.STTConfig{Command: "sh -c 'echo nope'"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = r.Transcribe(context.Background(), speech())
	if err == nil || resilience.IsTransient(err) {
		t.Fatalf("expected permanent decode error, got %v", err)
	}
	if errors.Is(err, resilience.ErrTransient) {
		t.Fatal("decode error marked transient")
	}
}

func TestExecRecognizerEmptyCommand(t *testing.T) {
	if _, err := NewExecRecognizer(config.STTConfig{Command: "  "}); err == nil {
		t.Fatal("expected error for empty command")
	}
}
