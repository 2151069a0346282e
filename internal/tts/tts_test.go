package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-voice/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ttsConfig() config.TTSConfig {
	return config.TTSConfig{Mode: "mock", SampleRate: 16000, Channels: 1, ToneHz: 440, ToneMS: 100}
}

func TestMockSpeakPlaysAudio(t *testing.T) {
	sink := &MemorySink{}
	s := NewSpeaker(NewMockSynth(16000, 1), sink, ttsConfig(), newLogger())
	if err := s.Speak(context.Background(), "now playing"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	plays := sink.Plays()
	if len(plays) != 1 || len(plays[0]) != 320 {
		t.Fatalf("unexpected plays %d", len(plays))
	}
}

func TestToneShape(t *testing.T) {
	pcm := TonePCM(440, 100, 16000, 1)
	if len(pcm) != 1600*2 {
		t.Fatalf("expected 1600 samples, got %d bytes", len(pcm))
	}
	first := int16(binary.LittleEndian.Uint16(pcm[0:2]))
	if first != 0 {
		t.Fatalf("tone should fade in from zero, got %d", first)
	}
	peak := int16(0)
	for i := 0; i < len(pcm); i += 2 {
		if v := int16(binary.LittleEndian.Uint16(pcm[i:])); v > peak {
			peak = v
		}
	}
	if peak < 10000 || peak > 17000 {
		t.Fatalf("unexpected peak %d", peak)
	}
	if TonePCM(0, 100, 16000, 1) != nil {
		t.Fatal("zero frequency should produce no tone")
	}
}

func TestToneUsesSink(t *testing.T) {
	sink := &MemorySink{}
	s := NewSpeaker(NewMockSynth(16000, 1), sink, ttsConfig(), newLogger())
	if err := s.Tone(context.Background()); err != nil {
		t.Fatalf("tone: %v", err)
	}
	if len(sink.Plays()) != 1 {
		t.Fatal("tone not played")
	}
	sink.Err = errors.New("device busy")
	if err := s.Tone(context.Background()); err == nil {
		t.Fatal("expected sink error")
	}
}

func TestExecSynthAndSink(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.raw")
	// "AAEC" is base64 for bytes 00 01 02
	synth, err := NewExecSynth(`sh -c 'cat >/dev/null; echo "{\"pcm_base64\":\"AAEC\",\"final\":false}"; echo "{\"pcm_base64\":\"AwQ=\",\"final\":true}"'`, 16000, 1)
	if err != nil {
		t.Fatalf("synth: %v", err)
	}
	sink, err := NewExecSink("sh -c 'cat > " + out + "'")
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	s := NewSpeaker(synth, sink, ttsConfig(), newLogger())
	if err := s.Speak(WithRunID(context.Background(), "run-1"), "hello"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "\x00\x01\x02\x03\x04" {
		t.Fatalf("unexpected pcm %v", got)
	}
}

func TestExecSynthFailure(t *testing.T) {
	synth, err := NewExecSynth("sh -c 'cat >/dev/null; exit 2'", 16000, 1)
	if err != nil {
		t.Fatalf("synth: %v", err)
	}
	s := NewSpeaker(synth, &MemorySink{}, ttsConfig(), newLogger())
	if err := s.Speak(context.Background(), "hello"); err == nil {
		t.Fatal("expected synth failure")
	}
}

func TestNewModes(t *testing.T) {
	if _, err := New(ttsConfig(), newLogger()); err != nil {
		t.Fatalf("mock: %v", err)
	}
	cfg := ttsConfig()
	cfg.Mode = "cloud"
	if _, err := New(cfg, newLogger()); err == nil {
		t.Fatal("expected unsupported mode")
	}
}
