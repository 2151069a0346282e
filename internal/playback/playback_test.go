package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/loqalabs/loqa-voice/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDuckRestoresPreviousVolume(t *testing.T) {
	ctx := context.Background()
	mix := NewMock(70)
	d := NewDucker(mix, 20, newLogger())

	tok, err := d.Duck(ctx)
	if err != nil {
		t.Fatalf("duck: %v", err)
	}
	if mix.CurrentVolume() != 20 || tok.Previous() != 70 {
		t.Fatalf("expected ducked to 20 from 70, got %d/%d", mix.CurrentVolume(), tok.Previous())
	}
	if err := tok.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mix.CurrentVolume() != 70 {
		t.Fatalf("expected 70 after release, got %d", mix.CurrentVolume())
	}
}

func TestDuckTokenReleasesOnce(t *testing.T) {
	ctx := context.Background()
	mix := NewMock(60)
	d := NewDucker(mix, 10, newLogger())
	tok, _ := d.Duck(ctx)
	tok.Release(ctx)

	if err := mix.SetVolume(ctx, 35); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Release(ctx)
		}()
	}
	wg.Wait()
	if mix.CurrentVolume() != 35 {
		t.Fatalf("second release changed volume to %d", mix.CurrentVolume())
	}
}

func TestDuckNests(t *testing.T) {
	ctx := context.Background()
	mix := NewMock(80)
	d := NewDucker(mix, 20, newLogger())
	outer, _ := d.Duck(ctx)
	inner, _ := d.Duck(ctx)
	if inner.Previous() != 20 {
		t.Fatalf("inner token should save ducked level, got %d", inner.Previous())
	}
	inner.Release(ctx)
	if mix.CurrentVolume() != 20 {
		t.Fatalf("inner release should keep duck level, got %d", mix.CurrentVolume())
	}
	outer.Release(ctx)
	if mix.CurrentVolume() != 80 {
		t.Fatalf("outer release should restore 80, got %d", mix.CurrentVolume())
	}
}

func TestDuckQuietVolumeUntouched(t *testing.T) {
	ctx := context.Background()
	mix := NewMock(5)
	d := NewDucker(mix, 20, newLogger())
	tok, _ := d.Duck(ctx)
	if mix.CurrentVolume() != 5 {
		t.Fatalf("quiet volume raised to %d", mix.CurrentVolume())
	}
	tok.Release(ctx)
	if mix.CurrentVolume() != 5 {
		t.Fatalf("expected 5 after release, got %d", mix.CurrentVolume())
	}
}

func TestDuckReadFailure(t *testing.T) {
	mix := NewMock(50)
	mix.SetFail(CommandVolume, errors.New("mixer gone"))
	d := NewDucker(mix, 20, newLogger())
	tok, err := d.Duck(context.Background())
	if err == nil || tok != nil {
		t.Fatal("expected duck failure")
	}
	// releasing a nil token is harmless
	if err := tok.Release(context.Background()); err != nil {
		t.Fatalf("nil release: %v", err)
	}
}

func TestParsePercent(t *testing.T) {
	cases := []struct {
		out  string
		want int
		ok   bool
	}{
		{"volume: 45%\n", 45, true},
		{"volume:100%", 100, true},
		{"Front Left: Playback 39 [61%] [-20.25dB] [on]", 61, true},
		{"volume: n/a", 0, false},
	}
	for _, tc := range cases {
		got, err := ParsePercent(tc.out)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("ParsePercent(%q) = %d, %v", tc.out, got, err)
		}
	}
}

func TestParseSequence(t *testing.T) {
	steps, err := parseSequence(`mpc -q clear; mpc -q add "{target}" && mpc -q play`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := [][]string{
		{"mpc", "-q", "clear"},
		{"mpc", "-q", "add", "{target}"},
		{"mpc", "-q", "play"},
	}
	if !reflect.DeepEqual(steps, want) {
		t.Fatalf("unexpected steps %q", steps)
	}
	if _, err := parseSequence("mpc status | grep x"); err == nil {
		t.Fatal("pipes should be rejected")
	}
}

func TestExecBackend(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, "state")
	backend, err := NewExec(map[string]string{
		CommandPlay:      "sh -c 'printf %s \"$1\" > " + state + "' play {target}",
		CommandVolume:    "echo volume: 42%",
		CommandSetVolume: "sh -c 'printf %s \"$1\" > " + state + "' vol {level}",
	}, newLogger())
	if err != nil {
		t.Fatalf("new exec: %v", err)
	}
	ctx := context.Background()

	res, err := backend.Play(ctx, "Queen - Bohemian Rhapsody.mp3")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if res.Target != "Queen - Bohemian Rhapsody.mp3" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got, _ := os.ReadFile(state); string(got) != "Queen - Bohemian Rhapsody.mp3" {
		t.Fatalf("target not passed as one argument: %q", got)
	}

	vol, err := backend.Volume(ctx)
	if err != nil || vol != 42 {
		t.Fatalf("volume: %d %v", vol, err)
	}
	if err := backend.SetVolume(ctx, 130); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	if got, _ := os.ReadFile(state); string(got) != "100" {
		t.Fatalf("level not clamped: %q", got)
	}
}

func TestExecFailureIncludesStderr(t *testing.T) {
	backend, err := NewExec(map[string]string{CommandNext: "sh -c 'echo no mpd >&2; exit 1'"}, newLogger())
	if err != nil {
		t.Fatalf("new exec: %v", err)
	}
	err = backend.Next(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no mpd") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestNewRejectsUnknown(t *testing.T) {
	if _, err := NewExec(map[string]string{"shuffle": "mpc random"}, newLogger()); err == nil {
		t.Fatal("expected unknown command error")
	}
	if _, err := New(config.PlaybackConfig{Mode: "spotify"}, newLogger()); err == nil {
		t.Fatal("expected unsupported mode error")
	}
	b, err := New(config.PlaybackConfig{Mode: "mock"}, newLogger())
	if err != nil || b == nil {
		t.Fatalf("mock backend: %v", err)
	}
}
