package playback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-voice/internal/config"
)

// Command keys understood by the exec backend.
const (
	CommandPlay      = "play"
	CommandPause     = "pause"
	CommandResume    = "resume"
	CommandStop      = "stop"
	CommandNext      = "next"
	CommandPrevious  = "previous"
	CommandVolume    = "volume"
	CommandSetVolume = "set_volume"
)

// Result describes a started playback.
type Result struct {
	Target string
	Output string
}

// Player controls the music backend.
type Player interface {
	Play(ctx context.Context, target string) (Result, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
}

// Mixer reads and sets the shared playback volume (0..100).
type Mixer interface {
	Volume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, level int) error
}

// Backend is a player that also owns the volume.
type Backend interface {
	Player
	Mixer
}

// New returns the backend selected by cfg.Mode.
func New(cfg config.PlaybackConfig, log *slog.Logger) (Backend, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMock(50), nil
	case "exec":
		return NewExec(cfg.Commands, log)
	}
	return nil, fmt.Errorf("unsupported playback mode %q", cfg.Mode)
}

// Clamp bounds a volume level to 0..100.
func Clamp(level int) int {
	switch {
	case level < 0:
		return 0
	case level > 100:
		return 100
	}
	return level
}
