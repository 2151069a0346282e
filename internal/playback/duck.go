package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Ducker lowers the shared volume while the assistant listens or speaks.
// Tokens nest: each one saves the volume read at acquire time and puts it
// back on release.
type Ducker struct {
	mixer Mixer
	level int
	log   *slog.Logger
	mu    sync.Mutex
}

func NewDucker(mixer Mixer, level int, log *slog.Logger) *Ducker {
	return &Ducker{
		mixer: mixer,
		level: Clamp(level),
		log:   log.With(slog.String("component", "ducker")),
	}
}

// Duck reads the current volume and lowers it to the duck level when it is
// louder. The returned token must be released exactly once.
func (d *Ducker) Duck(ctx context.Context) (*DuckToken, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, err := d.mixer.Volume(ctx)
	if err != nil {
		return nil, fmt.Errorf("read volume: %w", err)
	}
	t := &DuckToken{ducker: d, previous: prev}
	if prev > d.level {
		if err := d.mixer.SetVolume(ctx, d.level); err != nil {
			return nil, fmt.Errorf("duck volume: %w", err)
		}
	}
	d.log.Debug("volume ducked", slog.Int("previous", prev), slog.Int("level", d.level))
	return t, nil
}

// DuckToken is one held volume reduction.
type DuckToken struct {
	ducker   *Ducker
	previous int
	once     sync.Once
	err      error
}

// Previous is the volume read when the token was issued.
func (t *DuckToken) Previous() int { return t.previous }

// Release restores the saved volume. Only the first call has an effect; later
// calls return the first result. A nil token releases nothing.
func (t *DuckToken) Release(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		d := t.ducker
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.mixer.SetVolume(ctx, t.previous); err != nil {
			t.err = fmt.Errorf("restore volume: %w", err)
			return
		}
		d.log.Debug("volume restored", slog.Int("level", t.previous))
	})
	return t.err
}
