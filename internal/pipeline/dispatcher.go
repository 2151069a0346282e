package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-voice/internal/catalog"
	"github.com/loqalabs/loqa-voice/internal/eventbus"
	"github.com/loqalabs/loqa-voice/internal/match"
	"github.com/loqalabs/loqa-voice/internal/playback"
	"github.com/loqalabs/loqa-voice/internal/protocol"
)

// Dispatcher executes media requests that arrive outside a run: hardware
// buttons, the control tool and remote publishers.
type Dispatcher struct {
	bus     Bus
	player  playback.Player
	mixer   playback.Mixer
	catalog *catalog.Catalog
	matcher *match.Matcher
	step    int
	log     *slog.Logger

	mu     sync.Mutex
	paused bool
}

func NewDispatcher(bus Bus, player playback.Player, mixer playback.Mixer, cat *catalog.Catalog, matcher *match.Matcher, step int, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		bus:     bus,
		player:  player,
		mixer:   mixer,
		catalog: cat,
		matcher: matcher,
		step:    step,
		log:     log.With(slog.String("component", "dispatcher")),
	}
}

// Run handles events until ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	events := d.bus.Subscribe(ctx, eventbus.Wildcard)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := d.Handle(ctx, ev); err != nil {
				d.log.Warn("media request failed", slog.String("event", ev.Name), slogError(err))
			}
		}
	}
}

// Handle executes one event. Events it does not own are ignored.
func (d *Dispatcher) Handle(ctx context.Context, ev eventbus.Event) error {
	switch ev.Name {
	case protocol.EventButtonPressed:
		d.button(ev.Text("button"))
		return nil
	case protocol.EventVolumeUpRequested:
		return d.adjust(ctx, d.step)
	case protocol.EventVolumeDownRequested:
		return d.adjust(ctx, -d.step)
	case protocol.EventPauseRequested:
		if err := d.player.Pause(ctx); err != nil {
			return err
		}
		d.setPaused(true)
		return nil
	case protocol.EventResumeRequested:
		if err := d.player.Resume(ctx); err != nil {
			return err
		}
		d.setPaused(false)
		return nil
	case protocol.EventPlayRequested:
		// the pipeline publishes play_requested for actions it already ran
		if ev.Source == Source {
			d.setPaused(false)
			return nil
		}
		return d.play(ctx, ev)
	}
	return nil
}

// button turns a media button into the matching request event.
func (d *Dispatcher) button(name string) {
	var next string
	switch name {
	case protocol.ButtonVolumeUp:
		next = protocol.EventVolumeUpRequested
	case protocol.ButtonVolumeDown:
		next = protocol.EventVolumeDownRequested
	case protocol.ButtonPlayPause:
		d.mu.Lock()
		paused := d.paused
		d.mu.Unlock()
		next = protocol.EventPauseRequested
		if paused {
			next = protocol.EventResumeRequested
		}
	default:
		return
	}
	ev := eventbus.NewEvent(next, map[string]any{"button": name})
	ev.Source = "dispatcher"
	d.bus.Publish(ev)
}

func (d *Dispatcher) setPaused(v bool) {
	d.mu.Lock()
	d.paused = v
	d.mu.Unlock()
}

func (d *Dispatcher) adjust(ctx context.Context, delta int) error {
	cur, err := d.mixer.Volume(ctx)
	if err != nil {
		return err
	}
	next := playback.Clamp(cur + delta)
	if err := d.mixer.SetVolume(ctx, next); err != nil {
		return err
	}
	d.log.Info("volume changed", slog.Int("from", cur), slog.Int("to", next))
	return nil
}

func (d *Dispatcher) play(ctx context.Context, ev eventbus.Event) error {
	var req protocol.PlayRequested
	if err := ev.Decode(&req); err != nil {
		return err
	}
	target := req.MatchedFile
	if target == "" {
		if req.Query == "" {
			return fmt.Errorf("play request without query or file")
		}
		if d.catalog == nil || d.catalog.Len() == 0 || d.matcher == nil {
			return fmt.Errorf("no catalog to resolve %q", req.Query)
		}
		res, _ := d.matcher.Match(req.Query, d.catalog.Candidates(), match.ModeBest)
		if d.matcher.Classify(res.Combined) == match.TierReject {
			return fmt.Errorf("no confident match for %q (score %.0f)", req.Query, res.Combined)
		}
		song, _ := d.catalog.Song(res.Index)
		target = song.Target()
	}
	if _, err := d.player.Play(ctx, target); err != nil {
		return err
	}
	d.setPaused(false)
	d.log.Info("playing", slog.String("target", target))
	return nil
}
