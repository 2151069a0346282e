package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/loqalabs/loqa-voice/internal/catalog"
	"github.com/loqalabs/loqa-voice/internal/eventbus"
	"github.com/loqalabs/loqa-voice/internal/match"
	"github.com/loqalabs/loqa-voice/internal/playback"
	"github.com/loqalabs/loqa-voice/internal/protocol"
)

func newDispatcher(t *testing.T) (*Dispatcher, *eventbus.Bus, *playback.Mock) {
	t.Helper()
	bus := eventbus.New(eventbus.Options{MaxQueue: 64, Logger: newLogger()})
	t.Cleanup(func() { bus.Close() })
	mock := playback.NewMock(50)
	cat := catalog.New([]catalog.Song{
		{Title: "Frozen", Path: "frozen.mp3"},
		{Title: "Bohemian Rhapsody", Artist: "Queen", Path: "queen.mp3"},
	})
	m := match.New(match.DefaultSettings(), cat.Candidates())
	return NewDispatcher(bus, mock, mock, cat, m, 10, newLogger()), bus, mock
}

func TestDispatcherButtonsBecomeRequests(t *testing.T) {
	d, bus, _ := newDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := bus.Subscribe(ctx, eventbus.Wildcard)

	cases := []struct {
		button string
		want   string
	}{
		{protocol.ButtonVolumeUp, protocol.EventVolumeUpRequested},
		{protocol.ButtonVolumeDown, protocol.EventVolumeDownRequested},
		{protocol.ButtonPlayPause, protocol.EventPauseRequested},
	}
	for _, tc := range cases {
		if err := d.Handle(ctx, eventbus.NewEvent(protocol.EventButtonPressed, map[string]any{"button": tc.button})); err != nil {
			t.Fatalf("%s: %v", tc.button, err)
		}
		select {
		case ev := <-events:
			if ev.Name != tc.want || ev.Source != "dispatcher" {
				t.Fatalf("%s: got %s from %q", tc.button, ev.Name, ev.Source)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: no request published", tc.button)
		}
	}
}

func TestDispatcherPlayPauseToggles(t *testing.T) {
	d, bus, mock := newDispatcher(t)
	ctx := context.Background()
	events := bus.Subscribe(ctx, protocol.EventResumeRequested)

	if err := d.Handle(ctx, eventbus.NewEvent(protocol.EventPauseRequested, nil)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, paused := mock.Playing(); !paused {
		t.Fatal("expected paused")
	}
	d.Handle(ctx, eventbus.NewEvent(protocol.EventButtonPressed, map[string]any{"button": protocol.ButtonPlayPause}))
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("second press should request resume")
	}
}

func TestDispatcherVolumeSteps(t *testing.T) {
	d, _, mock := newDispatcher(t)
	ctx := context.Background()
	d.Handle(ctx, eventbus.NewEvent(protocol.EventVolumeUpRequested, nil))
	d.Handle(ctx, eventbus.NewEvent(protocol.EventVolumeUpRequested, nil))
	d.Handle(ctx, eventbus.NewEvent(protocol.EventVolumeDownRequested, nil))
	if v := mock.CurrentVolume(); v != 60 {
		t.Fatalf("expected 60, got %d", v)
	}
}

func TestDispatcherResolvesRemotePlayRequests(t *testing.T) {
	d, _, mock := newDispatcher(t)
	ctx := context.Background()

	ev, _ := eventbus.NewEventFrom(protocol.EventPlayRequested, protocol.PlayRequested{Query: "queen bohemian rhapsody"})
	if err := d.Handle(ctx, ev); err != nil {
		t.Fatalf("play: %v", err)
	}
	if target, _ := mock.Playing(); target != "queen.mp3" {
		t.Fatalf("expected queen.mp3, got %q", target)
	}

	ev, _ = eventbus.NewEventFrom(protocol.EventPlayRequested, protocol.PlayRequested{Query: "zzzz qqqq"})
	if err := d.Handle(ctx, ev); err == nil {
		t.Fatal("expected rejection for unmatched query")
	}
}

func TestDispatcherSkipsPipelinePlayNotifications(t *testing.T) {
	d, _, mock := newDispatcher(t)
	ev, _ := eventbus.NewEventFrom(protocol.EventPlayRequested, protocol.PlayRequested{MatchedFile: "frozen.mp3"})
	ev.Source = Source
	if err := d.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := mock.Actions(); len(got) != 0 {
		t.Fatalf("pipeline play should not be replayed, got %v", got)
	}
}
