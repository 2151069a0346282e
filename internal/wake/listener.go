package wake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/eventbus"
	"github.com/loqalabs/loqa-voice/internal/protocol"
)

// Detector scores frames for the wake cue. Implementations keep rolling
// state that Reset clears.
type Detector interface {
	Score(frame []int16) (float64, error)
	Reset() error
}

// Guarded serializes access to a detector between the detection loop and
// housekeeping.
type Guarded struct {
	mu sync.Mutex
	d  Detector
}

func NewGuarded(d Detector) *Guarded {
	return &Guarded{d: d}
}

func (g *Guarded) Score(frame []int16) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.d.Score(frame)
}

func (g *Guarded) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.d.Reset()
}

// Listener runs a detector over a capture stream and feeds the gate. With a
// nil detector it only drains the stream between recordings.
type Listener struct {
	gate     *Gate
	detector *Guarded
	stream   audio.Stream
	log      *slog.Logger

	pauseMu sync.Mutex
	paused  bool
	wakeCh  chan struct{}
}

func NewListener(gate *Gate, detector *Guarded, stream audio.Stream, log *slog.Logger) *Listener {
	return &Listener{
		gate:     gate,
		detector: detector,
		stream:   stream,
		log:      log.With(slog.String("component", "wake-listener")),
	}
}

// Run reads frames until ctx is done or the stream fails.
func (l *Listener) Run(ctx context.Context) error {
	l.log.Info("wake listener started")
	defer l.log.Info("wake listener stopped")
	for {
		if err := l.waitWhilePaused(ctx); err != nil {
			return nil
		}
		frame, err := l.stream.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read detection frame: %w", err)
		}
		if l.isPaused() || l.detector == nil {
			continue
		}
		score, err := l.detector.Score(frame)
		if err != nil {
			l.log.Warn("wake detector failed", slog.String("error", err.Error()))
			continue
		}
		l.gate.OnFrame(score)
	}
}

// Pause stops scoring frames so another reader can use the stream.
func (l *Listener) Pause() {
	l.pauseMu.Lock()
	l.paused = true
	l.pauseMu.Unlock()
}

// Resume restarts detection with a clean detector state.
func (l *Listener) Resume() {
	if l.detector != nil {
		if err := l.detector.Reset(); err != nil {
			l.log.Warn("wake detector reset failed", slog.String("error", err.Error()))
		}
	}
	l.pauseMu.Lock()
	l.paused = false
	if l.wakeCh != nil {
		close(l.wakeCh)
		l.wakeCh = nil
	}
	l.pauseMu.Unlock()
}

func (l *Listener) isPaused() bool {
	l.pauseMu.Lock()
	defer l.pauseMu.Unlock()
	return l.paused
}

func (l *Listener) waitWhilePaused(ctx context.Context) error {
	l.pauseMu.Lock()
	if !l.paused {
		l.pauseMu.Unlock()
		return nil
	}
	if l.wakeCh == nil {
		l.wakeCh = make(chan struct{})
	}
	ch := l.wakeCh
	l.pauseMu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Housekeeper periodically clears detector state.
type Housekeeper struct {
	detector *Guarded
	interval time.Duration
	bus      Publisher
	log      *slog.Logger
}

func NewHousekeeper(detector *Guarded, interval time.Duration, bus Publisher, log *slog.Logger) *Housekeeper {
	return &Housekeeper{
		detector: detector,
		interval: interval,
		bus:      bus,
		log:      log.With(slog.String("component", "wake-housekeeping")),
	}
}

func (h *Housekeeper) Run(ctx context.Context) {
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.detector.Reset(); err != nil {
				h.log.Warn("detector reset failed", slog.String("error", err.Error()))
				continue
			}
			h.log.Debug("detector reset")
			if h.bus != nil {
				h.bus.Publish(eventbus.NewEvent(protocol.EventDetectorReset, nil))
			}
		}
	}
}
