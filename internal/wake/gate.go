package wake

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-voice/internal/eventbus"
	"github.com/loqalabs/loqa-voice/internal/protocol"
)

// DetectionEvent is one detector score for one audio frame.
type DetectionEvent struct {
	Confidence float64
	Timestamp  time.Time
}

// Publisher is the slice of the event bus the gate needs.
type Publisher interface {
	Publish(eventbus.Event)
}

// Gate turns detector scores into wake triggers. A frame triggers iff its
// confidence reaches the threshold and the cooldown since the previous
// accepted trigger has elapsed. Rejected frames are dropped.
type Gate struct {
	threshold float64
	cooldown  time.Duration
	bus       Publisher
	log       *slog.Logger
	clock     func() time.Time

	mu       sync.Mutex
	last     time.Time
	hasFired bool

	accepted atomic.Uint64
	cooled   atomic.Uint64
}

func NewGate(threshold float64, cooldown time.Duration, bus Publisher, log *slog.Logger) *Gate {
	return &Gate{
		threshold: threshold,
		cooldown:  cooldown,
		bus:       bus,
		log:       log.With(slog.String("component", "wake")),
		clock:     time.Now,
	}
}

// OnFrame evaluates a confidence observed now.
func (g *Gate) OnFrame(confidence float64) bool {
	return g.OnDetection(DetectionEvent{Confidence: confidence, Timestamp: g.clock()})
}

// OnDetection evaluates a timestamped detector score.
func (g *Gate) OnDetection(ev DetectionEvent) bool {
	if ev.Confidence < g.threshold {
		return false
	}
	g.mu.Lock()
	if g.hasFired && ev.Timestamp.Sub(g.last) < g.cooldown {
		g.mu.Unlock()
		g.cooled.Add(1)
		return false
	}
	g.last = ev.Timestamp
	g.hasFired = true
	g.mu.Unlock()

	g.accepted.Add(1)
	g.log.Info("wake triggered", slog.Float64("confidence", ev.Confidence))
	if g.bus != nil {
		g.bus.Publish(eventbus.Event{
			Name:      protocol.EventWakeTriggered,
			Payload:   map[string]any{"confidence": ev.Confidence},
			Source:    "wake",
			Timestamp: ev.Timestamp,
		})
	}
	return true
}

// Counts returns accepted triggers and triggers suppressed by the cooldown.
func (g *Gate) Counts() (accepted, suppressed uint64) {
	return g.accepted.Load(), g.cooled.Load()
}
