package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/loqalabs/loqa-voice/internal/eventbus"
	"github.com/loqalabs/loqa-voice/internal/protocol"
	"github.com/nats-io/nats.go"
)

// SourceRemote marks events injected from NATS.
const SourceRemote = "nats"

// LocalBus is the in-process bus being bridged.
type LocalBus interface {
	Publish(eventbus.Event)
	Subscribe(ctx context.Context, name string) <-chan eventbus.Event
}

// WakeScorer receives remote wake detector scores.
type WakeScorer interface {
	OnFrame(confidence float64) bool
}

// Bridge mirrors every local event to <prefix>.event.<name> and republishes
// messages from <prefix>.input.<name> locally. When a wake scorer is set it
// also feeds scores from <prefix>.wake.score into it.
type Bridge struct {
	conn   *nats.Conn
	local  LocalBus
	prefix string
	wake   WakeScorer
	log    *slog.Logger

	mirrored atomic.Uint64
	injected atomic.Uint64
}

func NewBridge(conn *nats.Conn, local LocalBus, prefix string, wake WakeScorer, log *slog.Logger) *Bridge {
	return &Bridge{
		conn:   conn,
		local:  local,
		prefix: prefix,
		wake:   wake,
		log:    log.With(slog.String("component", "nats-bridge")),
	}
}

// Subject joins parts under the bridge prefix.
func (b *Bridge) Subject(parts ...string) string {
	return strings.Join(append([]string{b.prefix}, parts...), ".")
}

// Run bridges until ctx ends.
func (b *Bridge) Run(ctx context.Context) error {
	events := b.local.Subscribe(ctx, eventbus.Wildcard)

	input, err := b.conn.Subscribe(b.Subject(protocol.SubjectInputPrefix, ">"), b.handleInput)
	if err != nil {
		return fmt.Errorf("subscribe inputs: %w", err)
	}
	defer func() { _ = input.Unsubscribe() }()

	if b.wake != nil {
		scores, err := b.conn.Subscribe(b.Subject(protocol.SubjectWakeScore), b.handleWakeScore)
		if err != nil {
			return fmt.Errorf("subscribe wake scores: %w", err)
		}
		defer func() { _ = scores.Unsubscribe() }()
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	b.log.Info("bridge started", slog.String("prefix", b.prefix))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.mirror(ev)
		}
	}
}

func (b *Bridge) mirror(ev eventbus.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.log.Warn("failed to encode event", slog.String("event", ev.Name), slog.String("error", err.Error()))
		return
	}
	if err := b.conn.Publish(b.Subject(protocol.SubjectEventPrefix, ev.Name), data); err != nil {
		b.log.Warn("failed to mirror event", slog.String("event", ev.Name), slog.String("error", err.Error()))
		return
	}
	b.mirrored.Add(1)
}

func (b *Bridge) handleInput(msg *nats.Msg) {
	name := strings.TrimPrefix(msg.Subject, b.Subject(protocol.SubjectInputPrefix)+".")
	if name == "" || strings.Contains(name, ".") {
		b.log.Warn("ignoring input on unexpected subject", slog.String("subject", msg.Subject))
		return
	}
	var payload map[string]any
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			b.log.Warn("ignoring malformed input", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
			return
		}
	}
	ev := eventbus.NewEvent(name, payload)
	ev.Source = SourceRemote
	b.local.Publish(ev)
	b.injected.Add(1)
}

func (b *Bridge) handleWakeScore(msg *nats.Msg) {
	score, err := ParseScore(msg.Data)
	if err != nil {
		b.log.Warn("ignoring wake score", slog.String("error", err.Error()))
		return
	}
	b.wake.OnFrame(score)
}

// ParseScore accepts a bare JSON number or {"confidence": n}.
func ParseScore(data []byte) (float64, error) {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		return v, nil
	}
	var obj struct {
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &obj); err != nil || obj.Confidence == nil {
		return 0, fmt.Errorf("malformed wake score %q", data)
	}
	return *obj.Confidence, nil
}

// Counts reports mirrored and injected message totals.
func (b *Bridge) Counts() (mirrored, injected uint64) {
	return b.mirrored.Load(), b.injected.Load()
}
