package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Wildcard subscribes to every event name.
const Wildcard = "*"

// DropPolicy decides what happens when a subscriber queue is full.
type DropPolicy string

const (
	DropNew    DropPolicy = "drop_new"
	DropOldest DropPolicy = "drop_oldest"
)

func ParseDropPolicy(s string) (DropPolicy, error) {
	switch DropPolicy(s) {
	case DropNew, DropOldest:
		return DropPolicy(s), nil
	case "":
		return DropNew, nil
	}
	return "", fmt.Errorf("unknown drop policy %q", s)
}

// EventLog receives every published event exactly once.
type EventLog interface {
	Append(Event) error
	Close() error
}

type Options struct {
	MaxQueue int
	Policy   DropPolicy
	Log      EventLog
	Logger   *slog.Logger
}

// SubscriberStats describes one live subscription.
type SubscriberStats struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Depth     int    `json:"depth"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

type Stats struct {
	Published   uint64            `json:"published"`
	Dropped     uint64            `json:"dropped"`
	Subscribers []SubscriberStats `json:"subscribers"`
}

// Bus is an in-process publish/subscribe hub. Publish never blocks; each
// subscriber owns a bounded FIFO governed by the drop policy.
type Bus struct {
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscriber
	nextID uint64
	closed bool
	done   chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
	warn      rate.Sometimes

	logWG sync.WaitGroup
}

type subscriber struct {
	id   uint64
	name string

	mu     sync.Mutex
	ch     chan Event
	closed bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func New(opts Options) *Bus {
	if opts.MaxQueue <= 0 {
		opts.MaxQueue = 1000
	}
	if opts.Policy == "" {
		opts.Policy = DropNew
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		opts: opts,
		log:  logger.With(slog.String("component", "eventbus")),
		subs: make(map[string]map[uint64]*subscriber),
		done: make(chan struct{}),
		warn: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	if opts.Log != nil {
		b.startLogWriter()
	}
	return b
}

// Publish delivers e to every subscriber of its name and of the wildcard.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	targets := make([]*subscriber, 0, len(b.subs[e.Name])+len(b.subs[Wildcard]))
	for _, s := range b.subs[e.Name] {
		targets = append(targets, s)
	}
	if e.Name != Wildcard {
		for _, s := range b.subs[Wildcard] {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	b.published.Add(1)
	for _, s := range targets {
		b.deliver(s, e)
	}
}

// Emit is shorthand for Publish(NewEvent(name, payload)).
func (b *Bus) Emit(name string, payload map[string]any) {
	b.Publish(NewEvent(name, payload))
}

func (b *Bus) deliver(s *subscriber, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
		s.delivered.Add(1)
		return
	default:
	}

	if b.opts.Policy == DropOldest {
		select {
		case <-s.ch:
		default:
		}
		b.recordDrop(s, e.Name)
		select {
		case s.ch <- e:
			s.delivered.Add(1)
		default:
			b.recordDrop(s, e.Name)
		}
		return
	}
	b.recordDrop(s, e.Name)
}

func (b *Bus) recordDrop(s *subscriber, event string) {
	s.dropped.Add(1)
	b.dropped.Add(1)
	b.warn.Do(func() {
		b.log.Warn("subscriber queue full",
			slog.String("subscription", s.name),
			slog.String("event", event),
			slog.String("policy", string(b.opts.Policy)),
			slog.Uint64("dropped_total", b.dropped.Load()))
	})
}

// Subscribe returns a channel of events named name (or every event for
// Wildcard). The channel is closed when ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, name string) <-chan Event {
	s := &subscriber{
		name: name,
		ch:   make(chan Event, b.opts.MaxQueue),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch
	}
	b.nextID++
	s.id = b.nextID
	if b.subs[name] == nil {
		b.subs[name] = make(map[uint64]*subscriber)
	}
	b.subs[name][s.id] = s
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.remove(s)
	}()
	return s.ch
}

func (b *Bus) remove(s *subscriber) {
	b.mu.Lock()
	if set := b.subs[s.name]; set != nil {
		delete(set, s.id)
		if len(set) == 0 {
			delete(b.subs, s.name)
		}
	}
	b.mu.Unlock()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Stats{
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
	}
	for _, set := range b.subs {
		for _, s := range set {
			st.Subscribers = append(st.Subscribers, SubscriberStats{
				ID:        s.id,
				Name:      s.name,
				Depth:     len(s.ch),
				Delivered: s.delivered.Load(),
				Dropped:   s.dropped.Load(),
			})
		}
	}
	return st
}

func (b *Bus) startLogWriter() {
	ch := make(chan Event, b.opts.MaxQueue)
	s := &subscriber{name: Wildcard, ch: ch}
	b.nextID++
	s.id = b.nextID
	b.subs[Wildcard] = map[uint64]*subscriber{s.id: s}

	b.logWG.Add(1)
	go func() {
		defer b.logWG.Done()
		for e := range ch {
			if err := b.opts.Log.Append(e); err != nil {
				b.log.Warn("event log append failed",
					slog.String("event", e.Name),
					slog.String("error", err.Error()))
			}
		}
	}()
	go func() {
		<-b.done
		b.remove(s)
	}()
}

// Close stops delivery, closes every subscription and flushes the event log.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.logWG.Wait()
	if b.opts.Log != nil {
		return b.opts.Log.Close()
	}
	return nil
}
