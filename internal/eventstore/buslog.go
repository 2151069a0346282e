package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-voice/internal/eventbus"
)

// BusLog persists bus events. Events carrying a run_id are filed under that
// run's session; everything else goes to the daemon session.
type BusLog struct {
	store  *Store
	daemon string
	retain string
	mu     sync.Mutex
	known  map[string]struct{}
}

// NewBusLog creates an event log bound to a fresh daemon session.
func NewBusLog(store *Store) *BusLog {
	return &BusLog{
		store:  store,
		daemon: uuid.NewString(),
		retain: store.cfg.RetentionMode,
		known:  make(map[string]struct{}),
	}
}

// DaemonSession returns the session id used for events outside runs.
func (l *BusLog) DaemonSession() string {
	return l.daemon
}

func (l *BusLog) Append(e eventbus.Event) error {
	ctx := context.Background()
	session, kind := l.daemon, KindDaemon
	if runID := e.Text("run_id"); runID != "" {
		session, kind = runID, KindRun
	}
	if err := l.ensureSession(ctx, session, kind); err != nil {
		return err
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return l.store.AppendEvent(ctx, Event{
		SessionID: session,
		Name:      e.Name,
		Source:    e.Source,
		Payload:   payload,
		CreatedAt: e.Timestamp,
	})
}

func (l *BusLog) ensureSession(ctx context.Context, id, kind string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.known[id]; ok {
		return nil
	}
	if err := l.store.AppendSession(ctx, id, kind); err != nil {
		return err
	}
	l.known[id] = struct{}{}
	return nil
}

// Close prunes according to retention and closes the store. Session mode
// drops the whole timeline on shutdown.
func (l *BusLog) Close() error {
	ctx := context.Background()
	if l.retain == "session" && l.store.Enabled() {
		if _, err := l.store.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
			l.store.log.Warn("event store session cleanup failed", slog.String("error", err.Error()))
		}
	} else if err := l.store.Prune(ctx); err != nil {
		l.store.log.Warn("event store prune on close failed", slog.String("error", err.Error()))
	}
	return l.store.Close()
}

var _ eventbus.EventLog = (*BusLog)(nil)
