package eventstore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/eventbus"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if es.Enabled() {
		t.Fatal("ephemeral store must not be enabled")
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	sessionID := "run-123"
	if err := es.AppendSession(context.Background(), sessionID, KindRun); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{SessionID: sessionID, Name: "recording_started", Payload: []byte("hello")}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := es.ListSessionEvents(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if string(events[0].Payload) != "hello" || events[0].Name != "recording_started" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(context.Background(), "old-run", KindRun); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{SessionID: "old-run", Name: "note"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(context.Background(), "new-run", KindRun); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(context.Background(), "old-run", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
}

func TestBusLogFilesEventsByRun(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	log := NewBusLog(es)

	bus := eventbus.New(eventbus.Options{MaxQueue: 16, Log: log, Logger: newLogger()})
	bus.Emit("wake_triggered", map[string]any{"confidence": 0.9})
	bus.Emit("recording_started", map[string]any{"run_id": "run-1"})
	bus.Emit("recording_finished", map[string]any{"run_id": "run-1", "duration": 1.5})

	// reopen through a second handle after the bus flushes and closes the log
	if err := bus.Close(); err != nil {
		t.Fatalf("close bus: %v", err)
	}
	es2, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = es2.Close() })

	runEvents, err := es2.ListSessionEvents(context.Background(), "run-1", 10)
	if err != nil {
		t.Fatalf("list run events: %v", err)
	}
	if len(runEvents) != 2 {
		t.Fatalf("expected 2 run events, got %d", len(runEvents))
	}
	var payload map[string]any
	if err := json.Unmarshal(runEvents[1].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["duration"] != 1.5 {
		t.Fatalf("unexpected payload %v", payload)
	}

	daemonEvents, err := es2.ListSessionEvents(context.Background(), log.DaemonSession(), 10)
	if err != nil {
		t.Fatalf("list daemon events: %v", err)
	}
	if len(daemonEvents) != 1 || daemonEvents[0].Name != "wake_triggered" {
		t.Fatalf("unexpected daemon events %+v", daemonEvents)
	}

	wakes, err := es2.ListByName(context.Background(), "wake_triggered", 5)
	if err != nil {
		t.Fatalf("list by name: %v", err)
	}
	if len(wakes) != 1 {
		t.Fatalf("expected 1 wake event, got %d", len(wakes))
	}
}
