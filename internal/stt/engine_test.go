package stt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/resilience"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func speech() audio.Utterance {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16((i % 50) * 100)
	}
	return audio.NewUtterance(samples, 16000)
}

func settings(maxRetries int) Settings {
	return Settings{
		Policy:           resilience.Policy{MaxRetries: maxRetries, Delay: time.Millisecond, Backoff: 2},
		LockTimeout:      time.Second,
		RebuildThreshold: 100,
		MetricsEvery:     50,
	}
}

func staticFactory(r Recognizer) (Factory, *atomic.Int32) {
	builds := &atomic.Int32{}
	return func(context.Context) (Recognizer, error) {
		builds.Add(1)
		return r, nil
	}, builds
}

func TestTranscribeSuccess(t *testing.T) {
	mock := NewMockRecognizer(MockReply{Text: "  play frozen  "})
	factory, _ := staticFactory(mock)
	e := NewEngine(settings(3), factory, newLogger())

	res := e.Transcribe(context.Background(), speech())
	if res.Text != "play frozen" || res.Attempts != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTranscribeExhaustsRetries(t *testing.T) {
	mock := NewMockRecognizer(MockReply{Err: resilience.Transient(errors.New("decoder crashed"))})
	factory, _ := staticFactory(mock)
	s := settings(3)
	var mu sync.Mutex
	var delays []time.Duration
	s.OnRetry = func(_ error, d time.Duration) {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
	}
	e := NewEngine(s, factory, newLogger())

	res := e.Transcribe(context.Background(), speech())
	if res.Text != "" {
		t.Fatalf("expected empty text, got %q", res.Text)
	}
	if mock.Calls() != 4 || res.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got calls=%d attempts=%d", mock.Calls(), res.Attempts)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(delays) != 3 {
		t.Fatalf("expected 3 retry delays, got %v", delays)
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Fatalf("delays not strictly increasing: %v", delays)
		}
	}
	if st := e.Stats(); st.Calls != 1 || st.Successes != 0 || st.Retries != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestTranscribeRecoversAfterTransient(t *testing.T) {
	mock := NewMockRecognizer(
		MockReply{Err: resilience.Transient(errors.New("io"))},
		MockReply{Text: "pause"},
	)
	factory, _ := staticFactory(mock)
	e := NewEngine(settings(3), factory, newLogger())
	res := e.Transcribe(context.Background(), speech())
	if res.Text != "pause" || res.Attempts != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestNonTransientErrorNotRetried(t *testing.T) {
	mock := NewMockRecognizer(MockReply{Err: errors.New("bad response")})
	factory, _ := staticFactory(mock)
	e := NewEngine(settings(3), factory, newLogger())
	res := e.Transcribe(context.Background(), speech())
	if res.Text != "" || mock.Calls() != 1 {
		t.Fatalf("expected single failed attempt, got %+v calls=%d", res, mock.Calls())
	}
}

func TestEmptyAudioSkipsBackend(t *testing.T) {
	builds := 0
	e := NewEngine(settings(3), func(context.Context) (Recognizer, error) {
		builds++
		return NewMockRecognizer(), nil
	}, newLogger())

	if res := e.Transcribe(context.Background(), audio.Utterance{}); res.Text != "" {
		t.Fatalf("expected empty text, got %q", res.Text)
	}
	if res := e.Transcribe(context.Background(), audio.NewUtterance(make([]int16, 1600), 16000)); res.Text != "" {
		t.Fatalf("expected empty text for silence, got %q", res.Text)
	}
	if builds != 0 {
		t.Fatalf("backend should not be touched, built %d times", builds)
	}
}

func TestRebuildAfterConsecutiveFailures(t *testing.T) {
	var mu sync.Mutex
	var built []*MockRecognizer
	factory := func(context.Context) (Recognizer, error) {
		mu.Lock()
		defer mu.Unlock()
		var m *MockRecognizer
		if len(built) == 0 {
			m = NewMockRecognizer(MockReply{Err: resilience.Transient(errors.New("wedged"))})
		} else {
			m = NewMockRecognizer(MockReply{Text: "next track"})
		}
		built = append(built, m)
		return m, nil
	}
	s := settings(1)
	s.RebuildThreshold = 5
	e := NewEngine(s, factory, newLogger())

	// two failing calls of two attempts each push failures to 4
	for i := 0; i < 2; i++ {
		if res := e.Transcribe(context.Background(), speech()); res.Text != "" {
			t.Fatalf("call %d: expected failure, got %q", i, res.Text)
		}
	}
	res := e.Transcribe(context.Background(), speech())
	if res.Text != "next track" {
		t.Fatalf("expected rebuilt recognizer to answer, got %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(built) != 2 {
		t.Fatalf("expected exactly one rebuild, got %d builds", len(built))
	}
	if !built[0].Closed() {
		t.Fatal("old recognizer not closed on rebuild")
	}
	if st := e.Stats(); st.Rebuilds != 1 || st.ConsecutiveFailures != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestRebuildAtMostOncePerCall(t *testing.T) {
	builds := &atomic.Int32{}
	factory := func(context.Context) (Recognizer, error) {
		builds.Add(1)
		return NewMockRecognizer(MockReply{Err: resilience.Transient(errors.New("still broken"))}), nil
	}
	s := settings(5)
	s.RebuildThreshold = 1
	e := NewEngine(s, factory, newLogger())
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.Transcribe(context.Background(), speech())
	// initial build + one rebuild
	if got := builds.Load(); got != 2 {
		t.Fatalf("expected 2 builds, got %d", got)
	}
}

type blockingRecognizer struct {
	release chan struct{}
}

func (b *blockingRecognizer) Transcribe(ctx context.Context, _ audio.Utterance) (string, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return "done", nil
}

func (b *blockingRecognizer) Close() error { return nil }

func TestLockTimeoutIsNotRetried(t *testing.T) {
	blocker := &blockingRecognizer{release: make(chan struct{})}
	factory, _ := staticFactory(blocker)
	s := settings(3)
	s.LockTimeout = 20 * time.Millisecond
	e := NewEngine(s, factory, newLogger())

	first := make(chan TranscriptResult, 1)
	go func() { first <- e.Transcribe(context.Background(), speech()) }()
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	res := e.Transcribe(context.Background(), speech())
	if res.Text != "" || res.Attempts != 1 {
		t.Fatalf("expected one timed out attempt, got %+v", res)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("lock timeout was retried")
	}
	if e.Stats().ConsecutiveFailures != 1 {
		t.Fatalf("lock timeout should count toward rebuild")
	}
	close(blocker.release)
	if got := <-first; got.Text != "done" {
		t.Fatalf("first call expected done, got %+v", got)
	}
}

func TestFactoryFor(t *testing.T) {
	f, err := FactoryFor(config.STTConfig{Mode: "mock"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	r, err := f(context.Background())
	if err != nil || r == nil {
		t.Fatalf("build mock: %v", err)
	}
	if _, err := FactoryFor(config.STTConfig{Mode: "cloud"}); err == nil {
		t.Fatal("expected unsupported mode error")
	}
}

type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

// metrics returns the attributes of every "stt metrics" record.
func (h *captureHandler) metrics() []map[string]slog.Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []map[string]slog.Value
	for _, r := range h.records {
		if r.Message != "stt metrics" {
			continue
		}
		attrs := make(map[string]slog.Value)
		r.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value
			return true
		})
		out = append(out, attrs)
	}
	return out
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func TestPeriodicMetricsWindow(t *testing.T) {
	mock := NewMockRecognizer(
		MockReply{Text: "one"},
		MockReply{Err: resilience.Transient(errors.New("io"))},
		MockReply{Text: "two"},
		MockReply{Err: errors.New("bad response")},
		MockReply{Text: "three"},
	)
	factory, _ := staticFactory(mock)
	s := settings(1)
	s.MetricsEvery = 3
	h := &captureHandler{}
	e := NewEngine(s, factory, slog.New(h))

	ctx := context.Background()
	e.Transcribe(ctx, speech()) // success, no retry
	e.Transcribe(ctx, speech()) // success after one retry
	if got := len(h.metrics()); got != 0 {
		t.Fatalf("expected no metrics before the window fills, got %d", got)
	}
	e.Transcribe(ctx, speech()) // permanent failure

	recs := h.metrics()
	if len(recs) != 1 {
		t.Fatalf("expected one metrics record after 3 calls, got %d", len(recs))
	}
	if got := recs[0]["calls"].Uint64(); got != 3 {
		t.Fatalf("expected calls=3, got %d", got)
	}
	if got := recs[0]["success_rate"].Float64(); !near(got, 2.0/3.0) {
		t.Fatalf("expected success_rate 2/3, got %v", got)
	}
	if got := recs[0]["avg_retries"].Float64(); !near(got, 1.0/3.0) {
		t.Fatalf("expected avg_retries 1/3, got %v", got)
	}

	for i := 0; i < 3; i++ {
		e.Transcribe(ctx, speech())
	}
	recs = h.metrics()
	if len(recs) != 2 {
		t.Fatalf("expected a second metrics record after 6 calls, got %d", len(recs))
	}
	if got := recs[1]["success_rate"].Float64(); !near(got, 1) {
		t.Fatalf("window did not reset: success_rate %v", got)
	}
	if got := recs[1]["avg_retries"].Float64(); !near(got, 0) {
		t.Fatalf("window did not reset: avg_retries %v", got)
	}

	st := e.Stats()
	if st.Calls != 6 || st.Successes != 5 || st.Retries != 1 {
		t.Fatalf("unexpected cumulative stats %+v", st)
	}
}
