package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/resilience"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ErrLockTimeout is returned when the recognizer stays busy past the lock
// timeout. It ends the call without further retries.
var ErrLockTimeout = errors.New("stt: recognizer lock timeout")

type Settings struct {
	Policy           resilience.Policy
	LockTimeout      time.Duration
	CallTimeout      time.Duration
	RebuildThreshold int
	MetricsEvery     int
	// OnRetry observes every scheduled retry.
	OnRetry func(err error, delay time.Duration)
}

func SettingsFrom(cfg config.STTConfig) Settings {
	return Settings{
		Policy: resilience.Policy{
			MaxRetries: cfg.MaxRetries,
			Delay:      config.Seconds(cfg.RetryDelaySeconds),
			Backoff:    cfg.RetryBackoff,
		},
		LockTimeout:      config.Seconds(cfg.LockTimeoutSeconds),
		CallTimeout:      config.Seconds(cfg.CallTimeoutSeconds),
		RebuildThreshold: cfg.RebuildThreshold,
		MetricsEvery:     cfg.MetricsEvery,
	}
}

// Stats summarises engine health.
type Stats struct {
	Calls               uint64  `json:"calls"`
	Successes           uint64  `json:"successes"`
	Retries             uint64  `json:"retries"`
	Rebuilds            uint64  `json:"rebuilds"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	SuccessRate         float64 `json:"success_rate"`
	AvgRetries          float64 `json:"avg_retries"`
}

// Engine owns a single recognizer and turns utterances into text. It never
// returns an error: exhausted retries yield empty text.
type Engine struct {
	settings Settings
	factory  Factory
	log      *slog.Logger

	// sem guards recognizer; acquired with a timeout.
	sem        chan struct{}
	recognizer Recognizer

	mu                  sync.Mutex
	consecutiveFailures int
	stats               Stats
	window              struct{ calls, successes, retries uint64 }

	callCounter    metric.Int64Counter
	failureCounter metric.Int64Counter
	retryCounter   metric.Int64Counter
	rebuildCounter metric.Int64Counter
}

func NewEngine(settings Settings, factory Factory, log *slog.Logger) *Engine {
	if settings.MetricsEvery <= 0 {
		settings.MetricsEvery = 50
	}
	if settings.RebuildThreshold <= 0 {
		settings.RebuildThreshold = 5
	}
	e := &Engine{
		settings: settings,
		factory:  factory,
		log:      log.With(slog.String("component", "stt")),
		sem:      make(chan struct{}, 1),
	}
	meter := otel.Meter("github.com/loqalabs/loqa-voice/internal/stt")
	e.callCounter, _ = meter.Int64Counter("loqa_stt_calls_total", metric.WithDescription("Transcription calls"))
	e.failureCounter, _ = meter.Int64Counter("loqa_stt_failures_total", metric.WithDescription("Transcription calls that returned no text after retries"))
	e.retryCounter, _ = meter.Int64Counter("loqa_stt_retries_total", metric.WithDescription("Recognizer retries"))
	e.rebuildCounter, _ = meter.Int64Counter("loqa_stt_rebuilds_total", metric.WithDescription("Recognizer rebuilds"))
	return e
}

// Start builds the recognizer eagerly so configuration errors surface at boot.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()
	if e.recognizer != nil {
		return nil
	}
	r, err := e.factory(ctx)
	if err != nil {
		return fmt.Errorf("build recognizer: %w", err)
	}
	e.recognizer = r
	return nil
}

// Transcribe converts an utterance into text.
func (e *Engine) Transcribe(ctx context.Context, utt audio.Utterance) TranscriptResult {
	if utt.Empty() || silent(utt.Samples) {
		return TranscriptResult{}
	}

	rebuilt := false
	text, attempts, err := resilience.Do(ctx, e.settings.Policy, func(ctx context.Context, attempt int) (string, error) {
		if err := e.acquire(ctx); err != nil {
			e.recordFailure()
			return "", err
		}
		defer e.release()

		if !rebuilt && e.failures() >= e.settings.RebuildThreshold {
			rebuilt = true
			e.rebuildLocked(ctx)
		}
		if e.recognizer == nil {
			r, err := e.factory(ctx)
			if err != nil {
				e.recordFailure()
				return "", resilience.Transient(fmt.Errorf("build recognizer: %w", err))
			}
			e.recognizer = r
		}

		callCtx := ctx
		if e.settings.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.settings.CallTimeout)
			defer cancel()
		}
		text, err := e.recognizer.Transcribe(callCtx, utt)
		if err != nil {
			e.recordFailure()
			return "", err
		}
		e.recordSuccess()
		return text, nil
	}, func(err error, delay time.Duration) {
		e.log.Warn("transcription attempt failed, retrying",
			slogError(err),
			slog.Duration("delay", delay))
		if e.settings.OnRetry != nil {
			e.settings.OnRetry(err, delay)
		}
	})

	ok := err == nil
	e.observe(ctx, ok, attempts)
	if !ok {
		e.log.Error("transcription failed",
			slogError(err),
			slog.Int("attempts", attempts))
		return TranscriptResult{Attempts: attempts}
	}
	return TranscriptResult{Text: strings.TrimSpace(text), Attempts: attempts}
}

func (e *Engine) acquire(ctx context.Context) error {
	timer := time.NewTimer(e.settings.LockTimeout)
	defer timer.Stop()
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	<-e.sem
}

// rebuildLocked tears down and reconstructs the recognizer. Caller holds sem.
func (e *Engine) rebuildLocked(ctx context.Context) {
	e.log.Warn("rebuilding recognizer", slog.Int("consecutive_failures", e.failures()))
	if e.recognizer != nil {
		if err := e.recognizer.Close(); err != nil {
			e.log.Warn("recognizer close failed", slogError(err))
		}
		e.recognizer = nil
	}
	r, err := e.factory(ctx)
	if err != nil {
		e.log.Error("recognizer rebuild failed", slogError(err))
		return
	}
	e.recognizer = r
	e.mu.Lock()
	e.consecutiveFailures = 0
	e.stats.Rebuilds++
	e.mu.Unlock()
	e.rebuildCounter.Add(ctx, 1)
}

func (e *Engine) failures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutiveFailures
}

func (e *Engine) recordFailure() {
	e.mu.Lock()
	e.consecutiveFailures++
	e.mu.Unlock()
}

func (e *Engine) recordSuccess() {
	e.mu.Lock()
	e.consecutiveFailures = 0
	e.mu.Unlock()
}

func (e *Engine) observe(ctx context.Context, ok bool, attempts int) {
	retries := uint64(0)
	if attempts > 1 {
		retries = uint64(attempts - 1)
	}
	e.callCounter.Add(ctx, 1)
	if retries > 0 {
		e.retryCounter.Add(ctx, int64(retries))
	}
	if !ok {
		e.failureCounter.Add(ctx, 1)
	}

	e.mu.Lock()
	e.stats.Calls++
	e.stats.Retries += retries
	e.window.calls++
	e.window.retries += retries
	if ok {
		e.stats.Successes++
		e.window.successes++
	}
	flush := e.window.calls >= uint64(e.settings.MetricsEvery)
	var calls, successes, windowRetries uint64
	if flush {
		calls, successes, windowRetries = e.window.calls, e.window.successes, e.window.retries
		e.window.calls, e.window.successes, e.window.retries = 0, 0, 0
	}
	e.mu.Unlock()

	if flush {
		e.log.Info("stt metrics",
			slog.Uint64("calls", calls),
			slog.Float64("success_rate", float64(successes)/float64(calls)),
			slog.Float64("avg_retries", float64(windowRetries)/float64(calls)))
	}
}

// Stats returns cumulative counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.stats
	st.ConsecutiveFailures = e.consecutiveFailures
	if st.Calls > 0 {
		st.SuccessRate = float64(st.Successes) / float64(st.Calls)
		st.AvgRetries = float64(st.Retries) / float64(st.Calls)
	}
	return st
}

// Healthy reports whether a recognizer is currently built.
func (e *Engine) Healthy() bool {
	select {
	case e.sem <- struct{}{}:
		ok := e.recognizer != nil
		<-e.sem
		return ok
	default:
		// busy transcribing
		return true
	}
}

// Close releases the recognizer.
func (e *Engine) Close() error {
	if err := e.acquire(context.Background()); err != nil {
		return err
	}
	defer e.release()
	if e.recognizer == nil {
		return nil
	}
	err := e.recognizer.Close()
	e.recognizer = nil
	return err
}

func silent(samples []int16) bool {
	for _, s := range samples {
		if s != 0 {
			return false
		}
	}
	return true
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
