package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/bus"
	"github.com/loqalabs/loqa-voice/internal/catalog"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/eventbus"
	"github.com/loqalabs/loqa-voice/internal/eventstore"
	"github.com/loqalabs/loqa-voice/internal/intent"
	"github.com/loqalabs/loqa-voice/internal/match"
	"github.com/loqalabs/loqa-voice/internal/natsserver"
	"github.com/loqalabs/loqa-voice/internal/pipeline"
	"github.com/loqalabs/loqa-voice/internal/playback"
	"github.com/loqalabs/loqa-voice/internal/recorder"
	"github.com/loqalabs/loqa-voice/internal/stt"
	"github.com/loqalabs/loqa-voice/internal/tts"
	"github.com/loqalabs/loqa-voice/internal/wake"
)

type Runtime struct {
	cfg         config.Config
	version     string
	logger      *slog.Logger
	httpServer  *http.Server
	metrics     *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
	started     time.Time

	events     *eventbus.Bus
	eventLog   eventbus.EventLog
	embedded   *natsserver.EmbeddedServer
	nats       *bus.Client
	bridge     *bus.Bridge
	stream     audio.Stream
	engine     *stt.Engine
	gate       *wake.Gate
	detector   *wake.ExecDetector
	listener   *wake.Listener
	keeper     *wake.Housekeeper
	controller *pipeline.Controller
	dispatcher *pipeline.Dispatcher
	catalog    *catalog.Catalog
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

// Start builds every component, serves HTTP and blocks until ctx ends.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.started = time.Now()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.build(ctx); err != nil {
		cancel()
		r.teardown()
		r.closeTelemetry()
		return err
	}
	r.run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/status", r.handleStatus)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if bind := r.cfg.Telemetry.PrometheusBind; bind != "" && metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metrics = &http.Server{Addr: bind, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
		r.serve(r.metrics, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("version", r.version),
		slog.Int("songs", r.catalog.Len()),
		slog.String("wake_source", r.cfg.Wake.Source))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{r.httpServer, r.metrics} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()
	r.teardown()
	r.closeTelemetry()
	return nil
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("server", name), slog.String("error", err.Error()))
		}
	}()
}

// build wires the component graph. Partially built state is released by
// teardown.
func (r *Runtime) build(ctx context.Context) error {
	cfg := r.cfg
	log := r.logger

	store, err := eventstore.Open(ctx, cfg.EventStore, log)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	logs := eventbus.MultiLog{eventstore.NewBusLog(store)}
	if cfg.EventBus.LogPath != "" {
		fl, err := eventbus.OpenFileLog(cfg.EventBus.LogPath)
		if err != nil {
			_ = logs.Close()
			return fmt.Errorf("open event log: %w", err)
		}
		logs = append(logs, fl)
	}
	r.eventLog = logs

	policy, err := eventbus.ParseDropPolicy(cfg.EventBus.DropPolicy)
	if err != nil {
		return err
	}
	r.events = eventbus.New(eventbus.Options{
		MaxQueue: cfg.EventBus.MaxQueue,
		Policy:   policy,
		Log:      r.eventLog,
		Logger:   log,
	})

	if r.catalog, err = catalog.Load(cfg.Catalog, log); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	defs, err := intent.LoadOrDefault(cfg.Catalog.IntentsFile)
	if err != nil {
		return fmt.Errorf("load intents: %w", err)
	}
	matchSettings := match.SettingsFrom(cfg.Matcher)
	matcher := match.New(matchSettings, r.catalog.Candidates())
	classifier := intent.NewClassifier(defs, matchSettings)

	factory, err := stt.FactoryFor(cfg.STT)
	if err != nil {
		return err
	}
	r.engine = stt.NewEngine(stt.SettingsFrom(cfg.STT), factory, log)
	if err := r.engine.Start(ctx); err != nil {
		return err
	}

	backend, err := playback.New(cfg.Playback, log)
	if err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	speaker, err := tts.New(cfg.TTS, log)
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}

	src, err := audio.Open(ctx, cfg.Audio, log)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	r.stream = audio.NewShared(src)

	r.gate = wake.NewGate(cfg.Wake.Threshold, config.Seconds(cfg.Wake.CooldownSeconds), r.events, log)
	var guarded *wake.Guarded
	if cfg.Wake.Source == "exec" {
		if r.detector, err = wake.NewExecDetector(cfg.Wake.Command, config.Seconds(cfg.Wake.ScoreTimeoutSeconds)); err != nil {
			return fmt.Errorf("wake detector: %w", err)
		}
		guarded = wake.NewGuarded(r.detector)
		r.keeper = wake.NewHousekeeper(guarded, config.Seconds(cfg.Wake.ResetIntervalSeconds), r.events, log)
	}
	r.listener = wake.NewListener(r.gate, guarded, r.stream, log)

	if cfg.Bus.Enabled {
		if err := r.connectBus(ctx); err != nil {
			return err
		}
	}

	rec := recorder.New(recorder.SettingsFrom(cfg.VAD), func() audio.VAD { return audio.NewEnergyVAD() }, log)
	r.controller = pipeline.New(pipeline.SettingsFrom(cfg), pipeline.Deps{
		Bus:      r.events,
		Stream:   r.stream,
		Recorder: rec,
		STT:      r.engine,
		Intents:  classifier,
		Catalog:  r.catalog,
		Matcher:  matcher,
		Player:   backend,
		Mixer:    backend,
		Ducker:   playback.NewDucker(backend, cfg.Playback.VolumeDuckLevel, log),
		Speaker:  speaker,
		Listener: r.listener,
	}, log)
	r.dispatcher = pipeline.NewDispatcher(r.events, backend, backend, r.catalog, matcher, cfg.Playback.VolumeStep, log)
	return nil
}

func (r *Runtime) connectBus(ctx context.Context) error {
	cfg := r.cfg.Bus
	embedded, err := natsserver.Start(cfg, r.logger)
	if err != nil {
		return err
	}
	r.embedded = embedded
	if embedded != nil {
		cfg.Servers = []string{embedded.ClientURL()}
	}
	if r.nats, err = bus.Connect(ctx, cfg, r.cfg.RuntimeName, r.logger); err != nil {
		return err
	}
	if cfg.EventStream != "" {
		subject := cfg.SubjectPrefix + ".event.>"
		maxAge := time.Duration(cfg.EventStreamMaxHours) * time.Hour
		if err := r.nats.EnsureStream(cfg.EventStream, []string{subject}, maxAge); err != nil {
			return err
		}
	}
	var scorer bus.WakeScorer
	if r.cfg.Wake.Source == "nats" {
		scorer = r.gate
	}
	r.bridge = bus.NewBridge(r.nats.Conn(), r.events, cfg.SubjectPrefix, scorer, r.logger)
	return nil
}

// run starts the long-lived loops. They all stop when ctx ends.
func (r *Runtime) run(ctx context.Context) {
	r.goRun("pipeline", func() error { return r.controller.Run(ctx) })
	r.goRun("dispatcher", func() error { return r.dispatcher.Run(ctx) })
	r.goRun("wake-listener", func() error { return r.listener.Run(ctx) })
	if r.keeper != nil {
		r.goRun("wake-housekeeping", func() error { r.keeper.Run(ctx); return nil })
	}
	if r.bridge != nil {
		r.goRun("nats-bridge", func() error { return r.bridge.Run(ctx) })
	}
}

func (r *Runtime) goRun(name string, fn func() error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := fn(); err != nil {
			r.logger.Error("component stopped", slog.String("component", name), slog.String("error", err.Error()))
		}
	}()
}

func (r *Runtime) teardown() {
	if r.detector != nil {
		if err := r.detector.Close(); err != nil {
			r.logger.Warn("wake detector close failed", slog.String("error", err.Error()))
		}
	}
	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			r.logger.Warn("capture close failed", slog.String("error", err.Error()))
		}
	}
	if r.engine != nil {
		if err := r.engine.Close(); err != nil {
			r.logger.Warn("recognizer close failed", slog.String("error", err.Error()))
		}
	}
	r.nats.Close()
	r.embedded.Shutdown()
	if r.events != nil {
		if err := r.events.Close(); err != nil {
			r.logger.Warn("event bus close failed", slog.String("error", err.Error()))
		}
	} else if r.eventLog != nil {
		_ = r.eventLog.Close()
	}
}

func (r *Runtime) closeTelemetry() {
	if r.tracerClose == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tracerClose(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.engine.Healthy() && (r.nats == nil || r.nats.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

type status struct {
	Name     string         `json:"name"`
	Version  string         `json:"version"`
	Uptime   string         `json:"uptime"`
	Songs    int            `json:"songs"`
	Pipeline pipeline.Stats `json:"pipeline"`
	STT      stt.Stats      `json:"stt"`
	EventBus eventbus.Stats `json:"event_bus"`
	Wake     wakeStatus     `json:"wake"`
	Bridge   *bridgeStatus  `json:"bridge,omitempty"`
}

type wakeStatus struct {
	Source     string `json:"source"`
	Accepted   uint64 `json:"accepted"`
	Suppressed uint64 `json:"suppressed"`
}

type bridgeStatus struct {
	Connected bool   `json:"connected"`
	Mirrored  uint64 `json:"mirrored"`
	Injected  uint64 `json:"injected"`
}

func (r *Runtime) handleStatus(w http.ResponseWriter, _ *http.Request) {
	accepted, suppressed := r.gate.Counts()
	st := status{
		Name:     r.cfg.RuntimeName,
		Version:  r.version,
		Uptime:   time.Since(r.started).Round(time.Second).String(),
		Songs:    r.catalog.Len(),
		Pipeline: r.controller.Stats(),
		STT:      r.engine.Stats(),
		EventBus: r.events.Stats(),
		Wake:     wakeStatus{Source: r.cfg.Wake.Source, Accepted: accepted, Suppressed: suppressed},
	}
	if r.bridge != nil {
		mirrored, injected := r.bridge.Counts()
		st.Bridge = &bridgeStatus{Connected: r.nats.Healthy(), Mirrored: mirrored, Injected: injected}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		r.logger.Warn("status encode failed", slog.String("error", err.Error()))
	}
}
