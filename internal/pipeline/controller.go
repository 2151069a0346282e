package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/catalog"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/eventbus"
	"github.com/loqalabs/loqa-voice/internal/intent"
	"github.com/loqalabs/loqa-voice/internal/match"
	"github.com/loqalabs/loqa-voice/internal/playback"
	"github.com/loqalabs/loqa-voice/internal/protocol"
	"github.com/loqalabs/loqa-voice/internal/recorder"
	"github.com/loqalabs/loqa-voice/internal/stt"
	"github.com/loqalabs/loqa-voice/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Source tags every event the pipeline publishes.
const Source = "pipeline"

// ErrBusy is returned by Trigger while a run is active.
var ErrBusy = errors.New("pipeline: run already active")

const feedbackTimeout = 20 * time.Second

// Spoken responses.
const (
	msgNoSpeech     = "Sorry, I didn't hear anything."
	msgUnknown      = "Sorry, I didn't understand that."
	msgFailure      = "Sorry, something went wrong."
	msgNoQuery      = "What would you like me to play?"
	msgEmptyLibrary = "Your music library is empty."
	msgNoLevel      = "I didn't catch the volume level."
	msgUnsupported  = "Sorry, I can't do that yet."
)

// Bus is the slice of the event bus the pipeline needs.
type Bus interface {
	Publish(eventbus.Event)
	Subscribe(ctx context.Context, name string) <-chan eventbus.Event
}

type Capturer interface {
	Record(ctx context.Context, stream audio.Stream) (recorder.Result, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, utt audio.Utterance) stt.TranscriptResult
}

type Classifier interface {
	Classify(text string) intent.Intent
}

// Pauser is the wake listener sharing the capture device.
type Pauser interface {
	Pause()
	Resume()
}

// Deps are the collaborators of a run. Listener and Ducker may be nil.
type Deps struct {
	Bus      Bus
	Stream   audio.Stream
	Recorder Capturer
	STT      Transcriber
	Intents  Classifier
	Catalog  *catalog.Catalog
	Matcher  *match.Matcher
	Player   playback.Player
	Mixer    playback.Mixer
	Ducker   *playback.Ducker
	Speaker  tts.Renderer
	Listener Pauser
}

type Settings struct {
	Language      string
	LowConfidence float64
	RunTimeout    time.Duration
	VolumeStep    int
}

func SettingsFrom(cfg config.Config) Settings {
	return Settings{
		Language:      cfg.Pipeline.Language,
		LowConfidence: cfg.Pipeline.LowConfidenceFeedback,
		RunTimeout:    config.Seconds(cfg.Pipeline.RunTimeoutSeconds),
		VolumeStep:    cfg.Playback.VolumeStep,
	}
}

// Run is the single in-flight utterance.
type Run struct {
	ID        string
	Trigger   string
	StartedAt time.Time

	state State
	duck  *playback.DuckToken
}

// Stats is a snapshot for the status endpoint.
type Stats struct {
	State    State              `json:"state"`
	RunID    string             `json:"run_id,omitempty"`
	Runs     uint64             `json:"runs"`
	Ignored  uint64             `json:"ignored_triggers"`
	Outcomes map[Outcome]uint64 `json:"outcomes"`
}

// Controller drives one utterance at a time from trigger to feedback.
type Controller struct {
	settings Settings
	deps     Deps
	log      *slog.Logger
	tracer   trace.Tracer

	mu       sync.Mutex
	run      *Run
	outcomes map[Outcome]uint64

	wg      sync.WaitGroup
	runs    atomic.Uint64
	ignored atomic.Uint64

	runCounter     metric.Int64Counter
	ignoredCounter metric.Int64Counter
}

func New(settings Settings, deps Deps, log *slog.Logger) *Controller {
	c := &Controller{
		settings: settings,
		deps:     deps,
		log:      log.With(slog.String("component", "pipeline")),
		tracer:   otel.Tracer("github.com/loqalabs/loqa-voice/internal/pipeline"),
		outcomes: make(map[Outcome]uint64),
	}
	meter := otel.Meter("github.com/loqalabs/loqa-voice/internal/pipeline")
	c.runCounter, _ = meter.Int64Counter("loqa_pipeline_runs_total", metric.WithDescription("Completed pipeline runs by outcome"))
	c.ignoredCounter, _ = meter.Int64Counter("loqa_pipeline_triggers_ignored_total", metric.WithDescription("Triggers dropped while a run was active"))
	return c
}

// Run consumes triggers until ctx ends, then waits for the active run.
func (c *Controller) Run(ctx context.Context) error {
	events := c.deps.Bus.Subscribe(ctx, eventbus.Wildcard)
	defer c.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Name {
			case protocol.EventWakeTriggered:
				_ = c.Trigger(ctx, "wake")
			case protocol.EventButtonPressed:
				if ev.Text("button") == protocol.ButtonTalk {
					_ = c.Trigger(ctx, "button")
				}
			}
		}
	}
}

// Trigger starts a run in the background unless one is active.
func (c *Controller) Trigger(ctx context.Context, source string) error {
	run, ok := c.TryBegin(source)
	if !ok {
		return ErrBusy
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Execute(ctx, run)
	}()
	return nil
}

// TryBegin moves Idle to Triggered. It fails while a run exists.
func (c *Controller) TryBegin(trigger string) (*Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		c.ignored.Add(1)
		c.ignoredCounter.Add(context.Background(), 1)
		c.log.Debug("trigger ignored, run active", slog.String("trigger", trigger), slog.String("run_id", c.run.ID))
		return nil, false
	}
	run := &Run{ID: uuid.NewString(), Trigger: trigger, StartedAt: time.Now(), state: StateIdle}
	c.run = run
	c.runs.Add(1)
	c.transitionLocked(run, StateTriggered)
	return run, true
}

// finish moves the run to Idle and clears it.
func (c *Controller) finish(run *Run, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(run, StateIdle)
	if c.run == run {
		c.run = nil
	}
	c.outcomes[outcome]++
}

func (c *Controller) setState(run *Run, next State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(run, next)
}

func (c *Controller) transitionLocked(run *Run, next State) {
	prev := run.state
	if err := Transition(prev, next); err != nil {
		c.log.Error("unexpected state change", slogError(err), slog.String("run_id", run.ID))
	}
	run.state = next
	c.publish(protocol.EventPipelineState, protocol.StateChanged{RunID: run.ID, From: string(prev), To: string(next)})
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return StateIdle
	}
	return c.run.state
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{State: StateIdle, Runs: c.runs.Load(), Ignored: c.ignored.Load(), Outcomes: make(map[Outcome]uint64, len(c.outcomes))}
	for k, v := range c.outcomes {
		st.Outcomes[k] = v
	}
	if c.run != nil {
		st.State, st.RunID = c.run.state, c.run.ID
	}
	return st
}

// Wait blocks until background runs started by Trigger return.
func (c *Controller) Wait() { c.wg.Wait() }

type response struct {
	outcome Outcome
	text    string
}

// Execute drives run from Triggered to Idle. A panic anywhere ends in
// Aborting; the duck token is released on every path.
func (c *Controller) Execute(ctx context.Context, run *Run) (outcome Outcome) {
	ctx = tts.WithRunID(ctx, run.ID)
	ctx, span := c.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("run.trigger", run.Trigger),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("pipeline run panicked",
				slog.String("run_id", run.ID),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
			span.SetStatus(codes.Error, "panic")
			c.abort(ctx, run)
			outcome = OutcomeAborted
		}
		if c.deps.Listener != nil {
			c.deps.Listener.Resume()
		}
		span.SetAttributes(attribute.String("run.outcome", string(outcome)))
		c.runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
		c.finish(run, outcome)
		c.log.Info("pipeline run finished",
			slog.String("run_id", run.ID),
			slog.String("outcome", string(outcome)),
			slog.Duration("elapsed", time.Since(run.StartedAt)))
	}()

	resp, err := c.process(ctx, run)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Error("pipeline run aborted", slog.String("run_id", run.ID), slogError(err))
		c.abort(ctx, run)
		return OutcomeAborted
	}
	c.respond(ctx, run, resp)
	return resp.outcome
}

func (c *Controller) process(ctx context.Context, run *Run) (response, error) {
	if c.settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.RunTimeout)
		defer cancel()
	}

	c.setState(run, StateRecording)
	if c.deps.Ducker != nil {
		tok, err := c.deps.Ducker.Duck(ctx)
		if err != nil {
			c.log.Warn("volume duck failed", slogError(err))
		}
		run.duck = tok
	}
	if c.deps.Listener != nil {
		c.deps.Listener.Pause()
	}
	c.publish(protocol.EventRecordingStarted, protocol.RecordingStarted{RunID: run.ID, Trigger: run.Trigger})
	rec, err := c.deps.Recorder.Record(ctx, c.deps.Stream)
	if err != nil && !errors.Is(err, recorder.ErrNoAudio) {
		return response{}, fmt.Errorf("record: %w", err)
	}
	c.publish(protocol.EventRecordingFinished, protocol.RecordingFinished{
		RunID:      run.ID,
		DurationMS: rec.Elapsed.Milliseconds(),
		Reason:     rec.Reason,
		NoiseFloor: rec.NoiseFloor,
	})

	c.setState(run, StateTranscribing)
	tr := c.deps.STT.Transcribe(ctx, rec.Utterance)
	text := strings.TrimSpace(tr.Text)
	c.publish(protocol.EventTranscriptReady, protocol.Transcript{RunID: run.ID, Text: text, Attempts: tr.Attempts})
	if text == "" {
		c.setState(run, StateResponding)
		return response{outcome: OutcomeNoSpeech, text: msgNoSpeech}, nil
	}

	c.setState(run, StateClassifying)
	in := c.deps.Intents.Classify(text)
	c.publish(protocol.EventIntentDetected, protocol.IntentDetected{
		RunID:      run.ID,
		IntentType: in.Type,
		Confidence: in.Confidence,
		Language:   c.settings.Language,
		Text:       text,
		Parameters: in.Parameters,
	})

	c.setState(run, StateValidating)
	act, rejection := c.validate(run, in)
	if act == nil {
		c.setState(run, StateResponding)
		c.log.Info("request rejected", slog.String("run_id", run.ID), slog.String("intent", in.Type), slog.String("reason", rejection))
		return response{outcome: OutcomeRejected, text: rejection}, nil
	}

	c.setState(run, StateExecuting)
	reply, err := act(ctx)
	c.setState(run, StateResponding)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		c.log.Error("action failed", slog.String("run_id", run.ID), slog.String("intent", in.Type), slogError(err))
		return response{outcome: OutcomeFailed, text: msgFailure}, nil
	}
	return response{outcome: OutcomeExecuted, text: reply}, nil
}

type action func(ctx context.Context) (string, error)

// validate accepts an intent by returning its action, or rejects it with a
// spoken reason.
func (c *Controller) validate(run *Run, in intent.Intent) (action, string) {
	p, m := c.deps.Player, c.deps.Mixer
	switch in.Type {
	case intent.TypeUnknown:
		return nil, msgUnknown
	case intent.TypePlayMusic:
		return c.validatePlay(run, in)
	case intent.TypePause:
		return simple(p.Pause, "Paused."), ""
	case intent.TypeResume:
		return simple(p.Resume, "Resuming."), ""
	case intent.TypeStop:
		return simple(p.Stop, "Stopped."), ""
	case intent.TypeNextTrack:
		return simple(p.Next, "Skipping to the next track."), ""
	case intent.TypePreviousTrack:
		return simple(p.Previous, "Going back to the previous track."), ""
	case intent.TypeVolumeUp:
		return c.adjustVolume(run, c.settings.VolumeStep), ""
	case intent.TypeVolumeDown:
		return c.adjustVolume(run, -c.settings.VolumeStep), ""
	case intent.TypeSetVolume:
		level, ok := in.Level()
		if !ok {
			return nil, msgNoLevel
		}
		return func(ctx context.Context) (string, error) {
			// restore first so the release does not undo the change
			if err := run.duck.Release(ctx); err != nil {
				return "", err
			}
			if err := m.SetVolume(ctx, level); err != nil {
				return "", err
			}
			return fmt.Sprintf("Volume set to %d percent.", level), nil
		}, ""
	}
	return nil, msgUnsupported
}

func simple(fn func(context.Context) error, reply string) action {
	return func(ctx context.Context) (string, error) {
		if err := fn(ctx); err != nil {
			return "", err
		}
		return reply, nil
	}
}

func (c *Controller) adjustVolume(run *Run, delta int) action {
	return func(ctx context.Context) (string, error) {
		if err := run.duck.Release(ctx); err != nil {
			return "", err
		}
		cur, err := c.deps.Mixer.Volume(ctx)
		if err != nil {
			return "", err
		}
		next := playback.Clamp(cur + delta)
		if err := c.deps.Mixer.SetVolume(ctx, next); err != nil {
			return "", err
		}
		return fmt.Sprintf("Volume is now %d percent.", next), nil
	}
}

func (c *Controller) validatePlay(run *Run, in intent.Intent) (action, string) {
	query := in.Query()
	if query == "" {
		return nil, msgNoQuery
	}
	c.publish(protocol.EventMusicSearchRequested, protocol.MusicSearchRequested{
		RunID:    run.ID,
		Query:    query,
		RawText:  in.RawText,
		Language: c.settings.Language,
	})
	if c.deps.Catalog == nil || c.deps.Catalog.Len() == 0 {
		return nil, msgEmptyLibrary
	}
	res, ok := c.deps.Matcher.Match(query, c.deps.Catalog.Candidates(), match.ModeBest)
	if !ok {
		return nil, fmt.Sprintf("I couldn't find %s.", query)
	}
	tier := c.deps.Matcher.Classify(res.Combined)
	song, _ := c.deps.Catalog.Song(res.Index)
	confidence := res.Combined / 100
	c.log.Info("music resolved",
		slog.String("query", query),
		slog.String("song", song.Label()),
		slog.Float64("score", res.Combined),
		slog.String("tier", tier.String()))
	if tier == match.TierReject {
		return nil, fmt.Sprintf("I couldn't find %s.", query)
	}
	resolved := protocol.PlayRequested{RunID: run.ID, Query: query, MatchedFile: song.Target(), Confidence: confidence}
	c.publish(protocol.EventMusicResolved, resolved)

	return func(ctx context.Context) (string, error) {
		c.publish(protocol.EventPlayRequested, resolved)
		if _, err := c.deps.Player.Play(ctx, song.Target()); err != nil {
			return "", err
		}
		if confidence < c.settings.LowConfidence {
			return fmt.Sprintf("I think you meant %s. Playing it now.", song.Label()), nil
		}
		return fmt.Sprintf("Playing %s.", song.Label()), nil
	}, ""
}

// respond releases the duck token, then renders one piece of feedback.
func (c *Controller) respond(ctx context.Context, run *Run, resp response) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), feedbackTimeout)
	defer cancel()
	if err := run.duck.Release(ctx); err != nil {
		c.log.Warn("volume restore failed", slog.String("run_id", run.ID), slogError(err))
	}
	mode := c.render(ctx, resp.text)
	c.publish(protocol.EventResponseRendered, protocol.ResponseRendered{
		RunID:   run.ID,
		Outcome: string(resp.outcome),
		Text:    resp.text,
		Mode:    mode,
	})
}

func (c *Controller) abort(ctx context.Context, run *Run) {
	c.setState(run, StateAborting)
	c.respond(ctx, run, response{outcome: OutcomeAborted, text: msgFailure})
}

// render speaks text, falling back to the tone cue.
func (c *Controller) render(ctx context.Context, text string) (mode string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("feedback renderer panicked", slog.String("panic", fmt.Sprint(r)))
			mode = "none"
		}
	}()
	if c.deps.Speaker == nil {
		return "none"
	}
	if text != "" {
		err := c.deps.Speaker.Speak(ctx, text)
		if err == nil {
			return "speech"
		}
		c.log.Warn("speech failed, playing tone", slogError(err))
	}
	if err := c.deps.Speaker.Tone(ctx); err != nil {
		c.log.Warn("tone failed", slogError(err))
		return "none"
	}
	return "tone"
}

func (c *Controller) publish(name string, payload any) {
	if c.deps.Bus == nil {
		return
	}
	ev, err := eventbus.NewEventFrom(name, payload)
	if err != nil {
		c.log.Warn("failed to encode event", slog.String("event", name), slogError(err))
		return
	}
	ev.Source = Source
	c.deps.Bus.Publish(ev)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
