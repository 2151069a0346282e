package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"` // json, text
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
	TraceStdout    bool   `yaml:"trace_stdout"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventBus    EventBusConfig   `yaml:"event_bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Audio       AudioConfig      `yaml:"audio"`
	Wake        WakeConfig       `yaml:"wake"`
	VAD         VADConfig        `yaml:"vad"`
	STT         STTConfig        `yaml:"stt"`
	Matcher     MatcherConfig    `yaml:"matcher"`
	Catalog     CatalogConfig    `yaml:"catalog"`
	Playback    PlaybackConfig   `yaml:"playback"`
	TTS         TTSConfig        `yaml:"tts"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
}

// BusConfig configures the optional NATS bridge.
type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`

	// EventStream names a JetStream stream retaining mirrored events.
	EventStream         string `yaml:"event_stream"`
	EventStreamMaxHours int    `yaml:"event_stream_max_hours"`
}

type EventBusConfig struct {
	MaxQueue   int    `yaml:"max_queue"`
	DropPolicy string `yaml:"drop_policy"` // drop_new, drop_oldest
	LogPath    string `yaml:"log_path"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type AudioConfig struct {
	SampleRate      int    `yaml:"sample_rate"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
	CaptureMode     string `yaml:"capture_mode"` // exec, portaudio, file
	CaptureCommand  string `yaml:"capture_command"`
	CaptureFile     string `yaml:"capture_file"`
}

type WakeConfig struct {
	Source               string  `yaml:"source"` // none, exec, nats
	Command              string  `yaml:"command"`
	Threshold            float64 `yaml:"threshold"`
	CooldownSeconds      float64 `yaml:"cooldown_seconds"`
	ResetIntervalSeconds float64 `yaml:"reset_interval_seconds"`
	// ScoreTimeoutSeconds bounds one exec detector answer.
	ScoreTimeoutSeconds  float64 `yaml:"score_timeout_seconds"`
}

type VADConfig struct {
	SpeechMultiplier    float64 `yaml:"speech_multiplier"`
	SilenceSeconds      float64 `yaml:"silence_seconds"`
	MinSpeechSeconds    float64 `yaml:"min_speech_seconds"`
	MaxRecordingSeconds float64 `yaml:"max_recording_seconds"`
	CalibrationMS       int     `yaml:"calibration_ms"`
	MinNoiseFloor       float64 `yaml:"min_noise_floor"`
	Normalize           bool    `yaml:"normalize"`
	TargetRMS           float64 `yaml:"target_rms"`
	MaxGain             float64 `yaml:"max_gain"`
}

type STTConfig struct {
	Mode               string  `yaml:"mode"` // mock, exec, whisper
	Command            string  `yaml:"command"`
	ModelPath          string  `yaml:"model_path"`
	Language           string  `yaml:"language"`
	MaxRetries         int     `yaml:"max_retries"`
	RetryDelaySeconds  float64 `yaml:"retry_delay_seconds"`
	RetryBackoff       float64 `yaml:"retry_backoff"`
	LockTimeoutSeconds float64 `yaml:"lock_timeout_seconds"`
	CallTimeoutSeconds float64 `yaml:"call_timeout_seconds"`
	RebuildThreshold   int     `yaml:"rebuild_threshold"`
	MetricsEvery       int     `yaml:"metrics_every"`
}

type MatcherConfig struct {
	FuzzyMatchThreshold float64 `yaml:"fuzzy_match_threshold"`
	PhoneticWeight      float64 `yaml:"phonetic_weight"`
	PhoneticMinLength   int     `yaml:"phonetic_min_length"`
	PhoneticMaxLength   int     `yaml:"phonetic_max_length"`
	PhoneticMaxTokens   int     `yaml:"phonetic_max_tokens"`
	RejectBelow         float64 `yaml:"reject_below"`
	ConfidentAt         float64 `yaml:"confident_at"`
}

type CatalogConfig struct {
	MusicDir    string   `yaml:"music_dir"`
	SongsFile   string   `yaml:"songs_file"`
	IntentsFile string   `yaml:"intents_file"`
	Extensions  []string `yaml:"extensions"`
}

type PlaybackConfig struct {
	Mode            string            `yaml:"mode"` // mock, exec
	Commands        map[string]string `yaml:"commands"`
	VolumeDuckLevel int               `yaml:"volume_duck_level"`
	VolumeStep      int               `yaml:"volume_step"`
}

type TTSConfig struct {
	Mode          string `yaml:"mode"` // mock, exec
	Command       string `yaml:"command"`
	OutputCommand string `yaml:"output_command"`
	Voice         string `yaml:"voice"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	ToneHz        int    `yaml:"tone_hz"`
	ToneMS        int    `yaml:"tone_ms"`
}

type PipelineConfig struct {
	Language              string  `yaml:"language"`
	LowConfidenceFeedback float64 `yaml:"low_confidence_feedback"`
	RunTimeoutSeconds     float64 `yaml:"run_timeout_seconds"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-voice",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: "",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "loqa.voice",

			EventStreamMaxHours: 24,
		},
		EventBus: EventBusConfig{
			MaxQueue:   1000,
			DropPolicy: "drop_new",
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-voice-events.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FrameDurationMS: 30,
			CaptureMode:     "exec",
			CaptureCommand:  "arecord -q -f S16_LE -c 1 -r 16000 -t raw",
		},
		Wake: WakeConfig{
			Source:               "none",
			Threshold:            0.5,
			CooldownSeconds:      2,
			ResetIntervalSeconds: 60,
			ScoreTimeoutSeconds:  2,
		},
		VAD: VADConfig{
			SpeechMultiplier:    2.0,
			SilenceSeconds:      0.8,
			MinSpeechSeconds:    0.3,
			MaxRecordingSeconds: 8,
			CalibrationMS:       300,
			MinNoiseFloor:       50,
			Normalize:           true,
			TargetRMS:           3000,
			MaxGain:             10,
		},
		STT: STTConfig{
			Mode:               "mock",
			Language:           "en",
			MaxRetries:         3,
			RetryDelaySeconds:  0.5,
			RetryBackoff:       2.0,
			LockTimeoutSeconds: 15,
			CallTimeoutSeconds: 45,
			RebuildThreshold:   5,
			MetricsEvery:       50,
		},
		Matcher: MatcherConfig{
			FuzzyMatchThreshold: 70,
			PhoneticWeight:      0.6,
			PhoneticMinLength:   4,
			PhoneticMaxLength:   32,
			PhoneticMaxTokens:   3,
			RejectBelow:         50,
			ConfidentAt:         80,
		},
		Catalog: CatalogConfig{
			MusicDir:   "",
			Extensions: []string{".mp3", ".flac", ".ogg", ".oga", ".wav", ".m4a", ".opus"},
		},
		Playback: PlaybackConfig{
			Mode:            "mock",
			VolumeDuckLevel: 20,
			VolumeStep:      10,
		},
		TTS: TTSConfig{
			Mode:          "mock",
			OutputCommand: "aplay -q -f S16_LE -c 1 -r 22050 -t raw",
			SampleRate:    22050,
			Channels:      1,
			ToneHz:        880,
			ToneMS:        120,
		},
		Pipeline: PipelineConfig{
			Language:              "en",
			LowConfidenceFeedback: 0.60,
			RunTimeoutSeconds:     60,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "LOQA_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Telemetry.TraceStdout, "LOQA_TELEMETRY_TRACE_STDOUT")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "LOQA_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.Bus.EventStream, "LOQA_BUS_EVENT_STREAM")
	overrideInt(&cfg.EventBus.MaxQueue, "EVENT_BUS_MAX_QUEUE")
	overrideString(&cfg.EventBus.DropPolicy, "EVENT_BUS_DROP_POLICY")
	overrideString(&cfg.EventBus.LogPath, "LOQA_EVENT_BUS_LOG_PATH")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideInt(&cfg.Audio.SampleRate, "LOQA_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.FrameDurationMS, "LOQA_AUDIO_FRAME_DURATION_MS")
	overrideString(&cfg.Audio.CaptureMode, "LOQA_AUDIO_CAPTURE_MODE")
	overrideString(&cfg.Audio.CaptureCommand, "LOQA_AUDIO_CAPTURE_COMMAND")
	overrideString(&cfg.Audio.CaptureFile, "LOQA_AUDIO_CAPTURE_FILE")
	overrideString(&cfg.Wake.Source, "LOQA_WAKE_SOURCE")
	overrideString(&cfg.Wake.Command, "LOQA_WAKE_COMMAND")
	overrideFloat(&cfg.Wake.Threshold, "THRESHOLD")
	overrideFloat(&cfg.Wake.CooldownSeconds, "WAKE_WORD_COOLDOWN")
	overrideFloat(&cfg.Wake.ResetIntervalSeconds, "LOQA_WAKE_RESET_INTERVAL")
	overrideFloat(&cfg.Wake.ScoreTimeoutSeconds, "LOQA_WAKE_SCORE_TIMEOUT")
	overrideFloat(&cfg.VAD.SpeechMultiplier, "VAD_SPEECH_MULTIPLIER")
	overrideFloat(&cfg.VAD.SilenceSeconds, "VAD_SILENCE_DURATION")
	overrideFloat(&cfg.VAD.MinSpeechSeconds, "VAD_MIN_SPEECH_DURATION")
	overrideFloat(&cfg.VAD.MaxRecordingSeconds, "MAX_RECORDING_TIME")
	overrideBool(&cfg.VAD.Normalize, "LOQA_VAD_NORMALIZE")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LOQA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "LOQA_STT_LANGUAGE")
	overrideInt(&cfg.STT.MaxRetries, "STT_MAX_RETRIES")
	overrideFloat(&cfg.STT.RetryDelaySeconds, "STT_RETRY_DELAY")
	overrideFloat(&cfg.STT.RetryBackoff, "STT_RETRY_BACKOFF")
	overrideFloat(&cfg.STT.LockTimeoutSeconds, "STT_LOCK_TIMEOUT")
	overrideInt(&cfg.STT.RebuildThreshold, "STT_REBUILD_THRESHOLD")
	overrideFloat(&cfg.Matcher.FuzzyMatchThreshold, "FUZZY_MATCH_THRESHOLD")
	overrideFloat(&cfg.Matcher.PhoneticWeight, "PHONETIC_WEIGHT")
	overrideString(&cfg.Catalog.MusicDir, "LOQA_CATALOG_MUSIC_DIR")
	overrideString(&cfg.Catalog.SongsFile, "LOQA_CATALOG_SONGS_FILE")
	overrideString(&cfg.Catalog.IntentsFile, "LOQA_CATALOG_INTENTS_FILE")
	overrideString(&cfg.Playback.Mode, "LOQA_PLAYBACK_MODE")
	overrideInt(&cfg.Playback.VolumeDuckLevel, "VOLUME_DUCK_LEVEL")
	overrideInt(&cfg.Playback.VolumeStep, "LOQA_PLAYBACK_VOLUME_STEP")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideString(&cfg.TTS.OutputCommand, "LOQA_TTS_OUTPUT_COMMAND")
	overrideString(&cfg.TTS.Voice, "LOQA_TTS_VOICE")
	overrideString(&cfg.Pipeline.Language, "LOQA_PIPELINE_LANGUAGE")
	overrideFloat(&cfg.Pipeline.LowConfidenceFeedback, "LOQA_PIPELINE_LOW_CONFIDENCE_FEEDBACK")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// Seconds converts a fractional seconds option into a duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
	}
	if cfg.EventBus.MaxQueue <= 0 {
		return errors.New("event_bus.max_queue must be positive")
	}
	switch cfg.EventBus.DropPolicy {
	case "drop_new", "drop_oldest":
	default:
		return errors.New("event_bus.drop_policy must be one of drop_new|drop_oldest")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.FrameDurationMS <= 0 {
		return errors.New("audio.frame_duration_ms must be positive")
	}
	switch cfg.Audio.CaptureMode {
	case "exec":
		if cfg.Audio.CaptureCommand == "" {
			return errors.New("audio.capture_command must be set when capture_mode=exec")
		}
	case "file":
		if cfg.Audio.CaptureFile == "" {
			return errors.New("audio.capture_file must be set when capture_mode=file")
		}
	case "portaudio":
	default:
		return errors.New("audio.capture_mode must be one of exec|file|portaudio")
	}
	switch cfg.Wake.Source {
	case "none":
	case "exec":
		if cfg.Wake.Command == "" {
			return errors.New("wake.command must be set when source=exec")
		}
	case "nats":
		if !cfg.Bus.Enabled {
			return errors.New("wake.source=nats requires bus.enabled")
		}
	default:
		return errors.New("wake.source must be one of none|exec|nats")
	}
	if cfg.Wake.Threshold < 0 || cfg.Wake.Threshold > 1 {
		return errors.New("wake.threshold must be within [0,1]")
	}
	if cfg.Wake.CooldownSeconds < 0 {
		return errors.New("wake.cooldown_seconds must be >= 0")
	}
	if cfg.Wake.Source == "exec" && cfg.Wake.ScoreTimeoutSeconds <= 0 {
		return errors.New("wake.score_timeout_seconds must be positive")
	}
	if cfg.VAD.SpeechMultiplier <= 0 {
		return errors.New("vad.speech_multiplier must be positive")
	}
	if cfg.VAD.MaxRecordingSeconds <= 0 {
		return errors.New("vad.max_recording_seconds must be positive")
	}
	if cfg.VAD.SilenceSeconds <= 0 {
		return errors.New("vad.silence_seconds must be positive")
	}
	if cfg.VAD.Normalize && (cfg.VAD.TargetRMS <= 0 || cfg.VAD.MaxGain < 1) {
		return errors.New("vad.target_rms must be positive and vad.max_gain >= 1 when normalize is enabled")
	}
	switch cfg.STT.Mode {
	case "mock", "whisper":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|exec|whisper")
	}
	if cfg.STT.Mode == "whisper" && cfg.STT.ModelPath == "" {
		return errors.New("stt.model_path must be set when mode=whisper")
	}
	if cfg.STT.MaxRetries < 0 {
		return errors.New("stt.max_retries must be >= 0")
	}
	if cfg.STT.RetryBackoff < 1 {
		return errors.New("stt.retry_backoff must be >= 1")
	}
	if cfg.STT.LockTimeoutSeconds <= 0 {
		return errors.New("stt.lock_timeout_seconds must be positive")
	}
	if cfg.STT.RebuildThreshold <= 0 {
		return errors.New("stt.rebuild_threshold must be positive")
	}
	if cfg.Matcher.PhoneticWeight < 0 || cfg.Matcher.PhoneticWeight > 1 {
		return errors.New("matcher.phonetic_weight must be within [0,1]")
	}
	if cfg.Matcher.FuzzyMatchThreshold < 0 || cfg.Matcher.FuzzyMatchThreshold > 100 {
		return errors.New("matcher.fuzzy_match_threshold must be within [0,100]")
	}
	if cfg.Matcher.RejectBelow > cfg.Matcher.ConfidentAt {
		return errors.New("matcher.reject_below must not exceed matcher.confident_at")
	}
	switch cfg.Playback.Mode {
	case "mock", "exec":
	default:
		return errors.New("playback.mode must be one of mock|exec")
	}
	if cfg.Playback.VolumeDuckLevel < 0 || cfg.Playback.VolumeDuckLevel > 100 {
		return errors.New("playback.volume_duck_level must be within [0,100]")
	}
	switch cfg.TTS.Mode {
	case "mock":
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.Pipeline.LowConfidenceFeedback < 0 || cfg.Pipeline.LowConfidenceFeedback > 1 {
		return errors.New("pipeline.low_confidence_feedback must be within [0,1]")
	}
	return nil
}
