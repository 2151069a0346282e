package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.EventBus.MaxQueue != 1000 || cfg.EventBus.DropPolicy != "drop_new" {
		t.Fatalf("unexpected event bus defaults: %+v", cfg.EventBus)
	}
	if cfg.STT.LockTimeoutSeconds != 15 {
		t.Fatalf("expected 15s lock timeout, got %v", cfg.STT.LockTimeoutSeconds)
	}
	if cfg.Matcher.PhoneticWeight != 0.6 {
		t.Fatalf("expected phonetic weight 0.6, got %v", cfg.Matcher.PhoneticWeight)
	}
	if cfg.Pipeline.LowConfidenceFeedback != 0.60 {
		t.Fatalf("expected low confidence feedback 0.60, got %v", cfg.Pipeline.LowConfidenceFeedback)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("LOQA_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("LOQA_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("THRESHOLD", "0.72")
	t.Setenv("WAKE_WORD_COOLDOWN", "3.5")
	t.Setenv("VAD_SILENCE_DURATION", "1.2")
	t.Setenv("MAX_RECORDING_TIME", "6")
	t.Setenv("STT_MAX_RETRIES", "5")
	t.Setenv("STT_RETRY_DELAY", "0.25")
	t.Setenv("FUZZY_MATCH_THRESHOLD", "65")
	t.Setenv("PHONETIC_WEIGHT", "0.4")
	t.Setenv("VOLUME_DUCK_LEVEL", "15")
	t.Setenv("EVENT_BUS_MAX_QUEUE", "32")
	t.Setenv("EVENT_BUS_DROP_POLICY", "drop_oldest")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxSessions != 123 {
		t.Fatalf("expected event store max sessions override")
	}
	if !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store vacuum flag override")
	}
	if cfg.Wake.Threshold != 0.72 || cfg.Wake.CooldownSeconds != 3.5 {
		t.Fatalf("expected wake overrides, got %+v", cfg.Wake)
	}
	if cfg.VAD.SilenceSeconds != 1.2 || cfg.VAD.MaxRecordingSeconds != 6 {
		t.Fatalf("expected vad overrides, got %+v", cfg.VAD)
	}
	if cfg.STT.MaxRetries != 5 || cfg.STT.RetryDelaySeconds != 0.25 {
		t.Fatalf("expected stt overrides, got %+v", cfg.STT)
	}
	if cfg.Matcher.FuzzyMatchThreshold != 65 || cfg.Matcher.PhoneticWeight != 0.4 {
		t.Fatalf("expected matcher overrides, got %+v", cfg.Matcher)
	}
	if cfg.Playback.VolumeDuckLevel != 15 {
		t.Fatalf("expected duck level override, got %d", cfg.Playback.VolumeDuckLevel)
	}
	if cfg.EventBus.MaxQueue != 32 || cfg.EventBus.DropPolicy != "drop_oldest" {
		t.Fatalf("expected event bus overrides, got %+v", cfg.EventBus)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
runtime_name: kitchen
stt:
  mode: exec
  command: "whisper-cli --json"
matcher:
  phonetic_weight: 0.5
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "kitchen" {
		t.Fatalf("expected runtime name from file, got %q", cfg.RuntimeName)
	}
	if cfg.STT.Mode != "exec" || cfg.STT.Command != "whisper-cli --json" {
		t.Fatalf("unexpected stt config: %+v", cfg.STT)
	}
	if cfg.Matcher.PhoneticWeight != 0.5 {
		t.Fatalf("expected phonetic weight 0.5, got %v", cfg.Matcher.PhoneticWeight)
	}
	// untouched sections keep defaults
	if cfg.VAD.TargetRMS != 3000 {
		t.Fatalf("expected default target rms, got %v", cfg.VAD.TargetRMS)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"EVENT_BUS_DROP_POLICY": "drop_random",
		"EVENT_BUS_MAX_QUEUE":   "0",
		"PHONETIC_WEIGHT":       "1.5",
		"THRESHOLD":             "2",
		"LOQA_STT_MODE":         "cloud",
		"STT_RETRY_BACKOFF":     "0.5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, value)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(1.5); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %v", got)
	}
}
