package protocol

// Event names published on the in-process bus.
const (
	EventButtonPressed        = "button_pressed"
	EventVolumeUpRequested    = "volume_up_requested"
	EventVolumeDownRequested  = "volume_down_requested"
	EventPauseRequested       = "pause_requested"
	EventResumeRequested      = "resume_requested"
	EventPlayRequested        = "play_requested"
	EventIntentDetected       = "intent_detected"
	EventMusicSearchRequested = "music_search_requested"
	EventMusicResolved        = "music_resolved"
	EventRecordingStarted     = "recording_started"
	EventRecordingFinished    = "recording_finished"
	EventWakeTriggered        = "wake_triggered"
	EventTranscriptReady      = "transcript_ready"
	EventPipelineState        = "pipeline_state_changed"
	EventResponseRendered     = "response_rendered"
	EventDetectorReset        = "detector_reset"
)

// Button names carried by button_pressed.
const (
	ButtonTalk       = "talk"
	ButtonPlayPause  = "play_pause"
	ButtonVolumeUp   = "volume_up"
	ButtonVolumeDown = "volume_down"
)

// NATS subjects, relative to the configured subject prefix.
const (
	SubjectEventPrefix = "event"
	SubjectInputPrefix = "input"
	SubjectWakeScore   = "wake.score"
)

// ButtonPressed is the payload of button_pressed.
type ButtonPressed struct {
	Button string `json:"button"`
}

// PlayRequested is the payload of play_requested and music_resolved.
type PlayRequested struct {
	RunID       string  `json:"run_id,omitempty"`
	Query       string  `json:"query"`
	MatchedFile string  `json:"matched_file"`
	Confidence  float64 `json:"confidence"`
}

// IntentDetected is the payload of intent_detected.
type IntentDetected struct {
	RunID      string            `json:"run_id,omitempty"`
	IntentType string            `json:"intent_type"`
	Confidence float64           `json:"confidence"`
	Language   string            `json:"language"`
	Text       string            `json:"text"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// MusicSearchRequested is the payload of music_search_requested.
type MusicSearchRequested struct {
	RunID    string `json:"run_id,omitempty"`
	Query    string `json:"query"`
	RawText  string `json:"raw_text"`
	Language string `json:"language"`
}

// Transcript is the payload of transcript_ready.
type Transcript struct {
	RunID    string `json:"run_id"`
	Text     string `json:"text"`
	Attempts int    `json:"attempts"`
}

// WakeScore is a detector confidence pushed by an external wake model.
type WakeScore struct {
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"timestamp,omitempty"`
}

// RecordingStarted is the payload of recording_started.
type RecordingStarted struct {
	RunID   string `json:"run_id"`
	Trigger string `json:"trigger"`
}

// RecordingFinished is the payload of recording_finished.
type RecordingFinished struct {
	RunID      string  `json:"run_id"`
	DurationMS int64   `json:"duration_ms"`
	Reason     string  `json:"reason,omitempty"`
	NoiseFloor float64 `json:"noise_floor"`
}

// StateChanged is the payload of pipeline_state_changed.
type StateChanged struct {
	RunID string `json:"run_id"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// ResponseRendered is the payload of response_rendered.
type ResponseRendered struct {
	RunID   string `json:"run_id"`
	Outcome string `json:"outcome"`
	Text    string `json:"text"`
	// Mode is speech, tone or none.
	Mode string `json:"mode"`
}
