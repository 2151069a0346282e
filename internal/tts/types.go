package tts

import "context"

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	RunID string
	Text  string
	Voice string
}

// SynthChunk contains little-endian PCM16 data.
type SynthChunk struct {
	RunID      string
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}

// Sink plays raw PCM16.
type Sink interface {
	Play(ctx context.Context, pcm []byte, sampleRate, channels int) error
}
