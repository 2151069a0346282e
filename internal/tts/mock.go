package tts

import (
	"context"
	"sync"
)

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth returns 10ms of silence per request.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		if err := ctx.Err(); err != nil {
			errs <- err
			return
		}
		chunks <- SynthChunk{
			RunID:      req.RunID,
			SampleRate: m.sampleRate,
			Channels:   m.channels,
			PCM:        make([]byte, m.sampleRate/100*m.channels*2),
			Final:      true,
		}
	}()
	return chunks, errs
}

// MemorySink records what it was asked to play.
type MemorySink struct {
	mu    sync.Mutex
	plays [][]byte
	// Err is returned by every Play when set.
	Err error
}

func (s *MemorySink) Play(_ context.Context, pcm []byte, _, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.plays = append(s.plays, append([]byte(nil), pcm...))
	return nil
}

// Plays returns a copy of every played buffer.
func (s *MemorySink) Plays() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.plays...)
}
