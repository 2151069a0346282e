package audio

import (
	"context"
	"sync"
)

// Shared serializes frame reads so the wake listener and the recorder can
// take turns on one capture device.
type Shared struct {
	mu  sync.Mutex
	src Stream
}

func NewShared(src Stream) *Shared {
	return &Shared{src: src}
}

func (s *Shared) ReadFrame(ctx context.Context) ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.ReadFrame(ctx)
}

func (s *Shared) SampleRate() int { return s.src.SampleRate() }

func (s *Shared) Close() error { return s.src.Close() }
