package audio

import (
	"context"
	"io"
	"sync"
)

// SliceStream serves frames from memory. With Loop set it never ends.
type SliceStream struct {
	mu     sync.Mutex
	frames [][]int16
	pos    int
	rate   int
	Loop   bool
	closed bool
}

func NewSliceStream(sampleRate int, frames ...[]int16) *SliceStream {
	return &SliceStream{frames: frames, rate: sampleRate}
}

// SplitFrames cuts samples into frames of n samples, zero padding the tail.
func SplitFrames(samples []int16, n int) [][]int16 {
	var frames [][]int16
	for start := 0; start < len(samples); start += n {
		frame := make([]int16, n)
		copy(frame, samples[start:min(start+n, len(samples))])
		frames = append(frames, frame)
	}
	return frames
}

func (s *SliceStream) ReadFrame(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.pos >= len(s.frames) {
		if !s.Loop || len(s.frames) == 0 {
			return nil, io.EOF
		}
		s.pos = 0
	}
	frame := s.frames[s.pos]
	s.pos++
	return append([]int16(nil), frame...), nil
}

// Consumed returns how many frames were read.
func (s *SliceStream) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *SliceStream) SampleRate() int { return s.rate }

func (s *SliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
