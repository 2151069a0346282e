//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioStream reads from the default input device.
type PortAudioStream struct {
	stream    *portaudio.Stream
	buf       []int16
	rate      int
	closeOnce sync.Once
}

func openPortAudio(sampleRate, frameSamples int) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	buf := make([]int16, frameSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	return &PortAudioStream{stream: stream, buf: buf, rate: sampleRate}, nil
}

func (s *PortAudioStream) ReadFrame(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("read input stream: %w", err)
	}
	return append([]int16(nil), s.buf...), nil
}

func (s *PortAudioStream) SampleRate() int { return s.rate }

func (s *PortAudioStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.stream.Stop()
		err = s.stream.Close()
		portaudio.Terminate()
	})
	return err
}
