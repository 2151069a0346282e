package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVStream replays a 16-bit WAV file frame by frame.
type WAVStream struct {
	file  *os.File
	dec   *wav.Decoder
	rate  int
	chans int
	frame int
	buf   *goaudio.IntBuffer
}

func OpenWAVStream(path string, frameSamples int) (*WAVStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}
	if dec.BitDepth != 16 {
		f.Close()
		return nil, fmt.Errorf("unsupported wav bit depth %d", dec.BitDepth)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek wav pcm: %w", err)
	}
	chans := int(dec.NumChans)
	if chans <= 0 {
		chans = 1
	}
	return &WAVStream{
		file:  f,
		dec:   dec,
		rate:  int(dec.SampleRate),
		chans: chans,
		frame: frameSamples,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: chans, SampleRate: int(dec.SampleRate)},
			Data:   make([]int, frameSamples*chans),
		},
	}, nil
}

func (s *WAVStream) ReadFrame(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.file == nil {
		return nil, ErrClosed
	}
	s.buf.Data = s.buf.Data[:cap(s.buf.Data)]
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	frames := n / s.chans
	out := make([]int16, s.frame)
	for i := 0; i < frames && i < s.frame; i++ {
		// first channel only
		out[i] = int16(s.buf.Data[i*s.chans])
	}
	return out, nil
}

func (s *WAVStream) SampleRate() int { return s.rate }

func (s *WAVStream) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// EncodeWAV writes the utterance as a mono 16-bit PCM WAV.
func EncodeWAV(w io.WriteSeeker, u Utterance) error {
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: u.SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(u.Samples)),
	}
	for i, s := range u.Samples {
		buffer.Data[i] = int(s)
	}
	enc := wav.NewEncoder(w, u.SampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteTempWAV stores the utterance in a temporary file and returns its path.
func WriteTempWAV(u Utterance, pattern string) (string, error) {
	file, err := os.CreateTemp(os.TempDir(), pattern)
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	if err := EncodeWAV(file, u); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("close temp wav: %w", err)
	}
	return file.Name(), nil
}

// ReadWAV decodes a whole 16-bit WAV file into an utterance (first channel).
func ReadWAV(path string) (Utterance, error) {
	f, err := os.Open(path)
	if err != nil {
		return Utterance{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Utterance{}, fmt.Errorf("%s is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Utterance{}, fmt.Errorf("decode wav: %w", err)
	}
	chans := buf.Format.NumChannels
	if chans <= 0 {
		chans = 1
	}
	samples := make([]int16, len(buf.Data)/chans)
	for i := range samples {
		samples[i] = int16(buf.Data[i*chans])
	}
	return NewUtterance(samples, buf.Format.SampleRate), nil
}
