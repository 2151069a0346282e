package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// ExecStream reads raw little-endian 16-bit mono PCM from a child process
// such as arecord.
type ExecStream struct {
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	reader     *bufio.Reader
	stderr     bytes.Buffer
	rate       int
	frame      int
	buf        []byte
	log        *slog.Logger
	closeOnce  sync.Once
	closeError error
}

func StartExecStream(ctx context.Context, command string, sampleRate, frameSamples int, log *slog.Logger) (*ExecStream, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("capture command is empty")
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, args[0], args[1:]...)
	s := &ExecStream{
		cmd:    cmd,
		cancel: cancel,
		rate:   sampleRate,
		frame:  frameSamples,
		buf:    make([]byte, frameSamples*2),
		log:    log.With(slog.String("component", "capture")),
	}
	cmd.Stderr = &s.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start capture command: %w", err)
	}
	s.reader = bufio.NewReaderSize(stdout, len(s.buf)*4)
	s.log.Info("capture process started", slog.String("command", args[0]), slog.Int("sample_rate", sampleRate))
	return s, nil
}

func (s *ExecStream) ReadFrame(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.reader, s.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			if msg := s.stderr.String(); msg != "" {
				return nil, fmt.Errorf("capture process ended: %w: %s", err, msg)
			}
		}
		return nil, err
	}
	return DecodePCM16(s.buf), nil
}

func (s *ExecStream) SampleRate() int { return s.rate }

func (s *ExecStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if err := s.cmd.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				s.closeError = err
			}
		}
		s.log.Info("capture process stopped")
	})
	return s.closeError
}

// DecodePCM16 converts little-endian bytes into samples.
func DecodePCM16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// EncodePCM16 converts samples into little-endian bytes.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
