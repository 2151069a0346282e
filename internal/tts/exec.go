package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecSynth runs command once per request. The request is written as JSON
// to stdin; every stdout line is {"pcm_base64": "...", "final": bool}.
func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	args, err := parseCommand(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func parseCommand(command string) ([]string, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("command empty")
	}
	return args, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	e.mu.Lock()
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		defer e.mu.Unlock()

		data, err := json.Marshal(execRequest{
			Text:       req.Text,
			Voice:      req.Voice,
			SampleRate: e.sampleRate,
			Channels:   e.channels,
		})
		if err != nil {
			errs <- err
			return
		}

		cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
		cmd.Stdin = bytes.NewReader(data)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errs <- err
			return
		}
		if err := cmd.Start(); err != nil {
			errs <- err
			return
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		sequence := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var resp execResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				errs <- fmt.Errorf("decode tts chunk: %w", err)
				_ = cmd.Wait()
				return
			}
			pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
			if err != nil {
				errs <- fmt.Errorf("decode tts pcm: %w", err)
				_ = cmd.Wait()
				return
			}
			select {
			case chunks <- SynthChunk{
				RunID:      req.RunID,
				Sequence:   sequence,
				SampleRate: e.sampleRate,
				Channels:   e.channels,
				PCM:        pcm,
				Final:      resp.Final,
			}:
			case <-ctx.Done():
				_ = cmd.Wait()
				errs <- ctx.Err()
				return
			}
			sequence++
		}
		if err := cmd.Wait(); err != nil {
			errs <- fmt.Errorf("tts command: %w: %s", err, strings.TrimSpace(stderr.String()))
			return
		}
		if scanErr := scanner.Err(); scanErr != nil {
			errs <- scanErr
		}
	}()
	return chunks, errs
}

// ExecSink pipes PCM into an output command such as aplay.
type ExecSink struct {
	cmd []string
}

func NewExecSink(command string) (*ExecSink, error) {
	args, err := parseCommand(command)
	if err != nil {
		return nil, fmt.Errorf("parse output command: %w", err)
	}
	return &ExecSink{cmd: args}, nil
}

func (s *ExecSink) Play(ctx context.Context, pcm []byte, _, _ int) error {
	cmd := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(pcm)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("output command: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
