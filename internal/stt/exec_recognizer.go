package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/mattn/go-shellwords"
)

type execRecognizer struct {
	cmd []string
	cfg config.STTConfig
}

type execResult struct {
	Text string `json:"text"`
}

// NewExecRecognizer runs an external transcriber per utterance. The command
// receives --audio <wav> (plus --model and --language when configured) and
// must print {"text": "..."} on stdout.
func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	path, err := audio.WriteTempWAV(utt, "loqa_stt_*.wav")
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	cmdArgs := append([]string{}, r.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", path)
	if r.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.cfg.ModelPath)
	}
	if r.cfg.Language != "" {
		cmdArgs = append(cmdArgs, "--language", r.cfg.Language)
	}

	command := exec.CommandContext(ctx, r.cmd[0], cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("stt command: %w", ctx.Err())
		}
		return "", fmt.Errorf("stt command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode stt response: %w", err)
	}
	return resp.Text, nil
}

func (r *execRecognizer) Close() error { return nil }
