package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
)

// DefaultCommands drive mpd through mpc.
var DefaultCommands = map[string]string{
	CommandPlay:      "mpc -q clear; mpc -q add {target}; mpc -q play",
	CommandPause:     "mpc -q pause",
	CommandResume:    "mpc -q play",
	CommandStop:      "mpc -q stop",
	CommandNext:      "mpc -q next",
	CommandPrevious:  "mpc -q prev",
	CommandVolume:    "mpc volume",
	CommandSetVolume: "mpc -q volume {level}",
}

var percentPattern = regexp.MustCompile(`(\d{1,3})\s*%`)

// Exec runs one command template per action. Templates may chain steps with
// ";" or "&&"; {target} and {level} are substituted per argument.
type Exec struct {
	steps map[string][][]string
	log   *slog.Logger
}

func NewExec(overrides map[string]string, log *slog.Logger) (*Exec, error) {
	e := &Exec{
		steps: make(map[string][][]string, len(DefaultCommands)),
		log:   log.With(slog.String("component", "playback")),
	}
	for key, tmpl := range DefaultCommands {
		if o, ok := overrides[key]; ok {
			tmpl = o
		}
		steps, err := parseSequence(tmpl)
		if err != nil {
			return nil, fmt.Errorf("parse %s command: %w", key, err)
		}
		if len(steps) == 0 {
			return nil, fmt.Errorf("%s command is empty", key)
		}
		e.steps[key] = steps
	}
	for key := range overrides {
		if _, ok := DefaultCommands[key]; !ok {
			return nil, fmt.Errorf("unknown playback command %q", key)
		}
	}
	return e, nil
}

func parseSequence(line string) ([][]string, error) {
	var steps [][]string
	rest := []rune(line)
	for {
		p := shellwords.NewParser()
		args, err := p.Parse(string(rest))
		if err != nil {
			return nil, err
		}
		if len(args) > 0 {
			steps = append(steps, args)
		}
		if p.Position < 0 {
			return steps, nil
		}
		rest = rest[p.Position:]
		switch rest[0] {
		case ';':
			rest = rest[1:]
		case '&':
			if len(rest) < 2 || rest[1] != '&' {
				return nil, errors.New("background jobs are not supported")
			}
			rest = rest[2:]
		default:
			return nil, fmt.Errorf("unsupported operator %q", rest[0])
		}
	}
}

func (e *Exec) run(ctx context.Context, key string, vars map[string]string) (string, error) {
	var out strings.Builder
	for _, step := range e.steps[key] {
		args := make([]string, len(step))
		for i, a := range step {
			for k, v := range vars {
				a = strings.ReplaceAll(a, "{"+k+"}", v)
			}
			args[i] = a
		}
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("%s: %w: %s", key, err, strings.TrimSpace(stderr.String()))
		}
		out.Write(stdout.Bytes())
	}
	e.log.Debug("playback command", slog.String("action", key))
	return out.String(), nil
}

func (e *Exec) Play(ctx context.Context, target string) (Result, error) {
	out, err := e.run(ctx, CommandPlay, map[string]string{"target": target})
	if err != nil {
		return Result{}, err
	}
	return Result{Target: target, Output: strings.TrimSpace(out)}, nil
}

func (e *Exec) Pause(ctx context.Context) error {
	_, err := e.run(ctx, CommandPause, nil)
	return err
}

func (e *Exec) Resume(ctx context.Context) error {
	_, err := e.run(ctx, CommandResume, nil)
	return err
}

func (e *Exec) Stop(ctx context.Context) error {
	_, err := e.run(ctx, CommandStop, nil)
	return err
}

func (e *Exec) Next(ctx context.Context) error {
	_, err := e.run(ctx, CommandNext, nil)
	return err
}

func (e *Exec) Previous(ctx context.Context) error {
	_, err := e.run(ctx, CommandPrevious, nil)
	return err
}

// Volume parses the first "NN%" in the volume command output.
func (e *Exec) Volume(ctx context.Context) (int, error) {
	out, err := e.run(ctx, CommandVolume, nil)
	if err != nil {
		return 0, err
	}
	return ParsePercent(out)
}

func (e *Exec) SetVolume(ctx context.Context, level int) error {
	_, err := e.run(ctx, CommandSetVolume, map[string]string{"level": strconv.Itoa(Clamp(level))})
	return err
}

// ParsePercent extracts a volume from output such as "volume: 45%".
func ParsePercent(out string) (int, error) {
	m := percentPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("no volume in %q", strings.TrimSpace(out))
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, err
	}
	return Clamp(n), nil
}
