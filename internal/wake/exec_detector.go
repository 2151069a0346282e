package wake

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/loqalabs/loqa-voice/internal/audio"
	"github.com/mattn/go-shellwords"
)

// ErrDetectorTimeout is returned when the wake model does not answer a frame
// in time. The child is killed and restarted on the next frame.
var ErrDetectorTimeout = errors.New("wake: detector did not answer in time")

// ExecDetector drives an external wake model. Each frame is written to the
// child's stdin as raw PCM and answered with one confidence per line.
type ExecDetector struct {
	args    []string
	timeout time.Duration

	cmd    *exec.Cmd
	stdin  *os.File
	out    *os.File
	stdout *bufio.Reader
}

func NewExecDetector(command string, timeout time.Duration) (*ExecDetector, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse wake command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("wake command is empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := &ExecDetector{args: args, timeout: timeout}
	if err := d.start(); err != nil {
		return nil, err
	}
	return d, nil
}

// start wires the child through os.Pipe ends that accept deadlines.
func (d *ExecDetector) start() error {
	inR, inW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("wake stdin: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return fmt.Errorf("wake stdout: %w", err)
	}
	cmd := exec.Command(d.args[0], d.args[1:]...)
	cmd.Stdin = inR
	cmd.Stdout = outW
	if err := cmd.Start(); err != nil {
		inR.Close()
		inW.Close()
		outR.Close()
		outW.Close()
		return fmt.Errorf("start wake command: %w", err)
	}
	// the child owns these ends now
	inR.Close()
	outW.Close()

	d.cmd = cmd
	d.stdin = inW
	d.out = outR
	d.stdout = bufio.NewReader(outR)
	return nil
}

// Score sends one frame and waits up to the timeout for its confidence. A
// child that stalls or dies is stopped and restarted on the following call.
func (d *ExecDetector) Score(frame []int16) (float64, error) {
	if d.cmd == nil {
		if err := d.start(); err != nil {
			return 0, err
		}
	}
	deadline := time.Now().Add(d.timeout)
	_ = d.stdin.SetWriteDeadline(deadline)
	if _, err := d.stdin.Write(audio.EncodePCM16(frame)); err != nil {
		d.stop()
		return 0, fmt.Errorf("write wake frame: %w", timeoutErr(err))
	}
	_ = d.out.SetReadDeadline(deadline)
	line, err := d.stdout.ReadString('\n')
	if err != nil {
		d.stop()
		return 0, fmt.Errorf("read wake score: %w", timeoutErr(err))
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, fmt.Errorf("parse wake score %q: %w", strings.TrimSpace(line), err)
	}
	return score, nil
}

func timeoutErr(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrDetectorTimeout
	}
	return err
}

// Reset restarts the child, dropping any buffered model state.
func (d *ExecDetector) Reset() error {
	d.stop()
	return d.start()
}

// Running reports whether a child process is attached.
func (d *ExecDetector) Running() bool { return d.cmd != nil }

func (d *ExecDetector) Close() error {
	d.stop()
	return nil
}

func (d *ExecDetector) stop() {
	if d.cmd == nil {
		return
	}
	_ = d.stdin.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()
	_ = d.out.Close()
	d.cmd = nil
}
