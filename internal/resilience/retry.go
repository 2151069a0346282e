package resilience

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrTransient marks failures worth another attempt.
var ErrTransient = errors.New("transient failure")

// Policy is an explicit retry configuration: MaxRetries attempts after the
// first one, waiting Delay * Backoff^n before retry n.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
	Backoff    float64
	// Transient decides whether an error is retried. Nil means IsTransient.
	Transient func(error) bool
}

// Attempts returns the total number of attempts the policy allows.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// DelayFor returns the wait before retry n (zero-based).
func (p Policy) DelayFor(n int) time.Duration {
	mult := p.Backoff
	if mult < 1 {
		mult = 1
	}
	return time.Duration(float64(p.Delay) * math.Pow(mult, float64(n)))
}

func (p Policy) transient(err error) bool {
	if p.Transient != nil {
		return p.Transient(err)
	}
	return IsTransient(err)
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	mult := p.Backoff
	if mult < 1 {
		mult = 1
	}
	maxInterval := p.DelayFor(p.Attempts())
	if maxInterval <= 0 {
		maxInterval = p.Delay
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     p.Delay,
		RandomizationFactor: 0,
		Multiplier:          mult,
		MaxInterval:         maxInterval,
	}
}

// Operation is one attempt; attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Do runs op under the policy. It returns the last result, the number of
// attempts made and the final error. notify, if set, is called before each
// wait with the failure and the upcoming delay.
func Do[T any](ctx context.Context, p Policy, op Operation[T], notify func(err error, delay time.Duration)) (T, int, error) {
	attempts := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.Attempts())),
		backoff.WithMaxElapsedTime(0),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := op(ctx, attempts)
		if err == nil {
			return v, nil
		}
		if !p.transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
	}
	return res, attempts, err
}

// IsTransient reports whether err looks like an I/O hiccup, a crashed child
// process or a deadline.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// TransientError wraps an error so IsTransient accepts it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}
