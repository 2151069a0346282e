package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	p := Policy{MaxRetries: 3, Delay: time.Millisecond, Backoff: 2}
	v, attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (string, error) {
		return "ok", nil
	}, nil)
	if err != nil || v != "ok" || attempts != 1 {
		t.Fatalf("unexpected result %q attempts=%d err=%v", v, attempts, err)
	}
}

func TestDoRetriesTransientWithIncreasingDelays(t *testing.T) {
	p := Policy{MaxRetries: 3, Delay: time.Millisecond, Backoff: 2}
	var delays []time.Duration
	_, attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
		return 0, Transient(fmt.Errorf("attempt %d", attempt))
	}, func(err error, d time.Duration) {
		delays = append(delays, d)
	})
	if err == nil {
		t.Fatal("expected final error")
	}
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
	if len(delays) != 3 {
		t.Fatalf("expected 3 delays, got %v", delays)
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Fatalf("delays not strictly increasing: %v", delays)
		}
	}
	if delays[0] != time.Millisecond || delays[2] != 4*time.Millisecond {
		t.Fatalf("unexpected delay schedule %v", delays)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p := Policy{MaxRetries: 5, Delay: time.Millisecond, Backoff: 2}
	fatal := errors.New("bad model")
	_, attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
		return 0, fatal
	}, nil)
	if !errors.Is(err, fatal) {
		t.Fatalf("expected unwrapped fatal error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
}

func TestDoRecoversAfterTransient(t *testing.T) {
	p := Policy{MaxRetries: 3, Delay: time.Millisecond, Backoff: 1.5}
	v, attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (string, error) {
		if attempt < 3 {
			return "", context.DeadlineExceeded
		}
		return "done", nil
	}, nil)
	if err != nil || v != "done" || attempts != 3 {
		t.Fatalf("unexpected result %q attempts=%d err=%v", v, attempts, err)
	}
}

func TestDoZeroRetries(t *testing.T) {
	p := Policy{MaxRetries: 0, Delay: time.Millisecond, Backoff: 2}
	_, attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (int, error) {
		return 0, Transient(errors.New("flaky"))
	}, nil)
	if err == nil || attempts != 1 {
		t.Fatalf("expected one failed attempt, got attempts=%d err=%v", attempts, err)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxRetries: 10, Delay: time.Hour, Backoff: 2}
	done := make(chan int)
	go func() {
		_, attempts, _ := Do(ctx, p, func(ctx context.Context, attempt int) (int, error) {
			return 0, Transient(errors.New("flaky"))
		}, nil)
		done <- attempts
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case attempts := <-done:
		if attempts != 1 {
			t.Fatalf("expected 1 attempt before cancel, got %d", attempts)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestDelayFor(t *testing.T) {
	p := Policy{Delay: 500 * time.Millisecond, Backoff: 2}
	if got := p.DelayFor(2); got != 2*time.Second {
		t.Fatalf("expected 2s, got %v", got)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("plain"), false},
		{Transient(errors.New("x")), true},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), true},
	}
	for _, c := range cases {
		if got := IsTransient(c.err); got != c.want {
			t.Fatalf("IsTransient(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
