// Package retry holds the policy applied around external service calls.
package retry

import (
	"context"
	"time"

	"github.com/HugeFrog24/gpt-video-translator/internal/config"
	"github.com/HugeFrog24/gpt-video-translator/internal/services"
)

// Policy runs op, possibly more than once.
type Policy interface {
	Do(ctx context.Context, op func(context.Context) error) error
}

// None runs op exactly once.
type None struct{}

func (None) Do(ctx context.Context, op func(context.Context) error) error {
	return op(ctx)
}

// Backoff retries transient failures with exponential backoff. Errors that are
// not tagged transient are returned immediately.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep func(context.Context, time.Duration) error
}

func (b Backoff) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := b.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	delay := b.Initial
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !services.IsTransient(lastErr) || attempt == attempts {
			break
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		if next := delay * 2; b.Max <= 0 || next <= b.Max {
			delay = next
		} else {
			delay = b.Max
		}
	}
	return lastErr
}

// FromConfig returns None when retries are disabled and Backoff otherwise.
func FromConfig(cfg config.Retry) Policy {
	if cfg.MaxAttempts <= 1 {
		return None{}
	}
	return Backoff{
		Attempts: cfg.MaxAttempts,
		Initial:  time.Duration(cfg.InitialBackoffMS) * time.Millisecond,
		Max:      time.Duration(cfg.MaxBackoffMS) * time.Millisecond,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
