package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HugeFrog24/gpt-video-translator/internal/config"
	"github.com/HugeFrog24/gpt-video-translator/internal/services"
)

func TestNoneRunsOnce(t *testing.T) {
	calls := 0
	err := None{}.Do(context.Background(), func(context.Context) error {
		calls++
		return services.MarkTransient(errors.New("429"))
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single failing call, got calls=%d err=%v", calls, err)
	}
}

func TestBackoffRetriesTransientFailures(t *testing.T) {
	var delays []time.Duration
	policy := Backoff{
		Attempts: 4,
		Initial:  10 * time.Millisecond,
		Max:      25 * time.Millisecond,
		sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 4 {
			return services.MarkTransient(errors.New("server error"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("unexpected delays %v", delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestBackoffDoesNotRetryPermanentFailures(t *testing.T) {
	policy := Backoff{Attempts: 5, sleep: func(context.Context, time.Duration) error { return nil }}
	calls := 0
	permanent := services.Wrap(services.ErrExternalService, "translate", "", "invalid api key", nil)
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected one call returning the permanent error, calls=%d err=%v", calls, err)
	}
}

func TestBackoffStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := Backoff{Attempts: 3, Initial: time.Hour}
	err := policy.Do(ctx, func(context.Context) error {
		return services.MarkTransient(errors.New("timeout"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(config.Retry{MaxAttempts: 1}).(None); !ok {
		t.Fatal("expected None policy for a single attempt")
	}
	policy, ok := FromConfig(config.Retry{MaxAttempts: 3, InitialBackoffMS: 100, MaxBackoffMS: 400}).(Backoff)
	if !ok {
		t.Fatal("expected Backoff policy")
	}
	if policy.Attempts != 3 || policy.Initial != 100*time.Millisecond || policy.Max != 400*time.Millisecond {
		t.Fatalf("unexpected policy %+v", policy)
	}
}
