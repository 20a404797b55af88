package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicyDelay(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.5}

	tests := []struct {
		name    string
		attempt int
		rnd     float64
		want    time.Duration
	}{
		{name: "first attempt", attempt: 1, rnd: 0, want: 100 * time.Millisecond},
		{name: "doubles", attempt: 2, rnd: 0, want: 200 * time.Millisecond},
		{name: "jitter added", attempt: 2, rnd: 1, want: 300 * time.Millisecond},
		{name: "clamped", attempt: 10, rnd: 0, want: time.Second},
		{name: "attempt zero treated as first", attempt: 0, rnd: 0, want: 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.delayWithRand(tt.attempt, tt.rnd); got != tt.want {
				t.Errorf("delayWithRand(%d, %v) = %v, want %v", tt.attempt, tt.rnd, got, tt.want)
			}
		})
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	p := Policy{MaxAttempts: 4, Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}
	calls := 0
	got, err := Do(context.Background(), p, func(attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("Do() = %q after %d calls, want ok after 3", got, calls)
	}
}

func TestDoExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3, Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}
	boom := errors.New("boom")
	calls := 0
	err := Run(context.Background(), p, func(int) error {
		calls++
		return boom
	})
	if !errors.Is(err, ErrAttemptsExhausted) || !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want exhausted wrapping boom", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, Initial: time.Hour, Max: time.Hour, Factor: 1}
	calls := 0
	err := Run(ctx, p, func(int) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSleepNonPositive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, 0); err != nil {
		t.Errorf("Sleep(0) = %v, want nil", err)
	}
}

func TestDoPermanent(t *testing.T) {
	p := Policy{MaxAttempts: 5, Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}
	bad := errors.New("bad request")
	calls := 0
	err := Run(context.Background(), p, func(int) error {
		calls++
		return Permanent(bad)
	})
	if err != bad {
		t.Fatalf("Run() error = %v, want the unwrapped permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
