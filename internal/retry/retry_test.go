package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itskum47/aidos-core/internal/clock"
	aidoserrors "github.com/itskum47/aidos-core/internal/errors"
)

func TestDelay_MonotonicAndCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JitterEnabled = false
	p := New(cfg, aidoserrors.New(clock.NewFake(time.Unix(0, 0))), nil, nil)

	d0 := p.Delay(0)
	if d0 != cfg.BaseDelay {
		t.Fatalf("Delay(0) = %v, want base delay %v", d0, cfg.BaseDelay)
	}

	prev := d0
	for attempt := 1; attempt < 10; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v is less than Delay(%d) = %v, want monotone increasing", attempt, d, attempt-1, prev)
		}
		if d > cfg.MaxDelay {
			t.Fatalf("Delay(%d) = %v exceeds MaxDelay %v", attempt, d, cfg.MaxDelay)
		}
		prev = d
	}
}

func TestExecute_RetryThenSuccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.MaxRetries = 3

	var retries []RetryEvent
	var failures []FailureEvent
	p := New(cfg, aidoserrors.New(clock.NewFake(time.Unix(0, 0))), func(e RetryEvent) {
		retries = append(retries, e)
	}, func(e FailureEvent) {
		failures = append(failures, e)
	})

	attempts := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("ECONNREFUSED")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Execute returned %v, want nil after eventual success", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(retries) != 2 {
		t.Fatalf("retry events = %d, want 2", len(retries))
	}
	if len(failures) != 0 {
		t.Fatalf("failure events = %d, want 0 on eventual success", len(failures))
	}
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.MaxRetries = 2

	var failures []FailureEvent
	p := New(cfg, aidoserrors.New(clock.NewFake(time.Unix(0, 0))), nil, func(e FailureEvent) {
		failures = append(failures, e)
	})

	attempts := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("ETIMEDOUT")
	})

	if err == nil {
		t.Fatalf("Execute returned nil, want exhausted error")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (first attempt + maxRetries retries)", attempts)
	}
	if len(failures) != 1 {
		t.Fatalf("failure events = %d, want 1", len(failures))
	}
}

func TestExecute_NonRetryableFailsImmediately(t *testing.T) {
	p := New(DefaultConfig(), aidoserrors.New(clock.NewFake(time.Unix(0, 0))), nil, nil)

	attempts := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("validation: invalid payload")
	})

	if err == nil {
		t.Fatalf("Execute should fail immediately on L3 UserInput errors")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry for non-retryable level)", attempts)
	}
}
