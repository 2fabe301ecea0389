package guardian

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itskum47/aidos-core/internal/clock"
)

func TestGuardianRecoversAfterTransientFailure(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	var checks int
	healthCheck := func(ctx context.Context) error {
		checks++
		if checks == 1 {
			return errors.New("down")
		}
		return nil
	}
	var restarted bool
	restart := func(ctx context.Context) error { restarted = true; return nil }

	g := New(c, Config{HealthCheckInterval: time.Second, MaxRestartAttempts: 3, RestartDelay: 0}, healthCheck, restart)
	g.Start()

	var transitions []State
	g.OnTransition(func(from, to State) { transitions = append(transitions, to) })

	g.CheckOnce(context.Background())

	if !restarted {
		t.Fatal("expected restart to be attempted")
	}
	if g.State() != StateRunning {
		t.Fatalf("expected RUNNING after recovery, got %s", g.State())
	}
}

func TestGuardianFailsAfterMaxRestarts(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	healthCheck := func(ctx context.Context) error { return errors.New("down") }
	restart := func(ctx context.Context) error { return errors.New("restart failed") }

	g := New(c, Config{HealthCheckInterval: time.Second, MaxRestartAttempts: 2, RestartDelay: 0}, healthCheck, restart)
	g.Start()

	for i := 0; i < 5; i++ {
		g.CheckOnce(context.Background())
	}

	if g.State() != StateFailed {
		t.Fatalf("expected FAILED after exhausting restarts, got %s", g.State())
	}
}

func TestGuardianStopIsTerminal(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	g := New(c, DefaultConfig(), func(ctx context.Context) error { return nil }, func(ctx context.Context) error { return nil })
	g.Start()
	g.Stop()
	if g.State() != StateStopped {
		t.Fatalf("expected STOPPED, got %s", g.State())
	}
	g.CheckOnce(context.Background())
	if g.State() != StateStopped {
		t.Fatal("expected CheckOnce to be a no-op once stopped")
	}
}
