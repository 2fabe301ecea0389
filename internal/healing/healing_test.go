package healing

import (
	"context"
	"testing"
	"time"

	"github.com/itskum47/aidos-core/internal/alert"
	"github.com/itskum47/aidos-core/internal/clock"
)

// TestCooldownFiresOnce implements spec.md §8 scenario 6: a strategy
// triggered twice within its cooldown window fires its actions exactly
// once.
func TestCooldownFiresOnce(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	var runs int
	runner := func(ctx context.Context, a Action) (string, error) {
		runs++
		return "ok", nil
	}
	svc := New(c, DefaultConfig(), runner)
	svc.RegisterStrategy(Strategy{
		ID:              "cpu-high",
		TriggerMetric:   "cpu",
		TriggerSeverity: alert.SeverityWarning,
		TriggerCondition: func(v float64) bool { return v > 80 },
		Actions:         []Action{{Kind: ActionCommand, Command: "echo hi"}},
		CooldownMs:      300000,
		Enabled:         true,
	})

	r1 := svc.CheckAndHeal(context.Background(), "cpu", 90, alert.SeverityWarning)
	c.Advance(500 * time.Millisecond)
	r2 := svc.CheckAndHeal(context.Background(), "cpu", 90, alert.SeverityWarning)

	if !r1.Triggered {
		t.Fatal("expected first call to trigger")
	}
	if r2.Triggered {
		t.Fatal("expected second call within cooldown to not trigger")
	}
	if runs != 1 {
		t.Fatalf("expected actions to run exactly once, got %d", runs)
	}
}

func TestCooldownExpiresAfterWindow(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	var runs int
	runner := func(ctx context.Context, a Action) (string, error) { runs++; return "", nil }
	svc := New(c, DefaultConfig(), runner)
	svc.RegisterStrategy(Strategy{
		ID: "mem-high", TriggerMetric: "memory", TriggerSeverity: alert.SeverityWarning,
		TriggerCondition: func(v float64) bool { return v > 80 },
		Actions:          []Action{{Kind: ActionRestart, Target: "worker"}},
		CooldownMs:       1000, Enabled: true,
	})

	svc.CheckAndHeal(context.Background(), "memory", 90, alert.SeverityWarning)
	c.Advance(2 * time.Second)
	r := svc.CheckAndHeal(context.Background(), "memory", 90, alert.SeverityWarning)

	if !r.Triggered {
		t.Fatal("expected trigger after cooldown expires")
	}
	if runs != 2 {
		t.Fatalf("expected 2 runs, got %d", runs)
	}
}

func TestNonRetryableStopsChain(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	var secondRan bool
	runner := func(ctx context.Context, a Action) (string, error) {
		if a.Message == "second" {
			secondRan = true
			return "", nil
		}
		return "", context.DeadlineExceeded
	}
	svc := New(c, DefaultConfig(), runner)
	svc.RegisterStrategy(Strategy{
		ID: "s1", TriggerMetric: "x", TriggerSeverity: alert.SeverityInfo,
		TriggerCondition: func(v float64) bool { return true },
		Actions: []Action{
			{Kind: ActionCommand, Retryable: false, Message: "first"},
			{Kind: ActionNotify, Message: "second"},
		},
		Enabled: true,
	})

	r := svc.CheckAndHeal(context.Background(), "x", 1, alert.SeverityInfo)
	if r.Event.Success {
		t.Fatal("expected overall failure since first action is non-retryable and fails")
	}
	if secondRan {
		t.Fatal("expected chain to stop before the second action")
	}
}
