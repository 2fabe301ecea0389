package monitor

import (
	"testing"
	"time"

	"github.com/itskum47/aidos-core/internal/clock"
	"github.com/itskum47/aidos-core/internal/metrics"
)

func TestApplicationMonitorHealthThresholds(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	m := metrics.New(c, metrics.DefaultRetention)
	a := NewApplicationMonitor(m)

	for i := 0; i < 10; i++ {
		a.RecordRequest("/tasks", 10*time.Millisecond, 200, false)
	}
	if got := a.EndpointHealth("/tasks"); got != HealthHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}

	for i := 0; i < 2; i++ {
		a.RecordRequest("/tasks", 10*time.Millisecond, 500, true)
	}
	if got := a.EndpointHealth("/tasks"); got != HealthDegraded {
		t.Fatalf("expected degraded after errors, got %s", got)
	}
}

func TestApplicationMonitorCacheHitRateZeroDenominator(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	m := metrics.New(c, metrics.DefaultRetention)
	a := NewApplicationMonitor(m)

	if got := a.CacheHitRate(); got != 0 {
		t.Fatalf("expected 0 with no cache activity, got %f", got)
	}
	a.RecordCacheHit()
	a.RecordCacheHit()
	a.RecordCacheMiss()
	if got := a.CacheHitRate(); got < 0.66 || got > 0.67 {
		t.Fatalf("expected ~0.667, got %f", got)
	}
}

func TestBusinessMonitorSuccessRateAndHealth(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	m := metrics.New(c, metrics.DefaultRetention)
	b := NewBusinessMonitor(m)

	now := c.Now()
	for i := 0; i < 19; i++ {
		b.RecordOutcome("develop", true, 100*time.Millisecond, now)
	}
	b.RecordOutcome("develop", false, 100*time.Millisecond, now)

	if rate := b.SuccessRate("develop"); rate < 0.94 || rate > 0.96 {
		t.Fatalf("expected ~0.95 success rate, got %f", rate)
	}
	if h := b.OverallHealth(); h != HealthHealthy {
		t.Fatalf("expected healthy at 95%%, got %s", h)
	}
}

func TestBusinessMonitorUnseenTaskType(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	m := metrics.New(c, metrics.DefaultRetention)
	b := NewBusinessMonitor(m)

	if rate := b.SuccessRate("unknown"); rate != 0 {
		t.Fatalf("expected 0 for unseen task type, got %f", rate)
	}
	if h := b.OverallHealth(); h != HealthHealthy {
		t.Fatalf("expected healthy default with no data, got %s", h)
	}
}
