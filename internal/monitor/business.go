package monitor

import (
	"sync"
	"time"

	"github.com/itskum47/aidos-core/internal/metrics"
)

type taskTypeStats struct {
	succeeded int64
	failed    int64
	avgMs     float64 // exponential moving average of processing time, ms
	firstAt   time.Time
	count     int64
}

// BusinessMonitor tracks per-task-type success rate, moving-average
// processing time, and throughput, deriving an overall business health
// tier the same way ApplicationMonitor derives per-endpoint health.
// Grounded on the general derived-health-from-periodic-samples shape of
// other_examples/529176dd_fumiya-kume-cca__pkg-agents-health.go.go,
// applied to task outcomes instead of infra samples.
type BusinessMonitor struct {
	metrics *metrics.Registry

	mu    sync.Mutex
	types map[string]*taskTypeStats
}

// emaAlpha weights the most recent sample at 20% per update, a
// conventional smoothing factor for moving-average processing time.
const emaAlpha = 0.2

// NewBusinessMonitor creates a BusinessMonitor recording into m.
func NewBusinessMonitor(m *metrics.Registry) *BusinessMonitor {
	return &BusinessMonitor{metrics: m, types: make(map[string]*taskTypeStats)}
}

// RecordOutcome records one completed task of taskType.
func (b *BusinessMonitor) RecordOutcome(taskType string, succeeded bool, duration time.Duration, now time.Time) {
	if succeeded {
		b.metrics.RecordTaskCompleted(duration)
	} else {
		b.metrics.RecordTaskFailed()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.types[taskType]
	if !ok {
		s = &taskTypeStats{firstAt: now}
		b.types[taskType] = s
	}
	if succeeded {
		s.succeeded++
	} else {
		s.failed++
	}
	s.count++
	ms := float64(duration.Milliseconds())
	if s.count == 1 {
		s.avgMs = ms
	} else {
		s.avgMs = emaAlpha*ms + (1-emaAlpha)*s.avgMs
	}
}

// SuccessRate returns succeeded/(succeeded+failed) for taskType, 0 if
// taskType is unseen or has had no completions.
func (b *BusinessMonitor) SuccessRate(taskType string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.types[taskType]
	if !ok || s.count == 0 {
		return 0
	}
	return float64(s.succeeded) / float64(s.count)
}

// AverageProcessingTime returns the moving-average processing time for
// taskType.
func (b *BusinessMonitor) AverageProcessingTime(taskType string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.types[taskType]
	if !ok {
		return 0
	}
	return time.Duration(s.avgMs) * time.Millisecond
}

// Throughput returns completions-per-second for taskType since its
// first recorded outcome, as of now.
func (b *BusinessMonitor) Throughput(taskType string, now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.types[taskType]
	if !ok || s.count == 0 {
		return 0
	}
	elapsed := now.Sub(s.firstAt).Seconds()
	if elapsed <= 0 {
		return float64(s.count)
	}
	return float64(s.count) / elapsed
}

// OverallHealth classifies business health the same way
// ApplicationMonitor.EndpointHealth does, aggregated across all task
// types: healthy (success rate >= 95%), degraded (>= 80%), else
// unhealthy.
func (b *BusinessMonitor) OverallHealth() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	var succeeded, total int64
	for _, s := range b.types {
		succeeded += s.succeeded
		total += s.count
	}
	if total == 0 {
		return HealthHealthy
	}
	rate := float64(succeeded) / float64(total)
	switch {
	case rate >= 0.95:
		return HealthHealthy
	case rate >= 0.80:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}
