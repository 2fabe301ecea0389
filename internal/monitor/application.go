package monitor

import (
	"sync"
	"time"

	"github.com/itskum47/aidos-core/internal/metrics"
)

// Health is a component's derived status.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// slowRequestThreshold matches spec.md §4.13: requests over 5s count as slow.
const slowRequestThreshold = 5 * time.Second

type endpointStats struct {
	count          int64
	totalDuration  time.Duration
	errors         int64
	slow           int64
	statusCodes    map[int]int64
}

type queueStats struct {
	depth    int
	waitTime time.Duration
}

type cacheStats struct {
	hits, misses int64
}

// ApplicationMonitor records per-endpoint/per-queue/per-cache operational
// metrics and derives a health tier from error/slow ratios, per spec.md
// §4.13. No single teacher file does this; the per-endpoint counter
// bucketing mirrors control_plane/observability/metrics.go's
// per-route RecordRequest style generalized across endpoint/queue/cache
// families instead of just HTTP routes.
type ApplicationMonitor struct {
	metrics *metrics.Registry

	mu        sync.Mutex
	endpoints map[string]*endpointStats
	queues    map[string]*queueStats
	cache     cacheStats
}

// NewApplicationMonitor creates an ApplicationMonitor recording into m.
func NewApplicationMonitor(m *metrics.Registry) *ApplicationMonitor {
	return &ApplicationMonitor{
		metrics:   m,
		endpoints: make(map[string]*endpointStats),
		queues:    make(map[string]*queueStats),
	}
}

// RecordRequest records one HTTP-style request against endpoint.
func (a *ApplicationMonitor) RecordRequest(endpoint string, duration time.Duration, statusCode int, isError bool) {
	a.metrics.RecordAPIRequest(endpoint, duration, isError)

	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.endpointStatsLocked(endpoint)
	s.count++
	s.totalDuration += duration
	if isError {
		s.errors++
	}
	if duration > slowRequestThreshold {
		s.slow++
	}
	s.statusCodes[statusCode]++
}

func (a *ApplicationMonitor) endpointStatsLocked(endpoint string) *endpointStats {
	s, ok := a.endpoints[endpoint]
	if !ok {
		s = &endpointStats{statusCodes: make(map[int]int64)}
		a.endpoints[endpoint] = s
	}
	return s
}

// RecordQueueDepth records a queue's current depth and average wait time.
func (a *ApplicationMonitor) RecordQueueDepth(queueName string, depth int, waitTime time.Duration) {
	a.metrics.SetQueueDepth(queueName, depth)
	a.metrics.RecordQueueWaitTime(waitTime)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.queues[queueName] = &queueStats{depth: depth, waitTime: waitTime}
}

// RecordCacheHit/RecordCacheMiss track cache hit rate.
func (a *ApplicationMonitor) RecordCacheHit() {
	a.mu.Lock()
	a.cache.hits++
	a.mu.Unlock()
}

func (a *ApplicationMonitor) RecordCacheMiss() {
	a.mu.Lock()
	a.cache.misses++
	a.mu.Unlock()
}

// CacheHitRate returns hits/(hits+misses), 0 if no cache activity yet —
// the same "rate = 0 when no denominator" rule spec.md's open question
// fixes for the API error rate.
func (a *ApplicationMonitor) CacheHitRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := a.cache.hits + a.cache.misses
	if total == 0 {
		return 0
	}
	return float64(a.cache.hits) / float64(total)
}

// EndpointHealth derives healthy/degraded/unhealthy for endpoint per
// spec.md §4.13's error%/slow% thresholds (degraded: error>5% or
// slow>5%; unhealthy: error>20% or slow>20%).
func (a *ApplicationMonitor) EndpointHealth(endpoint string) Health {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.endpoints[endpoint]
	if !ok || s.count == 0 {
		return HealthHealthy
	}
	errPct := float64(s.errors) / float64(s.count)
	slowPct := float64(s.slow) / float64(s.count)
	switch {
	case errPct > 0.20 || slowPct > 0.20:
		return HealthUnhealthy
	case errPct > 0.05 || slowPct > 0.05:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// AverageResponseTime returns the mean recorded duration for endpoint.
func (a *ApplicationMonitor) AverageResponseTime(endpoint string) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.endpoints[endpoint]
	if !ok || s.count == 0 {
		return 0
	}
	return s.totalDuration / time.Duration(s.count)
}
