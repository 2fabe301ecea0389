// Package metrics implements the Metrics Service (C12): a named-metric
// registry with bounded client-side history, backed by
// github.com/prometheus/client_golang for the scrapeable side, directly
// grounded on control_plane/observability/metrics.go's
// Gauge/Counter/Histogram-per-name style.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/itskum47/aidos-core/internal/clock"
)

// Type is a metric's kind.
type Type string

const (
	TypeCounter   Type = "COUNTER"
	TypeGauge     Type = "GAUGE"
	TypeHistogram Type = "HISTOGRAM"
)

// Point is one (timestamp, value) observation in a metric's history.
type Point struct {
	Timestamp time.Time
	Value     float64
}

type entry struct {
	mtype   Type
	history []Point
	last    float64
}

// DefaultRetention matches spec.md §3: bounded history, retention default 1h.
const DefaultRetention = time.Hour

// Registry is the Metrics Service (C12). Prometheus client_golang has no
// client-side history/percentile query API, so this keeps its own
// ring-buffer-like history alongside registering the same values with
// promauto, giving both spec.md's required query surface and a
// scrapeable /metrics endpoint the way control_plane/main.go wires
// promhttp.Handler.
type Registry struct {
	mu        sync.Mutex
	clock     clock.Clock
	retention time.Duration
	entries   map[string]*entry

	promReg    *prometheus.Registry
	factory    promauto.Factory
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]prometheus.Histogram
}

// New creates a Registry trimming history older than retention on every
// write. Each Registry owns its own prometheus.Registry (rather than
// registering into the global DefaultRegisterer) so that multiple
// Registry instances in the same process — e.g. in tests — never collide
// over metric names.
func New(c clock.Clock, retention time.Duration) *Registry {
	promReg := prometheus.NewRegistry()
	return &Registry{
		clock:      c,
		retention:  retention,
		entries:    make(map[string]*entry),
		promReg:    promReg,
		factory:    promauto.With(promReg),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Gatherer exposes the underlying prometheus.Registry for wiring into
// promhttp.HandlerFor, matching control_plane/main.go's /metrics endpoint.
func (r *Registry) Gatherer() *prometheus.Registry { return r.promReg }

func (r *Registry) entryFor(name string, mtype Type) *entry {
	e, ok := r.entries[name]
	if !ok {
		e = &entry{mtype: mtype}
		r.entries[name] = e
	}
	return e
}

func (r *Registry) record(name string, mtype Type, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryFor(name, mtype)
	e.last = value
	e.history = append(e.history, Point{Timestamp: r.clock.Now(), Value: value})
	e.history = trimHistory(e.history, r.clock.Now(), r.retention)
}

func trimHistory(points []Point, now time.Time, retention time.Duration) []Point {
	cutoff := now.Add(-retention)
	out := points[:0]
	for _, p := range points {
		if p.Timestamp.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

func sanitizeName(name string) string {
	return "aidos_" + name
}

func (r *Registry) promCounter(name string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[name]
	if !ok {
		c = r.factory.NewCounterVec(prometheus.CounterOpts{
			Name: sanitizeName(name) + "_total",
			Help: name + " counter",
		}, []string{"tags"})
		r.counters[name] = c
	}
	return c
}

func (r *Registry) promGauge(name string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gauges[name]
	if !ok {
		g = r.factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: sanitizeName(name),
			Help: name + " gauge",
		}, []string{"tags"})
		r.gauges[name] = g
	}
	return g
}

func (r *Registry) promHistogram(name string) prometheus.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histograms[name]
	if !ok {
		h = r.factory.NewHistogram(prometheus.HistogramOpts{
			Name:    sanitizeName(name) + "_seconds",
			Help:    name + " histogram",
			Buckets: prometheus.DefBuckets,
		})
		r.histograms[name] = h
	}
	return h
}

// IncrementCounter increments name by delta. There is no implicit step: a
// delta of 0 leaves the value unchanged, so callers pass 1 explicitly.
func (r *Registry) IncrementCounter(name string, delta float64, tags string) {
	r.promCounter(name).WithLabelValues(tags).Add(delta)
	r.mu.Lock()
	e := r.entryFor(name, TypeCounter)
	e.last += delta
	cur := e.last
	r.mu.Unlock()
	r.record(name, TypeCounter, cur)
}

// SetGauge sets name to v.
func (r *Registry) SetGauge(name string, v float64, tags string) {
	r.promGauge(name).WithLabelValues(tags).Set(v)
	r.record(name, TypeGauge, v)
}

// RecordHistogram observes v for name.
func (r *Registry) RecordHistogram(name string, v float64) {
	r.promHistogram(name).Observe(v)
	r.record(name, TypeHistogram, v)
}

// GetValue returns the most recent recorded value for name.
func (r *Registry) GetValue(name string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return 0, false
	}
	return e.last, true
}

// GetHistory returns points for name within the last windowMs (0 = all
// retained history).
func (r *Registry) GetHistory(name string, windowMs int) []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	if windowMs <= 0 {
		out := make([]Point, len(e.history))
		copy(out, e.history)
		return out
	}
	cutoff := r.clock.Now().Add(-time.Duration(windowMs) * time.Millisecond)
	var out []Point
	for _, p := range e.history {
		if p.Timestamp.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// GetAverage returns the mean of name's history within windowMs.
func (r *Registry) GetAverage(name string, windowMs int) float64 {
	points := r.GetHistory(name, windowMs)
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points))
}

// GetPercentile returns the nearest-rank p-th percentile (0-100) of name's
// history within windowMs.
func (r *Registry) GetPercentile(name string, p float64, windowMs int) float64 {
	points := r.GetHistory(name, windowMs)
	if len(points) == 0 {
		return 0
	}
	values := make([]float64, len(points))
	for i, pt := range points {
		values[i] = pt.Value
	}
	sort.Float64s(values)

	rank := int(math.Ceil((p/100.0)*float64(len(values)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	if rank < 0 {
		rank = 0
	}
	return values[rank]
}
