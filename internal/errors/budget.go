package errors

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/itskum47/aidos-core/internal/clock"
)

// BudgetLevel is the health tier reported by a Budget's threshold check.
type BudgetLevel string

const (
	BudgetHealthy  BudgetLevel = "HEALTHY"
	BudgetWarning  BudgetLevel = "WARNING"
	BudgetError    BudgetLevel = "ERROR"
	BudgetCritical BudgetLevel = "CRITICAL"
)

// BudgetConfig configures a sliding-window error-rate tracker.
type BudgetConfig struct {
	TimeWindow        time.Duration
	WarningThreshold  float64 // error percentage, e.g. 0.05 for 5%
	ErrorThreshold    float64
	CriticalMultiplier float64 // critical = errorThreshold * multiplier
	AlertCooldown     time.Duration // default 30s per spec §4.5
}

// DefaultBudgetConfig returns spec-compliant defaults.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		TimeWindow:         60 * time.Second,
		WarningThreshold:   0.05,
		ErrorThreshold:     0.10,
		CriticalMultiplier: 2.0,
		AlertCooldown:      30 * time.Second,
	}
}

type event struct {
	at      time.Time
	isError bool
}

// AlertFunc is invoked on RecordError whenever the current level is above
// HEALTHY and the cooldown for that level has elapsed.
type AlertFunc func(level BudgetLevel, errorPct float64)

// Budget is a sliding-window error-rate tracker (C5). Optionally, each
// monitored key is backed by a sony/gobreaker CircuitBreaker so a caller can
// use Allow(key) as a single admission check that folds together the
// rate-window logic spec.md requires with a well-known half-open/closed
// state machine, instead of hand-rolling a second breaker the way the
// teacher's scheduler.CircuitBreaker does for queue depth (see
// internal/queue, which keeps that hand-rolled shape because it is gating on
// queue depth/saturation, not on an error rate).
type Budget struct {
	clock  clock.Clock
	cfg    BudgetConfig
	onAlert AlertFunc

	mu         sync.Mutex
	events     []event
	lastAlert  map[BudgetLevel]time.Time
	breakers   map[string]*gobreaker.CircuitBreaker
}

// NewBudget creates a Budget. onAlert may be nil.
func NewBudget(c clock.Clock, cfg BudgetConfig, onAlert AlertFunc) *Budget {
	return &Budget{
		clock:     c,
		cfg:       cfg,
		onAlert:   onAlert,
		lastAlert: make(map[BudgetLevel]time.Time),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// RecordSuccess records a successful operation at the current time.
func (b *Budget) RecordSuccess() { b.record(false) }

// RecordError records a failed operation at the current time and fires the
// alert callback if the level is above HEALTHY and out of cooldown.
func (b *Budget) RecordError() {
	b.record(true)
	level, pct := b.levelLocked()
	b.maybeAlert(level, pct)
}

func (b *Budget) record(isError bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event{at: b.clock.Now(), isError: isError})
	b.trimLocked()
}

func (b *Budget) trimLocked() {
	cutoff := b.clock.Now().Add(-b.cfg.TimeWindow)
	i := 0
	for ; i < len(b.events); i++ {
		if b.events[i].at.After(cutoff) {
			break
		}
	}
	b.events = b.events[i:]
}

// GetErrorRate returns the raw count of errors within the window.
func (b *Budget) GetErrorRate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trimLocked()
	count := 0
	for _, e := range b.events {
		if e.isError {
			count++
		}
	}
	return count
}

// GetErrorPercentage returns errors/total within the window, 0 if empty.
func (b *Budget) GetErrorPercentage() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trimLocked()
	return b.percentLocked()
}

func (b *Budget) percentLocked() float64 {
	if len(b.events) == 0 {
		return 0
	}
	errCount := 0
	for _, e := range b.events {
		if e.isError {
			errCount++
		}
	}
	return float64(errCount) / float64(len(b.events))
}

func (b *Budget) levelLocked() (BudgetLevel, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trimLocked()
	pct := b.percentLocked()
	return classifyLevel(pct, b.cfg), pct
}

func classifyLevel(pct float64, cfg BudgetConfig) BudgetLevel {
	critical := cfg.ErrorThreshold * cfg.CriticalMultiplier
	switch {
	case pct >= critical:
		return BudgetCritical
	case pct >= cfg.ErrorThreshold:
		return BudgetError
	case pct >= cfg.WarningThreshold:
		return BudgetWarning
	default:
		return BudgetHealthy
	}
}

// IsHealthy reports whether the current error rate is below the warning
// threshold.
func (b *Budget) IsHealthy() bool {
	level, _ := b.levelLocked()
	return level == BudgetHealthy
}

func (b *Budget) maybeAlert(level BudgetLevel, pct float64) {
	if b.onAlert == nil || level == BudgetHealthy {
		return
	}
	b.mu.Lock()
	now := b.clock.Now()
	last, seen := b.lastAlert[level]
	if seen && now.Sub(last) < b.cfg.AlertCooldown {
		b.mu.Unlock()
		return
	}
	b.lastAlert[level] = now
	b.mu.Unlock()

	b.onAlert(level, pct)
}

// Allow reports whether a call keyed by key should be admitted, combining
// this budget's rate window with a per-key gobreaker.CircuitBreaker. Allow
// returns false whenever the budget is CRITICAL; after three consecutive
// such rejections the key's breaker opens and rejects for AlertCooldown.
func (b *Budget) Allow(key string) bool {
	cb := b.breakerFor(key)
	_, err := cb.Execute(func() (interface{}, error) {
		level, _ := b.levelLocked()
		if level == BudgetCritical {
			return nil, errCriticalBudget
		}
		return nil, nil
	})
	return err == nil
}

func (b *Budget) breakerFor(key string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[key]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        key,
			MaxRequests: 1,
			Interval:    b.cfg.TimeWindow,
			Timeout:     b.cfg.AlertCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
		b.breakers[key] = cb
	}
	return cb
}

var errCriticalBudget = budgetCriticalError{}

type budgetCriticalError struct{}

func (budgetCriticalError) Error() string { return "error budget: critical error rate, rejecting" }
