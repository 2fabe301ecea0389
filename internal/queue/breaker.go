package queue

import (
	"sync"
	"time"
)

// circuitState mirrors control_plane/scheduler/circuit_breaker.go's
// closed/half-open/open admission gate, generalized from scheduler
// queue-depth+worker-saturation to this queue's AddJob admission check.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitHalfOpen
	circuitOpen
)

// admissionBreaker gates AddJob under sustained overload.
type admissionBreaker struct {
	mu sync.Mutex

	state circuitState

	queueThreshold      int
	saturationThreshold float64
	cooldownPeriod      time.Duration

	openedAt  time.Time
	testCount int
	testLimit int

	now func() time.Time
}

func newAdmissionBreaker(queueThreshold int, now func() time.Time) *admissionBreaker {
	return &admissionBreaker{
		state:               circuitClosed,
		queueThreshold:      queueThreshold,
		saturationThreshold: 0.95,
		cooldownPeriod:      30 * time.Second,
		testLimit:           5,
		now:                 now,
	}
}

func (cb *admissionBreaker) shouldAdmit(queueDepth int, saturation float64) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitOpen && cb.now().Sub(cb.openedAt) > cb.cooldownPeriod {
		cb.state = circuitHalfOpen
		cb.testCount = 0
	}

	if cb.state == circuitHalfOpen {
		if cb.testCount < cb.testLimit {
			cb.testCount++
			return true
		}
		if queueDepth < cb.queueThreshold/2 && saturation < cb.saturationThreshold {
			cb.state = circuitClosed
			return true
		}
		return false
	}

	if queueDepth > cb.queueThreshold || saturation > cb.saturationThreshold {
		cb.state = circuitOpen
		cb.openedAt = cb.now()
		return false
	}

	return cb.state == circuitClosed
}

func (cb *admissionBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == circuitHalfOpen && cb.testCount >= cb.testLimit {
		cb.state = circuitClosed
	}
}

func (cb *admissionBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == circuitHalfOpen {
		cb.state = circuitOpen
		cb.openedAt = cb.now()
		cb.testCount = 0
	}
}

func (cb *admissionBreaker) String() string {
	switch cb.state {
	case circuitClosed:
		return "closed"
	case circuitHalfOpen:
		return "half_open"
	case circuitOpen:
		return "open"
	default:
		return "unknown"
	}
}
