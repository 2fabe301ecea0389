// Package retry implements the exponential-backoff retry policy (C4) that
// sits between the Error Classifier and the Queue Service.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	aidoserrors "github.com/itskum47/aidos-core/internal/errors"
)

// Config controls the backoff formula and which classification levels are
// retryable by Execute.
type Config struct {
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	JitterEnabled  bool
	MaxRetries     int
	RetryableLevels map[aidoserrors.Level]bool
}

// DefaultConfig matches spec §4.4/§6: only L2 Recoverable retries by default.
func DefaultConfig() Config {
	return Config{
		BaseDelay:     1 * time.Second,
		Multiplier:    2.0,
		MaxDelay:      30 * time.Second,
		JitterEnabled: true,
		MaxRetries:    3,
		RetryableLevels: map[aidoserrors.Level]bool{
			aidoserrors.LevelRecoverable: true,
		},
	}
}

// Decision is the outcome of shouldRetry.
type Decision struct {
	Retry  bool
	Delay  time.Duration
	Reason string
}

// RetryEvent is emitted before each wait.
type RetryEvent struct {
	Attempt    int
	Err        error
	Delay      time.Duration
	MaxRetries int
}

// FailureEvent is emitted once retries are exhausted.
type FailureEvent struct {
	Attempts int
	Err      error
}

// Policy computes backoff delays and drives Execute's retry loop.
type Policy struct {
	cfg        Config
	classifier *aidoserrors.Classifier
	onRetry    func(RetryEvent)
	onFailure  func(FailureEvent)
	rng        *rand.Rand
}

// New creates a Policy. onRetry/onFailure may be nil.
func New(cfg Config, classifier *aidoserrors.Classifier, onRetry func(RetryEvent), onFailure func(FailureEvent)) *Policy {
	return &Policy{
		cfg:        cfg,
		classifier: classifier,
		onRetry:    onRetry,
		onFailure:  onFailure,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay computes the backoff delay for the given zero-indexed attempt:
// min(base * multiplier^attempt, maxDelay) * jitter, jitter in [0.5, 1.5)
// when enabled.
func (p *Policy) Delay(attempt int) time.Duration {
	raw := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.Multiplier, float64(attempt))
	capped := math.Min(raw, float64(p.cfg.MaxDelay))

	jitter := 1.0
	if p.cfg.JitterEnabled {
		jitter = 0.5 + p.rng.Float64()
	}
	return time.Duration(capped * jitter)
}

// ShouldRetry decides whether to retry err given its classification and the
// zero-indexed attempt number just completed.
func (p *Policy) ShouldRetry(err error, class aidoserrors.Classification, attempt int) Decision {
	if !p.cfg.RetryableLevels[class.Level] {
		return Decision{Retry: false, Reason: "level not retryable: " + string(class.Level)}
	}
	maxRetries := p.cfg.MaxRetries
	if class.MaxRetries > 0 && class.MaxRetries < maxRetries {
		maxRetries = class.MaxRetries
	}
	if attempt >= maxRetries {
		return Decision{Retry: false, Reason: "max retries exhausted"}
	}
	return Decision{Retry: true, Delay: p.Delay(attempt)}
}

// Execute runs fn, retrying per policy on classified-retryable errors. It
// blocks for each backoff delay (or returns early if ctx is cancelled).
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		class := p.classifier.Classify(lastErr)
		decision := p.ShouldRetry(lastErr, class, attempt)
		if !decision.Retry {
			if p.onFailure != nil {
				p.onFailure(FailureEvent{Attempts: attempt + 1, Err: lastErr})
			}
			return lastErr
		}

		if p.onRetry != nil {
			p.onRetry(RetryEvent{Attempt: attempt + 1, Err: lastErr, Delay: decision.Delay, MaxRetries: p.cfg.MaxRetries})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(decision.Delay):
		}
	}
}

// BackOffAdapter exposes a Policy through the ecosystem's backoff.BackOff
// interface (github.com/cenkalti/backoff/v4), grounded on its use in
// other_examples/53d3f3fa_smartramana-developer-mesh__pkg-intelligence-service.go.go
// and in the SWARM control-plane's indirect dependency on
// github.com/cenkalti/backoff/v4. This lets any caller that already speaks
// backoff.BackOff (for instance a pgx/redis client retry wrapper) reuse our
// Policy's delay math without re-implementing the interface.
type BackOffAdapter struct {
	policy  *Policy
	attempt int
}

// NewBackOffAdapter wraps policy as a backoff.BackOff starting at attempt 0.
func NewBackOffAdapter(policy *Policy) *BackOffAdapter {
	return &BackOffAdapter{policy: policy}
}

var _ backoff.BackOff = (*BackOffAdapter)(nil)

func (a *BackOffAdapter) NextBackOff() time.Duration {
	if a.attempt >= a.policy.cfg.MaxRetries {
		return backoff.Stop
	}
	d := a.policy.Delay(a.attempt)
	a.attempt++
	return d
}

func (a *BackOffAdapter) Reset() { a.attempt = 0 }
