// Package guardian implements the Process Guardian (C17): a bounded
// health-check/restart supervision loop. Adapted from
// control_plane/coordination/leader.go's state machine shape and its
// transition-count telemetry (State, transitions int64, GetState()),
// generalized from "leader election across a cluster" to "local process
// health supervision" — this spec has no distributed consensus (an
// explicit Non-goal), so the durable fencing-epoch/lock machinery that
// file needs for cluster coordination has no home here; only the
// state-machine/telemetry idiom carries over.
package guardian

import (
	"context"
	"sync"
	"time"

	"github.com/itskum47/aidos-core/internal/clock"
)

// State is the Guardian's lifecycle state.
type State string

const (
	StateStarting   State = "STARTING"
	StateRunning    State = "RUNNING"
	StateUnhealthy  State = "UNHEALTHY"
	StateRestarting State = "RESTARTING"
	StateFailed     State = "FAILED"
	StateStopped    State = "STOPPED"
)

// HealthCheckFunc reports nil if the supervised process is healthy.
type HealthCheckFunc func(ctx context.Context) error

// RestartFunc attempts to restart the supervised process.
type RestartFunc func(ctx context.Context) error

// TransitionHandler is invoked on every state change.
type TransitionHandler func(from, to State)

// Config configures the Guardian per spec.md §6 defaults.
type Config struct {
	HealthCheckInterval time.Duration
	MaxRestartAttempts  int
	RestartDelay        time.Duration
}

// DefaultConfig matches spec.md: healthCheckInterval 30s,
// maxRestartAttempts 3, restartDelay 5s.
func DefaultConfig() Config {
	return Config{HealthCheckInterval: 30 * time.Second, MaxRestartAttempts: 3, RestartDelay: 5 * time.Second}
}

// Guardian runs healthCheckFn on an interval and drives restartFn up to
// maxRestartAttempts on failure, per spec.md §4.17's state machine.
type Guardian struct {
	clock       clock.Clock
	cfg         Config
	healthCheck HealthCheckFunc
	restart     RestartFunc

	mu              sync.Mutex
	state           State
	restartAttempts int
	transitions     int64
	handlers        []TransitionHandler
}

// New creates a Guardian in STARTING state.
func New(c clock.Clock, cfg Config, healthCheck HealthCheckFunc, restart RestartFunc) *Guardian {
	return &Guardian{
		clock:       c,
		cfg:         cfg,
		healthCheck: healthCheck,
		restart:     restart,
		state:       StateStarting,
	}
}

// OnTransition registers a handler invoked on every state change.
func (g *Guardian) OnTransition(h TransitionHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, h)
}

func (g *Guardian) transitionLocked(to State) {
	from := g.state
	if from == to {
		return
	}
	g.state = to
	g.transitions++
	handlers := append([]TransitionHandler(nil), g.handlers...)
	g.mu.Unlock()
	for _, h := range handlers {
		h(from, to)
	}
	g.mu.Lock()
}

// State returns the current state.
func (g *Guardian) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Start transitions STARTING -> RUNNING, marking the supervised process
// as initially up.
func (g *Guardian) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transitionLocked(StateRunning)
}

// Stop transitions to STOPPED, a terminal state.
func (g *Guardian) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transitionLocked(StateStopped)
}

// CheckOnce runs one health check and drives the state machine: a
// failure moves RUNNING -> UNHEALTHY and triggers a bounded restart
// sequence; a passing check after RESTARTING resets restartAttempts and
// returns to RUNNING.
func (g *Guardian) CheckOnce(ctx context.Context) {
	g.mu.Lock()
	if g.state == StateFailed || g.state == StateStopped {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	err := g.healthCheck(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		g.restartAttempts = 0
		if g.state == StateUnhealthy || g.state == StateRestarting || g.state == StateStarting {
			g.transitionLocked(StateRunning)
		}
		return
	}

	g.transitionLocked(StateUnhealthy)
	g.attemptRestartLocked(ctx)
}

func (g *Guardian) attemptRestartLocked(ctx context.Context) {
	if g.restartAttempts >= g.cfg.MaxRestartAttempts {
		g.transitionLocked(StateFailed)
		return
	}
	g.restartAttempts++
	g.transitionLocked(StateRestarting)

	g.mu.Unlock()
	time.Sleep(g.cfg.RestartDelay)
	err := g.restart(ctx)
	g.mu.Lock()

	if err != nil {
		g.transitionLocked(StateUnhealthy)
		return
	}
	g.restartAttempts = 0
	g.transitionLocked(StateRunning)
}

// Run blocks, invoking CheckOnce every HealthCheckInterval until ctx is
// cancelled or the state reaches FAILED/STOPPED.
func (g *Guardian) Run(ctx context.Context) {
	g.Start()
	ticker := time.NewTicker(g.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.Stop()
			return
		case <-ticker.C:
			g.CheckOnce(ctx)
			if s := g.State(); s == StateFailed || s == StateStopped {
				return
			}
		}
	}
}

// Transitions returns the total number of state transitions observed,
// mirroring the teacher's LeaderState.Transitions telemetry field.
func (g *Guardian) Transitions() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transitions
}
