// Package healing implements the Self-Healing Service (C15): strategy
// matching against (metric, value, severity) triggers, ordered action
// execution with retry, and per-strategy cooldown. Strategy matching and
// cooldown bookkeeping are new relative to the teacher (FluxForge has no
// remediation-strategy concept); the command/script action executor is
// adapted from itskum47-FluxForge/fluxforge/agent/executor.go's
// Executor.Execute (stdout/stderr capture, exit-code extraction via
// syscall.WaitStatus), generalized from "run a remediation job dispatched
// to a remote agent" to "run a local remediation command," since this
// controller acts in-process rather than against a remote node.
package healing

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/itskum47/aidos-core/internal/alert"
	"github.com/itskum47/aidos-core/internal/clock"
)

// ActionKind enumerates the remediation action types spec.md names.
type ActionKind string

const (
	ActionCommand ActionKind = "command"
	ActionScript  ActionKind = "script"
	ActionRestart ActionKind = "restart"
	ActionScale   ActionKind = "scale"
	ActionNotify  ActionKind = "notify"
)

// Action is one remediation step.
type Action struct {
	Kind       ActionKind
	Command    string // for command/script
	Retryable  bool
	Target     string // for restart/scale
	Message    string // for notify
}

// Strategy binds a trigger to an ordered list of remediation Actions.
type Strategy struct {
	ID               string
	TriggerMetric    string
	TriggerSeverity  alert.Severity
	TriggerCondition func(value float64) bool
	Actions          []Action
	CooldownMs       int
	Enabled          bool
}

var severityRank = map[alert.Severity]int{
	alert.SeverityInfo:     0,
	alert.SeverityWarning:  1,
	alert.SeverityError:    2,
	alert.SeverityCritical: 3,
}

func (s Strategy) triggerSatisfied(metric string, value float64, severity alert.Severity) bool {
	if !s.Enabled || s.TriggerMetric != metric {
		return false
	}
	if severityRank[severity] < severityRank[s.TriggerSeverity] {
		return false
	}
	if s.TriggerCondition != nil && !s.TriggerCondition(value) {
		return false
	}
	return true
}

// ActionResult records one action's outcome.
type ActionResult struct {
	Action   Action
	Success  bool
	Output   string
	Error    string
	Attempts int
}

// HealingEvent is one completed healing attempt, retained in History.
type HealingEvent struct {
	StrategyID string
	Metric     string
	Value      float64
	Severity   alert.Severity
	Results    []ActionResult
	Success    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// NotificationFunc is invoked for `notify` actions and for lifecycle
// hooks (healingStarted/healingCompleted), matching spec.md §4.15's
// three emitted event names.
type NotificationFunc func(kind string, e HealingEvent)

// ActionRunner executes a single Action. The default runner shells out
// for command/script kinds (see runAction) and no-ops restart/scale
// (external collaborators per spec.md §1), but callers may supply their
// own for e.g. an orchestrator-integrated restart/scale implementation.
type ActionRunner func(ctx context.Context, a Action) (output string, err error)

const maxHistory = 500

// Service is the Self-Healing Service (C15).
type Service struct {
	clock       clock.Clock
	maxRetries  int
	retryDelay  time.Duration
	actionTimeout time.Duration
	runner      ActionRunner
	onNotify    NotificationFunc

	mu         sync.Mutex
	strategies []Strategy
	cooldownUntil map[string]time.Time
	history    []HealingEvent
	triggered  int
	skipped    int
}

// Config configures the service per spec.md §6 defaults.
type Config struct {
	MaxRetries    int
	RetryDelay    time.Duration
	ActionTimeout time.Duration
}

// DefaultConfig matches spec.md §6: maxRetries 3, retryDelayMs 5000,
// actionTimeoutMs 30000.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, RetryDelay: 5 * time.Second, ActionTimeout: 30 * time.Second}
}

// New creates a Service. runner defaults to runAction (os/exec-backed)
// if nil.
func New(c clock.Clock, cfg Config, runner ActionRunner) *Service {
	if runner == nil {
		runner = runAction
	}
	return &Service{
		clock:         c,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		actionTimeout: cfg.ActionTimeout,
		runner:        runner,
		cooldownUntil: make(map[string]time.Time),
	}
}

// OnNotify registers the handler invoked for healingStarted,
// healingCompleted, and notify actions.
func (s *Service) OnNotify(h NotificationFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNotify = h
}

// RegisterStrategy adds strat, checked in registration order.
func (s *Service) RegisterStrategy(strat Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies = append(s.strategies, strat)
}

// CheckResult reports whether a strategy fired and, if so, its outcome.
type CheckResult struct {
	Triggered  bool
	StrategyID string
	Event      HealingEvent
}

// CheckAndHeal selects the first enabled strategy whose trigger matches
// (metric, value, severity) and is not in cooldown, runs its actions in
// order (retrying retryable failures up to maxRetries, stopping on a
// non-retryable failure), and sets its cooldown, per spec.md §4.15.
func (s *Service) CheckAndHeal(ctx context.Context, metric string, value float64, severity alert.Severity) CheckResult {
	s.mu.Lock()
	var chosen *Strategy
	for i := range s.strategies {
		strat := &s.strategies[i]
		if !strat.triggerSatisfied(metric, value, severity) {
			continue
		}
		until, ok := s.cooldownUntil[strat.ID]
		if ok && s.clock.Now().Before(until) {
			continue
		}
		chosen = strat
		break
	}
	if chosen == nil {
		s.skipped++
		s.mu.Unlock()
		return CheckResult{Triggered: false}
	}
	s.cooldownUntil[chosen.ID] = s.clock.Now().Add(time.Duration(chosen.CooldownMs) * time.Millisecond)
	s.triggered++
	strat := *chosen
	onNotify := s.onNotify
	s.mu.Unlock()

	ev := HealingEvent{
		StrategyID: strat.ID,
		Metric:     metric,
		Value:      value,
		Severity:   severity,
		StartedAt:  s.clock.Now(),
		Success:    true,
	}
	if onNotify != nil {
		onNotify("healingStarted", ev)
	}

	for _, action := range strat.Actions {
		result := s.runWithRetry(ctx, action)
		ev.Results = append(ev.Results, result)
		if action.Kind == ActionNotify && onNotify != nil {
			onNotify("notification", ev)
		}
		if !result.Success {
			ev.Success = false
			break
		}
	}
	ev.FinishedAt = s.clock.Now()

	s.mu.Lock()
	s.history = append(s.history, ev)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
	s.mu.Unlock()

	if onNotify != nil {
		onNotify("healingCompleted", ev)
	}

	return CheckResult{Triggered: true, StrategyID: strat.ID, Event: ev}
}

func (s *Service) runWithRetry(ctx context.Context, a Action) ActionResult {
	var lastErr error
	var output string
	attempts := 0
	for {
		attempts++
		actionCtx, cancel := context.WithTimeout(ctx, s.actionTimeout)
		out, err := s.runner(actionCtx, a)
		cancel()
		output, lastErr = out, err
		if err == nil {
			return ActionResult{Action: a, Success: true, Output: output, Attempts: attempts}
		}
		if !a.Retryable || attempts > s.maxRetries {
			return ActionResult{Action: a, Success: false, Output: output, Error: lastErr.Error(), Attempts: attempts}
		}
		select {
		case <-ctx.Done():
			return ActionResult{Action: a, Success: false, Output: output, Error: ctx.Err().Error(), Attempts: attempts}
		case <-time.After(s.retryDelay):
		}
	}
}

// runAction is the default ActionRunner: command/script shell out via
// os/exec, restart/scale/notify are external-collaborator no-ops (spec.md
// §1 treats the orchestration layer that would perform them as out of
// scope), returning success so a healing chain isn't blocked on an
// integration this package doesn't own.
func runAction(ctx context.Context, a Action) (string, error) {
	switch a.Kind {
	case ActionCommand, ActionScript:
		cmd := exec.CommandContext(ctx, "sh", "-c", a.Command)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			exitCode := -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
					exitCode = ws.ExitStatus()
				}
			}
			return stdout.String() + stderr.String(), fmt.Errorf("exit %d: %w", exitCode, err)
		}
		return stdout.String(), nil
	default:
		return "", nil
	}
}

// Stats summarizes aggregate healing activity.
type Stats struct {
	Triggered int
	Skipped   int
}

// GetStats returns aggregate trigger/skip counters.
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Triggered: s.triggered, Skipped: s.skipped}
}

// History returns the last n healing events (n<=0 returns all retained).
func (s *Service) History(n int) []HealingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]HealingEvent, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}
