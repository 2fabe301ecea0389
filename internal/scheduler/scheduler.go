// Package scheduler owns the Task registry, lifecycle state machine, and
// dependency DAG (C10). It resolves the single design question spec.md
// leaves open between "task scheduler" and "queue scheduler": this package
// owns both the dependency graph (new relative to the teacher, whose
// Scheduler has no dependency concept) and submission to the queue
// (present in the teacher's scheduler.go), unlike
// control_plane/scheduler/scheduler.go which only owns the execution
// queue/circuit breaker/node health.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/itskum47/aidos-core/internal/clock"
	"github.com/itskum47/aidos-core/internal/taskqueue"
)

// Status is a Task's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusBlocked   Status = "BLOCKED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority mirrors spec.md §3's Task.priority enum.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Task is a unit of work tracked by the scheduler.
type Task struct {
	ID           string                 `validate:"required,uuid4"`
	Name         string                 `validate:"required,min=1,max=200"`
	AgentID      string
	Payload      map[string]interface{}
	Priority     Priority
	Dependencies []string `validate:"max=100"`
	Status       Status
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Retries      int `validate:"gte=0"`
	MaxRetries   int `validate:"gte=0,lte=10"`
	TimeoutMs    int `validate:"gte=1000,lte=3600000"`
	Error        string
	Result       interface{}
}

// Event is emitted to subscribers for every lifecycle transition.
type Event struct {
	Type   string // task_started, task_completed, task_failed, task_blocked, task_retry_scheduled
	TaskID string
	Retry  bool
	Error  string
	DelayMs int
}

// EventHandler receives scheduler events. Multiple handlers may be
// registered; each is invoked synchronously and best-effort, matching the
// teacher's direct-call event style in control_plane/scheduler/scheduler.go's
// logDecision (no buffering, no dropped-event guarantees beyond "don't
// block the caller forever" since handlers run inline).
type EventHandler func(Event)

// Executor runs a task's payload for a specific agent.
type Executor func(ctx context.Context, taskID string, payload map[string]interface{}) (interface{}, error)

var (
	ErrCyclicDependency = errors.New("scheduler: dependency cycle detected")
	ErrUnknownTask       = errors.New("scheduler: unknown task id")
)

// StatusCounts aggregates tasks by status.
type StatusCounts struct {
	Pending   int
	Blocked   int
	Running   int
	Completed int
	Failed    int
}

// Scheduler owns the Task registry and drives it through its lifecycle.
type Scheduler struct {
	mu       sync.Mutex
	clock    clock.Clock
	validate *validator.Validate
	tasks    map[string]*Task
	handlers []EventHandler
	tq       *taskqueue.Service
	queue    string
}

// New creates a Scheduler submitting jobs onto tq's queue.
func New(c clock.Clock, tq *taskqueue.Service, queueName string) *Scheduler {
	return &Scheduler{
		clock:    c,
		validate: validator.New(),
		tasks:    make(map[string]*Task),
		tq:       tq,
		queue:    queueName,
	}
}

// OnEvent registers a subscriber for all scheduler events.
func (s *Scheduler) OnEvent(h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *Scheduler) emit(e Event) {
	s.mu.Lock()
	handlers := make([]EventHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()
	for _, h := range handlers {
		h(e)
	}
}

// RegisterExecutor attaches fn as the processor for agentID, wrapping it so
// task completion updates this Task's state and fires events, bridging
// C9's agentId-keyed processor contract back into C10's task lifecycle.
func (s *Scheduler) RegisterExecutor(agentID string, fn Executor) {
	s.tq.RegisterProcessor(agentID, func(ctx context.Context, taskID string, payload map[string]interface{}) (interface{}, error) {
		result, err := fn(ctx, taskID, payload)
		if err != nil {
			s.onTaskFailed(taskID, err.Error(), false)
			return nil, err
		}
		s.onTaskCompleted(taskID, result)
		return result, nil
	})
}

// AddTask validates and registers task, returning its id. Cycles in the
// dependency graph are rejected here rather than discovered later.
func (s *Scheduler) AddTask(t Task) (string, error) {
	if t.ID == "" {
		t.ID = s.clock.NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.clock.Now()
	}
	if t.TimeoutMs == 0 {
		t.TimeoutMs = 30000
	}
	t.Status = StatusPending
	t.Retries = 0

	if err := s.validate.Struct(t); err != nil {
		return "", err
	}

	s.mu.Lock()

	s.tasks[t.ID] = &t

	if err := s.detectCycle(t.ID); err != nil {
		delete(s.tasks, t.ID)
		s.mu.Unlock()
		return "", err
	}

	blocked := s.blockedLocked(&t)
	if blocked {
		t.Status = StatusBlocked
	}
	s.mu.Unlock()

	if blocked {
		s.emit(Event{Type: "task_blocked", TaskID: t.ID})
	}

	return t.ID, nil
}

func (s *Scheduler) detectCycle(start string) error {
	visited := make(map[string]int) // 0 unvisited, 1 visiting, 2 done
	var visit func(id string) error
	visit = func(id string) error {
		switch visited[id] {
		case 1:
			return ErrCyclicDependency
		case 2:
			return nil
		}
		visited[id] = 1
		task, ok := s.tasks[id]
		if ok {
			for _, dep := range task.Dependencies {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		visited[id] = 2
		return nil
	}
	return visit(start)
}

func (s *Scheduler) blockedLocked(t *Task) bool {
	for _, dep := range t.Dependencies {
		depTask, ok := s.tasks[dep]
		if !ok || !depTask.Status.terminal() {
			return true
		}
		if depTask.Status == StatusFailed {
			return true // will be fail-fast propagated, stays non-runnable
		}
	}
	return false
}

// ScheduleTask transitions taskID to RUNNING and submits it to the queue,
// unless a dependency is still non-terminal, in which case the task
// transitions to BLOCKED and task_blocked is emitted instead (§4.10: "before
// a task can leave PENDING it must have all dependencies COMPLETED").
func (s *Scheduler) ScheduleTask(taskID, agentID string) error {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownTask
	}

	if s.blockedLocked(t) {
		t.Status = StatusBlocked
		s.mu.Unlock()
		s.emit(Event{Type: "task_blocked", TaskID: taskID})
		return nil
	}

	now := s.clock.Now()
	t.Status = StatusRunning
	t.StartedAt = &now
	t.AgentID = agentID
	s.mu.Unlock()

	s.emit(Event{Type: "task_started", TaskID: taskID})

	_, err := s.tq.AddTask(taskID, t.Name, agentID, t.Payload, taskqueue.AddTaskOptions{
		Priority:  int(t.Priority),
		TimeoutMs: t.TimeoutMs,
		Retries:   t.MaxRetries,
	})
	if err != nil {
		s.mu.Lock()
		t.Status = StatusFailed
		t.Error = err.Error()
		s.mu.Unlock()
		s.emit(Event{Type: "task_failed", TaskID: taskID, Retry: false, Error: err.Error()})
		return err
	}
	return nil
}

// ScheduleDelayedTask emits task_retry_scheduled carrying delayMs. It does
// not resubmit the task or record anything: callers drive the delay (e.g.
// via internal/cronutil or a ticker) and call ScheduleTask once it has
// passed, matching spec.md's event-first description of retry scheduling.
func (s *Scheduler) ScheduleDelayedTask(taskID, agentID string, delayMs int) {
	s.emit(Event{Type: "task_retry_scheduled", TaskID: taskID, DelayMs: delayMs})
}

func (s *Scheduler) onTaskCompleted(taskID string, result interface{}) {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.Result = result
	s.unblockDependents(taskID)
	s.mu.Unlock()

	s.emit(Event{Type: "task_completed", TaskID: taskID})
}

func (s *Scheduler) onTaskFailed(taskID, errMsg string, retry bool) {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()

	if retry && t.Retries < t.MaxRetries {
		t.Retries++
		s.mu.Unlock()
		s.emit(Event{Type: "task_retry_scheduled", TaskID: taskID})
		return
	}

	t.Status = StatusFailed
	t.CompletedAt = &now
	t.Error = errMsg
	s.failDependents(taskID)
	s.mu.Unlock()

	s.emit(Event{Type: "task_failed", TaskID: taskID, Retry: false, Error: errMsg})
}

// unblockDependents re-checks tasks depending on taskID; if all their
// dependencies are now satisfied, they transition PENDING and the caller
// is expected to schedule them (the scheduler does not self-dispatch —
// matching spec.md's explicit-call contract for scheduleTask).
func (s *Scheduler) unblockDependents(completedID string) {
	for _, t := range s.tasks {
		if t.Status != StatusBlocked {
			continue
		}
		dependsOn := false
		for _, dep := range t.Dependencies {
			if dep == completedID {
				dependsOn = true
				break
			}
		}
		if !dependsOn {
			continue
		}
		if !s.blockedLocked(t) {
			t.Status = StatusPending
		}
	}
}

// failDependents fail-fast propagates FAILED to every task (transitively)
// depending on failedID.
func (s *Scheduler) failDependents(failedID string) {
	now := s.clock.Now()
	changed := true
	for changed {
		changed = false
		for _, t := range s.tasks {
			if t.Status.terminal() {
				continue
			}
			for _, dep := range t.Dependencies {
				if dep == failedID && t.ID != failedID {
					t.Status = StatusFailed
					t.CompletedAt = &now
					t.Error = fmt.Sprintf("dependency %s failed", failedID)
					changed = true
					s.emit(Event{Type: "task_failed", TaskID: t.ID, Retry: false, Error: t.Error})
					break
				}
			}
		}
	}
}

// GetStatus aggregates counts by status.
func (s *Scheduler) GetStatus() StatusCounts {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c StatusCounts
	for _, t := range s.tasks {
		switch t.Status {
		case StatusPending:
			c.Pending++
		case StatusBlocked:
			c.Blocked++
		case StatusRunning:
			c.Running++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// GetTask returns a copy of the task registered under id.
func (s *Scheduler) GetTask(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrUnknownTask
	}
	return *t, nil
}

// Requirement is the top-level request object the API layer hands the
// core, decomposed externally into dependent Tasks. Grounded on
// spec.md §1's glossary definition and control_plane/api.go's
// one-HTTP-call-per-action pattern, lifted to a programmatic surface:
// original_source/ kept no files for this concept (0 kept, 14 filtered),
// so this is reconstructed from the glossary alone.
type Requirement struct {
	ID              string
	Text            string
	SubmittedBy     string
	CreatedAt       time.Time
	DecomposedTaskIDs []string
}

// AddRequirement validates and adds every task in tasks, all-or-nothing
// against the in-memory registry (not cross-process atomicity — AddTask's
// own validation/cycle-detection still applies per task). On any task
// failing validation, no task from this call is registered. req is not
// stored, and its id is not recorded on the tasks.
func (s *Scheduler) AddRequirement(req Requirement, tasks []Task) ([]string, error) {
	added := make([]string, 0, len(tasks))
	for _, t := range tasks {
		id, err := s.AddTask(t)
		if err != nil {
			for _, rollbackID := range added {
				s.mu.Lock()
				delete(s.tasks, rollbackID)
				s.mu.Unlock()
			}
			return nil, fmt.Errorf("scheduler: AddRequirement failed on task %q: %w", t.Name, err)
		}
		added = append(added, id)
	}
	return added, nil
}

// IsComplete reports whether the registry is non-empty and every task is
// in a terminal state.
func (s *Scheduler) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return false
	}
	for _, t := range s.tasks {
		if !t.Status.terminal() {
			return false
		}
	}
	return true
}
