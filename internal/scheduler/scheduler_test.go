package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/itskum47/aidos-core/internal/clock"
	"github.com/itskum47/aidos-core/internal/queue"
	"github.com/itskum47/aidos-core/internal/taskqueue"
)

func newTestScheduler() (*Scheduler, *queue.Service) {
	c := clock.NewSystem()
	q := queue.New(c, 1000, 1000, 1000, queue.DefaultRetention())
	tq := taskqueue.New(q, "tasks")
	s := New(c, tq, "tasks")

	ctx, cancel := context.WithCancel(context.Background())
	q.CreateWorker(ctx, "tasks", 2, tq.ProcessTask)
	_ = cancel // worker stopped when test process exits; acceptable for unit tests

	return s, q
}

func TestAddTask_RejectsCycles(t *testing.T) {
	s, _ := newTestScheduler()

	idA, err := s.AddTask(Task{ID: "11111111-1111-4111-8111-111111111111", Name: "a", TimeoutMs: 5000, Dependencies: []string{"22222222-2222-4222-8222-222222222222"}})
	if err != nil {
		t.Fatalf("AddTask a: %v", err)
	}

	_, err = s.AddTask(Task{ID: "22222222-2222-4222-8222-222222222222", Name: "b", TimeoutMs: 5000, Dependencies: []string{idA}})
	if err == nil {
		t.Fatalf("expected cycle rejection when b depends on a which depends on b")
	}
}

func TestScheduleTask_HappyPathEmitsEvents(t *testing.T) {
	s, _ := newTestScheduler()

	s.RegisterExecutor("full_stack_developer", func(ctx context.Context, taskID string, payload map[string]interface{}) (interface{}, error) {
		return map[string]string{"status": "done"}, nil
	})

	var events []string
	s.OnEvent(func(e Event) {
		events = append(events, e.Type)
	})

	taskID, err := s.AddTask(Task{Name: "implement", TimeoutMs: 5000, MaxRetries: 2})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if err := s.ScheduleTask(taskID, "full_stack_developer"); err != nil {
		t.Fatalf("ScheduleTask: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, _ := s.GetTask(taskID)
		if task.Status.terminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	task, err := s.GetTask(taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", task.Status)
	}

	if len(events) < 2 || events[0] != "task_started" || events[len(events)-1] != "task_completed" {
		t.Fatalf("events = %v, want [task_started, ..., task_completed]", events)
	}
}

func TestDependency_BlockedUntilDependencyCompletes(t *testing.T) {
	s, _ := newTestScheduler()

	parentID, err := s.AddTask(Task{Name: "parent", TimeoutMs: 5000})
	if err != nil {
		t.Fatalf("AddTask parent: %v", err)
	}

	childID, err := s.AddTask(Task{Name: "child", TimeoutMs: 5000, Dependencies: []string{parentID}})
	if err != nil {
		t.Fatalf("AddTask child: %v", err)
	}

	child, _ := s.GetTask(childID)
	if child.Status != StatusBlocked {
		t.Fatalf("child status = %s, want BLOCKED before parent completes", child.Status)
	}

	s.RegisterExecutor("worker", func(ctx context.Context, taskID string, payload map[string]interface{}) (interface{}, error) {
		return "ok", nil
	})
	if err := s.ScheduleTask(parentID, "worker"); err != nil {
		t.Fatalf("ScheduleTask parent: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p, _ := s.GetTask(parentID)
		if p.Status == StatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	child, _ = s.GetTask(childID)
	if child.Status != StatusPending {
		t.Fatalf("child status = %s, want PENDING after parent completes", child.Status)
	}
}

func TestAddTask_BlockedTaskEmitsTaskBlocked(t *testing.T) {
	s, _ := newTestScheduler()

	var events []string
	s.OnEvent(func(e Event) {
		events = append(events, e.Type)
	})

	parentID, err := s.AddTask(Task{Name: "parent", TimeoutMs: 5000})
	if err != nil {
		t.Fatalf("AddTask parent: %v", err)
	}

	if _, err := s.AddTask(Task{Name: "child", TimeoutMs: 5000, Dependencies: []string{parentID}}); err != nil {
		t.Fatalf("AddTask child: %v", err)
	}

	if len(events) != 1 || events[0] != "task_blocked" {
		t.Fatalf("events = %v, want [task_blocked]", events)
	}
}

func TestScheduleTask_OnBlockedTaskStaysBlockedAndEmitsTaskBlocked(t *testing.T) {
	s, _ := newTestScheduler()

	parentID, err := s.AddTask(Task{Name: "parent", TimeoutMs: 5000})
	if err != nil {
		t.Fatalf("AddTask parent: %v", err)
	}
	childID, err := s.AddTask(Task{Name: "child", TimeoutMs: 5000, Dependencies: []string{parentID}})
	if err != nil {
		t.Fatalf("AddTask child: %v", err)
	}

	var events []string
	s.OnEvent(func(e Event) {
		events = append(events, e.Type)
	})

	if err := s.ScheduleTask(childID, "worker"); err != nil {
		t.Fatalf("ScheduleTask child: %v", err)
	}

	child, _ := s.GetTask(childID)
	if child.Status != StatusBlocked {
		t.Fatalf("child status = %s, want BLOCKED (parent not terminal)", child.Status)
	}
	if len(events) != 1 || events[0] != "task_blocked" {
		t.Fatalf("events = %v, want [task_blocked], not task_started", events)
	}
}

func TestIsComplete_FalseWhenEmpty(t *testing.T) {
	s, _ := newTestScheduler()
	if s.IsComplete() {
		t.Fatalf("IsComplete should be false for an empty registry")
	}
}
