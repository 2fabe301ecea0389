package taskqueue

import (
	"context"
	"testing"

	"github.com/itskum47/aidos-core/internal/clock"
	"github.com/itskum47/aidos-core/internal/queue"
)

func TestProcessTask_MissingProcessorCompletesWithoutError(t *testing.T) {
	q := queue.New(clock.NewSystem(), 1000, 1000, 1000, queue.DefaultRetention())
	svc := New(q, "tasks")

	job := &queue.Job{
		Data: map[string]interface{}{
			"taskId":  "t-1",
			"agentId": "unregistered-agent",
			"payload": map[string]interface{}{},
		},
	}

	if err := svc.ProcessTask(context.Background(), job); err != nil {
		t.Fatalf("ProcessTask returned %v, want nil for missing processor", err)
	}
	result, ok := job.Data["result"].(Result)
	if !ok {
		t.Fatalf("expected Result in job.Data")
	}
	if result.Success {
		t.Fatalf("expected Success=false for missing processor")
	}
	if result.Error != "no processor" {
		t.Fatalf("Error = %q, want %q", result.Error, "no processor")
	}
}

func TestProcessTask_InvokesRegisteredProcessor(t *testing.T) {
	q := queue.New(clock.NewSystem(), 1000, 1000, 1000, queue.DefaultRetention())
	svc := New(q, "tasks")

	svc.RegisterProcessor("full_stack_developer", func(ctx context.Context, taskID string, payload map[string]interface{}) (interface{}, error) {
		return map[string]string{"status": "built"}, nil
	})

	job := &queue.Job{
		Data: map[string]interface{}{
			"taskId":  "t-2",
			"agentId": "full_stack_developer",
			"payload": map[string]interface{}{"spec": "endpoint"},
		},
	}

	if err := svc.ProcessTask(context.Background(), job); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	result := job.Data["result"].(Result)
	if !result.Success {
		t.Fatalf("expected Success=true")
	}
}

func TestAddTask_EnqueuesOneWaitingJob(t *testing.T) {
	q := queue.New(clock.NewSystem(), 1000, 1000, 1000, queue.DefaultRetention())
	svc := New(q, "tasks")

	if _, err := svc.AddTask("t-3", "implement", "full_stack_developer", map[string]interface{}{}, AddTaskOptions{Priority: 3, Retries: 1}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	counts := q.GetJobCounts("tasks")
	if counts.Waiting != 1 {
		t.Fatalf("Waiting = %d, want 1", counts.Waiting)
	}
}
