// Package taskqueue is the typed layer above the Queue Service (C9) that
// routes jobs to agent-specific processors, replacing the teacher's
// HTTP dispatch (control_plane/jobs.go's Dispatcher) with direct
// in-process calls, since agents here run in the same process rather
// than on remote nodes.
package taskqueue

import (
	"context"
	"sync"

	"github.com/itskum47/aidos-core/internal/queue"
)

// TaskProcessor executes one task's payload for one agent id and returns a
// serializable result. taskID is passed through so callers (e.g. the
// scheduler) can correlate completion back to the originating Task without
// re-parsing the job envelope.
type TaskProcessor func(ctx context.Context, taskID string, payload map[string]interface{}) (interface{}, error)

// Result wraps a processed task's outcome. Never returned as a Go error
// for a missing processor — per spec.md §4.9, that's a completed job with
// success=false, not a retryable failure.
type Result struct {
	Success bool        `json:"success"`
	TaskID  string      `json:"taskId"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AddTaskOptions configures AddTask.
type AddTaskOptions struct {
	Priority int
	TimeoutMs int
	Retries  int
}

// Service registers agentId -> TaskProcessor and submits wrapped task
// envelopes onto an underlying queue.Service.
type Service struct {
	mu         sync.RWMutex
	processors map[string]TaskProcessor
	q          *queue.Service
	queueName  string
}

// New creates a Service submitting onto queueName via q.
func New(q *queue.Service, queueName string) *Service {
	return &Service{
		processors: make(map[string]TaskProcessor),
		q:          q,
		queueName:  queueName,
	}
}

// RegisterProcessor attaches a processor for agentId. Registering under
// an already-used id replaces the prior processor.
func (s *Service) RegisterProcessor(agentID string, fn TaskProcessor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processors[agentID] = fn
}

// AddTask wraps payload in the {taskId, taskName, agentId, payload,
// priority, timeout, retries} envelope and forwards it to the queue,
// inverting priority (10 - Task.priority) so CRITICAL becomes queue
// priority 7, per spec.md §4.8.
func (s *Service) AddTask(taskID, taskName, agentID string, payload map[string]interface{}, opts AddTaskOptions) (string, error) {
	envelope := map[string]interface{}{
		"taskId":    taskID,
		"taskName":  taskName,
		"agentId":   agentID,
		"payload":   payload,
		"priority":  opts.Priority,
		"timeoutMs": opts.TimeoutMs,
		"retries":   opts.Retries,
	}

	queuePriority := 10 - opts.Priority
	if queuePriority < 1 {
		queuePriority = 1
	}
	if queuePriority > 10 {
		queuePriority = 10
	}

	return s.q.AddJob(s.queueName, taskName, envelope, queue.AddJobOptions{
		Priority: queuePriority,
		Attempts: maxInt(opts.Retries, 1),
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ProcessTask is the single worker contract for the underlying
// queue.Service: look up the processor for data["agentId"]; if missing,
// return a failed-but-non-retryable Result without an error, so the job
// completes instead of retrying.
func (s *Service) ProcessTask(ctx context.Context, job *queue.Job) error {
	agentID, _ := job.Data["agentId"].(string)
	taskID, _ := job.Data["taskId"].(string)
	payload, _ := job.Data["payload"].(map[string]interface{})

	s.mu.RLock()
	processor, ok := s.processors[agentID]
	s.mu.RUnlock()

	if !ok {
		job.Data["result"] = Result{Success: false, TaskID: taskID, Error: "no processor"}
		return nil
	}

	result, err := processor(ctx, taskID, payload)
	if err != nil {
		job.Data["result"] = Result{Success: false, TaskID: taskID, Error: err.Error()}
		return err
	}

	job.Data["result"] = Result{Success: true, TaskID: taskID, Result: result}
	return nil
}
