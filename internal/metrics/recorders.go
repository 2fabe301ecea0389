package metrics

import "time"

// Convenience recorders for spec.md §6's core metric names, mirroring the
// per-family naming control_plane/observability/metrics.go uses
// (TaskQueueDepth, SchedulerDecisions, etc.) generalized from the
// teacher's reconciliation domain to task/queue/api/agent families.

// RecordTaskCompleted increments task_count, observes task_duration, and
// recomputes the task_success_rate gauge.
func (r *Registry) RecordTaskCompleted(duration time.Duration) {
	r.IncrementCounter("task_count", 1, "")
	r.RecordHistogram("task_duration", duration.Seconds())
	r.updateTaskSuccessRate()
}

// RecordTaskFailed increments task_failed_count/task_count and recomputes
// the task_success_rate gauge.
func (r *Registry) RecordTaskFailed() {
	r.IncrementCounter("task_count", 1, "")
	r.IncrementCounter("task_failed_count", 1, "")
	r.updateTaskSuccessRate()
}

// updateTaskSuccessRate sets task_success_rate to
// (task_count-task_failed_count)/task_count, 0 when task_count is 0.
func (r *Registry) updateTaskSuccessRate() {
	total, _ := r.GetValue("task_count")
	failed, _ := r.GetValue("task_failed_count")
	rate := 0.0
	if total > 0 {
		rate = (total - failed) / total
	}
	r.SetGauge("task_success_rate", rate, "")
}

// SetQueueDepth sets queue_depth for a named queue.
func (r *Registry) SetQueueDepth(queueName string, depth int) {
	r.SetGauge("queue_depth", float64(depth), queueName)
}

// RecordQueueWaitTime observes queue_wait_time.
func (r *Registry) RecordQueueWaitTime(d time.Duration) {
	r.RecordHistogram("queue_wait_time", d.Seconds())
}

// RecordAPIRequest increments api_request_count, observes
// api_response_time, increments api_error_count when isError is true, and
// recomputes the api_error_rate gauge.
func (r *Registry) RecordAPIRequest(endpoint string, duration time.Duration, isError bool) {
	r.IncrementCounter("api_request_count", 1, endpoint)
	r.RecordHistogram("api_response_time", duration.Seconds())
	if isError {
		r.IncrementCounter("api_error_count", 1, endpoint)
	}
	r.updateAPIErrorRate()
}

// updateAPIErrorRate sets api_error_rate to api_error_count/api_request_count,
// defined as 0 when api_request_count is 0 per spec.md §9's Open Question
// resolution (avoids a divide-by-zero on the first error with no prior
// requests recorded).
func (r *Registry) updateAPIErrorRate() {
	requests, _ := r.GetValue("api_request_count")
	errs, _ := r.GetValue("api_error_count")
	rate := 0.0
	if requests > 0 {
		rate = errs / requests
	}
	r.SetGauge("api_error_rate", rate, "")
}

// SetAgentCounts sets agent_active_count and agent_idle_count.
func (r *Registry) SetAgentCounts(active, idle int) {
	r.SetGauge("agent_active_count", float64(active), "")
	r.SetGauge("agent_idle_count", float64(idle), "")
}

// RecordAgentTaskDuration observes agent_task_duration for a typed agent.
func (r *Registry) RecordAgentTaskDuration(agentType string, d time.Duration) {
	r.RecordHistogram("agent_task_duration", d.Seconds())
	_ = agentType // reserved for a future per-type label split
}

// SetSystemUsage sets system_cpu_usage and system_memory_usage.
func (r *Registry) SetSystemUsage(cpuPercent, memPercent float64) {
	r.SetGauge("system_cpu_usage", cpuPercent, "")
	r.SetGauge("system_memory_usage", memPercent, "")
}
