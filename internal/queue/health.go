package queue

// DLQStats is the subset of dlq.Stats the Queue Monitor aggregates,
// avoiding a direct dependency from this package on internal/dlq.
type DLQStats struct {
	TotalEntries              int
	PendingManualIntervention int
}

// QueueHealthReport aggregates C8 job counts with C7 DLQ stats, adapted
// from control_plane/scheduler/types.go's SchedulerMetrics dashboard shape.
type QueueHealthReport struct {
	Queue                     string
	JobCounts                 JobCounts
	DLQ                       DLQStats
	BreakerState              string
	Healthy                   bool
}

// Monitor aggregates health across queues for C16.
type Monitor struct {
	service *Service
}

// NewMonitor creates a Monitor over service.
func NewMonitor(service *Service) *Monitor {
	return &Monitor{service: service}
}

// Report builds a QueueHealthReport for queueName given the DLQ's current
// stats (dlqStats is the caller's dlq.Store.GetStats() converted to
// DLQStats, since this package does not import internal/dlq directly).
func (m *Monitor) Report(queueName string, dlqStats DLQStats) QueueHealthReport {
	counts := m.service.GetJobCounts(queueName)
	state := m.service.breaker.String()

	healthy := state == "closed" && dlqStats.PendingManualIntervention < 100
	return QueueHealthReport{
		Queue:        queueName,
		JobCounts:    counts,
		DLQ:          dlqStats,
		BreakerState: state,
		Healthy:      healthy,
	}
}
