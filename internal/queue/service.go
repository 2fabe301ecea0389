package queue

import (
	"context"
	"sync"
	"time"

	"github.com/itskum47/aidos-core/internal/clock"
)

// Processor executes one job and returns an error to trigger the retry
// path, or nil on success.
type Processor func(ctx context.Context, job *Job) error

// RetentionConfig bounds how long/how many terminal jobs are kept, per
// spec §4.8's default retention policy.
type RetentionConfig struct {
	CompletedMax int
	CompletedAge time.Duration
	FailedMax    int
	FailedAge    time.Duration
}

// DefaultRetention matches spec §4.8: completed 1000/24h, failed 5000/7d.
func DefaultRetention() RetentionConfig {
	return RetentionConfig{
		CompletedMax: 1000,
		CompletedAge: 24 * time.Hour,
		FailedMax:    5000,
		FailedAge:    7 * 24 * time.Hour,
	}
}

type queueState struct {
	mu        sync.Mutex
	ready     *readyQueue
	delayed   []*Job
	active    map[string]*Job
	completed []*Job
	failed    []*Job
	cond      *sync.Cond
}

func newQueueState(now func() time.Time) *queueState {
	qs := &queueState{
		ready:  newReadyQueue(now),
		active: make(map[string]*Job),
	}
	qs.cond = sync.NewCond(&qs.mu)
	return qs
}

// OnExhausted is invoked when a job's retries are exhausted, typically
// wired to internal/dlq.Store.Enqueue by the caller.
type OnExhausted func(job *Job, lastErr error)

// Service implements the Queue Service (C8): a priority/delayed/retry job
// store with admission control and per-queue rate limiting.
type Service struct {
	mu        sync.Mutex
	clock     clock.Clock
	queues    map[string]*queueState
	breaker   *admissionBreaker
	limiter   *tenantLimiter
	retention RetentionConfig
	workers   int32
	onExhaust OnExhausted

	stopCh chan struct{}
}

// New creates a Service. queueThreshold bounds queue depth before the
// admission breaker opens; rps/burst configure the per-queue rate limiter.
func New(c clock.Clock, queueThreshold int, rps float64, burst int, retention RetentionConfig) *Service {
	s := &Service{
		clock:     c,
		queues:    make(map[string]*queueState),
		breaker:   newAdmissionBreaker(queueThreshold, c.Now),
		limiter:   newTenantLimiter(rps, burst),
		retention: retention,
		stopCh:    make(chan struct{}),
	}
	return s
}

// OnExhausted registers the callback fired when a job's attempts are used up.
func (s *Service) OnExhausted(fn OnExhausted) { s.onExhaust = fn }

func (s *Service) queueFor(name string) *queueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs, ok := s.queues[name]
	if !ok {
		qs = newQueueState(s.clock.Now)
		s.queues[name] = qs
	}
	return qs
}

func (s *Service) saturation(qs *queueState) float64 {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	active := float64(len(qs.active))
	if s.workers == 0 {
		return 0
	}
	return active / float64(s.workers)
}

// AddJob enqueues name/data onto queue with the given options, returning
// the new job's id. priority accepts 1-10 (10 highest); ties break FIFO.
func (s *Service) AddJob(queueName, name string, data map[string]interface{}, opts AddJobOptions) (string, error) {
	opts = opts.normalized()
	qs := s.queueFor(queueName)

	if !s.limiter.allow(queueName) {
		return "", ErrRateLimited
	}
	if !s.breaker.shouldAdmit(qs.readyLen(), s.saturation(qs)) {
		return "", ErrQueueSaturated
	}

	job := &Job{
		JobID:        s.clock.NewID(),
		Queue:        queueName,
		Name:         name,
		Data:         data,
		Priority:     opts.Priority,
		MaxAttempts:  opts.Attempts,
		Backoff:      opts.Backoff,
		SubmitTime:   s.clock.Now(),
		ScheduledFor: s.clock.Now(),
		Status:       JobWaiting,
	}

	qs.mu.Lock()
	qs.ready.push(job)
	qs.cond.Signal()
	qs.mu.Unlock()

	return job.JobID, nil
}

// AddDelayedJob enqueues a job that becomes eligible after delayMs.
func (s *Service) AddDelayedJob(queueName, name string, data map[string]interface{}, delayMs int, opts AddJobOptions) (string, error) {
	opts = opts.normalized()
	qs := s.queueFor(queueName)

	job := &Job{
		JobID:        s.clock.NewID(),
		Queue:        queueName,
		Name:         name,
		Data:         data,
		Priority:     opts.Priority,
		MaxAttempts:  opts.Attempts,
		Backoff:      opts.Backoff,
		SubmitTime:   s.clock.Now(),
		ScheduledFor: s.clock.Now().Add(time.Duration(delayMs) * time.Millisecond),
		Status:       JobDelayed,
	}

	qs.mu.Lock()
	qs.delayed = append(qs.delayed, job)
	qs.mu.Unlock()

	return job.JobID, nil
}

// Requeue resubmits name/data onto queueName with default options and
// attempts implicitly reset to zero. It satisfies internal/dlq.Requeuer so
// a dlq.Store can requeue exhausted jobs without importing this package's
// option types.
func (s *Service) Requeue(queueName, name string, data map[string]interface{}) (string, error) {
	return s.AddJob(queueName, name, data, AddJobOptions{})
}

// AddJobWithRetry is AddJob with explicit attempts/backoff configured.
func (s *Service) AddJobWithRetry(queueName, name string, data map[string]interface{}, attempts int, backoff Backoff) (string, error) {
	return s.AddJob(queueName, name, data, AddJobOptions{Attempts: attempts, Backoff: backoff})
}

func (qs *queueState) readyLen() int {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.ready.len()
}

// GetJobCounts reports waiting/active/completed/failed/delayed for queueName.
func (s *Service) GetJobCounts(queueName string) JobCounts {
	qs := s.queueFor(queueName)
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return JobCounts{
		Waiting:   qs.ready.len(),
		Active:    len(qs.active),
		Completed: len(qs.completed),
		Failed:    len(qs.failed),
		Delayed:   len(qs.delayed),
	}
}

// PromoteDelayed moves delayed jobs whose ScheduledFor has elapsed into the
// ready heap. Production callers run this on a ticker; tests call it
// directly against a Fake clock for determinism.
func (s *Service) PromoteDelayed(queueName string) {
	qs := s.queueFor(queueName)
	now := s.clock.Now()

	qs.mu.Lock()
	defer qs.mu.Unlock()

	remaining := qs.delayed[:0]
	for _, j := range qs.delayed {
		if !j.ScheduledFor.After(now) {
			j.Status = JobWaiting
			qs.ready.push(j)
			qs.cond.Signal()
		} else {
			remaining = append(remaining, j)
		}
	}
	qs.delayed = remaining
}

// CreateWorker spawns concurrency cooperating workers that dequeue and
// process jobs from queueName until ctx is cancelled.
func (s *Service) CreateWorker(ctx context.Context, queueName string, concurrency int, processor Processor) {
	qs := s.queueFor(queueName)
	s.mu.Lock()
	s.workers += int32(concurrency)
	s.mu.Unlock()

	ticker := time.NewTicker(25 * time.Millisecond)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.PromoteDelayed(queueName)
			}
		}
	}()

	for i := 0; i < concurrency; i++ {
		go s.runWorker(ctx, qs, processor)
	}
}

func (s *Service) runWorker(ctx context.Context, qs *queueState, processor Processor) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		qs.mu.Lock()
		job := qs.ready.pop()
		if job == nil {
			qs.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		job.Status = JobActive
		job.Attempts++
		qs.active[job.JobID] = job
		qs.mu.Unlock()

		err := processor(ctx, job)

		qs.mu.Lock()
		delete(qs.active, job.JobID)
		qs.mu.Unlock()

		if err == nil {
			s.breaker.recordSuccess()
			job.Status = JobCompleted
			s.retainCompleted(qs, job)
			continue
		}

		job.LastError = err.Error()
		s.breaker.recordFailure()

		if job.Attempts < job.MaxAttempts {
			delay := backoffDelay(job.Backoff, job.Attempts)
			job.ScheduledFor = s.clock.Now().Add(delay)
			job.Status = JobDelayed
			qs.mu.Lock()
			qs.delayed = append(qs.delayed, job)
			qs.mu.Unlock()
			continue
		}

		job.Status = JobFailed
		s.retainFailed(qs, job)
		if s.onExhaust != nil {
			s.onExhaust(job, err)
		}
	}
}

func backoffDelay(b Backoff, attempt int) time.Duration {
	base := time.Duration(b.DelayMs) * time.Millisecond
	if b.Type != "exponential" {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (s *Service) retainCompleted(qs *queueState, job *Job) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.completed = append(qs.completed, job)
	qs.completed = trimRetention(qs.completed, s.retention.CompletedMax, s.retention.CompletedAge, s.clock.Now())
}

func (s *Service) retainFailed(qs *queueState, job *Job) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.failed = append(qs.failed, job)
	qs.failed = trimRetention(qs.failed, s.retention.FailedMax, s.retention.FailedAge, s.clock.Now())
}

func trimRetention(jobs []*Job, maxCount int, maxAge time.Duration, now time.Time) []*Job {
	cutoff := now.Add(-maxAge)
	out := jobs[:0]
	for _, j := range jobs {
		if j.SubmitTime.After(cutoff) {
			out = append(out, j)
		}
	}
	if len(out) > maxCount {
		out = out[len(out)-maxCount:]
	}
	return out
}
