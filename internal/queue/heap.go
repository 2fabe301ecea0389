package queue

import (
	"container/heap"
	"time"
)

// jobHeap implements heap.Interface over *Job, adapted from
// control_plane/scheduler/queue.go's TaskQueue: anti-starvation aging
// lowers effective priority's "distance to the front" the longer a job
// waits, and ties break on scheduled time, then submit time (FIFO for
// equal priority).
type jobHeap struct {
	items []*Job
	now   func() time.Time
}

const agingFactorSeconds = 10.0

func (h jobHeap) effectivePriority(j *Job) float64 {
	waited := h.now().Sub(j.SubmitTime).Seconds()
	// Higher Priority should pop first: invert so heap.Pop (min-heap) favors it,
	// then age the value down (more urgent) as wait time grows.
	return float64(10-j.Priority) - (waited / agingFactorSeconds)
}

func (h jobHeap) Len() int { return len(h.items) }

func (h jobHeap) Less(i, j int) bool {
	epI := h.effectivePriority(h.items[i])
	epJ := h.effectivePriority(h.items[j])
	if int(epI) == int(epJ) {
		a, b := h.items[i], h.items[j]
		if !a.ScheduledFor.Equal(b.ScheduledFor) {
			return a.ScheduledFor.Before(b.ScheduledFor)
		}
		return a.SubmitTime.Before(b.SubmitTime)
	}
	return epI < epJ
}

func (h jobHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *jobHeap) Push(x interface{}) {
	h.items = append(h.items, x.(*Job))
}

func (h *jobHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}

// readyQueue is a thread-safe priority queue of ready jobs, mirroring
// control_plane/scheduler/queue.go's ThreadSafeQueue wrapper.
type readyQueue struct {
	h *jobHeap
}

func newReadyQueue(now func() time.Time) *readyQueue {
	return &readyQueue{h: &jobHeap{now: now}}
}

func (q *readyQueue) push(j *Job) {
	heap.Push(q.h, j)
}

func (q *readyQueue) pop() *Job {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(q.h).(*Job)
}

func (q *readyQueue) len() int {
	return q.h.Len()
}
