package dlq

import (
	"testing"
	"time"

	"github.com/itskum47/aidos-core/internal/clock"
)

type fakeRequeuer struct {
	calls int
	lastQueue, lastName string
	lastData map[string]interface{}
}

func (f *fakeRequeuer) Requeue(queueName, name string, data map[string]interface{}) (string, error) {
	f.calls++
	f.lastQueue = queueName
	f.lastName = name
	f.lastData = data
	return "job-requeued-1", nil
}

func TestEnqueue_SetsDefaultsAndSecondaryIndex(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	store := New(fc)

	e := store.Enqueue(Entry{
		JobID:        "job-1",
		TaskID:       "task-1",
		TaskName:     "process-order",
		Queue:        "orders",
		FailureReason: "timeout",
		LastError:    "ETIMEDOUT",
		AttemptsMade: 2,
	})

	if e.EntryID == "" {
		t.Fatalf("expected entryId to be assigned")
	}
	if !e.RequiresManualIntervention {
		t.Fatalf("new entries should require manual intervention")
	}

	byTask := store.List(Filter{TaskID: "task-1"})
	if len(byTask) != 1 {
		t.Fatalf("List by taskId = %d entries, want 1", len(byTask))
	}
}

func TestResolve_MarksEntryResolved(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	store := New(fc)
	e := store.Enqueue(Entry{TaskID: "t1", FailureReason: "timeout"})

	if err := store.Resolve(e.EntryID, ResolutionDiscarded, "operator-1"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got, err := store.Get(e.EntryID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Resolution == nil || *got.Resolution != ResolutionDiscarded {
		t.Fatalf("resolution = %v, want DISCARDED", got.Resolution)
	}
}

func TestRequeue_ResubmitsAndMarksRequeued(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	store := New(fc)
	fr := &fakeRequeuer{}
	store.SetRequeuer(fr)

	e := store.Enqueue(Entry{
		JobID:    "job-2",
		TaskID:   "t2",
		TaskName: "process-order",
		Queue:    "orders",
		Payload:  map[string]interface{}{"orderId": "o-1"},
	})

	jobID, err := store.Requeue(e.EntryID)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if jobID != "job-requeued-1" {
		t.Fatalf("jobID = %q, want job-requeued-1", jobID)
	}
	if fr.calls != 1 {
		t.Fatalf("requeuer called %d times, want 1", fr.calls)
	}

	got, _ := store.Get(e.EntryID)
	if got.Resolution == nil || *got.Resolution != ResolutionRequeued {
		t.Fatalf("resolution = %v, want REQUEUED", got.Resolution)
	}
}

func TestGetStats_AggregatesByReason(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	store := New(fc)
	store.Enqueue(Entry{TaskID: "t1", FailureReason: "timeout"})
	store.Enqueue(Entry{TaskID: "t2", FailureReason: "timeout"})
	e3 := store.Enqueue(Entry{TaskID: "t3", FailureReason: "validation"})
	store.Resolve(e3.EntryID, ResolutionResolved, "op")

	stats := store.GetStats()
	if stats.TotalEntries != 3 {
		t.Fatalf("TotalEntries = %d, want 3", stats.TotalEntries)
	}
	if stats.PendingManualIntervention != 2 {
		t.Fatalf("PendingManualIntervention = %d, want 2", stats.PendingManualIntervention)
	}
	if stats.ByReason["timeout"] != 2 {
		t.Fatalf("ByReason[timeout] = %d, want 2", stats.ByReason["timeout"])
	}
}

func TestCleanupCandidates_RespectsAge(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	store := New(fc)
	store.Enqueue(Entry{TaskID: "old", FailureReason: "timeout"})

	fc.Advance(31 * 24 * time.Hour)
	store.Enqueue(Entry{TaskID: "new", FailureReason: "timeout"})

	candidates := store.CleanupCandidates(30 * 24 * time.Hour)
	if len(candidates) != 1 || candidates[0].TaskID != "old" {
		t.Fatalf("CleanupCandidates = %+v, want only the 31-day-old entry", candidates)
	}
}
