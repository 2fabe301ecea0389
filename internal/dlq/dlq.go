// Package dlq implements the Dead-Letter Queue (C7): the durable resting
// place for jobs whose retries were exhausted, with a manual resolution
// workflow and an optional long-term archive sink.
package dlq

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/itskum47/aidos-core/internal/clock"
)

// Resolution is the terminal disposition an operator gives a DLQ entry.
type Resolution string

const (
	ResolutionRequeued  Resolution = "REQUEUED"
	ResolutionDiscarded Resolution = "DISCARDED"
	ResolutionResolved  Resolution = "RESOLVED"
)

// Entry is an exhausted job.
type Entry struct {
	EntryID                   string
	JobID                     string
	TaskID                    string
	TaskName                  string
	Queue                     string
	Payload                   map[string]interface{}
	FailureReason             string
	LastError                 string
	AttemptsMade              int
	EnqueuedAt                time.Time
	RequiresManualIntervention bool
	Resolution                *Resolution
	ResolvedBy                string
	ResolvedAt                *time.Time
}

// Stats summarizes the DLQ's current contents.
type Stats struct {
	TotalEntries              int
	PendingManualIntervention int
	ByReason                  map[string]int
}

// Filter narrows List results. Zero value matches everything.
type Filter struct {
	TaskID     string
	Unresolved bool
}

// Requeuer resubmits a DLQ entry's original payload back onto the live
// queue with attempts reset to zero. internal/queue.Service satisfies this
// via its Requeue method.
type Requeuer interface {
	Requeue(queueName, name string, data map[string]interface{}) (string, error)
}

var ErrNotFound = errors.New("dlq: entry not found")

// Store is the in-memory DLQ (C7). A PostgresArchive can be layered on top
// via Store.SetArchive for long-term retention of entries past cleanup age.
type Store struct {
	mu         sync.Mutex
	clock      clock.Clock
	entries    map[string]*Entry
	byTask     map[string][]string // taskId -> entryIds
	archive    Archiver
	requeuer   Requeuer
}

// Archiver persists entries for long-term storage (e.g. PostgresArchive).
type Archiver interface {
	Archive(entries []*Entry) error
}

// New creates an empty DLQ store.
func New(c clock.Clock) *Store {
	return &Store{
		clock:   c,
		entries: make(map[string]*Entry),
		byTask:  make(map[string][]string),
	}
}

// SetArchive attaches a long-term archive sink used by ArchiveOld.
func (s *Store) SetArchive(a Archiver) { s.archive = a }

// SetRequeuer attaches the queue used by Requeue.
func (s *Store) SetRequeuer(r Requeuer) { s.requeuer = r }

// Enqueue records a new exhausted job. EntryID and EnqueuedAt are assigned
// if unset.
func (s *Store) Enqueue(e Entry) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.EntryID == "" {
		e.EntryID = s.clock.NewID()
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = s.clock.Now()
	}
	e.RequiresManualIntervention = true

	cp := e
	s.entries[e.EntryID] = &cp
	s.byTask[e.TaskID] = append(s.byTask[e.TaskID], e.EntryID)
	return cp
}

// List returns entries matching filter, newest first.
func (s *Store) List(filter Filter) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, e := range s.entries {
		if filter.TaskID != "" && e.TaskID != filter.TaskID {
			continue
		}
		if filter.Unresolved && e.Resolution != nil {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.After(out[j].EnqueuedAt) })
	return out
}

// Get returns a single entry by id.
func (s *Store) Get(entryID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// Resolve marks entryID with a terminal resolution other than REQUEUED.
func (s *Store) Resolve(entryID string, resolution Resolution, resolvedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return ErrNotFound
	}
	now := s.clock.Now()
	e.Resolution = &resolution
	e.ResolvedBy = resolvedBy
	e.ResolvedAt = &now
	return nil
}

// Requeue resubmits the entry's original payload to the attached Requeuer
// with attempts reset to 0, and marks the entry REQUEUED.
func (s *Store) Requeue(entryID string) (string, error) {
	s.mu.Lock()
	e, ok := s.entries[entryID]
	if !ok {
		s.mu.Unlock()
		return "", ErrNotFound
	}
	queue := e.Queue
	name := e.TaskName
	payload := e.Payload
	s.mu.Unlock()

	if s.requeuer == nil {
		return "", errors.New("dlq: no requeuer attached")
	}

	jobID, err := s.requeuer.Requeue(queue, name, payload)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	resolution := ResolutionRequeued
	e.Resolution = &resolution
	now := s.clock.Now()
	e.ResolvedAt = &now
	return jobID, nil
}

// GetStats aggregates totals and a reason breakdown.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{ByReason: make(map[string]int)}
	for _, e := range s.entries {
		stats.TotalEntries++
		if e.Resolution == nil {
			stats.PendingManualIntervention++
		}
		stats.ByReason[e.FailureReason]++
	}
	return stats
}

// CleanupCandidates returns entries older than maxAge, eligible for
// archival/removal. Opt-in: callers decide whether to act on the result.
func (s *Store) CleanupCandidates(maxAge time.Duration) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-maxAge)
	var out []Entry
	for _, e := range s.entries {
		if e.EnqueuedAt.Before(cutoff) {
			out = append(out, *e)
		}
	}
	return out
}

// ArchiveOld flushes cleanup candidates older than 30 days to the attached
// Archiver (if any), then removes them from the in-memory store.
func (s *Store) ArchiveOld() error {
	const defaultCleanupAge = 30 * 24 * time.Hour
	candidates := s.CleanupCandidates(defaultCleanupAge)
	if len(candidates) == 0 {
		return nil
	}

	if s.archive != nil {
		ptrs := make([]*Entry, len(candidates))
		for i := range candidates {
			ptrs[i] = &candidates[i]
		}
		if err := s.archive.Archive(ptrs); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range candidates {
		delete(s.entries, e.EntryID)
		ids := s.byTask[e.TaskID]
		for i, id := range ids {
			if id == e.EntryID {
				s.byTask[e.TaskID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	return nil
}
