// Package clock provides the single monotonic time source and ID generator
// used throughout aidos-core. Every timeout, TTL, and retention window in the
// execution core reads from a Clock rather than calling time.Now directly, so
// tests can inject a Fake clock and assert exact scheduling behavior.
package clock

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock time and monotonic elapsed time.
type Clock interface {
	Now() time.Time
	Monotonic() time.Duration
	NewID() string
}

// System is the production Clock backed by the real time package.
type System struct {
	start time.Time
}

// NewSystem returns a Clock anchored at process start.
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) Now() time.Time { return time.Now() }

func (s *System) Monotonic() time.Duration { return time.Since(s.start) }

func (s *System) NewID() string { return uuid.NewString() }

// Fake is a deterministic Clock for tests. Advance moves time forward
// explicitly; nothing advances on its own.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	start   time.Time
	idSeq   int
	idFixed []string
}

// NewFake creates a Fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t, start: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Monotonic() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.Sub(f.start)
}

// NewID returns deterministic sequential ids ("fake-id-1", "fake-id-2", ...)
// unless SetIDs was used to pre-seed an explicit sequence.
func (f *Fake) NewID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.idFixed) > 0 {
		id := f.idFixed[0]
		f.idFixed = f.idFixed[1:]
		return id
	}
	f.idSeq++
	return "fake-id-" + itoa(f.idSeq)
}

// SetIDs pre-seeds the exact sequence of ids NewID will return.
func (f *Fake) SetIDs(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idFixed = ids
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
