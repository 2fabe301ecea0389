// Package cronutil is a thin recurring-execution wrapper over robfig/cron;
// cmd/aidosd uses it to drive infrastructure sampling (C13) and DLQ
// archival. The guardian (C17) keeps its own time.Ticker loop. Grounded on
// anhnv24810310060-source-SWARM-INTELLIGENCE-NETWORK/services/orchestrator/scheduler.go's
// cron.New(cron.WithSeconds()) usage.
package cronutil

import (
	"github.com/robfig/cron/v3"
)

// Runner wraps a cron.Cron configured with seconds-precision schedules,
// so callers can express sub-minute cadences ("@every 10s") without a
// custom ticker.
type Runner struct {
	c *cron.Cron
}

// New creates a Runner. It does not start until Start is called.
func New() *Runner {
	return &Runner{c: cron.New(cron.WithSeconds())}
}

// Schedule registers fn to run on spec (a standard or "@every" cron
// expression), returning an id usable with Remove.
func (r *Runner) Schedule(spec string, fn func()) (cron.EntryID, error) {
	return r.c.AddFunc(spec, fn)
}

// Remove cancels a previously scheduled entry.
func (r *Runner) Remove(id cron.EntryID) { r.c.Remove(id) }

// Start begins running scheduled entries in their own goroutine.
func (r *Runner) Start() { r.c.Start() }

// Stop halts the scheduler and waits for any running entries to
// complete, per cron.Cron's own Stop contract.
func (r *Runner) Stop() { <-r.c.Stop().Done() }
