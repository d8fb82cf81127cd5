// Package jobs provides the in-memory table of background report jobs.
//
// A submitted job runs on a bounded worker pool and parks its outcome in the
// table under an opaque handle. The outcome is consumed by the first poll
// that observes it finished; afterwards the handle is invalid. Jobs nobody
// polls are removed by the TTL sweeper.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/novalabs/wa-reporting/internal/observability/statsd"
)

// Handle identifies a submitted job. Handles are allocated from a monotonic
// counter, so they are unique for the life of the process.
type Handle uint64

// Func is the unit of work a job executes.
type Func func(ctx context.Context) (any, error)

// Outcome is the observable state of a job at poll time.
type Outcome int

const (
	// OutcomePending means the job has not finished yet; poll again.
	OutcomePending Outcome = iota
	// OutcomeCompleted means the job finished and this poll consumed its value.
	OutcomeCompleted
	// OutcomeFailed means the job finished with an error and this poll consumed it.
	OutcomeFailed
	// OutcomeNotFound means the handle is unknown, already consumed, or swept.
	OutcomeNotFound
)

// PollResult is what a poll observed. Value is set for OutcomeCompleted and
// Err for OutcomeFailed.
type PollResult struct {
	Outcome Outcome
	Value   any
	Err     error
}

type jobState int

const (
	stateRunning jobState = iota
	stateDone
)

type job struct {
	state       jobState
	value       any
	err         error
	submittedAt time.Time
	finishedAt  time.Time
}

// TableOptions configures a job table.
type TableOptions struct {
	// Workers bounds how many jobs run concurrently. Defaults to 4.
	Workers int
	// Timeout bounds how long a single job may run. Defaults to 10m.
	Timeout time.Duration
	// TTL is how long a job may sit in the table, running or finished,
	// before the sweeper removes it. Defaults to 30m.
	TTL time.Duration
	// SweepInterval is how often Run scans for abandoned jobs. Defaults to 5m.
	SweepInterval time.Duration

	Logger  *slog.Logger // Optional
	Metrics statsd.Sink  // Optional
}

// Table is the process-wide job table. It is safe for concurrent use.
type Table struct {
	mu   sync.Mutex
	jobs map[Handle]*job

	next    atomic.Uint64
	sem     *semaphore.Weighted
	timeout time.Duration
	ttl     time.Duration
	sweep   time.Duration
	logger  *slog.Logger
	metrics statsd.Sink

	// now is replaced in tests.
	now func() time.Time
}

// NewTable creates a job table.
func NewTable(opts TableOptions) *Table {
	workers := opts.Workers
	if workers < 1 {
		workers = 4
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Table{
		jobs:    make(map[Handle]*job),
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		ttl:     ttl,
		sweep:   sweep,
		logger:  logger,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// Submit schedules fn on the worker pool and returns its handle immediately.
// The job is detached from the submitting request: it runs under its own
// timeout even after the caller's context is gone.
func (t *Table) Submit(fn Func) Handle {
	h := Handle(t.next.Add(1))

	t.mu.Lock()
	t.jobs[h] = &job{state: stateRunning, submittedAt: t.now()}
	t.mu.Unlock()

	t.count("jobs.submitted")

	go t.run(h, fn)
	return h
}

func (t *Table) run(h Handle, fn Func) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if err := t.sem.Acquire(ctx, 1); err != nil {
		t.finish(h, nil, err)
		return
	}
	defer t.sem.Release(1)

	start := t.now()
	value, err := fn(ctx)
	if t.metrics != nil {
		t.metrics.Timing("jobs.duration", t.now().Sub(start), nil)
	}
	t.finish(h, value, err)
}

func (t *Table) finish(h Handle, value any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[h]
	if !ok {
		// Swept while running; the result has no audience.
		return
	}
	j.state = stateDone
	j.value = value
	j.err = err
	j.finishedAt = t.now()

	if err != nil {
		t.count("jobs.failed")
	} else {
		t.count("jobs.completed")
	}
}

// Poll reports the state of a job. The first poll that observes a finished
// job atomically removes it and returns its value or error; every later poll
// of the same handle sees OutcomeNotFound. Concurrent polls race for a single
// take under the table lock.
func (t *Table) Poll(h Handle) PollResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[h]
	if !ok {
		return PollResult{Outcome: OutcomeNotFound}
	}
	if j.state != stateDone {
		return PollResult{Outcome: OutcomePending}
	}

	delete(t.jobs, h)
	if j.err != nil {
		return PollResult{Outcome: OutcomeFailed, Err: j.err}
	}
	return PollResult{Outcome: OutcomeCompleted, Value: j.value}
}

// Sweep removes jobs older than the TTL and returns how many were removed.
// Finished-but-unpolled and still-running jobs age alike; a running job's
// entry disappearing only discards its eventual result.
func (t *Table) Sweep() int {
	cutoff := t.now().Add(-t.ttl)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for h, j := range t.jobs {
		if j.submittedAt.Before(cutoff) {
			delete(t.jobs, h)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Info("swept abandoned jobs", "removed", removed)
		if t.metrics != nil {
			t.metrics.Count("jobs.swept", int64(removed), nil)
		}
	}
	return removed
}

// Run drives the sweeper until the context is cancelled.
func (t *Table) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Len reports how many jobs are currently outstanding.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

func (t *Table) count(name string) {
	if t.metrics != nil {
		t.metrics.Count(name, 1, nil)
	}
}
