package core

// run_limiter.go bounds how many runs and previews touch the store at once.
//
// DuckDB allows a single writer per database file, so the default limit is one
// holder at a time. A caller that cannot get a slot waits up to maxWait before
// failing with ErrTooManyRuns. Every holder is labelled ("job kpi_fy",
// "preview plan.centers") so the health endpoint and shutdown logs can say what
// is in flight.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTooManyRuns is returned when all run slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyRuns = errors.New("too many concurrent runs, please try again later")

// DefaultMaxConcurrentRuns is the default limit for parallel runs.
const DefaultMaxConcurrentRuns = 1

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// RunLimiter hands out a fixed number of store slots.
type RunLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	nextID  uint64
	holders map[uint64]holder
	idle    chan struct{} // closed while nothing holds a slot
}

type holder struct {
	id    uint64
	label string
}

// NewRunLimiter creates a limiter with maxConcurrent slots.
// Callers that cannot get a slot within maxWait receive ErrTooManyRuns.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	idle := make(chan struct{})
	close(idle)
	return &RunLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		holders: make(map[uint64]holder),
		idle:    idle,
	}
}

// Acquire waits for a slot and records label as its holder.
// The returned release must be called once the work is done; extra calls are no-ops.
func (l *RunLimiter) Acquire(ctx context.Context, label string) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.slots <- struct{}{}:
	case <-waitCtx.Done():
		// Caller cancellation is reported as such, our own timeout as busy.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTooManyRuns
	}

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	if len(l.holders) == 0 {
		l.idle = make(chan struct{})
	}
	l.holders[id] = holder{id: id, label: label}
	l.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { l.release(id) }) }, nil
}

func (l *RunLimiter) release(id uint64) {
	l.mu.Lock()
	delete(l.holders, id)
	if len(l.holders) == 0 {
		close(l.idle)
	}
	l.mu.Unlock()

	<-l.slots
}

// ActiveCount returns the number of held slots.
func (l *RunLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.holders)
}

// Available returns the number of free slots.
func (l *RunLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// Running returns the labels of current holders in acquisition order.
func (l *RunLimiter) Running() []string {
	l.mu.Lock()
	hs := make([]holder, 0, len(l.holders))
	for _, h := range l.holders {
		hs = append(hs, h)
	}
	l.mu.Unlock()

	sort.Slice(hs, func(i, j int) bool { return hs[i].id < hs[j].id })
	labels := make([]string, len(hs))
	for i, h := range hs {
		labels[i] = h.label
	}
	return labels
}

// WaitForDrain blocks until no slot is held or ctx is done.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunLimiterStatus is a snapshot of the limiter's state.
type RunLimiterStatus struct {
	Active        int      `json:"active"`
	Available     int      `json:"available"`
	MaxConcurrent int      `json:"max_concurrent"`
	Running       []string `json:"running,omitempty"`
}

// Status returns the current limiter state for monitoring.
func (l *RunLimiter) Status() RunLimiterStatus {
	running := l.Running()
	return RunLimiterStatus{
		Active:        len(running),
		Available:     l.Available(),
		MaxConcurrent: cap(l.slots),
		Running:       running,
	}
}
