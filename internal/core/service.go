package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultRunTimeout is the maximum duration for a single job run.
const DefaultRunTimeout = 10 * time.Minute

// Service provides the entry points shared by the CLI and the HTTP server.
type Service struct {
	open     Opener
	registry *Registry
	limiter  *RunLimiter

	observer     Observer
	recorder     Recorder
	runTimeout   time.Duration
	previewLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithObserver sets the collaborator that receives log lines and table snapshots.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLimiter bounds concurrent runs and previews.
func WithLimiter(l *RunLimiter) Option {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithRunTimeout caps the duration of one job run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

// WithPreviewLimit sets the default number of rows returned by Preview.
func WithPreviewLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.previewLimit = n
		}
	}
}

// NewService creates a Service over the given store and job registry.
func NewService(open Opener, registry *Registry, opts ...Option) *Service {
	s := &Service{
		open:         open,
		registry:     registry,
		observer:     nopObserver{},
		recorder:     nopRecorder{},
		runTimeout:   DefaultRunTimeout,
		previewLimit: DefaultPreviewRows,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewRunLimiter(DefaultMaxConcurrentRuns, DefaultMaxWaitTime)
	}
	return s
}

// Jobs returns every configured job in file order.
func (s *Service) Jobs() []Job {
	return s.registry.All()
}

// Registry returns the job registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Limiter returns the run limiter, for status reporting and shutdown.
func (s *Service) Limiter() *RunLimiter {
	return s.limiter
}

// RunJob runs one job by name.
func (s *Service) RunJob(ctx context.Context, name string) (*RunResult, error) {
	job, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	release, err := s.limiter.Acquire(ctx, "job "+job.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.run(ctx, job)
}

// RunAll runs every job in file order, then rebuilds the derived tables.
// It stops at the first failure; results gathered so far are returned with the error.
func (s *Service) RunAll(ctx context.Context) (*BatchResult, error) {
	return s.RunJobs(ctx, nil)
}

// RunJobs runs the named jobs in file order (all jobs when names is empty).
// Derived tables whose dependencies all ran are rebuilt afterwards.
func (s *Service) RunJobs(ctx context.Context, names []string) (*BatchResult, error) {
	jobs, err := s.selectJobs(names)
	if err != nil {
		return nil, err
	}

	release, err := s.limiter.Acquire(ctx, batchLabel(names))
	if err != nil {
		return nil, err
	}
	defer release()

	batch := &BatchResult{}
	ran := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		res, err := s.run(ctx, job)
		batch.Runs = append(batch.Runs, res)
		if err != nil {
			return batch, err
		}
		ran[job.Name] = true
	}

	for _, d := range s.registry.Derived() {
		if !dependenciesRan(d, ran, len(names) == 0) {
			continue
		}
		res, err := Derive(ctx, s.open, d, s.observer)
		if err != nil {
			return batch, err
		}
		batch.Derived = append(batch.Derived, res)
		s.recorder.RowsLoaded(res.Table, res.Rows)
	}

	return batch, nil
}

func batchLabel(names []string) string {
	if len(names) == 0 {
		return "batch (all jobs)"
	}
	return "batch " + strings.Join(names, ",")
}

// Preview returns up to limit rows of a loaded table (the default limit when limit <= 0).
// table is a job or derived table name, optionally schema-qualified.
func (s *Service) Preview(ctx context.Context, table string, limit int) (*CleanTable, error) {
	ref, ok := s.registry.FindTable(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if limit <= 0 {
		limit = s.previewLimit
	}

	release, err := s.limiter.Acquire(ctx, "preview "+ref.String())
	if err != nil {
		return nil, err
	}
	defer release()

	dest, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w: %w", ref, ErrConnection, err)
	}
	defer dest.Close()

	cols, err := dest.Columns(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", ref, err)
	}
	if cols == nil {
		return nil, fmt.Errorf("preview %s: %w: table has not been loaded", ref, ErrUnknownTable)
	}

	t, err := dest.Preview(ctx, ref, limit)
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", ref, err)
	}
	s.observer.ShowPreview(t)
	return t, nil
}

func (s *Service) run(ctx context.Context, job Job) (*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	p := &Pipeline{
		Open:        s.open,
		Observer:    s.observer,
		Recorder:    s.recorder,
		PreviewRows: s.previewLimit,
	}
	return p.Run(ctx, job)
}

func (s *Service) selectJobs(names []string) ([]Job, error) {
	if len(names) == 0 {
		return s.registry.All(), nil
	}

	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := s.registry.Get(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
		}
		want[name] = true
	}

	var jobs []Job
	for _, job := range s.registry.All() {
		if want[job.Name] {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// dependenciesRan reports whether d should be rebuilt after a batch.
// A full batch rebuilds everything; a partial one only tables whose inputs changed
// and whose every input ran in this batch.
func dependenciesRan(d DerivedTable, ran map[string]bool, full bool) bool {
	if full {
		return true
	}
	if len(d.DependsOn) == 0 {
		return false
	}
	for _, dep := range d.DependsOn {
		if !ran[dep] {
			return false
		}
	}
	return true
}
