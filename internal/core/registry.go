package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the configured jobs and derived tables in file order.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]Job
	order   []string
	derived []DerivedTable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Job)}
}

// Register adds a job. Names must be unique.
func (r *Registry) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job has no name")
	}
	if len(job.Condition) == 0 {
		return fmt.Errorf("job %s: %w: no columns declared", job.Name, ErrSchemaMismatch)
	}
	if job.Mode == "" {
		job.Mode = ModeReplace
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("job already registered: %s", job.Name)
	}
	r.jobs[job.Name] = job
	r.order = append(r.order, job.Name)
	return nil
}

// RegisterDerived adds a derived table. Every dependency must name a registered job.
func (r *Registry) RegisterDerived(d DerivedTable) error {
	if d.Name == "" || d.SQL == "" {
		return fmt.Errorf("derived table needs a name and sql")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.derived {
		if existing.Name == d.Name {
			return fmt.Errorf("derived table already registered: %s", d.Name)
		}
	}
	for _, dep := range d.DependsOn {
		if _, ok := r.jobs[dep]; !ok {
			return fmt.Errorf("derived table %s: %w: %s", d.Name, ErrUnknownJob, dep)
		}
	}
	r.derived = append(r.derived, d)
	return nil
}

// Get returns a job by name.
func (r *Registry) Get(name string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[name]
	return job, ok
}

// All returns every job in registration order.
func (r *Registry) All() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.jobs[name])
	}
	return result
}

// ByGroup returns the jobs of one group in registration order.
func (r *Registry) ByGroup(group string) []Job {
	var result []Job
	for _, job := range r.All() {
		if job.Group == group {
			result = append(result, job)
		}
	}
	return result
}

// Groups returns all unique group names, sorted alphabetically.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, job := range r.jobs {
		seen[job.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Derived returns the derived tables in registration order.
func (r *Registry) Derived() []DerivedTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]DerivedTable(nil), r.derived...)
}

// FindTable returns the destination of the job or derived table whose
// table name matches, compared case-insensitively.
func (r *Registry) FindTable(name string) (TableRef, bool) {
	for _, job := range r.All() {
		if equalFoldRef(job.Table, name) {
			return job.Table, true
		}
	}
	for _, d := range r.Derived() {
		if equalFoldRef(d.Table, name) {
			return d.Table, true
		}
	}
	return TableRef{}, false
}

// Count returns the number of registered jobs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// equalFoldRef matches either "name" or "schema.name".
func equalFoldRef(ref TableRef, name string) bool {
	return strings.EqualFold(ref.Name, name) || strings.EqualFold(ref.String(), name)
}
