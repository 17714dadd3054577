// Package metrics records pipeline measurements with Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/planload/internal/core"
)

const namespace = "planload"

// Recorder implements core.Recorder on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	rowsLoaded  *prometheus.CounterVec
	coerced     *prometheus.CounterVec
	lastRunUnix *prometheus.GaugeVec
}

// New creates a recorder with its own registry, including Go runtime and
// process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Job runs by final phase.",
		}, []string{"job", "phase"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Job run duration.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job"}),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Rows written to destination tables.",
		}, []string{"table"}),
		coerced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_coerced_total",
			Help:      "Source values replaced by null during transformation.",
		}, []string{"table", "column"}),
		lastRunUnix: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished run by final phase.",
		}, []string{"job", "phase"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.runs, r.runDuration, r.rowsLoaded, r.coerced, r.lastRunUnix,
	)
	return r
}

// RunFinished implements core.Recorder.
func (r *Recorder) RunFinished(job string, phase core.RunPhase, d time.Duration) {
	r.runs.WithLabelValues(job, string(phase)).Inc()
	r.runDuration.WithLabelValues(job).Observe(d.Seconds())
	r.lastRunUnix.WithLabelValues(job, string(phase)).SetToCurrentTime()
}

// RowsLoaded implements core.Recorder.
func (r *Recorder) RowsLoaded(table string, n int64) {
	r.rowsLoaded.WithLabelValues(table).Add(float64(n))
}

// ValuesCoerced implements core.Recorder.
func (r *Recorder) ValuesCoerced(table, column string, n int) {
	if n <= 0 {
		return
	}
	r.coerced.WithLabelValues(table, column).Add(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var _ core.Recorder = (*Recorder)(nil)
