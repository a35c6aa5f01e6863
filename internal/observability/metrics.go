package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit status labels for RunsSubmitted.
const (
	ExitStatusOK     = "ok"
	ExitStatusFailed = "failed"
)

// Metrics holds the admin surface's Prometheus instruments. Each
// Metrics owns an independent registry, so constructing more than one in
// the same process (e.g. in tests) never collides.
type Metrics struct {
	registry *prometheus.Registry

	QueueDepth     prometheus.Gauge
	WorkersKnown   prometheus.Gauge
	WorkersBusy    prometheus.Gauge
	RunsSubmitted  *prometheus.CounterVec
	IngestDuration prometheus.Histogram
	IngestCommits  prometheus.Counter
}

// NewMetrics registers the six named instruments on a fresh registry and
// returns the handle used to update them.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tablejohn_queue_depth",
			Help: "Number of commits currently queued for benchmarking.",
		}),
		WorkersKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tablejohn_workers_known",
			Help: "Number of workers the registry has heard from within the timeout window.",
		}),
		WorkersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tablejohn_workers_busy",
			Help: "Number of workers currently reporting a Working status.",
		}),
		RunsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tablejohn_runs_submitted_total",
			Help: "Total number of runs submitted by workers, by exit status.",
		}, []string{"exit_status"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "tablejohn_ingest_duration_seconds",
			Help: "Duration of each ingest tick.",
		}),
		IngestCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tablejohn_ingest_commits_total",
			Help: "Total number of commits discovered across all ingest ticks.",
		}),
	}

	registry.MustRegister(
		m.QueueDepth,
		m.WorkersKnown,
		m.WorkersBusy,
		m.RunsSubmitted,
		m.IngestDuration,
		m.IngestCommits,
	)

	return m
}

// Handler returns the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExitStatusLabel maps a process exit code to the RunsSubmitted label.
func ExitStatusLabel(exitCode int) string {
	if exitCode == 0 {
		return ExitStatusOK
	}

	return ExitStatusFailed
}

// ObserveIngest records one completed ingest tick.
func (m *Metrics) ObserveIngest(d time.Duration, commits int) {
	m.IngestDuration.Observe(d.Seconds())
	m.IngestCommits.Add(float64(commits))
}

// SetWorkers updates the worker gauges from a registry snapshot.
func (m *Metrics) SetWorkers(known, busy int) {
	m.WorkersKnown.Set(float64(known))
	m.WorkersBusy.Set(float64(busy))
}
