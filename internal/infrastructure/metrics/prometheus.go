// Package metrics exposes sync telemetry as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sync"

// Recorder implements ports.MetricsRecorder.
type Recorder struct {
	registry    *prometheus.Registry
	jobs        *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	items       *prometheus.CounterVec
	retries     prometheus.Counter
	active      prometheus.Gauge
}

var _ ports.MetricsRecorder = (*Recorder)(nil)

// NewRecorder registers the sync collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Sync jobs that reached a final state.",
		}, []string{"type", "state"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of finished sync jobs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"type"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Item writes by action and result.",
		}, []string{"action", "result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_retries_total",
			Help:      "Item write retries after retryable failures.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently executing in this process.",
		}),
	}
	r.registry.MustRegister(
		r.jobs, r.jobDuration, r.items, r.retries, r.active,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) JobFinished(jobType domain.JobType, state domain.JobState, duration time.Duration) {
	r.jobs.WithLabelValues(string(jobType), string(state)).Inc()
	if duration > 0 {
		r.jobDuration.WithLabelValues(string(jobType)).Observe(duration.Seconds())
	}
}

func (r *Recorder) ItemApplied(action domain.PlanAction, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.items.WithLabelValues(string(action), result).Inc()
}

func (r *Recorder) ItemRetried() {
	r.retries.Inc()
}

func (r *Recorder) ActiveJobs(delta int) {
	r.active.Add(float64(delta))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
