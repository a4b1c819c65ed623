package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// Run outcomes used as the status label
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped" // another run held the lock
)

// Recorder collects pipeline metrics on its own registry.
// A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	runDurationSeconds *prometheus.HistogramVec
	runStatusCounter   *prometheus.CounterVec
	rowsMergedCounter  *prometheus.CounterVec
	fetchFailures      *prometheus.CounterVec
	lastSuccess        prometheus.Gauge
}

// NewRecorder creates a new Recorder with Go and process collectors registered
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warehouse_run_duration_seconds",
			Help:    "Duration of pipeline runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_runs_total",
			Help: "Total number of pipeline runs by status.",
		}, []string{"status"}),
		rowsMergedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_rows_merged_total",
			Help: "Rows merged by table and outcome.",
		}, []string{"table", "kind"}), // kind: inserted, updated
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_fetch_failures_total",
			Help: "Failed location fetches.",
		}, []string{"city"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warehouse_last_success_timestamp_seconds",
			Help: "Unix time of the last committed run.",
		}),
	}

	registry.MustRegister(r.runDurationSeconds)
	registry.MustRegister(r.runStatusCounter)
	registry.MustRegister(r.rowsMergedCounter)
	registry.MustRegister(r.fetchFailures)
	registry.MustRegister(r.lastSuccess)

	return r
}

// Registry returns the Prometheus registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordRun records the outcome and duration of one run
func (r *Recorder) RecordRun(status string, duration time.Duration, finishedAt time.Time) {
	if r == nil {
		return
	}
	r.runStatusCounter.WithLabelValues(status).Inc()
	r.runDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
	if status == StatusSucceeded {
		r.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// RecordMerge adds the committed counts of one table merge
func (r *Recorder) RecordMerge(stats warehouse.MergeStats) {
	if r == nil {
		return
	}
	r.rowsMergedCounter.WithLabelValues(stats.Table, "inserted").Add(float64(stats.Inserted))
	r.rowsMergedCounter.WithLabelValues(stats.Table, "updated").Add(float64(stats.Updated))
}

// RecordFetchFailure counts a failed fetch for a location
func (r *Recorder) RecordFetchFailure(city string) {
	if r == nil {
		return
	}
	r.fetchFailures.WithLabelValues(city).Inc()
}
