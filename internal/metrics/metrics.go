// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects batch and row outcomes. A nil *Recorder is a no-op.
type Recorder struct {
	registry      *prometheus.Registry
	rows          *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
}

// NewRecorder registers the pipeline collectors on a fresh registry.
// withRuntime adds the Go runtime and process collectors.
func NewRecorder(withRuntime bool) *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incidents",
			Subsystem: "ingestion",
			Name:      "rows_total",
			Help:      "Source rows processed, by outcome.",
		}, []string{"outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incidents",
			Subsystem: "ingestion",
			Name:      "batches_total",
			Help:      "Upload batches processed, by final status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "incidents",
			Subsystem: "ingestion",
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent on one batch from read to commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	reg.MustRegister(r.rows, r.batches, r.batchDuration)
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return r
}

// ObserveBatch records one batch outcome.
func (r *Recorder) ObserveBatch(status string, inserted, rejected, warnings int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.batches.WithLabelValues(status).Inc()
	r.batchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	r.rows.WithLabelValues("inserted").Add(float64(inserted))
	r.rows.WithLabelValues("rejected").Add(float64(rejected))
	r.rows.WithLabelValues("warning").Add(float64(warnings))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
