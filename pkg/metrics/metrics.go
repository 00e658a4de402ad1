package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments batch processing. One instance is handed to the
// dispatcher, which records batch sizes and per-document outcomes;
// StageDuration is registered but nothing observes it.
type Metrics struct {
	DocumentsProcessed *prometheus.CounterVec
	DocumentsFailed    *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	BatchSize          prometheus.Histogram
}

// New registers the pdferret collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocumentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdferret",
			Name:      "documents_processed_total",
			Help:      "Documents that completed a pipeline, by extension.",
		}, []string{"extension"}),
		DocumentsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdferret",
			Name:      "documents_failed_total",
			Help:      "Documents that failed a pipeline, by pipeline name (stage label) and error kind.",
		}, []string{"stage", "kind"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdferret",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a stage execution over its batch.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pdferret",
			Name:      "batch_size",
			Help:      "Number of inputs per extract batch.",
			Buckets:   prometheus.LinearBuckets(1, 5, 10),
		}),
	}
	reg.MustRegister(m.DocumentsProcessed, m.DocumentsFailed, m.StageDuration, m.BatchSize)
	return m
}
