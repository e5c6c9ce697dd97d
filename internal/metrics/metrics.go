// Package metrics provides Prometheus instrumentation for the
// inference service: prediction volume, failures, latency, batch
// sizes, and the age of the loaded model artifact. Everything is
// exposed on the /metrics endpoint of the serving process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the classifier service.
type Metrics struct {
	PredictionsTotal   prometheus.Counter   // Total point predictions served
	BatchesTotal       prometheus.Counter   // Total batch predictions served
	PredictionFailures prometheus.Counter   // Prediction calls that returned an error
	SchemaRejections   prometheus.Counter   // Requests rejected for schema violations
	PredictionLatency  prometheus.Histogram // Per-call prediction latency in seconds
	BatchSize          prometheus.Histogram // Rows per batch request
	ConfidenceScores   prometheus.Histogram // Distribution of winning-class confidence
	ModelAge           prometheus.Gauge     // Seconds since the loaded artifact was trained
	DegradedMode       prometheus.Gauge     // 1 when serving uniform-probability fallback
	AuditWriteFailures prometheus.Counter   // Audit records that could not be persisted
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, which keeps
// tests isolated from the global registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of point predictions served",
		}),
		BatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_batches_total",
			Help: "Total number of batch prediction requests served",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of prediction calls that failed",
		}),
		SchemaRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "schema_rejections_total",
			Help: "Total number of requests rejected for schema violations",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_batch_size",
			Help:    "Number of rows per batch prediction request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		ConfidenceScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_confidence",
			Help:    "Distribution of winning-class confidence scores",
			Buckets: prometheus.LinearBuckets(0.3, 0.05, 14),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Seconds since the loaded model artifact was trained",
		}),
		DegradedMode: factory.NewGauge(prometheus.GaugeOpts{
			Name: "degraded_mode",
			Help: "1 when the service is serving uniform-probability fallback output",
		}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of audit records that could not be persisted",
		}),
	}
}
