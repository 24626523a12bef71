// Package telemetry exposes the forwarder's own Prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reasons used for the labelled counters
const (
	ReasonUnbound    = "unbound"
	ReasonStale      = "stale"
	ReasonThrottled  = "throttled"
	ReasonSkipUpload = "skip_upload"
	ReasonNoFields   = "no_fields"
	ReasonBacklog    = "backlog"
	ReasonAuth       = "auth"
	ReasonTransport  = "transport"
	ReasonRequest    = "request"
	ReasonShutdown   = "shutdown"

	ReasonUnmapped   = "unmapped"
	ReasonMissing    = "missing"
	ReasonConversion = "conversion"
)

// Metrics holds the forwarder counters
type Metrics struct {
	registry *prometheus.Registry

	RecordsReceived *prometheus.CounterVec
	RecordsSkipped  *prometheus.CounterVec
	RecordsDropped  *prometheus.CounterVec
	RecordsSent     prometheus.Counter
	FieldsSkipped   *prometheus.CounterVec
	Submissions     prometheus.Counter
	SendAttempts    prometheus.Counter
	QueueLength     prometheus.Gauge
	LastSuccess     prometheus.Gauge
	SendLatency     prometheus.Histogram
}

// New creates the metrics on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxdatadog_records_received_total",
			Help: "Records delivered by the host framework, by record type.",
		}, []string{"type"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxdatadog_records_skipped_total",
			Help: "Records intentionally not sent, by reason.",
		}, []string{"reason"}),
		RecordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxdatadog_records_dropped_total",
			Help: "Records lost to errors or backpressure, by reason.",
		}, []string{"reason"}),
		RecordsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wxdatadog_records_sent_total",
			Help: "Records accepted by Datadog.",
		}),
		FieldsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wxdatadog_fields_skipped_total",
			Help: "Observations left out of a submission, by reason.",
		}, []string{"reason"}),
		Submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wxdatadog_submissions_total",
			Help: "Metric points accepted by Datadog.",
		}),
		SendAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wxdatadog_send_attempts_total",
			Help: "HTTP requests made to Datadog, including retries.",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wxdatadog_queue_length",
			Help: "Records waiting for the upload worker.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wxdatadog_last_success_timestamp_seconds",
			Help: "Unix time of the last successful upload.",
		}),
		SendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wxdatadog_send_duration_seconds",
			Help:    "Time spent sending one record, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	m.registry.MustRegister(
		m.RecordsReceived, m.RecordsSkipped, m.RecordsDropped, m.RecordsSent,
		m.FieldsSkipped, m.Submissions, m.SendAttempts, m.QueueLength,
		m.LastSuccess, m.SendLatency,
	)
	return m
}

// ObserveSuccess records a successful upload finished at t
func (m *Metrics) ObserveSuccess(t time.Time, points int, elapsed time.Duration) {
	m.RecordsSent.Inc()
	m.Submissions.Add(float64(points))
	m.LastSuccess.Set(float64(t.Unix()))
	m.SendLatency.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
