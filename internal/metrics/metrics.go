// Package metrics exposes the worker's Prometheus instrumentation,
// grounded on the pack's kk7453603-AIAssistent internal/observability/metrics
// package: a dedicated registry, Counter/Histogram vecs per concern, and a
// promhttp.Handler for /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter and histogram the ingest worker emits.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobsInFlight    prometheus.Gauge
	dedupeTotal     prometheus.Counter
	visionCheckUsed *prometheus.CounterVec
	rateLimitWaits  prometheus.Counter
	derivativesDone *prometheus.CounterVec
	uploadDuration  *prometheus.HistogramVec
}

// New builds a Metrics instance bound to a fresh registry.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardimg",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total ingest jobs processed, by terminal status.",
		},
		[]string{"status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardimg",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Ingest job wall-clock duration by terminal status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "cardimg",
			Subsystem:   "worker",
			Name:        "jobs_in_flight",
			Help:        "Number of ingest jobs currently being processed.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	dedupeTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardimg",
			Subsystem: "worker",
			Name:      "dedupe_total",
			Help:      "Jobs short-circuited because the fetched image's sha256 was already known.",
		},
	)
	visionCheckUsed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardimg",
			Subsystem: "worker",
			Name:      "vision_checks_total",
			Help:      "Vision-model side checks performed, by verdict.",
		},
		[]string{"verdict"},
	)
	rateLimitWaits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cardimg",
			Subsystem: "worker",
			Name:      "rate_limit_rejections_total",
			Help:      "Jobs returned rate_limited because their source bucket had no tokens.",
		},
	)
	derivativesDone := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardimg",
			Subsystem: "worker",
			Name:      "derivatives_generated_total",
			Help:      "Derivative images generated, by variant.",
		},
		[]string{"variant"},
	)
	uploadDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardimg",
			Subsystem: "worker",
			Name:      "upload_duration_seconds",
			Help:      "Blob store upload duration by variant.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"variant"},
	)

	registry.MustRegister(
		jobsTotal, jobDuration, jobsInFlight, dedupeTotal,
		visionCheckUsed, rateLimitWaits, derivativesDone, uploadDuration,
	)

	return &Metrics{
		registry:        registry,
		jobsTotal:       jobsTotal,
		jobDuration:     jobDuration,
		jobsInFlight:    jobsInFlight,
		dedupeTotal:     dedupeTotal,
		visionCheckUsed: visionCheckUsed,
		rateLimitWaits:  rateLimitWaits,
		derivativesDone: derivativesDone,
		uploadDuration:  uploadDuration,
	}
}

// Handler serves the registry's exposition format for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartJob records that a job has begun processing.
func (m *Metrics) StartJob() {
	m.jobsInFlight.Inc()
}

// FinishJob records a job's terminal status and duration.
func (m *Metrics) FinishJob(status string, duration time.Duration) {
	m.jobsInFlight.Dec()
	m.jobsTotal.WithLabelValues(status).Inc()
	m.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordDedupe records a job short-circuited by a known sha256.
func (m *Metrics) RecordDedupe() {
	m.dedupeTotal.Inc()
}

// RecordVisionCheck records a vision-model verdict.
func (m *Metrics) RecordVisionCheck(verdict string) {
	m.visionCheckUsed.WithLabelValues(verdict).Inc()
}

// RecordRateLimitRejection records a job rejected for lack of tokens.
func (m *Metrics) RecordRateLimitRejection() {
	m.rateLimitWaits.Inc()
}

// RecordDerivative records one generated derivative variant.
func (m *Metrics) RecordDerivative(variant string) {
	m.derivativesDone.WithLabelValues(variant).Inc()
}

// ObserveUpload records how long an upload of the given variant took.
func (m *Metrics) ObserveUpload(variant string, duration time.Duration) {
	m.uploadDuration.WithLabelValues(variant).Observe(duration.Seconds())
}
