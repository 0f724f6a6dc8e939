// Package observability holds the Prometheus metrics of the validation
// service and the handler that exposes them.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NINAnor/tabmon-species-api/internal/errors"
)

// Metrics contains the Prometheus metrics for the validation service.
type Metrics struct {
	registry *prometheus.Registry

	selectionsTotal    *prometheus.CounterVec
	submissionsTotal   *prometheus.CounterVec
	completionsTotal   *prometheus.CounterVec
	clipRequestsTotal  *prometheus.CounterVec
	selectionDuration  *prometheus.HistogramVec
	submissionDuration *prometheus.HistogramVec
	clipDuration       *prometheus.HistogramVec
}

// NewMetrics creates a registry with the service metrics plus the standard Go
// runtime collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.selectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_selections_total",
			Help: "Total number of next-clip selections",
		},
		[]string{"mode", "status"}, // status: picked, completed, error
	)
	m.submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_submissions_total",
			Help: "Total number of validation submissions",
		},
		[]string{"mode", "status"}, // status: success, error
	)
	m.completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_completions_total",
			Help: "Times a session exhausted its candidate set",
		},
		[]string{"mode"},
	)
	m.clipRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_clip_requests_total",
			Help: "Total number of clip audio and spectrogram requests",
		},
		[]string{"kind", "status"}, // kind: audio, spectrogram
	)
	m.selectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "validation_selection_duration_seconds",
			Help:    "Time taken to select the next clip",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"mode"},
	)
	m.submissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "validation_submission_duration_seconds",
			Help:    "Time taken to persist a validation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"mode"},
	)
	m.clipDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "validation_clip_duration_seconds",
			Help:    "Time taken to serve clip audio or spectrograms",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"kind"},
	)

	for _, c := range []prometheus.Collector{
		m.selectionsTotal, m.submissionsTotal, m.completionsTotal,
		m.clipRequestsTotal, m.selectionDuration, m.submissionDuration,
		m.clipDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, errors.New(err).
				Component("observability").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}
	return m, nil
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSelection counts a next-clip selection outcome.
func (m *Metrics) RecordSelection(mode, status string, seconds float64) {
	m.selectionsTotal.WithLabelValues(mode, status).Inc()
	m.selectionDuration.WithLabelValues(mode).Observe(seconds)
	if status == "completed" {
		m.completionsTotal.WithLabelValues(mode).Inc()
	}
}

// RecordSubmission counts a validation submission outcome.
func (m *Metrics) RecordSubmission(mode, status string, seconds float64) {
	m.submissionsTotal.WithLabelValues(mode, status).Inc()
	m.submissionDuration.WithLabelValues(mode).Observe(seconds)
}

// RecordClip counts an audio or spectrogram request.
func (m *Metrics) RecordClip(kind, status string, seconds float64) {
	m.clipRequestsTotal.WithLabelValues(kind, status).Inc()
	m.clipDuration.WithLabelValues(kind).Observe(seconds)
}
