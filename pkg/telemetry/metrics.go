package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the support pipeline.
type Metrics struct {
	ticketsTotal       *prometheus.CounterVec
	sendDuration       *prometheus.HistogramVec
	admissionDenied    *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	redactionsTotal    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance with its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		ticketsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskmesh_tickets_total",
				Help: "Tickets reaching a terminal status, partitioned by status",
			},
			[]string{"status"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskmesh_bus_send_duration_seconds",
				Help:    "Bus dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"from", "to", "status"},
		),
		admissionDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskmesh_admission_denied_total",
				Help: "Requests rejected by the rate limiter, partitioned by scope",
			},
			[]string{"scope"},
		),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskmesh_validation_failures_total",
				Help: "Safety validation failures, partitioned by stage",
			},
			[]string{"stage"},
		),
		redactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskmesh_redactions_total",
				Help: "Output redactions applied, partitioned by category",
			},
			[]string{"category"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.ticketsTotal,
		m.sendDuration,
		m.admissionDenied,
		m.validationFailures,
		m.redactionsTotal,
	)
	return m
}

// RecordTicket counts a ticket reaching a terminal status.
func (m *Metrics) RecordTicket(status string) {
	m.ticketsTotal.WithLabelValues(status).Inc()
}

// ObserveSend records one bus dispatch.
func (m *Metrics) ObserveSend(from, to, status string, elapsed time.Duration) {
	m.sendDuration.WithLabelValues(from, to, status).Observe(elapsed.Seconds())
}

// RecordAdmissionDenied counts a rate-limit rejection.
func (m *Metrics) RecordAdmissionDenied(scope string) {
	m.admissionDenied.WithLabelValues(scope).Inc()
}

// RecordValidationFailure counts a safety rejection at the named stage
// ("input" or "output").
func (m *Metrics) RecordValidationFailure(stage string) {
	m.validationFailures.WithLabelValues(stage).Inc()
}

// RecordRedaction counts one applied output redaction.
func (m *Metrics) RecordRedaction(category string) {
	m.redactionsTotal.WithLabelValues(category).Inc()
}

// Handler returns an HTTP handler serving this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
