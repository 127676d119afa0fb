// Package metrics exposes the gateway's prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reasons for rejected job submissions.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonBadRequest   = "bad_request"
	ReasonPublish      = "publish_failed"
)

// Metrics contains all gateway-level metrics.
type Metrics struct {
	registry *prometheus.Registry

	JobsAccepted    prometheus.Counter
	JobsRejected    *prometheus.CounterVec
	PublishAttempts *prometheus.CounterVec
	PublishRetries  prometheus.Counter
	Reconnects      prometheus.Counter
	BrokerConnected prometheus.Gauge
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		JobsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobgate",
			Subsystem: "jobs",
			Name:      "accepted_total",
			Help:      "Total number of job submissions accepted",
		}),

		JobsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobgate",
			Subsystem: "jobs",
			Name:      "rejected_total",
			Help:      "Total number of job submissions rejected",
		}, []string{"reason"}),

		PublishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobgate",
			Subsystem: "broker",
			Name:      "publish_attempts_total",
			Help:      "Total number of publish attempts by outcome",
		}, []string{"outcome"}),

		PublishRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobgate",
			Subsystem: "broker",
			Name:      "publish_retries_total",
			Help:      "Total number of scheduled publish re-attempts",
		}),

		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobgate",
			Subsystem: "broker",
			Name:      "reconnects_total",
			Help:      "Total number of successful broker reconnects",
		}),

		BrokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jobgate",
			Subsystem: "broker",
			Name:      "connected",
			Help:      "Broker connectivity (1=connected, 0=disconnected)",
		}),
	}

	m.registry.MustRegister(
		m.JobsAccepted,
		m.JobsRejected,
		m.PublishAttempts,
		m.PublishRetries,
		m.Reconnects,
		m.BrokerConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPublish implements rabbitmq.MetricsCollector.
func (m *Metrics) RecordPublish(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.PublishAttempts.WithLabelValues(outcome).Inc()
}

// RecordPublishRetry implements rabbitmq.MetricsCollector.
func (m *Metrics) RecordPublishRetry() {
	m.PublishRetries.Inc()
}

// RecordReconnect implements rabbitmq.MetricsCollector.
func (m *Metrics) RecordReconnect() {
	m.Reconnects.Inc()
}

// SetConnected implements rabbitmq.MetricsCollector.
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.BrokerConnected.Set(1)
	} else {
		m.BrokerConnected.Set(0)
	}
}
