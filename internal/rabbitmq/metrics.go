package rabbitmq

// MetricsCollector receives broker-side events for instrumentation.
// The metrics package provides the prometheus-backed implementation.
type MetricsCollector interface {
	// RecordPublish records a publish attempt and its outcome.
	RecordPublish(success bool)

	// RecordPublishRetry records a scheduled re-attempt of a payload.
	RecordPublishRetry()

	// RecordReconnect records a successful reconnect after a fault.
	RecordReconnect()

	// SetConnected updates the broker connectivity gauge.
	SetConnected(connected bool)
}

// NoOpMetricsCollector is the default, do-nothing collector.
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordPublish(success bool) {}

func (n *NoOpMetricsCollector) RecordPublishRetry() {}

func (n *NoOpMetricsCollector) RecordReconnect() {}

func (n *NoOpMetricsCollector) SetConnected(connected bool) {}
