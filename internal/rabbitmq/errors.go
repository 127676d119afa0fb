package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrNotConnected is returned when an operation needs a live broker
	// handle and none exists.
	ErrNotConnected = errors.New("rabbitmq: not connected")

	// ErrClosed is returned when the manager has been shut down.
	ErrClosed = errors.New("rabbitmq: connection manager closed")

	// ErrInvalidConfiguration indicates a misconfigured component.
	ErrInvalidConfiguration = errors.New("rabbitmq: invalid configuration")
)

// ConnectionError represents a connection setup failure.
type ConnectionError struct {
	Op        string    // Operation that failed
	URL       string    // Connection URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rabbitmq connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TopologyError represents an exchange, queue, or binding declaration failure.
type TopologyError struct {
	Component string // exchange, queue, or binding
	Name      string // Component name
	Err       error  // Underlying error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("rabbitmq topology error: declare %s %q: %v", e.Component, e.Name, e.Err)
}

func (e *TopologyError) Unwrap() error {
	return e.Err
}

// PublishError represents a failed publish attempt.
type PublishError struct {
	Exchange   string    // Target exchange
	RoutingKey string    // Routing key used
	Err        error     // Underlying error
	Timestamp  time.Time // When the error occurred
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("rabbitmq publish error: publish to %s/%s failed: %v",
		e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// SanitizeURL strips credentials from a broker URL so it is safe to log.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}
