package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionState describes the lifecycle of the broker connection.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Handle is the live (connection, channel) pair. The ConnectionManager is
// its sole owner; the Publisher borrows it and never mutates it.
type Handle struct {
	Connection Connection
	Channel    Channel
}

// ConnectionManager owns the single broker connection and its channel. It
// supervises them for process lifetime: any setup failure or transport
// fault degrades to StateDisconnected and schedules a retry, indefinitely.
// There is no terminal failure state.
type ConnectionManager struct {
	url       string
	dial      Dialer
	topology  Topology
	scheduler RetryScheduler
	logger    *slog.Logger
	collector MetricsCollector

	mu           sync.Mutex
	state        ConnectionState
	handle       *Handle
	retryPending bool
	connectedAt  time.Time
	wasConnected bool
	done         chan struct{}
}

// ConnectionOption configures the ConnectionManager.
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(m *ConnectionManager) {
		m.logger = logger
	}
}

// WithDialer replaces the dialer. Tests use this to run the manager
// against a fake broker.
func WithDialer(dial Dialer) ConnectionOption {
	return func(m *ConnectionManager) {
		m.dial = dial
	}
}

// WithConnectionMetrics sets the metrics collector.
func WithConnectionMetrics(collector MetricsCollector) ConnectionOption {
	return func(m *ConnectionManager) {
		m.collector = collector
	}
}

// NewConnectionManager creates a connection manager. The scheduler owns the
// retry timers; the manager schedules at most one setup retry task at a
// time, no matter how many fault signals arrive for the same failure.
func NewConnectionManager(url string, topology Topology, scheduler RetryScheduler, options ...ConnectionOption) *ConnectionManager {
	m := &ConnectionManager{
		url:       url,
		dial:      Dial,
		topology:  topology,
		scheduler: scheduler,
		logger:    slog.Default(),
		collector: &NoOpMetricsCollector{},
		state:     StateDisconnected,
		done:      make(chan struct{}),
	}

	for _, opt := range options {
		opt(m)
	}

	return m
}

// Setup establishes the broker connection, opens the channel, and declares
// the topology. Idempotent: a call while connecting or connected is a
// no-op. On failure it schedules a retry and returns the error; recovery
// then runs in the background until it succeeds.
func (m *ConnectionManager) Setup() error {
	err := m.trySetup()
	if err != nil && !errors.Is(err, ErrClosed) {
		m.scheduleSetupRetry()
	}
	return err
}

// Handle returns the live broker handle, or ErrNotConnected when the
// connection is down. It never blocks waiting for a reconnect.
func (m *ConnectionManager) Handle() (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected || m.handle == nil {
		return nil, ErrNotConnected
	}
	return m.handle, nil
}

// State returns the current connection state.
func (m *ConnectionManager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether a live handle exists.
func (m *ConnectionManager) IsConnected() bool {
	return m.State() == StateConnected
}

// ConnectedSince returns when the current connection was established.
// Zero when disconnected.
func (m *ConnectionManager) ConnectedSince() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return time.Time{}
	}
	return m.connectedAt
}

// Close shuts the manager down. Scheduled setup retries become no-ops.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.state == StateClosing {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosing
	handle := m.handle
	m.handle = nil
	m.mu.Unlock()

	close(m.done)
	m.collector.SetConnected(false)

	if handle != nil {
		return handle.Connection.Close()
	}
	return nil
}

// trySetup performs a single setup attempt. The Connecting state doubles
// as the in-flight guard: a concurrent trigger (for example an error and a
// close event from the same fault) observes Connecting and backs off.
func (m *ConnectionManager) trySetup() error {
	m.mu.Lock()
	switch m.state {
	case StateClosing:
		m.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateConnected:
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	handle, err := m.connect()
	if err != nil {
		m.mu.Lock()
		if m.state == StateConnecting {
			m.state = StateDisconnected
		}
		m.mu.Unlock()

		m.logger.Error("broker setup failed",
			"url", SanitizeURL(m.url),
			"error", err)
		return err
	}

	m.mu.Lock()
	if m.state == StateClosing {
		m.mu.Unlock()
		handle.Connection.Close()
		return ErrClosed
	}
	reconnect := m.wasConnected
	m.handle = handle
	m.state = StateConnected
	m.connectedAt = time.Now()
	m.wasConnected = true
	m.mu.Unlock()

	m.collector.SetConnected(true)
	if reconnect {
		m.collector.RecordReconnect()
	}

	m.logger.Info("broker ready",
		"url", SanitizeURL(m.url),
		"exchange", m.topology.Exchange,
		"queue", m.topology.Queue,
		"routingKey", m.topology.RoutingKey)

	go m.watch(handle)
	return nil
}

// connect dials, opens the channel, and declares topology. Failure at any
// step tears the partial connection down and reports a single error.
func (m *ConnectionManager) connect() (*Handle, error) {
	conn, err := m.dial(m.url)
	if err != nil {
		return nil, &ConnectionError{
			Op:        "dial",
			URL:       SanitizeURL(m.url),
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, &ConnectionError{
			Op:        "open channel",
			URL:       SanitizeURL(m.url),
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	if err := m.topology.Declare(ch); err != nil {
		conn.Close()
		return nil, err
	}

	return &Handle{Connection: conn, Channel: ch}, nil
}

// watch blocks until the connection or the channel reports closure, then
// routes the fault to recovery. One watcher per handle; whichever signal
// arrives first wins and the other is discarded.
func (m *ConnectionManager) watch(h *Handle) {
	connClose := h.Connection.NotifyClose(make(chan *amqp.Error, 1))
	chanClose := h.Channel.NotifyClose(make(chan *amqp.Error, 1))

	var reason *amqp.Error
	select {
	case reason = <-connClose:
	case reason = <-chanClose:
	case <-m.done:
		return
	}

	var err error
	if reason != nil {
		err = reason
	}
	m.onFault(h, err)
}

// onFault handles a transport fault for a specific handle. Faults from a
// superseded handle are ignored so a stale watcher cannot tear down a
// fresh connection.
func (m *ConnectionManager) onFault(h *Handle, err error) {
	m.mu.Lock()
	if m.state == StateClosing || m.handle != h {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.collector.SetConnected(false)
	m.logger.Error("broker connection lost",
		"url", SanitizeURL(m.url),
		"error", err)

	m.scheduleSetupRetry()
}

// scheduleSetupRetry hands recovery to a single retry task. While that
// task is live (scheduled or rescheduling itself through the scheduler),
// further fault signals do not spawn a second one.
func (m *ConnectionManager) scheduleSetupRetry() {
	m.mu.Lock()
	if m.retryPending || m.state == StateClosing {
		m.mu.Unlock()
		return
	}
	m.retryPending = true
	m.mu.Unlock()

	m.scheduler.Schedule(&RetryTask{
		Op: "broker setup",
		Run: func(ctx context.Context) error {
			err := m.trySetup()
			if err != nil && !errors.Is(err, ErrClosed) {
				return err
			}

			m.mu.Lock()
			m.retryPending = false
			m.mu.Unlock()
			return nil
		},
	})
}
