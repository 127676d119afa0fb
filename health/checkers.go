package health

import (
	"context"
	"time"

	"github.com/glimte/jobgate/internal/rabbitmq"
)

// BrokerChecker reports the connection manager's view of the broker.
type BrokerChecker struct {
	manager *rabbitmq.ConnectionManager
}

// NewBrokerChecker creates a broker health checker.
func NewBrokerChecker(manager *rabbitmq.ConnectionManager) *BrokerChecker {
	return &BrokerChecker{manager: manager}
}

func (c *BrokerChecker) Name() string {
	return "broker"
}

func (c *BrokerChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]any{"state": c.manager.State().String()},
	}

	if !c.manager.IsConnected() {
		result.Status = StatusDegraded
		result.Message = "broker connection down, reconnecting"
		return result
	}

	result.Status = StatusHealthy
	if since := c.manager.ConnectedSince(); !since.IsZero() {
		result.Details["connectedFor"] = time.Since(since).String()
	}
	return result
}
