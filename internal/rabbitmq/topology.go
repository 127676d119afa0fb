package rabbitmq

// Topology describes the exchange, queue, and binding the gateway publishes
// through. Declarations are idempotent on the broker side, so the same
// topology is re-declared after every reconnect.
type Topology struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

// Declare ensures the direct exchange, the durable queue, and the binding
// between them exist on the given channel. Safe to call repeatedly and
// against different channels.
func (t Topology) Declare(ch Channel) error {
	if err := ch.ExchangeDeclare(
		t.Exchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return &TopologyError{Component: "exchange", Name: t.Exchange, Err: err}
	}

	if _, err := ch.QueueDeclare(
		t.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return &TopologyError{Component: "queue", Name: t.Queue, Err: err}
	}

	if err := ch.QueueBind(
		t.Queue,
		t.RoutingKey,
		t.Exchange,
		false, // no-wait
		nil,
	); err != nil {
		return &TopologyError{Component: "binding", Name: t.Queue, Err: err}
	}

	return nil
}

// Validate checks the topology names are usable.
func (t Topology) Validate() error {
	if t.Exchange == "" || t.Queue == "" || t.RoutingKey == "" {
		return ErrInvalidConfiguration
	}
	return nil
}
