package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection abstracts the underlying AMQP connection so the lifecycle
// code can be exercised against a fake broker in tests.
type Connection interface {
	// Channel opens a new channel on the connection.
	Channel() (Channel, error)

	// NotifyClose registers a listener for connection close events.
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error

	// IsClosed reports whether the connection has been closed.
	IsClosed() bool

	// Close closes the connection and all its channels.
	Close() error
}

// Channel abstracts the subset of amqp.Channel the gateway uses:
// topology declaration and publishing.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer establishes a broker connection from a URL.
type Dialer func(url string) (Connection, error)

// Dial is the production Dialer backed by amqp091-go.
func Dial(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

// amqpConnection adapts *amqp.Connection to the Connection interface.
type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}
