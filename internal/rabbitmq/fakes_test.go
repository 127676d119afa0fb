package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeChannel implements Channel against in-memory state so lifecycle and
// publish behavior can be asserted without a broker.
type fakeChannel struct {
	mu sync.Mutex

	declareErr error
	publishErr error

	exchangeDeclares []string
	queueDeclares    []string
	bindings         []string
	exchangeKind     string
	exchangeDurable  bool
	queueDurable     bool
	bindKey          string
	bindExchange     string

	published []publishedMessage

	notify    []chan *amqp.Error
	closedErr *amqp.Error
	closed    bool
}

type publishedMessage struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.declareErr != nil {
		return c.declareErr
	}
	c.exchangeDeclares = append(c.exchangeDeclares, name)
	c.exchangeKind = kind
	c.exchangeDurable = durable
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.declareErr != nil {
		return amqp.Queue{}, c.declareErr
	}
	c.queueDeclares = append(c.queueDeclares, name)
	c.queueDurable = durable
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.declareErr != nil {
		return c.declareErr
	}
	c.bindings = append(c.bindings, name)
	c.bindKey = key
	c.bindExchange = exchange
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishedMessage{
		exchange:   exchange,
		routingKey: key,
		msg:        msg,
	})
	return nil
}

func (c *fakeChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		if c.closedErr != nil {
			receiver <- c.closedErr
		}
		close(receiver)
		return receiver
	}
	c.notify = append(c.notify, receiver)
	return receiver
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) simulateClose(err *amqp.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.closedErr = err
	for _, r := range c.notify {
		if err != nil {
			r <- err
		}
		close(r)
	}
	c.notify = nil
}

func (c *fakeChannel) setPublishErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

func (c *fakeChannel) publishCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func (c *fakeChannel) publishedAt(i int) publishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published[i]
}

func (c *fakeChannel) exchangeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exchangeDeclares)
}

// fakeConnection implements Connection over a single fakeChannel.
type fakeConnection struct {
	mu sync.Mutex

	ch         *fakeChannel
	channelErr error

	notify    []chan *amqp.Error
	closedErr *amqp.Error
	closed    bool
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{ch: &fakeChannel{}}
}

func (c *fakeConnection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channelErr != nil {
		return nil, c.channelErr
	}
	return c.ch, nil
}

func (c *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		if c.closedErr != nil {
			receiver <- c.closedErr
		}
		close(receiver)
		return receiver
	}
	c.notify = append(c.notify, receiver)
	return receiver
}

func (c *fakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConnection) simulateClose(err *amqp.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.closedErr = err
	for _, r := range c.notify {
		if err != nil {
			r <- err
		}
		close(r)
	}
	c.notify = nil
}

// manualScheduler collects retry tasks so tests can assert on scheduled
// work and fire it deterministically. Like TimerScheduler, a task that
// fails when run is rescheduled with its attempt count incremented.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*RetryTask
}

func (s *manualScheduler) Schedule(task *RetryTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *manualScheduler) runPending() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, task := range tasks {
		if err := task.Run(context.Background()); err != nil {
			task.Attempts++
			s.Schedule(task)
		}
	}
	return len(tasks)
}
