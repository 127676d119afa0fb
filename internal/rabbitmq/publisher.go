package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// HandleProvider yields the current broker handle. Implemented by
// ConnectionManager.
type HandleProvider interface {
	Handle() (*Handle, error)
}

// Publisher hands opaque job payloads to the broker for durable delivery.
// The first attempt runs synchronously so the caller learns the outcome;
// a failed payload is then re-attempted in the background until it is
// delivered. Success means the channel accepted the publish without a
// synchronous error. Broker confirms are not awaited, so a payload the
// broker never acked is lost if the process dies: a known durability gap.
type Publisher struct {
	provider   HandleProvider
	exchange   string
	routingKey string
	scheduler  RetryScheduler
	logger     *slog.Logger
	collector  MetricsCollector
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithPublisherMetrics sets the metrics collector.
func WithPublisherMetrics(collector MetricsCollector) PublisherOption {
	return func(p *Publisher) {
		p.collector = collector
	}
}

// NewPublisher creates a publisher bound to an exchange and routing key.
func NewPublisher(provider HandleProvider, exchange, routingKey string, scheduler RetryScheduler, options ...PublisherOption) *Publisher {
	p := &Publisher{
		provider:   provider,
		exchange:   exchange,
		routingKey: routingKey,
		scheduler:  scheduler,
		logger:     slog.Default(),
		collector:  &NoOpMetricsCollector{},
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish attempts to deliver the payload. On failure (no live handle, or
// the channel rejected the publish synchronously) the error is returned to
// the caller and the same payload is scheduled for background retry until
// it eventually goes through. The caller's error and the retry are
// independent: a 500 to the submitter does not mean the job is dropped.
func (p *Publisher) Publish(ctx context.Context, payload []byte) error {
	messageID := uuid.NewString()

	err := p.tryPublish(ctx, messageID, payload)
	if err == nil {
		return nil
	}

	p.logger.Error("publish failed, scheduling retry",
		"messageId", messageID,
		"exchange", p.exchange,
		"routingKey", p.routingKey,
		"error", err)

	p.scheduleRetry(messageID, payload)
	return err
}

// tryPublish performs one delivery attempt against the handle that is live
// right now. It never waits for a reconnect.
func (p *Publisher) tryPublish(ctx context.Context, messageID string, payload []byte) error {
	handle, err := p.provider.Handle()
	if err != nil {
		p.collector.RecordPublish(false)
		return &PublishError{
			Exchange:   p.exchange,
			RoutingKey: p.routingKey,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}

	err = handle.Channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		p.collector.RecordPublish(false)
		return &PublishError{
			Exchange:   p.exchange,
			RoutingKey: p.routingKey,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}

	p.collector.RecordPublish(true)
	return nil
}

// scheduleRetry queues a background re-attempt of the payload. The task
// keeps its message id, so a job retains one identity across attempts.
func (p *Publisher) scheduleRetry(messageID string, payload []byte) {
	p.collector.RecordPublishRetry()

	p.scheduler.Schedule(&RetryTask{
		Op: "publish " + messageID,
		Run: func(ctx context.Context) error {
			err := p.tryPublish(ctx, messageID, payload)
			if err != nil {
				p.collector.RecordPublishRetry()
				return err
			}

			p.logger.Info("queued payload delivered",
				"messageId", messageID,
				"exchange", p.exchange,
				"routingKey", p.routingKey)
			return nil
		},
	})
}
