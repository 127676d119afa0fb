package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider hands out a configurable handle, standing in for the
// connection manager.
type fakeProvider struct {
	mu     sync.Mutex
	handle *Handle
	err    error
}

func (f *fakeProvider) Handle() (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return f.handle, nil
}

func (f *fakeProvider) set(handle *Handle, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handle = handle
	f.err = err
}

type countingCollector struct {
	mu             sync.Mutex
	publishOK      int
	publishFail    int
	publishRetries int
	reconnects     int
	connected      bool
}

func (c *countingCollector) RecordPublish(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.publishOK++
	} else {
		c.publishFail++
	}
}

func (c *countingCollector) RecordPublishRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishRetries++
}

func (c *countingCollector) RecordReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
}

func (c *countingCollector) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

func TestPublisher(t *testing.T) {
	t.Run("Publish forwards payload for persistent delivery", func(t *testing.T) {
		ch := &fakeChannel{}
		provider := &fakeProvider{handle: &Handle{Channel: ch}}
		sched := &manualScheduler{}
		p := NewPublisher(provider, "jobs", "jobs.submit", sched)

		body := []byte(`{"task":"resize","id":42}`)
		err := p.Publish(context.Background(), body)
		require.NoError(t, err)

		require.Equal(t, 1, ch.publishCount())
		got := ch.publishedAt(0)
		assert.Equal(t, "jobs", got.exchange)
		assert.Equal(t, "jobs.submit", got.routingKey)
		assert.Equal(t, body, got.msg.Body)
		assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
		assert.Equal(t, "application/json", got.msg.ContentType)
		assert.NotEmpty(t, got.msg.MessageId)
		assert.False(t, got.msg.Timestamp.IsZero())
		assert.Zero(t, sched.pending())
	})

	t.Run("Publish without a live handle fails fast and schedules retry", func(t *testing.T) {
		provider := &fakeProvider{err: ErrNotConnected}
		sched := &manualScheduler{}
		p := NewPublisher(provider, "jobs", "jobs.submit", sched)

		err := p.Publish(context.Background(), []byte(`{"task":"resize"}`))
		require.Error(t, err)

		var pubErr *PublishError
		assert.ErrorAs(t, err, &pubErr)
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Equal(t, 1, sched.pending())
	})

	t.Run("failed payload is delivered once a handle appears", func(t *testing.T) {
		provider := &fakeProvider{err: ErrNotConnected}
		sched := &manualScheduler{}
		p := NewPublisher(provider, "jobs", "jobs.submit", sched)

		body := []byte(`{"task":"resize","id":42}`)
		require.Error(t, p.Publish(context.Background(), body))

		// Broker still down: retry re-schedules itself.
		sched.runPending()
		require.Equal(t, 1, sched.pending())

		ch := &fakeChannel{}
		provider.set(&Handle{Channel: ch}, nil)
		sched.runPending()

		assert.Zero(t, sched.pending())
		require.Equal(t, 1, ch.publishCount())
		assert.Equal(t, body, ch.publishedAt(0).msg.Body)
	})

	t.Run("message id is stable across retries", func(t *testing.T) {
		ch := &fakeChannel{}
		ch.setPublishErr(errors.New("channel write failed"))
		provider := &fakeProvider{handle: &Handle{Channel: ch}}
		sched := &manualScheduler{}
		p := NewPublisher(provider, "jobs", "jobs.submit", sched)

		require.Error(t, p.Publish(context.Background(), []byte(`{"task":"resize"}`)))
		require.Equal(t, 1, sched.pending())
		retryOp := sched.tasks[0].Op

		ch.setPublishErr(nil)
		sched.runPending()

		require.Equal(t, 1, ch.publishCount())
		assert.Equal(t, "publish "+ch.publishedAt(0).msg.MessageId, retryOp)
	})

	t.Run("synchronous send failure surfaces and retries", func(t *testing.T) {
		ch := &fakeChannel{}
		sendErr := errors.New("channel write failed")
		ch.setPublishErr(sendErr)
		provider := &fakeProvider{handle: &Handle{Channel: ch}}
		sched := &manualScheduler{}
		p := NewPublisher(provider, "jobs", "jobs.submit", sched)

		err := p.Publish(context.Background(), []byte(`{"task":"resize"}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, sendErr)
		require.Equal(t, 1, sched.pending())

		ch.setPublishErr(nil)
		sched.runPending()
		assert.Equal(t, 1, ch.publishCount())
	})

	t.Run("metrics record outcomes and retries", func(t *testing.T) {
		collector := &countingCollector{}
		provider := &fakeProvider{err: ErrNotConnected}
		sched := &manualScheduler{}
		p := NewPublisher(provider, "jobs", "jobs.submit", sched,
			WithPublisherMetrics(collector),
		)

		require.Error(t, p.Publish(context.Background(), []byte("{}")))
		assert.Equal(t, 1, collector.publishFail)
		assert.Equal(t, 1, collector.publishRetries)

		ch := &fakeChannel{}
		provider.set(&Handle{Channel: ch}, nil)
		sched.runPending()
		assert.Equal(t, 1, collector.publishOK)
	})
}
