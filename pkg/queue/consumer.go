package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/streadway/amqp"

	"github.com/malscan/malscan/pkg/log"
)

// Connection retry settings: fixed 10-second intervals for up to 90
// attempts, roughly 15 minutes of broker startup tolerance.
const (
	connectAttempts = 90
	connectInterval = 10 * time.Second
)

// Consumer receives job messages one at a time (prefetch = 1) so a
// crashed worker releases at most one unacked job for redelivery.
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewConsumer connects to the broker with retry and sets up the main
// queue and DLQ.
func NewConsumer(ctx context.Context, url, queue string) (*Consumer, error) {
	logger := log.WithComponent("queue")

	var conn *amqp.Connection
	attempt := 0
	op := func() error {
		attempt++
		var err error
		conn, err = amqp.Dial(url)
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", connectAttempts).
			Dur("retry_in", wait).
			Msg("broker connect retry")
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(connectInterval), connectAttempts-1),
		ctx)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	logger.Info().Msg("broker connected")

	c := &Consumer{conn: conn, queue: queue}
	if err := c.setup(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) setup() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareQueues(ch, c.queue); err != nil {
		if !isPreconditionFailed(err) {
			return fmt.Errorf("failed to declare queues: %w", err)
		}
		logDegradedDeclare(c.queue)
		ch, err = c.conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to reopen channel: %w", err)
		}
		if _, err := ch.QueueDeclarePassive(c.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to attach to existing queue: %w", err)
		}
	}

	// One unacked message per worker
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	c.ch = ch
	lg := log.WithComponent("queue")
	lg.Info().
		Str("queue", c.queue).
		Str("dlq", DLQName).
		Msg("consumer ready")
	return nil
}

// Deliveries starts consuming and returns the delivery channel. The
// channel closes when the connection drops; callers reconnect by
// building a new Consumer.
func (c *Consumer) Deliveries() (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return deliveries, nil
}

// Depth returns the number of messages waiting in the main queue
func (c *Consumer) Depth() (int, error) {
	q, err := c.ch.QueueInspect(c.queue)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return q.Messages, nil
}

// Closed returns a channel that receives the connection error when the
// broker connection is lost.
func (c *Consumer) Closed() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close shuts down the channel and connection
func (c *Consumer) Close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	return c.conn.Close()
}
