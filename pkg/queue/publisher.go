package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/streadway/amqp"

	"github.com/malscan/malscan/pkg/log"
	"github.com/malscan/malscan/pkg/types"
)

// Publish retry settings: 5 attempts with 1/2/4/8/16 second waits
const (
	publishAttempts        = 5
	publishInitialInterval = 1 * time.Second
)

// Publisher enqueues job messages
type Publisher interface {
	Publish(ctx context.Context, msg types.QueueMessage) error
}

// AMQPPublisher implements Publisher against RabbitMQ. It dials per
// publish: submissions are rare relative to connection cost and a
// short-lived connection avoids holding broker state in the API
// process.
type AMQPPublisher struct {
	url   string
	queue string
}

// NewPublisher creates a publisher for the given broker URL and queue
func NewPublisher(url, queue string) *AMQPPublisher {
	return &AMQPPublisher{url: url, queue: queue}
}

// Publish sends a persistent JSON message to the job queue, retrying
// transient broker failures with bounded exponential backoff.
func (p *AMQPPublisher) Publish(ctx context.Context, msg types.QueueMessage) error {
	logger := log.WithComponent("queue")

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode queue message: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = publishInitialInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 16 * time.Second

	attempt := 0
	op := func() error {
		attempt++
		return p.publishOnce(body)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", publishAttempts).
			Dur("retry_in", wait).
			Msg("queue publish retry")
	}

	err = backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(bo, publishAttempts-1), ctx),
		notify)
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", msg.JobID, err)
	}

	logger.Info().
		Str("job_id", msg.JobID).
		Str("file_id", msg.FileID).
		Str("queue", p.queue).
		Msg("job published")
	return nil
}

func (p *AMQPPublisher) publishOnce(body []byte) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareQueues(ch, p.queue); err != nil {
		if !isPreconditionFailed(err) {
			return fmt.Errorf("failed to declare queue: %w", err)
		}
		// The failed declare closed the channel; attach passively on a
		// fresh one.
		logDegradedDeclare(p.queue)
		ch, err = conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to reopen channel: %w", err)
		}
		if _, err := ch.QueueDeclarePassive(p.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to attach to existing queue: %w", err)
		}
	}
	defer ch.Close()

	// Publish to the default exchange with the queue name as routing key
	return ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}
