package queue

import (
	"errors"

	"github.com/streadway/amqp"

	"github.com/malscan/malscan/pkg/log"
)

const (
	// DLQName is the durable dead-letter queue for poisoned and
	// retry-exhausted messages.
	DLQName = "malscan-dlq"

	// MaxRetries is the redelivery budget per message. Once the
	// observed x-death count reaches it, the message is routed to the
	// DLQ instead of being requeued.
	MaxRetries = 3
)

// ErrMalformedMessage marks a message body that cannot be decoded.
// Such messages go straight to the DLQ without touching the registry.
var ErrMalformedMessage = errors.New("queue: malformed message")

// declareQueues declares the DLQ and the main queue with dead-letter
// routing into the DLQ. If the main queue already exists with
// incompatible arguments the declaration fails with
// PRECONDITION_FAILED; the caller then attaches passively on a fresh
// channel and logs the degradation instead of crashing.
func declareQueues(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DLQName,
	})
	return err
}

func isPreconditionFailed(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed
}

// RetryCount extracts the total retry count from the x-death header.
// RabbitMQ appends an x-death entry each time a message is
// dead-lettered; the counts across entries add up to the number of
// redeliveries this message has seen.
func RetryCount(d amqp.Delivery) int {
	if d.Headers == nil {
		return 0
	}
	xDeath, ok := d.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}

	total := 0
	for _, entry := range xDeath {
		table, ok := entry.(amqp.Table)
		if !ok {
			continue
		}
		switch count := table["count"].(type) {
		case int64:
			total += int(count)
		case int32:
			total += int(count)
		case int:
			total += count
		}
	}
	return total
}

func logDegradedDeclare(queue string) {
	lg := log.WithComponent("queue")
	lg.Warn().
		Str("queue", queue).
		Str("reason", "queue exists with different arguments").
		Msg("dead-letter configuration skipped, attaching to existing queue")
}
