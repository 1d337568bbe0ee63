/*
Package queue is the durable job transport between the submission API
and the worker pool, built on RabbitMQ.

Delivery discipline:

  - Messages are persistent JSON on the durable queue malscan.jobs.
  - Each worker prefetches exactly one message; an ack is sent only
    after the terminal pipeline outcome is written to the registry.
  - Failed attempts with retries remaining are nacked with requeue.
  - Once the x-death count reaches MaxRetries, or when a message body
    cannot be parsed at all, the message is nacked without requeue and
    the dead-letter binding routes it to malscan-dlq.

The main queue is declared with its dead-letter arguments; if it
already exists with incompatible arguments both sides attach passively
and log the degradation rather than crash.
*/
package queue
