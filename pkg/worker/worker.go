package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/streadway/amqp"

	"github.com/malscan/malscan/pkg/artifact"
	"github.com/malscan/malscan/pkg/config"
	"github.com/malscan/malscan/pkg/log"
	"github.com/malscan/malscan/pkg/metrics"
	"github.com/malscan/malscan/pkg/pipeline"
	"github.com/malscan/malscan/pkg/queue"
	"github.com/malscan/malscan/pkg/registry"
	"github.com/malscan/malscan/pkg/types"
)

const (
	depthPollInterval = 15 * time.Second

	// Slack on top of the worst-case pipeline duration for the blob
	// fetch retries and the registry writes around the stages.
	jobBudgetSlack = 2 * time.Minute
)

type pipelineRunner interface {
	Run(ctx context.Context, msg types.QueueMessage, filePath string) (*types.Report, error)
}

// Worker consumes job messages and drives them through the analysis
// pipeline to a terminal registry state. One message is processed at a
// time; the broker redelivers anything unacked if the process dies.
type Worker struct {
	cfg   config.Config
	store registry.Store
	blobs artifact.Store
	pipe  pipelineRunner
}

// New creates a worker wired to the given registry and blob store
func New(cfg config.Config, store registry.Store, blobs artifact.Store) *Worker {
	return &Worker{
		cfg:   cfg,
		store: store,
		blobs: blobs,
		pipe:  pipeline.New(cfg, store),
	}
}

// Run consumes until the context is cancelled, reconnecting to the
// broker whenever the connection drops.
func (w *Worker) Run(ctx context.Context) error {
	logger := log.WithComponent("worker")

	for {
		consumer, err := queue.NewConsumer(ctx, w.cfg.RabbitMQURL, w.cfg.RabbitMQQueue)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("worker stopped")
				return nil
			}
			return err
		}

		err = w.consume(ctx, consumer)
		consumer.Close()

		if ctx.Err() != nil {
			logger.Info().Msg("worker stopped")
			return nil
		}
		logger.Warn().Err(err).Msg("broker connection lost, reconnecting")
	}
}

func (w *Worker) consume(ctx context.Context, consumer *queue.Consumer) error {
	deliveries, err := consumer.Deliveries()
	if err != nil {
		return err
	}
	closed := consumer.Closed()

	depthCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.collectDepth(depthCtx, consumer)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.handleDelivery(d)
		}
	}
}

// collectDepth publishes the main queue depth as a gauge until the
// consumer goes away.
func (w *Worker) collectDepth(ctx context.Context, consumer *queue.Consumer) {
	ticker := time.NewTicker(depthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := consumer.Depth()
			if err != nil {
				lg := log.WithComponent("worker")
				lg.Debug().Err(err).Msg("queue depth probe failed")
				continue
			}
			metrics.QueueDepth.Set(float64(depth))
		}
	}
}

// handleDelivery processes one message to an ack or nack. A message is
// acked only after its terminal outcome is in the registry; malformed
// bodies go straight to the DLQ without touching the registry.
//
// The delivery runs on its own context rather than the consume loop's:
// the shutdown signal stops intake between messages, it does not abort
// the stage in progress or the registry writes that persist its
// outcome. The per-stage timeouts bound the run, with jobBudget as the
// outer drain deadline.
func (w *Worker) handleDelivery(d amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobBudget())
	defer cancel()

	retryCount := queue.RetryCount(d)

	var msg types.QueueMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.JobID == "" {
		if err == nil {
			err = queue.ErrMalformedMessage
		}
		lg := log.WithComponent("worker")
		lg.Error().Err(err).Msg("invalid message format, dead-lettering")
		w.nack(d, false)
		return
	}

	logger := log.WithJobID(msg.JobID)
	logger.Info().
		Str("file_id", msg.FileID).
		Int("retry_count", retryCount).
		Msg("job received")

	metrics.WorkerActiveJobs.Inc()
	defer metrics.WorkerActiveJobs.Dec()
	metrics.JobTotal.WithLabelValues(string(types.JobStatusScanning)).Inc()

	if err := w.store.UpdateStatus(ctx, msg.JobID, registry.StatusUpdate{
		Status: types.JobStatusScanning,
	}); err != nil {
		logger.Warn().Err(err).Msg("scanning status write failed, continuing")
	}

	report, err := w.process(ctx, msg)
	if err != nil {
		w.handleFailure(ctx, d, msg, retryCount, err)
		return
	}

	if err := w.store.UpdateResult(ctx, msg.JobID, report); err != nil {
		// Terminal write must land before the ack, otherwise the job
		// would vanish from the queue with no recorded outcome.
		logger.Error().Err(err).Msg("result write failed, requeueing for redelivery")
		w.nack(d, true)
		return
	}

	metrics.JobTotal.WithLabelValues(string(types.JobStatusDone)).Inc()
	if err := d.Ack(false); err != nil {
		logger.Error().Err(err).Msg("ack failed")
		return
	}
	logger.Info().Str("verdict", string(report.Verdict)).Msg("job completed")
}

// process fetches the artifact into a per-job working directory and
// runs the pipeline. The directory is removed no matter how the run
// ends.
func (w *Worker) process(ctx context.Context, msg types.QueueMessage) (*types.Report, error) {
	workDir := filepath.Join(w.cfg.WorkDir, msg.JobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	filePath, err := w.blobs.Fetch(ctx, msg.StorageKey, workDir)
	if err != nil {
		return nil, err
	}

	return w.pipe.Run(ctx, msg, filePath)
}

// handleFailure routes a failed attempt: requeue while the retry
// budget lasts, otherwise record the terminal failure and dead-letter
// the message.
func (w *Worker) handleFailure(ctx context.Context, d amqp.Delivery, msg types.QueueMessage, retryCount int, procErr error) {
	logger := log.WithJobID(msg.JobID)
	metrics.JobTotal.WithLabelValues(string(types.JobStatusFailed)).Inc()

	logger.Error().
		Err(procErr).
		Int("retry_count", retryCount).
		Msg("job failed")

	if retryCount < queue.MaxRetries {
		logger.Warn().
			Int("retry_count", retryCount).
			Int("max_retries", queue.MaxRetries).
			Msg("retry scheduled")
		w.nack(d, true)
		return
	}

	errMsg := fmt.Sprintf("Max retries exceeded: %v", procErr)
	if err := w.store.UpdateStatus(ctx, msg.JobID, registry.StatusUpdate{
		Status:       types.JobStatusFailed,
		ErrorMessage: &errMsg,
	}); err != nil {
		logger.Error().Err(err).Msg("terminal status write failed, requeueing for redelivery")
		w.nack(d, true)
		return
	}

	logger.Warn().Int("retry_count", retryCount).Msg("job sent to dead letter queue")
	w.nack(d, false)
}

// jobBudget bounds one delivery end to end: every stage running to its
// full timeout, plus slack for fetch and registry traffic.
func (w *Worker) jobBudget() time.Duration {
	stages := time.Duration(w.cfg.StagesTotal*w.cfg.StageTimeoutSeconds) * time.Second
	return stages + jobBudgetSlack
}

func (w *Worker) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		lg := log.WithComponent("worker")
		lg.Error().Err(err).Bool("requeue", requeue).Msg("nack failed")
	}
}
