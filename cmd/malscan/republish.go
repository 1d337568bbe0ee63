package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/malscan/malscan/pkg/log"
	"github.com/malscan/malscan/pkg/queue"
	"github.com/malscan/malscan/pkg/registry"
	"github.com/malscan/malscan/pkg/types"
)

var republishOlderThan time.Duration

var republishCmd = &cobra.Command{
	Use:   "republish",
	Short: "Re-enqueue stalled queued jobs",
	Long: `Find jobs still in the queued state whose last update is older than
the cutoff and publish a fresh queue message for each. Covers jobs whose
original publish failed after the row was committed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := registry.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open registry: %w", err)
		}
		defer store.Close()

		publisher := queue.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		logger := log.WithComponent("republish")

		cutoff := time.Now().UTC().Add(-republishOlderThan)
		jobs, err := store.ListStalledJobs(ctx, cutoff)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			logger.Info().Time("cutoff", cutoff).Msg("no stalled jobs")
			return nil
		}

		published := 0
		for _, job := range jobs {
			file, err := store.GetFile(ctx, job.FileID)
			if err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("file lookup failed, skipping")
				continue
			}

			msg := types.QueueMessage{
				JobID:            job.ID,
				FileID:           file.ID,
				StorageKey:       file.SHA256,
				SHA256:           file.SHA256,
				OriginalFilename: file.Filename,
			}
			if err := publisher.Publish(ctx, msg); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("republish failed")
				continue
			}
			published++
			logger.Info().Str("job_id", job.ID).Msg("job republished")
		}

		logger.Info().
			Int("stalled", len(jobs)).
			Int("published", published).
			Msg("republish complete")
		return nil
	},
}

func init() {
	republishCmd.Flags().DurationVar(&republishOlderThan, "older-than", 5*time.Minute,
		"republish queued jobs not updated for at least this long")
}
