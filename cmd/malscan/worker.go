package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/malscan/malscan/pkg/artifact"
	"github.com/malscan/malscan/pkg/log"
	"github.com/malscan/malscan/pkg/metrics"
	"github.com/malscan/malscan/pkg/registry"
	"github.com/malscan/malscan/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the analysis pipeline worker",
	Long: `Consume job messages from the queue, one at a time, and run each
artifact through the analysis pipeline. A standalone metrics and health
listener runs alongside the consumer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store, err := registry.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open registry: %w", err)
		}
		defer store.Close()

		blobs, err := artifact.NewMinioStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open blob store: %w", err)
		}

		metricsSrv := metrics.NewServer(cfg.MetricsPort)
		go func() {
			if err := metricsSrv.Start(); err != nil && err != http.ErrServerClosed {
				lg := log.WithComponent("worker")
				lg.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer metricsSrv.Stop(context.Background())

		w := worker.New(cfg, store, blobs)

		errCh := make(chan error, 1)
		go func() {
			errCh <- w.Run(ctx)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			lg := log.WithComponent("worker")
			lg.Info().Str("signal", sig.String()).Msg("shutdown signal received")
			cancel()
			return <-errCh
		}
	},
}
