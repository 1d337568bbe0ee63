package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/malscan/malscan/pkg/api"
	"github.com/malscan/malscan/pkg/artifact"
	"github.com/malscan/malscan/pkg/log"
	"github.com/malscan/malscan/pkg/queue"
	"github.com/malscan/malscan/pkg/registry"
)

const shutdownGrace = 15 * time.Second

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the submission and query HTTP server",
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

		blobs, err := artifact.NewMinioStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open blob store: %w", err)
		}

		publisher := queue.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		server := api.NewServer(cfg, store, blobs, publisher)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			lg := log.WithComponent("api")
			lg.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Stop(shutdownCtx)
	},
}
