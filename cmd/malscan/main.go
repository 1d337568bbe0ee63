package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/malscan/malscan/pkg/config"
	"github.com/malscan/malscan/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "malscan",
	Short: "Malscan - asynchronous malware analysis pipeline",
	Long: `Malscan accepts file uploads over HTTP, stores them by content
digest, and runs them through an ordered analysis pipeline (file type,
antivirus, YARA, IOC extraction, sandbox) on queue-driven workers.

One binary carries the API server, the worker, and the operator tools.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Malscan version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(republishCmd)
}

// loadConfig builds the validated runtime configuration and sets up
// the global logger from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogFormat == "json",
	})
	return cfg, nil
}
