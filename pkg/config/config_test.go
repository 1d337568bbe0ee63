package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, int64(20*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, 5, cfg.StagesTotal)
	assert.Equal(t, 300, cfg.StageTimeoutSeconds)
	assert.Equal(t, "malscan.jobs", cfg.RabbitMQQueue)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAX_FILE_SIZE", "1024")
	t.Setenv("STAGES_TOTAL", "3")
	t.Setenv("RABBITMQ_QUEUE", "other.jobs")
	t.Setenv("SANDBOX_ENABLED", "false")
	t.Setenv("MINIO_SECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1024), cfg.MaxFileSize)
	assert.Equal(t, 3, cfg.StagesTotal)
	assert.Equal(t, "other.jobs", cfg.RabbitMQQueue)
	assert.False(t, cfg.SandboxEnabled)
	assert.True(t, cfg.MinioSecure)
}

func TestEnvInvalidInt(t *testing.T) {
	t.Setenv("STAGES_TOTAL", "banana")

	_, err := Load()
	assert.Error(t, err)
}

func TestYAMLFileWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "malscan.yaml")
	data := []byte("stages_total: 7\nrabbitmq_queue: file.jobs\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("MALSCAN_CONFIG", path)
	t.Setenv("RABBITMQ_QUEUE", "env.jobs")

	cfg, err := Load()
	require.NoError(t, err)

	// File overrides defaults, env overrides file
	assert.Equal(t, 7, cfg.StagesTotal)
	assert.Equal(t, "env.jobs", cfg.RabbitMQQueue)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "zero stages", mutate: func(c *Config) { c.StagesTotal = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.StageTimeoutSeconds = -1 }, wantErr: true},
		{name: "zero max file size", mutate: func(c *Config) { c.MaxFileSize = 0 }, wantErr: true},
		{name: "empty queue", mutate: func(c *Config) { c.RabbitMQQueue = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
