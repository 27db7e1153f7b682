package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Orchestrator.MaxConcurrent)
	assert.Equal(t, 10, cfg.Orchestrator.ChunkSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Batch.ChunkDelay)
	assert.Equal(t, 60*time.Second, cfg.Orchestrator.Breaker.ResetTimeout)
	assert.False(t, cfg.Sink.Enabled)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, DefaultLimitsConfig(), cfg.Limits)
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchflow.yaml")
	data := []byte(`
limits:
  requests_per_minute: 100
orchestrator:
  max_concurrent: 8
batch:
  chunk_delay: 250ms
sink:
  enabled: true
  output_dir: out
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Limits.RequestsPerMinute)
	// Untouched keys keep their defaults.
	assert.Equal(t, 40000, cfg.Limits.TokensPerMinute)
	assert.Equal(t, 8, cfg.Orchestrator.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.ChunkDelay)
	assert.True(t, cfg.Sink.Enabled)
	assert.Equal(t, "out", cfg.Sink.OutputDir)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  model: from-file\n"), 0o644))

	t.Setenv("BATCHFLOW_MODEL", "from-env")
	t.Setenv("BATCHFLOW_MAX_CONCURRENT", "3")
	t.Setenv("BATCHFLOW_API_KEY", "sk-test")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Client.Model)
	assert.Equal(t, 3, cfg.Orchestrator.MaxConcurrent)
	assert.Equal(t, "sk-test", cfg.Client.APIKey)
}

func TestLoad_FallsBackToAnthropicAPIKey(t *testing.T) {
	t.Setenv("BATCHFLOW_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-sdk")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "sk-sdk", cfg.Client.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rpm", func(c *Config) { c.Limits.RequestsPerMinute = 0 }},
		{"negative tpm", func(c *Config) { c.Limits.TokensPerMinute = -1 }},
		{"zero concurrency", func(c *Config) { c.Orchestrator.MaxConcurrent = 0 }},
		{"zero chunk size", func(c *Config) { c.Orchestrator.ChunkSize = 0 }},
		{"sink without dir", func(c *Config) { c.Sink.Enabled = true; c.Sink.OutputDir = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
