package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete BatchFlow configuration.
type Config struct {
	// Limits is the per-minute quota shared by one orchestrator.
	Limits LimitsConfig `yaml:"limits"`

	// Orchestrator configures admission control.
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Batch configures chunked batch execution.
	Batch BatchConfig `yaml:"batch"`

	// Client configures the Anthropic remote-call collaborator.
	Client ClientConfig `yaml:"client"`

	// Sink configures response persistence.
	Sink SinkConfig `yaml:"sink"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LimitsConfig is the per-minute quota.
type LimitsConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute"`
}

// OrchestratorConfig configures admission control.
type OrchestratorConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	ChunkSize     int `yaml:"chunk_size"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	HalfOpenTimeout  time.Duration `yaml:"half_open_timeout"`
}

// BatchConfig configures batch execution.
type BatchConfig struct {
	// ChunkDelay is the pacing gap between chunks.
	ChunkDelay time.Duration `yaml:"chunk_delay"`

	// TokenEncoding selects the tiktoken encoding used for token
	// estimation. Empty selects cl100k_base.
	TokenEncoding string `yaml:"token_encoding"`
}

// ClientConfig configures the remote-call collaborator.
type ClientConfig struct {
	APIKey           string        `yaml:"api_key"`
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	DefaultMaxTokens int           `yaml:"default_max_tokens"`
}

// SinkConfig configures response persistence.
type SinkConfig struct {
	// Enabled turns the file sink on.
	Enabled bool `yaml:"enabled"`

	// OutputDir is the base directory for saved responses.
	OutputDir string `yaml:"output_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format: json or console.
	Format string `yaml:"format"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Load builds the configuration: defaults, then the YAML file when path is
// non-empty, then environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies BATCHFLOW_* environment variables on top of the
// file values. Only operationally useful knobs are exposed.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BATCHFLOW_API_KEY"); v != "" {
		cfg.Client.APIKey = v
	}
	// The conventional SDK variable works too.
	if cfg.Client.APIKey == "" {
		cfg.Client.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if v := os.Getenv("BATCHFLOW_MODEL"); v != "" {
		cfg.Client.Model = v
	}
	if v := os.Getenv("BATCHFLOW_BASE_URL"); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := os.Getenv("BATCHFLOW_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("BATCHFLOW_TOKENS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.TokensPerMinute = n
		}
	}
	if v := os.Getenv("BATCHFLOW_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxConcurrent = n
		}
	}
	if v := os.Getenv("BATCHFLOW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	if c.Limits.RequestsPerMinute <= 0 {
		return fmt.Errorf("limits.requests_per_minute must be positive, got %d", c.Limits.RequestsPerMinute)
	}
	if c.Limits.TokensPerMinute <= 0 {
		return fmt.Errorf("limits.tokens_per_minute must be positive, got %d", c.Limits.TokensPerMinute)
	}
	if c.Orchestrator.MaxConcurrent <= 0 {
		return fmt.Errorf("orchestrator.max_concurrent must be positive, got %d", c.Orchestrator.MaxConcurrent)
	}
	if c.Orchestrator.ChunkSize <= 0 {
		return fmt.Errorf("orchestrator.chunk_size must be positive, got %d", c.Orchestrator.ChunkSize)
	}
	if c.Sink.Enabled && c.Sink.OutputDir == "" {
		return fmt.Errorf("sink.output_dir is required when the sink is enabled")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	return nil
}
