package config

import "time"

// DefaultConfig returns a configuration suitable for a single-process batch
// run against the Anthropic API.
func DefaultConfig() *Config {
	return &Config{
		Limits:       DefaultLimitsConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Batch:        DefaultBatchConfig(),
		Client:       DefaultClientConfig(),
		Sink:         DefaultSinkConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultLimitsConfig matches the Anthropic tier-1 quota.
func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		RequestsPerMinute: 50,
		TokensPerMinute:   40000,
	}
}

// DefaultOrchestratorConfig returns the stock admission settings.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxConcurrent: 5,
		ChunkSize:     10,
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
			HalfOpenTimeout:  5 * time.Second,
		},
	}
}

// DefaultBatchConfig returns the stock batch pacing settings.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		ChunkDelay:    100 * time.Millisecond,
		TokenEncoding: "cl100k_base",
	}
}

// DefaultClientConfig returns the stock Anthropic client settings. The API
// key has no default and must come from the file or the environment.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Model:            "claude-3-5-sonnet-20241022",
		BaseURL:          "https://api.anthropic.com",
		Timeout:          60 * time.Second,
		DefaultMaxTokens: 1024,
	}
}

// DefaultSinkConfig disables persistence until an output directory is set.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Enabled:   false,
		OutputDir: "responses",
	}
}

// DefaultLogConfig returns JSON logging at info level.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}

// DefaultTelemetryConfig disables export until an endpoint is configured.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		ServiceName:  "batchflow",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
	}
}
