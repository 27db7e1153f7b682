package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/batch"
	"github.com/BaSui01/batchflow/circuitbreaker"
	"github.com/BaSui01/batchflow/client"
	"github.com/BaSui01/batchflow/config"
	"github.com/BaSui01/batchflow/internal/metrics"
	"github.com/BaSui01/batchflow/internal/telemetry"
	"github.com/BaSui01/batchflow/orchestrator"
	"github.com/BaSui01/batchflow/sink"
	"github.com/BaSui01/batchflow/tokenizer"
	"github.com/BaSui01/batchflow/types"
)

func runBatch(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	inputPath := fs.String("input", "", `Path to JSON request file, "-" for stdin`)
	outputDir := fs.String("output", "", "Directory for saved responses")
	metricsAddr := fs.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint, empty disables it")
	fs.Parse(args)

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "run: --input is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Sink.Enabled = true
		cfg.Sink.OutputDir = *outputDir
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting batchflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("metrics endpoint listening", zap.String("addr", *metricsAddr))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	requests, err := readRequests(*inputPath)
	if err != nil {
		logger.Fatal("failed to read requests", zap.Error(err))
	}
	if len(requests) == 0 {
		logger.Info("no requests to process")
		return
	}

	processor, err := buildProcessor(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build processor", zap.Error(err))
	}

	start := time.Now()
	responses := processor.ProcessBatch(ctx, requests)
	stats := processor.Stats()

	logger.Info("batch finished",
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed),
		zap.Int("chunks", stats.TotalChunks),
		zap.Float64("success_rate", stats.SuccessRate()),
		zap.Duration("took", time.Since(start)),
	)

	if err := json.NewEncoder(os.Stdout).Encode(responses); err != nil {
		logger.Error("failed to write responses", zap.Error(err))
	}
	if stats.Failed > 0 {
		os.Exit(2)
	}
}

// readRequests decodes the request list from a file or stdin. Both a bare
// JSON array and a {"requests": [...]} wrapper are accepted.
func readRequests(path string) ([]types.Request, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var requests []types.Request
	if err := json.Unmarshal(data, &requests); err == nil {
		return requests, nil
	}

	var wrapper struct {
		Requests []types.Request `json:"requests"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse requests: %w", err)
	}
	return wrapper.Requests, nil
}

func buildProcessor(cfg *config.Config, logger *zap.Logger) (*batch.Processor, error) {
	invoker, err := client.NewAnthropic(client.AnthropicConfig{
		APIKey:           cfg.Client.APIKey,
		Model:            cfg.Client.Model,
		BaseURL:          cfg.Client.BaseURL,
		Timeout:          cfg.Client.Timeout,
		DefaultMaxTokens: cfg.Client.DefaultMaxTokens,
	}, logger)
	if err != nil {
		return nil, err
	}

	limits, err := types.NewRateLimits(cfg.Limits.RequestsPerMinute, cfg.Limits.TokensPerMinute)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector("batchflow", logger)

	orch := orchestrator.New(limits, &orchestrator.Config{
		MaxConcurrent: cfg.Orchestrator.MaxConcurrent,
		ChunkSize:     cfg.Orchestrator.ChunkSize,
		Breaker: &circuitbreaker.Config{
			FailureThreshold: cfg.Orchestrator.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Orchestrator.Breaker.ResetTimeout,
			HalfOpenTimeout:  cfg.Orchestrator.Breaker.HalfOpenTimeout,
			OnStateChange: func(from, to circuitbreaker.State) {
				if to == circuitbreaker.StateOpen {
					collector.RecordBreakerOpen()
				}
			},
		},
	}, logger)

	opts := []batch.Option{
		batch.WithLogger(logger),
		batch.WithMetrics(collector),
		batch.WithTokenizer(tokenizer.NewTiktoken(cfg.Batch.TokenEncoding)),
	}
	if cfg.Batch.ChunkDelay > 0 {
		opts = append(opts, batch.WithChunkDelay(cfg.Batch.ChunkDelay))
	}
	if cfg.Sink.Enabled {
		fileSink, err := sink.NewFileSink(cfg.Sink.OutputDir, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, batch.WithSink(fileSink))
	}

	return batch.NewProcessor(invoker, orch, opts...), nil
}
