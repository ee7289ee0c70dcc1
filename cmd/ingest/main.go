package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/road-weather-ingest/internal/adapter/collector"
	httpadapter "github.com/couchcryptid/road-weather-ingest/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/road-weather-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/road-weather-ingest/internal/adapter/tcp"
	"github.com/couchcryptid/road-weather-ingest/internal/config"
	"github.com/couchcryptid/road-weather-ingest/internal/observability"
	"github.com/couchcryptid/road-weather-ingest/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	tables, err := config.LoadChannelTables(cfg.ChannelTablePath)
	if err != nil {
		logger.Error("failed to load channel tables", "error", err)
		os.Exit(1)
	}
	codec := pipeline.NewCodec(cfg.FramingMode, cfg.MaxFrameBytes, cfg.ChecksumEnabled, tables, cfg.PairRules)
	logger.Info("decoder configured",
		"framing", cfg.FramingMode,
		"checksum", cfg.ChecksumEnabled,
		"devices", codec.Decoder.Mapper().Devices(),
		"pair_rules", len(cfg.PairRules),
	)

	// Sinks (feature-flagged via KAFKA_ENABLED / COLLECTOR_URL).
	var (
		sinks  pipeline.FanOut
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer, err = kafkaadapter.NewWriter(cfg, logger, metrics)
		if err != nil {
			logger.Error("failed to create kafka writer", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, pipeline.NamedLoader{Name: "kafka", Loader: writer})
		logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic, "encoding", cfg.ObservationEncoding)
	}
	if cfg.CollectorURL != "" {
		client := collector.NewClient(cfg.CollectorURL, cfg.CollectorTimeout, logger, metrics)
		sinks = append(sinks, pipeline.NamedLoader{Name: "collector", Loader: client})
		logger.Info("collector sink enabled", "url", cfg.CollectorURL, "timeout", cfg.CollectorTimeout)
	}

	queue := pipeline.NewQueue(cfg.SinkQueueSize, cfg.BatchFlushInterval, metrics)
	p := pipeline.New(queue, sinks, logger, metrics, cfg.BatchSize)

	stations := tcp.NewServer(cfg.ListenAddr, codec, queue, tcp.Options{
		ReadTimeout:         cfg.ReadTimeout,
		RegistrationTimeout: cfg.RegistrationTimeout,
		ReadBufferSize:      cfg.ReadBufferSize,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.AllReady{stations, p}, stations, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start delivery pipeline.
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	// Start station listener.
	go func() {
		if err := stations.ListenAndServe(ctx); err != nil {
			logger.Error("station listener error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := stations.Shutdown(shutdownCtx); err != nil {
		logger.Error("station listener shutdown error", "error", err)
	}
	<-pipelineDone
	if err := p.Drain(shutdownCtx); err != nil {
		logger.Error("drain error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
