package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/deskmate/internal/app"
	"github.com/deskmate/internal/config"
	"github.com/deskmate/internal/events"
	"github.com/deskmate/internal/kafka"
	"github.com/deskmate/internal/telemetry"
	"github.com/deskmate/pkg/models"
)

var version = "dev"

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path (default $CONFIG_PATH or config/config.yaml)")
		once       = flag.Bool("once", false, "Run a single sweep and exit")
		showVer    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("kb-sweeper version %s\n", version)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, *once, logger); err != nil {
		logger.Error("kb-sweeper stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, once bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.ServiceName == "" || cfg.Tracing.ServiceName == "deskmate" {
		cfg.Tracing.ServiceName = "deskmate-sweeper"
	}
	shutdownTracing, err := telemetry.InitTracing(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	a, err := app.New(ctx, cfg, version, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sweeper := events.NewSweeper(a.Service, cfg.Sweeper.Interval, cfg.Retrieval.SweepBatchSize, logger)

	if once {
		report := sweeper.SweepOnce(ctx)
		logger.Info("sweep complete", "scanned", report.Scanned, "embedded", report.Embedded, "failed", report.Failed)
		return nil
	}

	if cfg.Sweeper.WatchEvents && cfg.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.KnowledgeTopic, logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka consumer: %w", err)
		}
		defer consumer.Close()

		processor := events.NewProcessor(logger)
		processor.RegisterHandler(models.EventTypeEmbeddingFailed, sweeper.EmbeddingFailedHandler())
		go func() {
			if err := consumer.Run(ctx, processor.HandleMessage); err != nil {
				logger.Error("knowledge event consumer stopped", "error", err)
			}
		}()
		logger.Info("watching knowledge events", "topic", cfg.Kafka.KnowledgeTopic)
	}

	return sweeper.Run(ctx)
}
