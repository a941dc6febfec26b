package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/deskmate/internal/api"
	"github.com/deskmate/internal/app"
	"github.com/deskmate/internal/config"
	"github.com/deskmate/internal/telemetry"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path (default $CONFIG_PATH or config/config.yaml)")
		showVer    = flag.Bool("version", false, "Show version information")
		help       = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	if *showVer {
		showVersion()
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

	logger.Info("starting deskmate", "version", version, "commit", commit, "built", date)

	if err := run(cfg, logger); err != nil {
		logger.Error("deskmate stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = version
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

	gateway := api.NewGateway(cfg.API, a.Service,
		api.WithHealthChecker(a.Health),
		api.WithFeatureFlags(a.Features),
		api.WithStats("embeddingCache", a.CacheStats),
		api.WithLogger(logger))

	errCh := make(chan error, 1)
	go func() {
		errCh <- gateway.Start()
	}()

	return waitForShutdown(cfg, gateway, errCh, logger)
}

func showHelp() {
	fmt.Printf(`Deskmate - helpdesk knowledge base and AI answering service

Usage:
  deskmate [flags]

Flags:
  -config string
        Configuration file path (default $CONFIG_PATH or "config/config.yaml")
  -version
        Show version information
  -help
        Show this help message

Environment:
  OPENAI_API_KEY   overrides llm.api_key
  DATABASE_URL     overrides database.url
  REDIS_ADDR       overrides redis.addr
  KAFKA_BROKERS    overrides kafka.brokers (comma separated)

Examples:
  deskmate                                   # Start with default config
  deskmate -config config/production.yaml    # Start with production config
  deskmate -version                          # Show version
`)
}

func showVersion() {
	fmt.Printf("Deskmate version %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Built: %s\n", date)
}

func waitForShutdown(cfg *config.Config, gateway *api.Gateway, errCh <-chan error, logger *slog.Logger) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigChan:
		logger.Info("shutdown signal received, stopping services", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := gateway.Stop(shutdownCtx); err != nil {
		logger.Error("error during gateway shutdown", "error", err)
	}

	logger.Info("deskmate stopped")
	return nil
}
