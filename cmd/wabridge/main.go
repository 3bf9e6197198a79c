package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wabridge/internal/config"
	"wabridge/internal/constants"
	"wabridge/internal/database"
	"wabridge/internal/errors"
	"wabridge/internal/retry"
	"wabridge/internal/service"
	"wabridge/internal/tracing"
	"wabridge/pkg/provider"
	"wabridge/pkg/provider/types"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wabridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	appLogger := errors.NewLogger()
	logger := appLogger.Logger

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wabridge")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else {
		appLogger.SetLevelFromString(cfg.LogLevel)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: constants.DefaultRetryBackoffMs * time.Millisecond,
		MaxDelay:     constants.DefaultMaxBackoffMs * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	providerClient := provider.NewClient(types.ClientConfig{
		BaseURL: cfg.Provider.APIBaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: time.Duration(cfg.Provider.TimeoutSec) * time.Second,
	})

	dispatcher := service.NewDispatcher(db, logger,
		time.Duration(cfg.Webhook.TimeoutSec)*time.Second, Version)

	processor := service.NewEventProcessor(db, dispatcher, logger)
	deviceService := service.NewDeviceService(db, providerClient, dispatcher, logger)
	messageService := service.NewMessageService(db, providerClient, logger, cfg.Provider.CountryCode)

	scheduler := service.NewScheduler(db, cfg.RetentionDays, 0, logger)
	go scheduler.Start(ctx)

	if cfg.Provider.StreamEnabled && cfg.Provider.StreamURL != "" {
		streamClient := provider.NewStreamClient(cfg.Provider.StreamURL, cfg.Provider.APIKey)
		poller := service.NewStreamPoller(streamClient, processor, logger)
		poller.Start(ctx)
		defer poller.Stop()
		logger.WithField("url", cfg.Provider.StreamURL).Info("Event stream poller started")
	}

	server := NewServer(cfg, processor, deviceService, messageService, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
