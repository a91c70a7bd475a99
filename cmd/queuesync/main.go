package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queuesync/internal/auth"
	"queuesync/internal/chat"
	"queuesync/internal/config"
	"queuesync/internal/constants"
	"queuesync/internal/database"
	"queuesync/internal/hours"
	"queuesync/internal/hub"
	"queuesync/internal/logfields"
	"queuesync/internal/metrics"
	"queuesync/internal/models"
	"queuesync/internal/queue"
	"queuesync/internal/tracing"

	"github.com/cenkalti/backoff/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose    = flag.BoolP("verbose", "v", false, "Enable verbose logging (includes request bodies)")
	configPath = flag.StringP("config", "c", "config.json", "Path to configuration file")
	envFile    = flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("queuesync %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("Failed to load %s: %v", *envFile, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logfields.NewLogger(cfg.LogLevel, *verbose)
	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting queuesync")
	if *verbose {
		logger.Info("Verbose logging enabled - request bodies will be logged")
	}

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	schedule, err := hours.ParseSchedule(cfg.BusinessHours)
	if err != nil {
		return fmt.Errorf("invalid business hours: %w", err)
	}
	oracle := hours.NewOracle(schedule)

	m := metrics.Default()
	h := hub.New(logger, cfg.Hub, m)
	defer h.Close()

	svc := queue.NewService(db, h, oracle, cfg.Queue, logger, m)
	relay := chat.NewRelay(db, h, cfg.Chat, logger, m)

	gate, err := auth.NewGate(cfg.Admin.TokenHash, logger)
	if err != nil {
		return fmt.Errorf("invalid admin token hash: %w", err)
	}

	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(next *models.Config) {
		logger.SetLevel(logfields.ParseLevel(next.LogLevel, *verbose))

		updated, err := hours.ParseSchedule(next.BusinessHours)
		if err != nil {
			logger.WithError(err).Warn("Ignoring invalid business hours from reloaded configuration")
			return
		}
		oracle.SetSchedule(updated)
		svc.Refresh(ctx)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher exited")
		}
	}()
	go svc.Run(ctx)

	server := NewServer(cfg, ServerDeps{
		Queue:   svc,
		Chat:    relay,
		Hub:     h,
		DB:      db,
		Metrics: m,
		Gate:    gate,
		Verbose: *verbose,
	}, logger)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server, so the
	// hub is closed explicitly before waiting on the listener.
	h.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// openDatabase retries the initial open because the data volume may be
// mounted after the process starts.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	db, err := backoff.Retry(ctx, func() (*database.Database, error) {
		return database.New(ctx, cfg.Database, cfg.Retry)
	},
		backoff.WithBackOff(startupBackOff(cfg.Retry)),
		backoff.WithMaxTries(constants.DefaultStartupMaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WithError(err).WithField("retry_in", next.String()).Warn("Failed to initialize database")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

func startupBackOff(cfg models.RetryConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	if b.InitialInterval <= 0 {
		b.InitialInterval = constants.DefaultInitialBackoffMs * time.Millisecond
	}
	b.MaxInterval = constants.DefaultStartupMaxBackoffMs * time.Millisecond
	return b
}
