package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/config"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/dispatch"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/metrics"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/queue"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/schedule"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/scheduler"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/server"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/store"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/tracing"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting scheduler server",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address()),
		zap.String("store", cfg.Scheduler.Store),
		zap.String("cron_mode", cfg.Scheduler.CronMode),
	)

	backend, err := openBackend(cfg)
	if err != nil {
		logger.Fatal("Failed to open job store", zap.Error(err))
	}
	defer backend.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(nil, logger)
		go func() {
			if err := m.StartServer(cfg.Metrics.Address); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	resolver := queue.NewResolver(cfg.Dispatch.Queues, cfg.Dispatch.QueueTimeout, logger)
	defer resolver.Close()

	registry, err := dispatch.NewDefaultRegistry(dispatch.Options{
		ContainerURL: cfg.Dispatch.ContainerURL,
		HTTPClient:   &http.Client{Timeout: cfg.Dispatch.WebhookTimeout},
		Queues:       resolver,
	}, logger, tracer, m)
	if err != nil {
		logger.Fatal("Failed to register dispatch backends", zap.Error(err))
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		logger.Fatal("Invalid scheduler timezone", zap.Error(err))
	}
	calc := schedule.NewCalculator(schedule.CronMode(cfg.Scheduler.CronMode), loc)

	manager := scheduler.NewManager(backend, scheduler.Config{
		HistoryLimit:    cfg.Scheduler.HistoryLimit,
		RetryDelay:      cfg.Scheduler.RetryDelay,
		DispatchTimeout: cfg.Scheduler.DispatchTimeout,
	}, func(c scheduler.Config, s store.Store) *scheduler.Scheduler {
		return scheduler.New(c, s, calc, registry, scheduler.Options{Metrics: m}, logger)
	}, logger)

	// The default instance is started eagerly so its due jobs fire without
	// waiting for the first request.
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := manager.Get(startCtx, cfg.Scheduler.Instance); err != nil {
		cancelStart()
		logger.Fatal("Failed to start default scheduler", zap.Error(err))
	}
	cancelStart()

	srv := server.NewServer(cfg, manager, registry, resolver, m, tracer, logger)

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error("Failed to shutdown server gracefully", zap.Error(err))
	}
	if err := manager.Close(ctx); err != nil {
		logger.Error("Failed to stop schedulers gracefully", zap.Error(err))
	}
	if m != nil {
		if err := m.StopServer(ctx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}
	if err := tracer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown tracer", zap.Error(err))
	}

	logger.Info("Server shutdown complete")
}

func openBackend(cfg *config.Config) (store.Backend, error) {
	switch cfg.Scheduler.Store {
	case "redis":
		return store.NewRedisBackend(store.RedisOptions{
			URL:            cfg.Redis.URL,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			ConnectTimeout: cfg.Redis.Timeout,
			CommandTimeout: cfg.Redis.Timeout,
		})
	case "sqlite":
		return store.NewSQLiteBackend(cfg.Scheduler.SQLitePath, cfg.Scheduler.SQLiteBusy)
	case "memory":
		return store.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported store %q", cfg.Scheduler.Store)
	}
}

// initLogger initializes the logger based on configuration
func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	// Set log level
	switch cfg.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapConfig.Build()
}
