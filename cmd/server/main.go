// Package main is the entry point for the items service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/items-service/internal/config"
	"github.com/vyrodovalexey/items-service/internal/database"
	"github.com/vyrodovalexey/items-service/internal/handler"
	"github.com/vyrodovalexey/items-service/internal/server"
	"github.com/vyrodovalexey/items-service/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use a basic logger for startup errors
		basicLogger, _ := zap.NewProduction()
		basicLogger.Error("failed to load configuration", zap.Error(err))
		return 1
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Error("failed to initialize logger", zap.Error(err))
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.Int("probe_port", cfg.ProbePort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Strings("cors_origins", cfg.CORSOrigins),
		zap.String("db_mode", cfg.Database.Mode),
	)

	itemStore, pinger, closeStore, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open item store", zap.Error(err))
		return 1
	}
	defer closeStore()

	srv := server.New(cfg, logger, itemStore, pinger)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return 1
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Create shutdown context with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Graceful shutdown
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

// openStore builds the item store selected by the config. The returned
// pinger backs the readiness probe and is nil for the memory backend; the
// close func is always safe to call.
func openStore(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
) (store.Store, handler.Pinger, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		logger.Warn("using in-memory item store; data is lost on restart")
		return store.NewMemoryStore(), nil, func() {}, nil
	case config.StoreBackendPostgres, "":
		handle, err := database.Connect(ctx, cfg, logger.Named("database"))
		if err != nil {
			if errors.Is(err, database.ErrConnection) {
				logger.Error("database is unreachable",
					zap.String("mode", cfg.Database.Mode),
					zap.Error(err),
				)
			}
			return nil, nil, func() {}, err
		}
		return store.NewPostgresStore(handle, logger.Named("store")), handle, handle.Close, nil
	default:
		return nil, nil, func() {}, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}
