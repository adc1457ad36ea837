package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/puce/registro/internal/config"
	"github.com/puce/registro/internal/gateway"
	"github.com/puce/registro/internal/infra"
	"github.com/puce/registro/internal/logging"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var db *pgxpool.Pool
	db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	switch {
	case errors.Is(err, infra.ErrNotConfigured) && cfg.IsDev():
		logger.Warn("DATABASE_URL not set, receipts kept in memory")
		db = nil
	case err != nil:
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	default:
		defer db.Close()
	}

	var cache *redis.Client
	cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
	switch {
	case errors.Is(err, infra.ErrNotConfigured) && cfg.IsDev():
		logger.Warn("REDIS_URL not set, sessions kept in memory and idempotency disabled")
		cache = nil
	case err != nil:
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	default:
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	srv, err := gateway.New(cfg, db, cache, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Address(), "env", cfg.AppEnv)
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
