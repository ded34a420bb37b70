// cmd/kvcached is the cache node entrypoint: it reads configuration from
// the environment, constructs the engine and its HTTP surface, and serves
// until a SIGINT/SIGTERM triggers a graceful shutdown.
//
// © 2025 kvshard authors. MIT License.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Voskan/kvshard/internal/httpapi"
	"github.com/Voskan/kvshard/pkg/kvengine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kvcached:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := httpapi.FromEnv()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	registry := prometheus.NewRegistry()

	store := kvengine.New(
		kvengine.WithShards(cfg.Shards),
		kvengine.WithMaxItemBytes(cfg.MaxItemBytes),
		kvengine.WithMemoryBudgetBytes(cfg.MemoryBudgetBytes),
		kvengine.WithMaxInflight(cfg.MaxInflight),
		kvengine.WithMaxShardMailbox(cfg.MaxShardMailbox),
		kvengine.WithLogger(logger),
		kvengine.WithMetricsRegistry(registry),
	)
	defer store.Close()

	srv := httpapi.NewServer(cfg, store, logger, registry)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.Int("port", cfg.Port), zap.Int("shards", cfg.Shards))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

// newLogger builds a production zap.Logger at the level named by
// LOG_LEVEL, defaulting to info on an unparseable value.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
