// Command pentagon runs the sandboxed code execution service: it loads
// configuration, wires the blob store, sandbox engine, pipeline engine,
// system monitor, and metrics registry together, and serves the HTTP API
// until it receives a shutdown signal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pentagon/internal/blobstore"
	"pentagon/internal/config"
	"pentagon/internal/httpapi"
	"pentagon/internal/metrics"
	"pentagon/internal/pipeline"
	"pentagon/internal/sandbox"
	"pentagon/internal/sysmonitor"
	"pentagon/pkg/utils/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configDir := flag.String("config-dir", ".", "directory to search for Settings.toml")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: "stdout",
		ErrorPath:  "stderr",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	if err := os.MkdirAll(cfg.BaseCodePath, 0o755); err != nil {
		logger.Error(ctx, "create base code path failed", zap.Error(err))
		os.Exit(1)
	}

	blobs, err := newBlobStore(cfg.RedisURL)
	if err != nil {
		logger.Error(ctx, "init blob store failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = blobs.Close() }()

	reg := prometheus.NewRegistry()
	sink := metrics.NewRegistry(reg)

	sandboxEngine, err := sandbox.NewEngine(sandbox.Config{
		HelperPath:           cfg.SandboxHelper,
		ReadOnlyBinds:        sandbox.DefaultReadOnlyBinds(),
		ScratchRoot:          cfg.BaseCodePath,
		StdoutStderrMaxBytes: cfg.StdoutStderrCap,
	})
	if err != nil {
		logger.Error(ctx, "init sandbox engine failed", zap.Error(err))
		os.Exit(1)
	}

	pipelineEngine := pipeline.New(cfg.BaseCodePath, sandboxEngine, blobs, sink)

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	monitor := sysmonitor.New(sysmonitor.NewLinuxSampler(), sink, cfg.BaseCodePath, cfg.SysSampleEvery)
	go monitor.Run(monitorCtx)

	server := httpapi.New(pipelineEngine, sink, reg)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // execution requests can legitimately stream for a long time
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "pentagon http server started", zap.String("addr", addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
}

func newBlobStore(redisURL string) (*blobstore.RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis_url: %w", err)
	}
	client := redis.NewClient(opts)
	store := blobstore.NewRedisStoreWithClient(client)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return store, nil
}
