// Command relay runs the long-running WebSocket relay server: it loads a
// seed bundle into a shared DocumentStore, accepts sync peers over
// WebSocket, and serves bundle storage and the browser WASM asset over
// HTTP. Arguments mirror the original implementation: port, bundle path,
// storage directory.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tonk-sync/tonk/internal/auth"
	"github.com/tonk-sync/tonk/internal/bundle"
	"github.com/tonk-sync/tonk/internal/logging"
	"github.com/tonk-sync/tonk/internal/monitoring"
	"github.com/tonk-sync/tonk/internal/relay"
	"github.com/tonk-sync/tonk/internal/storage"
	"github.com/tonk-sync/tonk/internal/tracing"
)

func main() {
	logger, err := logging.NewLogger("info", "json")
	if err != nil {
		log.Fatalf("relay: init logger: %v", err)
	}
	defer logger.Sync()

	args := os.Args

	port := 8081
	if len(args) > 1 {
		if p, err := strconv.Atoi(args[1]); err == nil {
			port = p
		}
	}

	var bundlePath string
	if len(args) > 2 {
		bundlePath = args[2]
	} else {
		logger.Fatal("relay: bundle path is required (usage: relay <port> <bundle-path> [storage-dir])")
	}

	storageDir := "tonk-relay-data"
	if len(args) > 3 {
		storageDir = args[3]
	}

	bucket := envOr("S3_BUCKET_NAME", "host-web-bundle-storage")
	region := envOr("AWS_REGION", "eu-north-1")

	logger.Info("starting tonk relay",
		zap.Int("port", port),
		zap.String("bundle_path", bundlePath),
		zap.String("storage_dir", storageDir),
		zap.String("s3_bucket", bucket),
		zap.String("s3_region", region),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := tracing.InitTracer("tonk-relay", ""); err != nil {
		logger.WithError(err).Warn("relay: tracing disabled")
	}

	docBackend, err := storage.NewFileBackend(storageDir)
	if err != nil {
		logger.Fatal("relay: open storage directory", zap.Error(err))
	}

	f, err := os.Open(bundlePath)
	if err != nil {
		logger.Fatal("relay: bundle not found", zap.Error(err))
	}
	info, err := f.Stat()
	if err != nil {
		logger.Fatal("relay: stat bundle", zap.Error(err))
	}

	unpacked, err := bundle.Unpack(ctx, f, info.Size(), docBackend, envOr("TONK_BUNDLE_PASSPHRASE", ""), nil)
	f.Close()
	if err != nil {
		logger.Fatal("relay: unpack bundle", zap.Error(err))
	}

	var bundleBackend storage.Backend
	s3Backend, err := storage.NewS3Backend(ctx, bucket, region, "bundles")
	if err != nil {
		logger.WithError(err).Warn("relay: falling back to local bundle storage")
		fileBackend, ferr := storage.NewFileBackend(storageDir + "/bundles")
		if ferr != nil {
			logger.Fatal("relay: open fallback bundle storage", zap.Error(ferr))
		}
		bundleBackend = fileBackend
	} else {
		bundleBackend = s3Backend
	}

	tokenManager := auth.NewTokenManager(envOr("RELAY_SIGNING_SECRET", "dev-secret-change-me"))
	authMiddleware := auth.NewAuthMiddleware(tokenManager)
	metrics := monitoring.NewMetrics()

	r := relay.New(relay.Config{
		Store:   unpacked.Store,
		Bundles: bundleBackend,
		Auth:    authMiddleware,
		Metrics: metrics,
		Logger:  logger,
	})

	addr := fmt.Sprintf("%s:%d", envOr("HOST", "127.0.0.1"), port)
	server := &http.Server{Addr: addr, Handler: r.Handler()}

	go func() {
		logger.Info("relay listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("relay: server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
