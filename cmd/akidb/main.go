package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aifocal/akidb/internal/apiserver"
	"github.com/aifocal/akidb/internal/collection"
	"github.com/aifocal/akidb/internal/config"
	"github.com/aifocal/akidb/internal/metadata"
	"github.com/aifocal/akidb/internal/metadata/migrations"
	"github.com/aifocal/akidb/internal/metrics"
	"github.com/aifocal/akidb/internal/objectstore"
	"github.com/aifocal/akidb/internal/storagebackend"
	"github.com/aifocal/akidb/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := parseLogLevel(os.Getenv("AKIDB_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("akidb starting", "version", version, "port", cfg.Port, "tiering_policy", cfg.TieringPolicy)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := metadata.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	repo := metadata.NewRepository(db)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	svc := collection.New(collection.Config{
		WALRoot:       cfg.WALRootDir,
		Store:         store,
		DefaultPolicy: cfg.TieringPolicy,
		StorageDefaults: storagebackend.Config{
			SyncMode:                 string(cfg.WALSyncMode),
			SyncInterval:             cfg.WALSyncInterval,
			MaxSegmentBytes:          cfg.WALMaxSegmentBytes,
			MaxSegmentRecs:           cfg.WALMaxSegmentRecords,
			CompactionThresholdOps:   cfg.CompactionThresholdOps,
			CompactionThresholdBytes: cfg.CompactionThresholdBytes,
			Backoff: objectstore.BackoffConfig{
				Base:     cfg.RetryBaseDelay,
				Max:      cfg.RetryMaxDelay,
				EntryTTL: cfg.DLQTTL,
			},
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
		MaxTopK:         cfg.MaxTopK,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, repo, met, logger)

	logger.Info("akidb: recovering collections")
	if err := svc.LoadAll(ctx); err != nil {
		return fmt.Errorf("collection recovery: %w", err)
	}
	logger.Info("akidb: recovery complete")

	srv := apiserver.New(apiserver.Config{
		Service:      svc,
		Repository:   repo,
		Logger:       logger,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Gatherer:     reg,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop accepting new HTTP requests and drain in-flight
	// ones first, then drain every collection's background workers. Each
	// phase is independently bounded by cfg.ShutdownTimeout.
	logger.Info("akidb shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	svcCtx, svcCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := svc.Shutdown(svcCtx); err != nil {
		logger.Error("collection service shutdown error", "error", err)
	}
	svcCancel()

	logger.Info("akidb stopped")
	return nil
}

// newObjectStore builds the object store the collection service's storage
// backends share, or nil under the Memory-only policy which needs none.
func newObjectStore(ctx context.Context, cfg config.Config) (objectstore.Store, error) {
	if cfg.TieringPolicy == storagebackend.Memory {
		return nil, nil
	}
	return objectstore.NewS3Store(ctx, objectstore.S3Config{
		Bucket:          cfg.ObjectStoreBucket,
		Endpoint:        cfg.ObjectStoreEndpoint,
		AccessKeyID:     cfg.ObjectStoreAccessKeyID,
		SecretAccessKey: cfg.ObjectStoreSecretAccessKey,
	})
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
