package akidb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aifocal/akidb/internal/apiserver"
	"github.com/aifocal/akidb/internal/collection"
	"github.com/aifocal/akidb/internal/config"
	"github.com/aifocal/akidb/internal/metadata"
	"github.com/aifocal/akidb/internal/metadata/migrations"
	"github.com/aifocal/akidb/internal/metrics"
	"github.com/aifocal/akidb/internal/objectstore"
	"github.com/aifocal/akidb/internal/storagebackend"
	"github.com/aifocal/akidb/internal/telemetry"
)

// App embeds a complete AkiDB node: metadata store, collection service, and
// HTTP API. It is the library entrypoint for callers who want to run AkiDB
// in-process rather than as a standalone binary.
type App struct {
	opts resolvedOptions

	db           *metadata.DB
	svc          *collection.Service
	srv          *apiserver.Server
	otelShutdown func(context.Context) error
}

// New builds an App from config.Load() defaults, overridden by opts.
func New(opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	resolved := resolvedOptions{
		port:            cfg.Port,
		databaseURL:     cfg.DatabaseURL,
		walRootDir:      cfg.WALRootDir,
		objectBucket:    cfg.ObjectStoreBucket,
		tieringPolicy:   TieringPolicy(cfg.TieringPolicy.String()),
		maxTopK:         cfg.MaxTopK,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          slog.Default(),
		version:         "dev",
	}
	for _, opt := range opts {
		opt(&resolved)
	}

	policy, err := storagebackend.ParseTieringPolicy(string(resolved.tieringPolicy))
	if err != nil {
		return nil, fmt.Errorf("tiering policy: %w", err)
	}

	cfg.Port = resolved.port
	cfg.DatabaseURL = resolved.databaseURL
	cfg.WALRootDir = resolved.walRootDir
	cfg.ObjectStoreBucket = resolved.objectBucket
	cfg.TieringPolicy = policy
	cfg.MaxTopK = resolved.maxTopK
	cfg.ShutdownTimeout = resolved.shutdownTimeout
	logger := resolved.logger

	ctx := context.Background()

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, resolved.version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := metadata.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("metadata: %w", err)
	}

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}
	repo := metadata.NewRepository(db)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		db.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("object store: %w", err)
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

	if err := svc.LoadAll(ctx); err != nil {
		db.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("collection recovery: %w", err)
	}

	srv := apiserver.New(apiserver.Config{
		Service:      svc,
		Repository:   repo,
		Logger:       logger,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Gatherer:     reg,
	})

	return &App{
		opts:         resolved,
		db:           db,
		svc:          svc,
		srv:          srv,
		otelShutdown: otelShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails, then performs an orderly Shutdown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains the HTTP server, the collection service's background
// workers, and releases the metadata connection and telemetry exporter.
// Each phase is bounded by the App's configured shutdown timeout.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	httpCtx, httpCancel := context.WithTimeout(ctx, a.opts.shutdownTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	httpCancel()

	svcCtx, svcCancel := context.WithTimeout(ctx, a.opts.shutdownTimeout)
	if err := a.svc.Shutdown(svcCtx); err != nil {
		errs = append(errs, fmt.Errorf("collection service shutdown: %w", err))
	}
	svcCancel()

	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}

	a.db.Close()

	return errors.Join(errs...)
}

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
