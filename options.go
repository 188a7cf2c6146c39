package akidb

import (
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds every extension point after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port            int
	databaseURL     string
	walRootDir      string
	objectBucket    string
	tieringPolicy   TieringPolicy
	maxTopK         int
	shutdownTimeout time.Duration
	logger          *slog.Logger
	version         string
}

// WithPort overrides the TCP port from config (AKIDB_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the metadata repository's connection string
// from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithWALRootDir overrides the directory under which every collection's
// WAL and recovery sidecar files are created.
func WithWALRootDir(dir string) Option {
	return func(o *resolvedOptions) { o.walRootDir = dir }
}

// WithObjectStoreBucket overrides the bucket backing MemoryS3/S3Only
// collections.
func WithObjectStoreBucket(bucket string) Option {
	return func(o *resolvedOptions) { o.objectBucket = bucket }
}

// WithTieringPolicy overrides the default tiering policy newly created
// collections inherit unless they specify their own.
func WithTieringPolicy(p TieringPolicy) Option {
	return func(o *resolvedOptions) { o.tieringPolicy = p }
}

// WithMaxTopK overrides the upper bound on a query's top_k parameter.
func WithMaxTopK(n int) Option {
	return func(o *resolvedOptions) { o.maxTopK = n }
}

// WithShutdownTimeout overrides the bound each graceful-shutdown phase is
// allotted.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *resolvedOptions) { o.shutdownTimeout = d }
}

// WithLogger sets the structured logger for the App. If not set, the
// default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported on /healthz and in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}
