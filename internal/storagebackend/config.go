package storagebackend

import (
	"time"

	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/objectstore"
)

// Config configures a single collection's storage backend. CollectionID is
// mandatory: it is threaded into every WAL record, every object-store key,
// and every snapshot filename, so synthesizing a fresh id at any of those
// sites would break backup/restore and replication correlation.
type Config struct {
	CollectionID uuid.UUID
	WALDir       string
	Policy       TieringPolicy
	Store        objectstore.Store // required for MemoryS3 and S3Only; ignored for Memory

	SyncMode        string // wal.SyncMode value, passed through as a string to avoid an import cycle in callers
	SyncInterval    time.Duration
	MaxSegmentBytes int64
	MaxSegmentRecs  int

	CompactionThresholdOps   int64
	CompactionThresholdBytes int64
	CompactionTick           time.Duration

	Backoff objectstore.BackoffConfig

	CacheSize       int // S3Only LRU cache capacity, in documents
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() error {
	if c.CollectionID == uuid.Nil {
		return akidberr.New(akidberr.Validation, "storagebackend: CollectionID is required")
	}
	if c.WALDir == "" {
		return akidberr.New(akidberr.Validation, "storagebackend: WALDir is required")
	}
	if !c.Policy.Valid() {
		return akidberr.New(akidberr.Validation, "storagebackend: invalid tiering policy %v", c.Policy)
	}
	if c.Policy != Memory && c.Store == nil {
		return akidberr.New(akidberr.Validation, "storagebackend: policy %s requires a Store", c.Policy)
	}
	if c.CompactionThresholdOps <= 0 {
		c.CompactionThresholdOps = 10_000
	}
	if c.CompactionThresholdBytes <= 0 {
		c.CompactionThresholdBytes = 64 << 20
	}
	if c.CompactionTick <= 0 {
		c.CompactionTick = time.Second
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 10_000
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return nil
}
