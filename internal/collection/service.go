// Package collection implements the per-process orchestrator that owns every
// live collection's HNSW index, storage backend, and cached descriptor, and
// coordinates their lifecycle with the metadata repository of record.
package collection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/distance"
	"github.com/aifocal/akidb/internal/index"
	"github.com/aifocal/akidb/internal/index/hnsw"
	"github.com/aifocal/akidb/internal/metadata"
	"github.com/aifocal/akidb/internal/metrics"
	"github.com/aifocal/akidb/internal/storagebackend"
)

// Repository is the metadata persistence contract the service depends on;
// satisfied by *metadata.Repository, narrowed here so tests can fake it.
type Repository interface {
	Create(ctx context.Context, desc metadata.CollectionDescriptor) (metadata.CollectionDescriptor, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (metadata.CollectionDescriptor, error)
	ListAll(ctx context.Context) ([]metadata.CollectionDescriptor, error)
}

// Service is the collection orchestrator described by §4.6: three parallel
// maps keyed by collection_id (descriptor cache, HNSW index, storage
// backend) behind a fixed-order lock pair, plus a handle to the metadata
// repository of record.
//
// Lock ordering is fixed process-wide: indexMu is always acquired before
// backendMu, by both readers (insert/delete/query) and writers
// (create/delete collection). Acquiring them in any other order anywhere in
// this package would reintroduce the deadlock the ordering exists to prevent.
type Service struct {
	cfg  Config
	repo Repository
	met  *metrics.Metrics
	log  *slog.Logger

	descMu sync.RWMutex
	descs  map[uuid.UUID]Descriptor

	indexMu sync.RWMutex
	indexes map[uuid.UUID]index.Index

	backendMu sync.RWMutex
	backends  map[uuid.UUID]*storagebackend.Backend

	readyMu sync.RWMutex
	ready   bool
}

// New constructs an empty Service. Call LoadAll to recover previously
// created collections before serving traffic.
func New(cfg Config, repo Repository, met *metrics.Metrics, log *slog.Logger) *Service {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		repo:     repo,
		met:      met,
		log:      log,
		descs:    make(map[uuid.UUID]Descriptor),
		indexes:  make(map[uuid.UUID]index.Index),
		backends: make(map[uuid.UUID]*storagebackend.Backend),
	}
}

// IsHealthy reports process liveness: the service object exists and can
// answer. It never reflects per-collection state.
func (s *Service) IsHealthy() bool {
	return s != nil
}

// IsReady reports whether LoadAll has completed (and Shutdown has not since
// cleared the flag). It does not probe the metadata repository, so it stays
// true if the repository becomes unreachable after startup.
func (s *Service) IsReady() bool {
	s.readyMu.RLock()
	defer s.readyMu.RUnlock()
	return s.ready
}

func (s *Service) setReady(v bool) {
	s.readyMu.Lock()
	s.ready = v
	s.readyMu.Unlock()
}

func descriptorFromMetadata(d metadata.CollectionDescriptor) Descriptor {
	return Descriptor{
		ID:             d.ID,
		DatabaseID:     d.DatabaseID,
		Name:           d.Name,
		Dimension:      d.Dimension,
		DistanceMetric: d.DistanceMetric,
		EmbeddingModel: d.EmbeddingModel,
	}
}

func (s *Service) newStorageConfig(collectionID uuid.UUID) storagebackend.Config {
	sc := s.cfg.StorageDefaults
	sc.CollectionID = collectionID
	sc.WALDir = walDir(s.cfg.WALRoot, collectionID)
	sc.Policy = s.cfg.DefaultPolicy
	sc.Store = s.cfg.Store
	if sc.ShutdownTimeout <= 0 {
		sc.ShutdownTimeout = s.cfg.ShutdownTimeout
	}
	return sc
}

func walDir(root string, collectionID uuid.UUID) string {
	return root + "/collections/" + collectionID.String() + "/wal"
}

// Shutdown iterates every live backend and shuts it down, tolerating
// per-backend failures (logged, not fatal) and bounded by an overall
// timeout, per §4.6's graceful-shutdown contract.
func (s *Service) Shutdown(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.ShutdownTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	s.backendMu.Lock()
	backends := make(map[uuid.UUID]*storagebackend.Backend, len(s.backends))
	for id, b := range s.backends {
		backends[id] = b
	}
	s.backendMu.Unlock()

	var firstErr error
	for id, b := range backends {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), remaining)
		if err := b.Shutdown(shutCtx); err != nil {
			s.log.Error("collection: backend shutdown failed", "collection_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		cancel()
	}
	s.setReady(false)
	return firstErr
}

// parseMetric is a small wrapper kept for readability at call sites.
func parseMetric(name string) (distance.Metric, error) {
	return distance.ParseMetric(name)
}

// newIndex constructs a fresh HNSW index for dim/metric using the service's
// configured tuning parameters.
func (s *Service) newIndex(dim int, metric distance.Metric) index.Index {
	return hnsw.New(dim, metric, s.cfg.HNSW)
}
