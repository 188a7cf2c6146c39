package collection

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/metadata"
	"github.com/aifocal/akidb/internal/storagebackend"
)

// CreateCollection validates params and executes the five-step atomic
// sequence described by §4.6: persist the descriptor, cache it, build the
// HNSW index, build the storage backend, then install both. Any failure
// after step 1 unwinds everything already done, in reverse, leaving the
// service and the metadata repository exactly as they were before the call.
func (s *Service) CreateCollection(ctx context.Context, p CreateParams) (Descriptor, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("akidb.collection_name", p.Name),
		attribute.Int("akidb.dimension", p.Dimension),
		attribute.String("akidb.distance_metric", p.DistanceMetric),
	)

	if err := validateName("collection", p.Name); err != nil {
		return Descriptor{}, err
	}
	if err := validateDimension(p.Dimension); err != nil {
		return Descriptor{}, err
	}
	if err := validateEmbeddingModel(p.EmbeddingModel); err != nil {
		return Descriptor{}, err
	}
	metric, err := parseMetric(p.DistanceMetric)
	if err != nil {
		return Descriptor{}, err
	}

	// Step 1: persist descriptor.
	persisted, err := s.repo.Create(ctx, metadata.CollectionDescriptor{
		DatabaseID:     p.DatabaseID,
		Name:           p.Name,
		Dimension:      p.Dimension,
		DistanceMetric: p.DistanceMetric,
		EmbeddingModel: p.EmbeddingModel,
	})
	if err != nil {
		return Descriptor{}, err
	}
	desc := descriptorFromMetadata(persisted)

	// Step 2: install into the descriptor cache.
	s.descMu.Lock()
	s.descs[desc.ID] = desc
	s.descMu.Unlock()

	rollbackDesc := func() {
		s.descMu.Lock()
		delete(s.descs, desc.ID)
		s.descMu.Unlock()
		if derr := s.repo.Delete(context.Background(), desc.ID); derr != nil {
			s.log.Error("collection: rollback failed to delete metadata row", "collection_id", desc.ID, "error", derr)
		}
	}

	// Step 3: build the HNSW index.
	idx := s.newIndex(desc.Dimension, metric)

	// Step 4: build the storage backend, threading the real collection id.
	backend, err := storagebackend.New(s.newStorageConfig(desc.ID), s.met)
	if err != nil {
		rollbackDesc()
		return Descriptor{}, err
	}

	// Step 5: install both into their maps, in fixed lock order.
	s.indexMu.Lock()
	s.indexes[desc.ID] = idx
	s.indexMu.Unlock()

	s.backendMu.Lock()
	s.backends[desc.ID] = backend
	s.backendMu.Unlock()

	return desc, nil
}

// DeleteCollection acquires write locks on both maps simultaneously, removes
// the backend and awaits its shutdown, removes the index, drops the cached
// descriptor, and deletes the metadata row.
func (s *Service) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("akidb.collection_id", id.String()))

	s.indexMu.Lock()
	s.backendMu.Lock()
	_, hasIndex := s.indexes[id]
	backend, hasBackend := s.backends[id]
	if !hasIndex && !hasBackend {
		s.backendMu.Unlock()
		s.indexMu.Unlock()
		return akidberr.New(akidberr.NotFound, "collection: %s not found", id)
	}
	delete(s.indexes, id)
	delete(s.backends, id)
	s.backendMu.Unlock()
	s.indexMu.Unlock()

	if hasBackend {
		shutCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
		if err := backend.Shutdown(shutCtx); err != nil {
			s.log.Error("collection: backend shutdown failed during delete", "collection_id", id, "error", err)
		}
	}

	s.descMu.Lock()
	delete(s.descs, id)
	s.descMu.Unlock()

	return s.repo.Delete(ctx, id)
}

// Describe returns the cached descriptor for id.
func (s *Service) Describe(id uuid.UUID) (Descriptor, bool) {
	s.descMu.RLock()
	defer s.descMu.RUnlock()
	d, ok := s.descs[id]
	return d, ok
}
