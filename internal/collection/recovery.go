package collection

import (
	"context"

	"github.com/aifocal/akidb/internal/distance"
	"github.com/aifocal/akidb/internal/storagebackend"
)

// LoadAll reconstructs every collection's WAL, index, and storage backend
// from the metadata repository, per §4.6's recovery contract: each backend
// replays its WAL since the last snapshot horizon, validating every
// replayed vector's dimension against the collection's declared dimension
// and skipping (with an error log) any record that fails, then re-inserts
// the surviving set into both the backend's in-memory map (done inside
// Backend.Recover) and a freshly built HNSW index (done here, since the
// index itself is never persisted). Call once at startup before serving
// traffic.
func (s *Service) LoadAll(ctx context.Context) error {
	descs, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}

	for _, d := range descs {
		desc := descriptorFromMetadata(d)
		metric, err := parseMetric(desc.DistanceMetric)
		if err != nil {
			s.log.Error("collection: skipping collection with unrecognized distance metric", "collection_id", desc.ID, "metric", desc.DistanceMetric, "error", err)
			continue
		}

		backend, err := storagebackend.New(s.newStorageConfig(desc.ID), s.met)
		if err != nil {
			s.log.Error("collection: failed to reconstruct storage backend", "collection_id", desc.ID, "error", err)
			continue
		}

		dim := desc.Dimension
		docs, skipped, err := backend.Recover(ctx, func(vector []float32) error {
			return distance.Validate(vector, dim, metric)
		})
		if err != nil {
			s.log.Error("collection: WAL replay failed", "collection_id", desc.ID, "error", err)
			_ = backend.Shutdown(ctx)
			continue
		}
		if skipped > 0 {
			s.log.Error("collection: skipped corrupt WAL records during recovery", "collection_id", desc.ID, "skipped", skipped)
		}

		idx := s.newIndex(dim, metric)
		for _, doc := range docs {
			if ierr := idx.Insert(doc); ierr != nil {
				s.log.Error("collection: skipping document that failed index validation during recovery", "collection_id", desc.ID, "doc_id", doc.DocID, "error", ierr)
			}
		}

		s.descMu.Lock()
		s.descs[desc.ID] = desc
		s.descMu.Unlock()

		s.indexMu.Lock()
		s.indexes[desc.ID] = idx
		s.indexMu.Unlock()

		s.backendMu.Lock()
		s.backends[desc.ID] = backend
		s.backendMu.Unlock()
	}

	s.setReady(true)
	return nil
}
