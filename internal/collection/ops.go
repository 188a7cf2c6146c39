package collection

import (
	"context"

	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/index"
)

// Insert validates doc against collection_id's declared dimension/metric via
// the index, then durably records it. Per §4.6 the index is mutated before
// the WAL: an index-validation failure never reaches the WAL, and a WAL
// failure after a successful index insert leaves the doc live in memory
// until the next restart (acceptable — durability is "effective once WAL
// flush returns").
func (s *Service) Insert(collectionID uuid.UUID, doc index.Document) error {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	s.backendMu.RLock()
	defer s.backendMu.RUnlock()

	idx, ok := s.indexes[collectionID]
	if !ok {
		return akidberr.New(akidberr.NotFound, "collection: %s not found", collectionID)
	}
	backend, ok := s.backends[collectionID]
	if !ok {
		return akidberr.New(akidberr.NotFound, "collection: %s not found", collectionID)
	}

	if err := idx.Insert(doc); err != nil {
		return err
	}
	return backend.Insert(doc)
}

// Delete mutates the WAL before the index (durability wins for deletes): a
// WAL-append failure aborts before the index is touched. A docID that is not
// live in the index is rejected with NotFound before anything is written, so
// deleting a missing document appends no WAL record.
func (s *Service) Delete(collectionID, docID uuid.UUID) error {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	s.backendMu.RLock()
	defer s.backendMu.RUnlock()

	idx, ok := s.indexes[collectionID]
	if !ok {
		return akidberr.New(akidberr.NotFound, "collection: %s not found", collectionID)
	}
	backend, ok := s.backends[collectionID]
	if !ok {
		return akidberr.New(akidberr.NotFound, "collection: %s not found", collectionID)
	}

	if _, ok := idx.Get(docID); !ok {
		return akidberr.New(akidberr.NotFound, "collection: document %s not found", docID)
	}
	if err := backend.Delete(docID); err != nil {
		return err
	}
	return idx.Delete(docID)
}

// Query validates top_k against the configured ceiling and delegates to the
// collection's HNSW index. It only needs the index-map lock: the backend map
// is irrelevant to a read-only vector search.
func (s *Service) Query(collectionID uuid.UUID, vector []float32, topK, ef int) ([]index.Result, error) {
	if topK <= 0 || topK > s.cfg.MaxTopK {
		return nil, akidberr.New(akidberr.Validation, "collection: top_k %d out of range (0, %d]", topK, s.cfg.MaxTopK)
	}

	s.indexMu.RLock()
	idx, ok := s.indexes[collectionID]
	s.indexMu.RUnlock()
	if !ok {
		return nil, akidberr.New(akidberr.NotFound, "collection: %s not found", collectionID)
	}

	return idx.Search(vector, topK, ef)
}

// Get returns a single live document by id, delegating to the collection's
// storage backend (which always counts the lookup for monitoring purposes).
func (s *Service) Get(ctx context.Context, collectionID, docID uuid.UUID) (index.Document, bool, error) {
	s.backendMu.RLock()
	backend, ok := s.backends[collectionID]
	s.backendMu.RUnlock()
	if !ok {
		return index.Document{}, false, akidberr.New(akidberr.NotFound, "collection: %s not found", collectionID)
	}
	return backend.Get(ctx, docID)
}
