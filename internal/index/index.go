// Package index defines the pluggable in-memory vector index contract shared
// by the HNSW approximate index (internal/index/hnsw) and the brute-force
// reference index (internal/index/brute) used to measure recall in tests.
package index

import (
	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/distance"
)

// Document is a single vector entry as seen by an index: identity, the raw
// vector, and the caller-supplied metadata carried alongside it.
type Document struct {
	DocID      uuid.UUID
	Vector     []float32
	ExternalID string
	Metadata   map[string]any
}

// Result is one ranked hit returned by Search, ordered closest-first.
type Result struct {
	DocID      uuid.UUID
	Score      float64
	ExternalID string
	Metadata   map[string]any
}

// Index is the in-memory graph/structure backing a single collection's
// vector search. Implementations must filter soft-deleted documents from
// Search, Count, and All.
type Index interface {
	// Insert validates and adds or replaces doc. Dimension mismatch, non-finite
	// components, or a zero vector under Cosine return a Validation error.
	Insert(doc Document) error
	// Delete soft-deletes docID. Deleting a doc_id not present returns a NotFound error.
	Delete(docID uuid.UUID) error
	// Get returns the live document for docID, or ok=false if absent or tombstoned.
	Get(docID uuid.UUID) (Document, bool)
	// Search returns up to k closest live documents to query, ordered nearest-first.
	// ef is the beam width; implementations are free to treat it as a hint.
	Search(query []float32, k, ef int) ([]Result, error)
	// Count returns the number of live (non-tombstoned) documents.
	Count() int
	// All returns every live document, for snapshotting and recovery.
	All() []Document
	// Dimension returns the fixed vector dimension this index was built for.
	Dimension() int
	// Metric returns the distance metric this index was built for.
	Metric() distance.Metric
}
