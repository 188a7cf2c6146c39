package collection

import (
	"github.com/google/uuid"

	"github.com/aifocal/akidb/internal/index"
)

// Descriptor is the in-memory mirror of a metadata.CollectionDescriptor,
// cached by the service to avoid a repository round trip on every operation.
type Descriptor struct {
	ID             uuid.UUID
	DatabaseID     uuid.UUID
	Name           string
	Dimension      int
	DistanceMetric string
	EmbeddingModel string
}

// CreateParams are the caller-supplied fields for CreateCollection; ID and
// timestamps are assigned by the metadata repository.
type CreateParams struct {
	DatabaseID     uuid.UUID
	Name           string
	Dimension      int
	DistanceMetric string
	EmbeddingModel string
}

// Document is a vector entry as seen by collection operations — identical in
// shape to index.Document, re-exported here so callers don't need to import
// the index package directly.
type Document = index.Document

// Result is a ranked search hit.
type Result = index.Result
