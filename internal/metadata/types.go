package metadata

import (
	"time"

	"github.com/google/uuid"
)

// Database is a top-level namespace grouping collections.
type Database struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// CollectionDescriptor is the durable row backing one vector collection:
// everything the collection service needs to reconstruct an HNSW index and
// storage backend for it on startup, independent of the live vectors
// themselves (those live in the WAL/object store, not here).
type CollectionDescriptor struct {
	ID             uuid.UUID
	DatabaseID     uuid.UUID
	Name           string
	Dimension      int
	DistanceMetric string
	EmbeddingModel string
	CreatedAt      time.Time
}
