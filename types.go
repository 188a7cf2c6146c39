package akidb

import "github.com/google/uuid"

// DistanceMetric selects the vector similarity function a collection's
// index and validation path use.
type DistanceMetric string

const (
	Euclidean  DistanceMetric = "euclidean"
	Cosine     DistanceMetric = "cosine"
	DotProduct DistanceMetric = "dot_product"
)

// TieringPolicy selects where a collection's vectors physically live.
type TieringPolicy string

const (
	// Memory keeps every vector in process memory; no object store needed.
	Memory TieringPolicy = "memory"
	// MemoryS3 keeps vectors in memory and mirrors them to an object store
	// for durability and cold recovery.
	MemoryS3 TieringPolicy = "memory_s3"
	// S3Only keeps only a bounded LRU cache in memory; the object store is
	// the system of record.
	S3Only TieringPolicy = "s3_only"
)

// Database is a namespace that owns zero or more collections.
type Database struct {
	ID   uuid.UUID
	Name string
}

// CollectionDescriptor is the public representation of a collection's
// identity and schema. It is a curated view of internal/metadata's
// CollectionDescriptor for use outside the module.
type CollectionDescriptor struct {
	ID             uuid.UUID
	DatabaseID     uuid.UUID
	Name           string
	Dimension      int
	DistanceMetric DistanceMetric
	EmbeddingModel string
}

// VectorDocument is a single embedded document: an ID, its vector, an
// optional caller-supplied external identifier, and arbitrary metadata
// returned alongside query results.
type VectorDocument struct {
	DocID      uuid.UUID
	ExternalID string
	Vector     []float32
	Metadata   map[string]any
}

// QueryResult is a single ranked match from a Query call.
type QueryResult struct {
	DocID      uuid.UUID
	Score      float64
	ExternalID string
	Metadata   map[string]any
}
