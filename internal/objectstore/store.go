// Package objectstore defines the key-addressable blob store contract used
// for cold-tier vectors and compaction snapshots, plus a dead-letter-queue
// wrapper that gives callers fire-and-forget upload semantics backed by a
// background retry worker with saturating exponential backoff.
package objectstore

import (
	"context"

	"github.com/aifocal/akidb/internal/akidberr"
)

// Store is the key-addressable blob contract backing both cold vectors
// (key "vectors/{collection_id}/{doc_id}") and compaction snapshots
// (key "snapshots/{collection_id}/snapshot-{timestamp}.parquet").
type Store interface {
	// Get returns the blob stored at key, or a NotFound error.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes blob to key, overwriting any existing value.
	Put(ctx context.Context, key string, blob []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// VectorKey builds the object key for a cold-tier vector document.
func VectorKey(collectionID, docID string) string {
	return "vectors/" + collectionID + "/" + docID
}

// SnapshotKey builds the object key for a compaction snapshot, named with
// the Unix nanosecond timestamp it was taken at.
func SnapshotKey(collectionID string, takenAtUnixNano int64) string {
	return "snapshots/" + collectionID + "/snapshot-" + itoa(takenAtUnixNano) + ".parquet"
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// errNotFound is returned by store implementations when a key does not exist.
func errNotFound(key string) error {
	return akidberr.New(akidberr.NotFound, "objectstore: key %q not found", key)
}
