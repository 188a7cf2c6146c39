package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifocal/akidb/internal/akidberr"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, akidberr.NotFound, akidberr.KindOf(err))

	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.Error(t, err)
}

func TestVectorAndSnapshotKeys(t *testing.T) {
	assert.Equal(t, "vectors/col1/doc1", VectorKey("col1", "doc1"))
	assert.Equal(t, "snapshots/col1/snapshot-123.parquet", SnapshotKey("col1", 123))
}
