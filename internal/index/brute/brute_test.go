package brute

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifocal/akidb/internal/distance"
	"github.com/aifocal/akidb/internal/index"
)

func TestInsertAndSearchEuclidean(t *testing.T) {
	idx := New(3, distance.Euclidean)

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, idx.Insert(index.Document{DocID: a, Vector: []float32{1, 0, 0}}))
	require.NoError(t, idx.Insert(index.Document{DocID: b, Vector: []float32{0, 1, 0}}))
	require.NoError(t, idx.Insert(index.Document{DocID: c, Vector: []float32{0, 0, 1}}))

	results, err := idx.Search([]float32{1, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, a, results[0].DocID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestDeleteIsTombstonedAndExcludedFromSearch(t *testing.T) {
	idx := New(2, distance.Euclidean)
	a := uuid.New()
	require.NoError(t, idx.Insert(index.Document{DocID: a, Vector: []float32{1, 1}}))
	require.NoError(t, idx.Delete(a))

	_, ok := idx.Get(a)
	assert.False(t, ok)
	assert.Equal(t, 0, idx.Count())

	results, err := idx.Search([]float32{1, 1}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteMissingDocIsNotFound(t *testing.T) {
	idx := New(2, distance.Euclidean)
	err := idx.Delete(uuid.New())
	require.Error(t, err)
}

func TestCosineRejectsZeroVector(t *testing.T) {
	idx := New(2, distance.Cosine)
	err := idx.Insert(index.Document{DocID: uuid.New(), Vector: []float32{0, 0}})
	require.Error(t, err)

	require.NoError(t, idx.Insert(index.Document{DocID: uuid.New(), Vector: []float32{1, 0}}))
	_, err = idx.Search([]float32{0, 0}, 1, 0)
	require.Error(t, err)
}

func TestAllExcludesTombstones(t *testing.T) {
	idx := New(2, distance.Euclidean)
	a, b := uuid.New(), uuid.New()
	require.NoError(t, idx.Insert(index.Document{DocID: a, Vector: []float32{1, 0}}))
	require.NoError(t, idx.Insert(index.Document{DocID: b, Vector: []float32{0, 1}}))
	require.NoError(t, idx.Delete(b))

	docs := idx.All()
	require.Len(t, docs, 1)
	assert.Equal(t, a, docs[0].DocID)
}
