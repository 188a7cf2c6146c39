package hnsw

import (
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/distance"
	"github.com/aifocal/akidb/internal/index"
	"github.com/aifocal/akidb/internal/index/brute"
)

func TestInsertAndSearchEuclideanBasisVectors(t *testing.T) {
	idx := New(3, distance.Euclidean, Config{})

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, idx.Insert(index.Document{DocID: a, Vector: []float32{1, 0, 0}}))
	require.NoError(t, idx.Insert(index.Document{DocID: b, Vector: []float32{0, 1, 0}}))
	require.NoError(t, idx.Insert(index.Document{DocID: c, Vector: []float32{0, 0, 1}}))

	results, err := idx.Search([]float32{1, 0, 0}, 2, 50)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, a, results[0].DocID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestDeleteTombstonesAndExcludesFromSearch(t *testing.T) {
	idx := New(2, distance.Euclidean, Config{})
	a := uuid.New()
	require.NoError(t, idx.Insert(index.Document{DocID: a, Vector: []float32{1, 1}}))
	require.NoError(t, idx.Delete(a))

	_, ok := idx.Get(a)
	assert.False(t, ok)
	assert.Equal(t, 0, idx.Count())

	results, err := idx.Search([]float32{1, 1}, 5, 50)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteMissingDocIsNotFound(t *testing.T) {
	idx := New(2, distance.Euclidean, Config{})
	err := idx.Delete(uuid.New())
	require.Error(t, err)
	assert.Equal(t, akidberr.NotFound, akidberr.KindOf(err))
}

func TestCosineRejectsZeroVectorOnInsertAndSearch(t *testing.T) {
	idx := New(2, distance.Cosine, Config{})
	err := idx.Insert(index.Document{DocID: uuid.New(), Vector: []float32{0, 0}})
	require.Error(t, err)

	require.NoError(t, idx.Insert(index.Document{DocID: uuid.New(), Vector: []float32{1, 0}}))
	_, err = idx.Search([]float32{0, 0}, 1, 10)
	require.Error(t, err)
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	idx := New(3, distance.Euclidean, Config{})
	err := idx.Insert(index.Document{DocID: uuid.New(), Vector: []float32{1, 2}})
	require.Error(t, err)
	assert.Equal(t, akidberr.Validation, akidberr.KindOf(err))
}

func TestUpdateExistingLiveDocReplacesVectorInPlace(t *testing.T) {
	idx := New(2, distance.Euclidean, Config{})
	a := uuid.New()
	require.NoError(t, idx.Insert(index.Document{DocID: a, Vector: []float32{1, 0}, Metadata: map[string]any{"v": 1}}))
	require.NoError(t, idx.Insert(index.Document{DocID: a, Vector: []float32{0, 1}, Metadata: map[string]any{"v": 2}}))

	doc, ok := idx.Get(a)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, doc.Vector)
	assert.Equal(t, 2, doc.Metadata["v"])
	assert.Equal(t, 1, idx.Count())
}

func TestCountAndAllExcludeTombstones(t *testing.T) {
	idx := New(2, distance.Euclidean, Config{})
	a, b := uuid.New(), uuid.New()
	require.NoError(t, idx.Insert(index.Document{DocID: a, Vector: []float32{1, 0}}))
	require.NoError(t, idx.Insert(index.Document{DocID: b, Vector: []float32{0, 1}}))
	require.NoError(t, idx.Delete(b))

	assert.Equal(t, 1, idx.Count())
	docs := idx.All()
	require.Len(t, docs, 1)
	assert.Equal(t, a, docs[0].DocID)
}

// TestRecallAgainstBruteForce builds a random dataset, searches both a
// brute-force and HNSW index with the same query, and requires HNSW to find
// most of the true nearest neighbors — a recall smoke test, not an exact
// equality check, since HNSW is approximate.
// TestRecallAgainstBruteForce inserts the same random corpus into both the
// HNSW index under test and internal/index/brute's exact flat-scan index,
// then checks HNSW's approximate top-k agrees with brute-force ground truth
// often enough — the role §9 assigns the brute-force index.
func TestRecallAgainstBruteForce(t *testing.T) {
	const (
		dim     = 8
		n       = 300
		k       = 10
		queries = 20
	)
	idx := New(dim, distance.Euclidean, Config{M: 16, EfConstruction: 100})
	ref := brute.New(dim, distance.Euclidean)

	for range n {
		id := uuid.New()
		v := randomVector(dim)
		require.NoError(t, idx.Insert(index.Document{DocID: id, Vector: v}))
		require.NoError(t, ref.Insert(index.Document{DocID: id, Vector: v}))
	}
	require.Equal(t, ref.Count(), idx.Count())

	var totalTruePositives, totalExpected int
	for range queries {
		q := randomVector(dim)
		got, err := idx.Search(q, k, 100)
		require.NoError(t, err)

		truth, err := ref.Search(q, k, 0)
		require.NoError(t, err)

		gotSet := make(map[uuid.UUID]bool, len(got))
		for _, r := range got {
			gotSet[r.DocID] = true
		}
		hits := 0
		for _, r := range truth {
			if gotSet[r.DocID] {
				hits++
			}
		}
		totalTruePositives += hits
		totalExpected += len(truth)
	}

	recall := float64(totalTruePositives) / float64(totalExpected)
	assert.Greater(t, recall, 0.8, "HNSW recall against brute-force ground truth should be reasonably high")
}

func randomVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rand.Float64()*2 - 1)
	}
	return v
}

func TestSearchOnEmptyIndexReturnsNoResults(t *testing.T) {
	idx := New(2, distance.Euclidean, Config{})
	results, err := idx.Search([]float32{1, 1}, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
