package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aifocal/akidb/internal/akidberr"
)

func TestEuclideanDistanceAndScore(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	d := Distance(Euclidean, a, b)
	assert.InDelta(t, math.Sqrt2, d, 1e-9)
	assert.InDelta(t, 1/(1+math.Sqrt2), Score(Euclidean, d), 1e-9)

	self := Distance(Euclidean, a, a)
	assert.InDelta(t, 0, self, 1e-9)
	assert.InDelta(t, 1.0, Score(Euclidean, self), 1e-9)
}

func TestCosineDistanceAndScore(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	d := Distance(Cosine, a, b)
	assert.InDelta(t, 1.0, d, 1e-9) // orthogonal vectors: cosine similarity 0, distance 1

	same := Distance(Cosine, a, a)
	assert.InDelta(t, 0, same, 1e-9)
	assert.InDelta(t, 1.0, Score(Cosine, same), 1e-9)
}

func TestDotProductDistanceAndScore(t *testing.T) {
	a := []float32{2, 0}
	b := []float32{3, 0}
	d := Distance(DotProduct, a, b)
	assert.InDelta(t, -6.0, d, 1e-9)
	assert.InDelta(t, 6.0, Score(DotProduct, d), 1e-9)
}

func TestValidateRejectsDimensionMismatch(t *testing.T) {
	err := Validate([]float32{1, 2}, 3, Euclidean)
	require.Error(t, err)
	assert.Equal(t, akidberr.Validation, akidberr.KindOf(err))
}

func TestValidateRejectsNonFinite(t *testing.T) {
	err := Validate([]float32{1, float32(math.NaN())}, 2, Euclidean)
	require.Error(t, err)
	assert.Equal(t, akidberr.Validation, akidberr.KindOf(err))
}

func TestValidateRejectsZeroVectorUnderCosine(t *testing.T) {
	err := Validate([]float32{0, 0, 0}, 3, Cosine)
	require.Error(t, err)
	assert.Equal(t, akidberr.Validation, akidberr.KindOf(err))
	assert.Contains(t, err.Error(), "zero vector")
}

func TestValidateAllowsZeroVectorUnderEuclideanAndDotProduct(t *testing.T) {
	assert.NoError(t, Validate([]float32{0, 0}, 2, Euclidean))
	assert.NoError(t, Validate([]float32{0, 0}, 2, DotProduct))
}

func TestNormalizeProducesUnitNorm(t *testing.T) {
	v := []float32{3, 4}
	n := Normalize(v)
	assert.InDelta(t, 1.0, Norm(n), 1e-6)
}

func TestParseMetricRoundTrip(t *testing.T) {
	for _, m := range []Metric{Euclidean, Cosine, DotProduct} {
		parsed, err := ParseMetric(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseMetric("bogus")
	require.Error(t, err)
	assert.Equal(t, akidberr.Validation, akidberr.KindOf(err))
}

func TestMetricValid(t *testing.T) {
	assert.True(t, Euclidean.Valid())
	assert.False(t, Metric(99).Valid())
}
