// Package distance implements the pure, stateless distance and score kernels
// shared by vector insert validation and index search: Euclidean, Cosine, and
// DotProduct. Every function here is side-effect free and safe for concurrent
// use without synchronization.
package distance

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/aifocal/akidb/internal/akidberr"
)

// Metric is a closed set of supported distance metrics.
type Metric uint8

const (
	Euclidean Metric = iota + 1
	Cosine
	DotProduct
)

// String renders the Metric's name.
func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "euclidean"
	case Cosine:
		return "cosine"
	case DotProduct:
		return "dot_product"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the three accepted metrics.
func (m Metric) Valid() bool {
	switch m {
	case Euclidean, Cosine, DotProduct:
		return true
	default:
		return false
	}
}

// ParseMetric maps a wire-format name to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "euclidean":
		return Euclidean, nil
	case "cosine":
		return Cosine, nil
	case "dot_product":
		return DotProduct, nil
	default:
		return 0, akidberr.New(akidberr.Validation, "distance: unrecognized metric %q", s)
	}
}

// AllFinite reports whether every component of v is a finite float (no NaN, no Inf).
func AllFinite(v []float32) bool {
	for _, f := range v {
		x := float64(f)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Norm returns the Euclidean (L2) norm of v.
func Norm(v []float32) float64 {
	sum := 0.0
	for _, f := range v {
		x := float64(f)
		sum += x * x
	}
	return math.Sqrt(sum)
}

// IsZero reports whether v's norm is exactly zero.
func IsZero(v []float32) bool {
	return Norm(v) == 0
}

// Normalize returns v scaled to unit L2 norm. Callers must reject a zero-norm
// vector before calling Normalize; it does not itself guard against div-by-zero.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / n)
	}
	return out
}

// Validate checks the invariants shared by insert and search: dimension
// match, all-finite values, and (for Cosine) a nonzero norm.
func Validate(v []float32, dim int, metric Metric) error {
	if len(v) != dim {
		return akidberr.New(akidberr.Validation, "distance: vector has dimension %d, want %d", len(v), dim)
	}
	if !AllFinite(v) {
		return akidberr.New(akidberr.Validation, "distance: vector contains a non-finite value")
	}
	if metric == Cosine && IsZero(v) {
		return akidberr.New(akidberr.Validation, "distance: zero vector is not valid under the cosine metric")
	}
	return nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func dot(a, b []float32) float64 {
	return floats.Dot(toFloat64(a), toFloat64(b))
}

// Distance returns the metric-specific distance between a and b, where
// "lower is closer" for all three metrics (DotProduct's distance is negated
// so the same ordering convention holds).
func Distance(metric Metric, a, b []float32) float64 {
	switch metric {
	case Euclidean:
		diff := make([]float64, len(a))
		for i := range a {
			diff[i] = float64(a[i]) - float64(b[i])
		}
		return math.Sqrt(floats.Dot(diff, diff))
	case Cosine:
		na, nb := Norm(a), Norm(b)
		if na == 0 || nb == 0 {
			return math.NaN()
		}
		return 1 - dot(a, b)/(na*nb)
	case DotProduct:
		return -dot(a, b)
	default:
		panic("distance: unrecognized metric " + metric.String())
	}
}

// Score converts a raw distance back into the metric's caller-facing
// similarity score, per the spec's per-metric score formulas.
func Score(metric Metric, d float64) float64 {
	switch metric {
	case Euclidean:
		return 1 / (1 + d)
	case Cosine:
		return 1 - d
	case DotProduct:
		return -d // distance is -dot, so the score is the dot product itself
	default:
		panic("distance: unrecognized metric " + metric.String())
	}
}
