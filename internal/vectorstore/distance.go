package vectorstore

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects the distance function. Scores are distances: identical
// vectors score 0 and lower is better.
type Metric string

const (
	MetricL2     Metric = "l2"
	MetricCosine Metric = "cosine"
)

// ParseMetric accepts "l2" (also "" and "euclidean") and "cosine".
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "l2", "euclidean":
		return MetricL2, nil
	case "cosine":
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Distance returns the distance between a and b. Both must have the same length.
func (m Metric) Distance(a, b []float32) float32 {
	if m == MetricCosine {
		return CosineDistance(a, b)
	}
	return L2(a, b)
}

// L2 computes the Euclidean distance between two vectors of equal length.
func L2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// CosineDistance computes 1 - cosine similarity. A zero-magnitude vector is at
// distance 1 from everything.
func CosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 1
	}
	d := 1 - dot/den
	if d < 0 {
		d = 0
	}
	return float32(d)
}

// NormalizeL2 returns a new vector normalized to unit L2 norm.
func NormalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	n := math.Sqrt(sum)
	if n == 0 {
		copy(out, v)
		return out
	}
	inv := float32(1.0 / n)
	for i := range v {
		out[i] = v[i] * inv
	}
	return out
}
