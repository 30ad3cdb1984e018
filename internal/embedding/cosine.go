package embedding

import "math"

// Cosine computes the cosine similarity between two vectors.
//
// Returns a value in [-1, 1]; for typical embedding vectors the range is
// [0, 1]. Returns 0.0 for empty vectors, vectors of different lengths,
// or zero-magnitude vectors, so callers never see NaN or a division by
// zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if len(a) != len(b) {
		return 0.0
	}

	var dot, magA, magB float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		magA += va * va
		magB += vb * vb
	}

	if magA == 0.0 || magB == 0.0 {
		return 0.0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
