package database

import "math"

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical) and 2 (opposite).
// Cosine distance = 1 - cosine similarity
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, ErrDegenerateVector
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(similarity) || math.IsInf(similarity, 0) {
		return 0, ErrDegenerateVector
	}
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity, nil
}

// Magnitude returns the euclidean norm of v.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// ValidateEmbedding checks that v has the expected dimension and a usable direction:
// finite components and a non-zero, finite magnitude. A dim of 0 skips the dimension check.
func ValidateEmbedding(v []float32, dim int) error {
	if dim > 0 && len(v) != dim {
		return ErrDimensionMismatch
	}
	if len(v) == 0 {
		return ErrDegenerateVector
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return ErrDegenerateVector
		}
	}
	if m := Magnitude(v); m == 0 || math.IsInf(m, 0) {
		return ErrDegenerateVector
	}
	return nil
}
