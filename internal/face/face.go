// Package face implements the deterministic face-embedding placeholder used
// for punch validation. It is not a biometric model: embeddings are derived
// from the raw capture bytes so that enrollment and later matches of the same
// capture are reproducible. The capture itself is never retained.
package face

import (
	"encoding/json"
	"errors"
	"math"
)

const (
	// Dimension is the length of every generated embedding.
	Dimension = 512

	// Threshold is the inclusive L2-distance bound for a positive match.
	Threshold = 0.35

	// seedFoldLimit bounds the seed derivation to a prefix of the capture so
	// generation stays O(1) in the payload size.
	seedFoldLimit = 1000
)

// ErrDimensionMismatch indicates two embeddings of different length were
// compared. The generator is fixed-dimension, so hitting this is an internal
// invariant violation.
var ErrDimensionMismatch = errors.New("face: embedding dimension mismatch")

// GenerateEmbedding maps a capture payload to a unit-normalized vector of
// Dimension coordinates. Identical input bytes always yield identical output.
func GenerateEmbedding(image []byte) []float64 {
	seed := foldSeed(image)

	embedding := make([]float64, Dimension)
	var sumSquares float64
	for i := range embedding {
		v := math.Sin(seed*float64(i+1))*0.5 + 0.5
		embedding[i] = v
		sumSquares += v * v
	}

	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return embedding
	}
	for i := range embedding {
		embedding[i] /= norm
	}
	return embedding
}

// foldSeed folds at most the first seedFoldLimit bytes into a numeric seed.
// The fold is order-dependent and wraps in 32-bit arithmetic.
func foldSeed(image []byte) float64 {
	limit := len(image)
	if limit > seedFoldLimit {
		limit = seedFoldLimit
	}
	var h int32
	for i := 0; i < limit; i++ {
		h = h*31 + int32(image[i])
	}
	seed := int64(h)
	if seed < 0 {
		seed = -seed
	}
	return float64(seed)
}

// Distance computes the Euclidean (L2) distance between two embeddings.
func Distance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// MatchEmbeddings compares two embeddings and derives the match decision and
// a [0,1] confidence score. Raw 1-distance can go negative for very
// dissimilar vectors; the clamp keeps the score presentable.
func MatchEmbeddings(a, b []float64) (matched bool, score float64, err error) {
	dist, err := Distance(a, b)
	if err != nil {
		return false, 0, err
	}
	score = 1 - dist
	if score < 0 {
		score = 0
	}
	return dist <= Threshold, score, nil
}

// Match generates an embedding for the capture and compares it against a
// previously stored serialized embedding. It fails closed: missing,
// malformed or wrongly sized stored data yields (false, 0) rather than an
// error, degrading the punch to pending instead of rejecting it.
func Match(image, storedSerialized []byte) (matched bool, score float64) {
	if len(storedSerialized) == 0 {
		return false, 0
	}
	var stored []float64
	if err := json.Unmarshal(storedSerialized, &stored); err != nil {
		return false, 0
	}
	matched, score, err := MatchEmbeddings(GenerateEmbedding(image), stored)
	if err != nil {
		return false, 0
	}
	return matched, score
}

// Serialize encodes an embedding for storage alongside the user record.
func Serialize(embedding []float64) ([]byte, error) {
	return json.Marshal(embedding)
}
