// Package embedding turns query text into fixed-length vectors for the
// semantic tier.
package embedding

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrEmbeddingUnavailable is returned when no vector could be produced,
	// after any retries.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrTransient marks a provider failure worth retrying: throttling, 5xx,
	// network errors.
	ErrTransient = errors.New("transient embedding failure")

	// ErrDimensionMismatch is returned when a provider answers with a vector
	// of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder maps text to a vector of Dimensions() components.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Normalize scales vec to unit length in place. A zero vector is left as is.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) * inv)
	}
	return vec
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
