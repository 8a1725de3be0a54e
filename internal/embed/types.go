// Package embed converts text into fixed-dimension vectors.
//
// A Provider is a single round trip to an embedding backend. Resilient wraps
// a Provider with batching, bounded retry and pacing, and is what the rest of
// docrag talks to through the Embedder interface.
package embed

import (
	"context"
	"math"
	"time"
)

// Defaults for Resilient.
const (
	// DefaultMaxBatchSize is the number of texts sent in one provider call.
	DefaultMaxBatchSize = 16

	// DefaultMaxAttempts bounds attempts per batch, including the first.
	DefaultMaxAttempts = 5

	// DefaultInitialDelay is the backoff before the first retry.
	DefaultInitialDelay = 1 * time.Second

	// DefaultMaxDelay caps a single backoff wait.
	DefaultMaxDelay = 16 * time.Second

	// DefaultAttemptTimeout bounds one provider call.
	DefaultAttemptTimeout = 60 * time.Second
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension, or 0 before it is known.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// Provider performs one embedding request against a backend.
// Implementations classify failures with the internal/errors codes so
// callers can tell transient failures from rejections.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}

	inv := float32(1 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
