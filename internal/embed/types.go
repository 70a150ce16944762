// Package embed turns text into dense vectors for the chunk store.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultDimensions is the output size of nomic-embed-text.
	DefaultDimensions = 768

	// DefaultBatchSize bounds texts per request to the embedding service.
	DefaultBatchSize = 32

	// DefaultTimeout is the per-request timeout. Cold model loads in Ollama
	// can take tens of seconds.
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the default size for the static embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
