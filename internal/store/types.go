// Package store holds legal-document chunks and their embeddings.
//
// A ChunkStore answers nearest-neighbour queries by cosine distance and the
// exact-match lookups (all chunks, chunks by page) the retrieval pipeline
// needs. Implementations: HNSWStore (in-process, optionally persisted to
// SQLite) and QdrantStore.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ExtractionMethod records how a page's text was obtained.
type ExtractionMethod string

const (
	ExtractionNative    ExtractionMethod = "native"
	ExtractionOCR       ExtractionMethod = "ocr"
	ExtractionNativeOCR ExtractionMethod = "native+ocr"
	ExtractionEmpty     ExtractionMethod = "empty"
	ExtractionUnknown   ExtractionMethod = "unknown"
)

// ParseExtractionMethod maps a string to an ExtractionMethod. Anything
// unrecognized, including the empty string, is ExtractionUnknown.
func ParseExtractionMethod(s string) ExtractionMethod {
	switch m := ExtractionMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case ExtractionNative, ExtractionOCR, ExtractionNativeOCR, ExtractionEmpty:
		return m
	default:
		return ExtractionUnknown
	}
}

// Metadata locates a chunk within its source document.
type Metadata struct {
	Document         string           `json:"document" yaml:"document"`
	Page             int              `json:"page" yaml:"page"`
	ChunkIndex       int              `json:"chunk_index" yaml:"chunk_index"`
	ExtractionMethod ExtractionMethod `json:"extraction_method" yaml:"extraction_method"`
}

// Chunk is a stored unit of document text. Chunks are immutable once stored.
type Chunk struct {
	// ID is assigned by the store and is opaque to callers.
	ID       string   `json:"id,omitempty" yaml:"id,omitempty"`
	Text     string   `json:"text" yaml:"text"`
	Metadata Metadata `json:"metadata" yaml:"metadata"`
}

// Identity is the key that makes two chunks "the same" across result lists.
// It is the exact text, so identical passages from different pages merge.
func (c Chunk) Identity() string {
	return c.Text
}

// Validate checks the fields a store requires before accepting a chunk.
func (c Chunk) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("chunk text is empty")
	}
	if c.Metadata.Document == "" {
		return fmt.Errorf("chunk document is empty")
	}
	if c.Metadata.Page < 1 {
		return fmt.Errorf("chunk page must be >= 1, got %d", c.Metadata.Page)
	}
	if c.Metadata.ChunkIndex < 0 {
		return fmt.Errorf("chunk index must be >= 0, got %d", c.Metadata.ChunkIndex)
	}
	return nil
}

// Hit is a nearest-neighbour match. Distance is the raw cosine distance;
// lower is more similar.
type Hit struct {
	Chunk    Chunk
	Distance float64
}

// ChunkStore is the storage capability the retrieval pipeline depends on.
// Implementations must be safe for concurrent use.
type ChunkStore interface {
	// Size returns the number of stored chunks.
	Size(ctx context.Context) (int, error)

	// Search embeds query and returns at most k hits ordered by ascending
	// cosine distance. An empty store yields an empty slice.
	Search(ctx context.Context, query string, k int) ([]Hit, error)

	// AllChunks returns every stored chunk.
	AllChunks(ctx context.Context) ([]Chunk, error)

	// ChunksByPages returns chunks whose page is in pages.
	ChunksByPages(ctx context.Context, pages []int) ([]Chunk, error)

	// ChunksByDocument returns the chunks of one document.
	ChunksByDocument(ctx context.Context, document string) ([]Chunk, error)

	// Add embeds and stores chunks, returning the new total.
	Add(ctx context.Context, chunks []Chunk) (int, error)

	// DeleteDocument removes one document's chunks and returns how many.
	DeleteDocument(ctx context.Context, document string) (int, error)

	// Documents returns the sorted unique document names.
	Documents(ctx context.Context) ([]string, error)

	// Clear removes every chunk.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// ErrDimensionMismatch indicates an embedding of the wrong size.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// pageSet converts a page list to a lookup set.
func pageSet(pages []int) map[int]struct{} {
	set := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		set[p] = struct{}{}
	}
	return set
}
