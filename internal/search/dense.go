package search

import (
	"context"

	"github.com/Aman-CERP/legalwise/internal/store"
)

// DenseSearcher adapts the chunk store's nearest-neighbour search.
type DenseSearcher struct {
	store store.ChunkStore
}

// NewDenseSearcher wraps st.
func NewDenseSearcher(st store.ChunkStore) *DenseSearcher {
	return &DenseSearcher{store: st}
}

// Search returns up to k chunks by ascending cosine distance, tagged
// semantic, with the raw distance as score. An empty store yields an empty
// slice without error.
func (d *DenseSearcher) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	size, err := d.store.Size(ctx)
	if err != nil {
		return nil, err
	}
	return d.search(ctx, query, k, size)
}

// search is Search with a size the caller already read.
func (d *DenseSearcher) search(ctx context.Context, query string, k, size int) ([]Candidate, error) {
	k = min(k, size)
	if k <= 0 {
		return []Candidate{}, nil
	}

	hits, err := d.store.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{Chunk: h.Chunk, Score: h.Distance, Source: SourceSemantic}
	}
	return out, nil
}
