package search

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Aman-CERP/legalwise/internal/embed"
	"github.com/Aman-CERP/legalwise/internal/store"
)

func chunk(doc string, page, idx int, text string) store.Chunk {
	return store.Chunk{
		Text: text,
		Metadata: store.Metadata{
			Document:         doc,
			Page:             page,
			ChunkIndex:       idx,
			ExtractionMethod: store.ExtractionNative,
		},
	}
}

func candidates(source Source, texts ...string) []Candidate {
	out := make([]Candidate, len(texts))
	for i, t := range texts {
		out[i] = Candidate{Chunk: chunk("doc.pdf", 1, i, t), Score: float64(len(texts) - i), Source: source}
	}
	return out
}

func fusedTexts(fused []Fused) []string {
	out := make([]string, len(fused))
	for i, f := range fused {
		out[i] = f.Chunk.Text
	}
	return out
}

func candidateTexts(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Chunk.Text
	}
	return out
}

func resultTexts(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Chunk.Text
	}
	return out
}

// numberedCorpus builds n chunks, three per page, each with distinct
// vocabulary plus a shared clause word.
func numberedCorpus(n int) []store.Chunk {
	topics := []string{"rent", "deposit", "termination", "arbitration", "insurance", "repairs", "notice", "assignment"}
	chunks := make([]store.Chunk, n)
	for i := range chunks {
		topic := topics[i%len(topics)]
		chunks[i] = chunk("lease.pdf", i/3+1, i,
			fmt.Sprintf("Clause %d concerns %s obligations of the tenant, item%d.", i, topic, i))
	}
	return chunks
}

// newMemoryStore returns an HNSW store loaded with chunks.
func newMemoryStore(chunks ...store.Chunk) (*store.HNSWStore, error) {
	s, err := store.NewHNSWStore(context.Background(), embed.NewStaticEmbedder(64))
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		if _, err := s.Add(context.Background(), chunks); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// countingStore wraps a ChunkStore and counts calls per method.
type countingStore struct {
	store.ChunkStore
	searches  atomic.Int64
	allChunks atomic.Int64
	byPages   atomic.Int64
	searchErr error
	sizeErr   error
}

func (c *countingStore) Size(ctx context.Context) (int, error) {
	if c.sizeErr != nil {
		return 0, c.sizeErr
	}
	return c.ChunkStore.Size(ctx)
}

func (c *countingStore) Search(ctx context.Context, query string, k int) ([]store.Hit, error) {
	c.searches.Add(1)
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return c.ChunkStore.Search(ctx, query, k)
}

func (c *countingStore) AllChunks(ctx context.Context) ([]store.Chunk, error) {
	c.allChunks.Add(1)
	return c.ChunkStore.AllChunks(ctx)
}

func (c *countingStore) ChunksByPages(ctx context.Context, pages []int) ([]store.Chunk, error) {
	c.byPages.Add(1)
	return c.ChunkStore.ChunksByPages(ctx, pages)
}

// stubEncoder is a CrossEncoder with canned behaviour.
type stubEncoder struct {
	calls     atomic.Int64
	lastBatch atomic.Int64
	score     func(query, passage string) float64
	err       error
	scores    []float64 // when set, returned verbatim
}

func (s *stubEncoder) ScorePairs(_ context.Context, query string, passages []string) ([]float64, error) {
	s.calls.Add(1)
	s.lastBatch.Store(int64(len(passages)))
	if s.err != nil {
		return nil, s.err
	}
	if s.scores != nil {
		return s.scores, nil
	}
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = s.score(query, p)
	}
	return out, nil
}

func (s *stubEncoder) Available(context.Context) bool { return s.err == nil }

func (s *stubEncoder) Close() error { return nil }
