package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
	"github.com/Aman-CERP/legalwise/internal/store"
	"github.com/Aman-CERP/legalwise/internal/telemetry"
)

func lexicalStub() *stubEncoder {
	return &stubEncoder{score: func(q, p string) float64 {
		s, _ := LexicalCrossEncoder{}.ScorePairs(context.Background(), q, []string{p})
		return s[0]
	}}
}

func newTestEngine(t *testing.T, st store.ChunkStore, enc CrossEncoder, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(st, enc, DefaultConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// =============================================================================
// Mode selection
// =============================================================================

func TestEngine_EndToEndSmallCorpus(t *testing.T) {
	// Given: the three-chunk contract corpus
	texts := []string{
		"Section 5 governs termination.",
		"Payment due in 30 days.",
		"Confidentiality applies for 2 years.",
	}
	st, err := newMemoryStore(
		chunk("contract.pdf", 1, 0, texts[0]),
		chunk("contract.pdf", 1, 1, texts[1]),
		chunk("contract.pdf", 2, 2, texts[2]),
	)
	require.NoError(t, err)
	enc := lexicalStub()
	e := newTestEngine(t, st, enc)
	query := "What is the termination clause?"

	// When: retrieving
	ret, err := e.Retrieve(context.Background(), query)

	// Then: full-corpus mode returns every chunk at the fixed score
	require.NoError(t, err)
	assert.Equal(t, ModeFullCorpus, ret.Mode)
	assert.ElementsMatch(t, texts, resultTexts(ret.Results))
	for _, r := range ret.Results {
		assert.Equal(t, ResultExactMatch, r.Kind)
		assert.Equal(t, ExactMatchScore, r.Score)
		assert.Nil(t, r.Fusion)
	}
	assert.Zero(t, enc.calls.Load())

	// And: dense search alone ranks the termination chunk first
	dense, err := NewDenseSearcher(st).Search(context.Background(), query, 3)
	require.NoError(t, err)
	require.Len(t, dense, 3)
	assert.Equal(t, texts[0], dense[0].Chunk.Text)
	assert.Equal(t, SourceSemantic, dense[0].Source)
	assert.LessOrEqual(t, dense[0].Score, dense[1].Score)
}

func TestEngine_FullCorpusThresholdBoundary(t *testing.T) {
	query := "tenant termination obligations"

	t.Run("at threshold", func(t *testing.T) {
		st, err := newMemoryStore(numberedCorpus(40)...)
		require.NoError(t, err)
		e := newTestEngine(t, st, lexicalStub())

		ret, err := e.Retrieve(context.Background(), query)

		require.NoError(t, err)
		assert.Equal(t, ModeFullCorpus, ret.Mode)
		assert.Len(t, ret.Results, 40)
	})

	t.Run("above threshold", func(t *testing.T) {
		st, err := newMemoryStore(numberedCorpus(41)...)
		require.NoError(t, err)
		enc := lexicalStub()
		e := newTestEngine(t, st, enc)

		ret, err := e.Retrieve(context.Background(), query)

		require.NoError(t, err)
		assert.Equal(t, ModeHybrid, ret.Mode)
		assert.Len(t, ret.Results, 5)
		assert.Equal(t, int64(1), enc.calls.Load())
		for _, r := range ret.Results {
			assert.Equal(t, ResultReranked, r.Kind)
			require.NotNil(t, r.Fusion)
		}
	})
}

func TestEngine_PageTargetedSkipsRanking(t *testing.T) {
	// Given: 60 chunks, three per page, behind a counting store
	st, err := newMemoryStore(numberedCorpus(60)...)
	require.NoError(t, err)
	counting := &countingStore{ChunkStore: st}
	enc := lexicalStub()
	e := newTestEngine(t, counting, enc)

	// When: asking about page 7
	ret, err := e.Retrieve(context.Background(), "What does page 7 say about rent?")

	// Then: exactly the page 7 chunks, no search stage ran
	require.NoError(t, err)
	assert.Equal(t, ModePage, ret.Mode)
	assert.Equal(t, []int{7}, ret.Pages)
	require.Len(t, ret.Results, 3)
	for _, r := range ret.Results {
		assert.Equal(t, 7, r.Chunk.Metadata.Page)
		assert.Equal(t, ExactMatchScore, r.Score)
	}
	assert.Zero(t, counting.searches.Load())
	assert.Zero(t, e.Sparse().Rebuilds())
	assert.Zero(t, enc.calls.Load())
}

func TestEngine_PageRangeUnion(t *testing.T) {
	st, err := newMemoryStore(numberedCorpus(60)...)
	require.NoError(t, err)
	e := newTestEngine(t, st, lexicalStub())

	ret, err := e.Retrieve(context.Background(), "summarize pages 3 to 5")

	require.NoError(t, err)
	assert.Equal(t, ModePage, ret.Mode)
	require.Len(t, ret.Results, 9)
	pages := map[int]int{}
	for _, r := range ret.Results {
		pages[r.Chunk.Metadata.Page]++
	}
	assert.Equal(t, map[int]int{3: 3, 4: 3, 5: 3}, pages)
}

func TestEngine_MissingPagesFallThroughToHybrid(t *testing.T) {
	// Given: a small corpus that would otherwise use full-corpus mode
	st, err := newMemoryStore(numberedCorpus(6)...)
	require.NoError(t, err)
	enc := lexicalStub()
	e := newTestEngine(t, st, enc)

	// When: citing a page beyond the document
	ret, err := e.Retrieve(context.Background(), "what does page 99 say about rent")

	// Then: hybrid retrieval, not full-corpus and not empty
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, ret.Mode)
	assert.Equal(t, []int{99}, ret.Pages)
	assert.NotEmpty(t, ret.Results)
	assert.LessOrEqual(t, len(ret.Results), 5)
	assert.Equal(t, int64(1), enc.calls.Load())
}

func TestEngine_InvalidPageReferenceUsesHybrid(t *testing.T) {
	queries := map[string]string{
		"zero page":        "what does page 0 say about rent",
		"overflowing page": "what does page 99999999999999999999 say about rent",
	}

	for name, query := range queries {
		t.Run(name, func(t *testing.T) {
			// Given: a small corpus that would otherwise use full-corpus mode
			st, err := newMemoryStore(numberedCorpus(6)...)
			require.NoError(t, err)
			enc := lexicalStub()
			e := newTestEngine(t, st, enc)

			// When: citing a page number that cannot exist
			ret, err := e.Retrieve(context.Background(), query)

			// Then: ranked retrieval instead of the whole document
			require.NoError(t, err)
			assert.Equal(t, ModeHybrid, ret.Mode)
			assert.Empty(t, ret.Pages)
			assert.NotEmpty(t, ret.Results)
			assert.LessOrEqual(t, len(ret.Results), 5)
			assert.Equal(t, int64(1), enc.calls.Load())
		})
	}
}

func TestEngine_EmptyStore(t *testing.T) {
	st, err := newMemoryStore()
	require.NoError(t, err)
	enc := lexicalStub()
	e := newTestEngine(t, st, enc)

	for _, q := range []string{"page 3", "termination"} {
		ret, err := e.Retrieve(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, ModeEmpty, ret.Mode)
		assert.NotNil(t, ret.Results)
		assert.Empty(t, ret.Results)
		assert.Zero(t, ret.MaxScore())
	}
	assert.Zero(t, enc.calls.Load())
}

func TestEngine_BlankQuery(t *testing.T) {
	st, err := newMemoryStore(numberedCorpus(3)...)
	require.NoError(t, err)
	e := newTestEngine(t, st, lexicalStub())

	_, err = e.Retrieve(context.Background(), "  \t ")

	require.Error(t, err)
	assert.Equal(t, lwerrors.ErrCodeQueryEmpty, lwerrors.GetCode(err))
}

// =============================================================================
// Hybrid pipeline properties
// =============================================================================

func TestEngine_HybridIsIdempotent(t *testing.T) {
	st, err := newMemoryStore(numberedCorpus(60)...)
	require.NoError(t, err)
	e := newTestEngine(t, st, lexicalStub())
	ctx := context.Background()

	first, err := e.Retrieve(ctx, "termination notice for the tenant")
	require.NoError(t, err)

	for range 5 {
		again, err := e.Retrieve(ctx, "termination notice for the tenant")
		require.NoError(t, err)
		assert.Equal(t, first.Results, again.Results)
	}
}

func TestEngine_HybridResultsAreMonotonicAndUnique(t *testing.T) {
	st, err := newMemoryStore(numberedCorpus(60)...)
	require.NoError(t, err)
	e := newTestEngine(t, st, lexicalStub())

	ret, err := e.Retrieve(context.Background(), "arbitration insurance tenant")

	require.NoError(t, err)
	require.Equal(t, ModeHybrid, ret.Mode)
	seen := map[string]bool{}
	for i, r := range ret.Results {
		assert.False(t, seen[r.Chunk.Text], "duplicate %q", r.Chunk.Text)
		seen[r.Chunk.Text] = true
		if i > 0 {
			assert.LessOrEqual(t, r.Score, ret.Results[i-1].Score)
		}
	}
	assert.Equal(t, 15, ret.SemanticCount)
	assert.Positive(t, ret.SparseCount)
	assert.LessOrEqual(t, ret.FusedCount, ret.SemanticCount+ret.SparseCount)
	assert.GreaterOrEqual(t, ret.FusedCount, ret.SemanticCount)
}

func TestEngine_RerankPoolIsTwiceFirstPass(t *testing.T) {
	// Given: every chunk contains "obligations", so both lists are full
	st, err := newMemoryStore(numberedCorpus(60)...)
	require.NoError(t, err)
	enc := lexicalStub()
	e := newTestEngine(t, st, enc)

	ret, err := e.Retrieve(context.Background(), "obligations")

	require.NoError(t, err)
	assert.Equal(t, 15, ret.SparseCount)
	assert.Equal(t, int64(min(30, ret.FusedCount)), enc.lastBatch.Load())
}

// =============================================================================
// Failure semantics
// =============================================================================

func TestEngine_ModelErrorPropagatesWithoutRetry(t *testing.T) {
	st, err := newMemoryStore(numberedCorpus(60)...)
	require.NoError(t, err)
	enc := &stubEncoder{err: lwerrors.ModelError("cross-encoder server unreachable", errors.New("connection refused"))}
	e := newTestEngine(t, st, enc)

	_, err = e.Retrieve(context.Background(), "termination")

	require.Error(t, err)
	assert.Equal(t, lwerrors.ErrCodeModelUnavailable, lwerrors.GetCode(err))
	assert.Equal(t, int64(1), enc.calls.Load())
}

func TestEngine_StoreSearchErrorIsSearchFailed(t *testing.T) {
	st, err := newMemoryStore(numberedCorpus(60)...)
	require.NoError(t, err)
	counting := &countingStore{ChunkStore: st, searchErr: errors.New("index handle invalid")}
	enc := lexicalStub()
	e := newTestEngine(t, counting, enc)

	_, err = e.Retrieve(context.Background(), "termination")

	require.Error(t, err)
	assert.Equal(t, lwerrors.ErrCodeSearchFailed, lwerrors.GetCode(err))
	assert.Zero(t, enc.calls.Load())
}

func TestEngine_SizeErrorKeepsStoreCode(t *testing.T) {
	st, err := newMemoryStore(numberedCorpus(3)...)
	require.NoError(t, err)
	counting := &countingStore{ChunkStore: st, sizeErr: lwerrors.StoreError("qdrant count failed", errors.New("unavailable"))}
	e := newTestEngine(t, counting, lexicalStub())

	_, err = e.Retrieve(context.Background(), "rent")

	assert.Equal(t, lwerrors.ErrCodeStoreUnavailable, lwerrors.GetCode(err))
}

// =============================================================================
// Concurrency and wiring
// =============================================================================

func TestEngine_ConcurrentRetrievalsShareOneRebuild(t *testing.T) {
	st, err := newMemoryStore(numberedCorpus(60)...)
	require.NoError(t, err)
	e := newTestEngine(t, st, LexicalCrossEncoder{})

	var wg sync.WaitGroup
	results := make([][]Result, 16)
	errs := make([]error, 16)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ret, err := e.Retrieve(context.Background(), "deposit repairs")
			errs[i] = err
			if err == nil {
				results[i] = ret.Results
			}
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, int64(1), e.Sparse().Rebuilds())
}

func TestEngine_RecordsMetrics(t *testing.T) {
	st, err := newMemoryStore(numberedCorpus(10)...)
	require.NoError(t, err)
	m := telemetry.NewMetrics()
	e := newTestEngine(t, st, LexicalCrossEncoder{}, WithMetrics(m))

	_, err = e.Retrieve(context.Background(), "rent")
	require.NoError(t, err)
	_, err = e.Retrieve(context.Background(), " ")
	require.Error(t, err)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Total)
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, int64(1), snap.ModeCounts[string(ModeFullCorpus)])
}

func TestEngine_CustomSparseIndex(t *testing.T) {
	st, err := newMemoryStore(numberedCorpus(50)...)
	require.NoError(t, err)
	sparse := NewSparseIndex(st, WithSparseBackend(SparseBleve), WithInvalidation(InvalidateByFingerprint))
	e := newTestEngine(t, st, LexicalCrossEncoder{}, WithSparseIndex(sparse))

	ret, err := e.Retrieve(context.Background(), "arbitration")

	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, ret.Mode)
	assert.Same(t, sparse, e.Sparse())
	assert.Equal(t, int64(1), sparse.Rebuilds())
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(nil, LexicalCrossEncoder{}, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)

	st, err := newMemoryStore()
	require.NoError(t, err)
	_, err = NewEngine(st, nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestNewEngine_ZeroConfigUsesDefaults(t *testing.T) {
	st, err := newMemoryStore()
	require.NoError(t, err)

	e, err := NewEngine(st, LexicalCrossEncoder{}, Config{FullCorpusThreshold: 40})

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), e.Config())
}

func TestRetrieval_MinMaxScore(t *testing.T) {
	r := &Retrieval{Results: []Result{{Score: 0.4}, {Score: 0.9}, {Score: 0.1}}}
	assert.Equal(t, 0.1, r.MinScore())
	assert.Equal(t, 0.9, r.MaxScore())
	assert.Zero(t, (&Retrieval{}).MinScore())
}
