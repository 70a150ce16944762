package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
	"github.com/Aman-CERP/legalwise/internal/store"
	"github.com/Aman-CERP/legalwise/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine selects and runs a retrieval strategy. Create one per process and
// share it: it holds no per-request state, and the sparse index cache is its
// only shared mutable state.
type Engine struct {
	store    store.ChunkStore
	dense    *DenseSearcher
	sparse   *SparseIndex
	fusion   *RRFFusion
	reranker *Reranker
	config   Config
	metrics  *telemetry.Metrics
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithMetrics records retrievals, stage timings, and sparse rebuilds.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSparseIndex replaces the default okapi/count sparse index. The index
// must wrap the same store as the engine.
func WithSparseIndex(s *SparseIndex) EngineOption {
	return func(e *Engine) {
		e.sparse = s
	}
}

// NewEngine creates an engine over st, re-ranking with encoder.
func NewEngine(st store.ChunkStore, encoder CrossEncoder, cfg Config, opts ...EngineOption) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: chunk store is required", ErrNilDependency)
	}
	if encoder == nil {
		return nil, fmt.Errorf("%w: cross-encoder is required", ErrNilDependency)
	}

	cfg = cfg.withDefaults()
	e := &Engine{
		store:    st,
		dense:    NewDenseSearcher(st),
		fusion:   NewRRFFusionWithK(cfg.RRFConstant, cfg.Weights),
		reranker: NewReranker(encoder),
		config:   cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sparse == nil {
		e.sparse = NewSparseIndex(st, WithSparseMetrics(e.metrics))
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Sparse returns the sparse index cache.
func (e *Engine) Sparse() *SparseIndex {
	return e.sparse
}

// Store returns the chunk store.
func (e *Engine) Store() store.ChunkStore {
	return e.store
}

// Retrieve runs, in order of precedence, page-targeted, full-corpus, or
// hybrid retrieval for query. An empty store is not an error. Model
// failures are ERR_304_MODEL_UNAVAILABLE; nothing is retried.
func (e *Engine) Retrieve(ctx context.Context, query string) (*Retrieval, error) {
	start := time.Now()

	ret, err := e.retrieve(ctx, query)

	elapsed := time.Since(start)
	event := telemetry.RetrievalEvent{Query: query, Latency: elapsed, Timestamp: start}
	if err != nil {
		event.ErrorCode = errorCode(err)
		e.metrics.ObserveRetrieval(event)
		slog.Warn("retrieval_failed",
			append([]any{slog.Duration("duration", elapsed)}, lwerrors.LogAttrs(err)...)...)
		return nil, err
	}

	ret.Duration = elapsed
	event.Mode = string(ret.Mode)
	event.ResultCount = len(ret.Results)
	event.TopScore = ret.MaxScore()
	e.metrics.ObserveRetrieval(event)

	logHits(ret.Results)
	slog.Info("retrieval_complete",
		slog.String("mode", string(ret.Mode)),
		slog.Int("results", len(ret.Results)),
		slog.Any("pages", ret.Pages),
		slog.Int("semantic", ret.SemanticCount),
		slog.Int("sparse", ret.SparseCount),
		slog.Int("fused", ret.FusedCount),
		slog.Duration("duration", elapsed))

	return ret, nil
}

func (e *Engine) retrieve(ctx context.Context, query string) (*Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return nil, lwerrors.New(lwerrors.ErrCodeQueryEmpty, "query is empty", nil).
			WithSuggestion("Ask a question about the uploaded document")
	}

	size, err := e.store.Size(ctx)
	if err != nil {
		return nil, stageError("store size", err)
	}
	e.metrics.SetStoreSize(size)
	if size == 0 {
		return &Retrieval{Mode: ModeEmpty, Results: []Result{}}, nil
	}

	pages, referenced := ParsePageReference(query)
	if referenced && len(pages) == 0 {
		// a page was cited but none is valid ("page 0"): rank, never full corpus
		slog.Warn("page_reference_invalid", slog.String("query", query))
		return e.hybrid(ctx, query, size, nil)
	}
	if len(pages) > 0 {
		chunks, err := e.store.ChunksByPages(ctx, pages)
		if err != nil {
			return nil, stageError("page lookup", err)
		}
		if len(chunks) > 0 {
			return &Retrieval{Mode: ModePage, Pages: pages, Results: exactMatches(chunks)}, nil
		}
		// pages beyond the document: rank instead of returning nothing
		slog.Warn("page_chunks_missing", slog.Any("pages", pages))
		return e.hybrid(ctx, query, size, pages)
	}

	if size <= e.config.FullCorpusThreshold {
		chunks, err := e.store.AllChunks(ctx)
		if err != nil {
			return nil, stageError("full corpus read", err)
		}
		return &Retrieval{Mode: ModeFullCorpus, Results: exactMatches(chunks)}, nil
	}

	return e.hybrid(ctx, query, size, nil)
}

// hybrid runs dense and sparse search concurrently, fuses, and re-ranks.
func (e *Engine) hybrid(ctx context.Context, query string, size int, pages []int) (*Retrieval, error) {
	firstPass := min(e.config.FirstPassK, size)

	var semantic, sparse []Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		var err error
		semantic, err = e.dense.search(gctx, query, firstPass, size)
		e.metrics.ObserveStage("dense", time.Since(start))
		if err != nil {
			return stageError("dense search", err)
		}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		sparse, err = e.sparse.Search(gctx, query, firstPass)
		e.metrics.ObserveStage("sparse", time.Since(start))
		if err != nil {
			return stageError("sparse search", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := e.fusion.Fuse(semantic, sparse)
	pool := min(e.config.FirstPassK*e.config.RerankPoolFactor, len(fused))

	start := time.Now()
	results, err := e.reranker.Rerank(ctx, query, fused[:pool], e.config.RerankK)
	e.metrics.ObserveStage("rerank", time.Since(start))
	if err != nil {
		return nil, stageError("rerank", err)
	}

	slog.Debug("hybrid_stages",
		slog.Int("first_pass", firstPass),
		slog.Int("semantic", len(semantic)),
		slog.Int("sparse", len(sparse)),
		slog.Int("fused", len(fused)),
		slog.Int("rerank_pool", pool))

	return &Retrieval{
		Mode:          ModeHybrid,
		Pages:         pages,
		Results:       results,
		SemanticCount: len(semantic),
		SparseCount:   len(sparse),
		FusedCount:    len(fused),
	}, nil
}

// Close releases the sparse index. The store and cross-encoder belong to
// the caller.
func (e *Engine) Close() error {
	return e.sparse.Close()
}

func exactMatches(chunks []store.Chunk) []Result {
	results := make([]Result, len(chunks))
	for i, c := range chunks {
		results[i] = Result{Kind: ResultExactMatch, Chunk: c, Score: ExactMatchScore}
	}
	return results
}

// stageError keeps coded errors and context errors as they are and wraps
// anything else as ERR_503_SEARCH_FAILED.
func stageError(stage string, err error) error {
	if _, ok := lwerrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return lwerrors.New(lwerrors.ErrCodeSearchFailed, stage+" failed", err)
}

func errorCode(err error) string {
	if code := lwerrors.GetCode(err); code != "" {
		return code
	}
	return "context"
}

// logHits writes one debug event per result.
func logHits(results []Result) {
	for i, r := range results {
		slog.Debug("retrieval_hit",
			slog.Int("rank", i+1),
			slog.String("kind", r.Kind.String()),
			slog.Float64("score", r.Score),
			slog.String("document", r.Chunk.Metadata.Document),
			slog.Int("page", r.Chunk.Metadata.Page))
	}
}
