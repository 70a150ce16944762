package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/legalwise/internal/store"
	"github.com/Aman-CERP/legalwise/internal/telemetry"
)

// SparseState describes the cache relative to the live store.
type SparseState string

const (
	// SparseEmpty: the store has no chunks.
	SparseEmpty SparseState = "EMPTY"
	// SparseStale: the cached key differs from the live store key.
	SparseStale SparseState = "STALE"
	// SparseFresh: the cached index matches the live store.
	SparseFresh SparseState = "FRESH"
)

// SparseBackend names a scoring implementation.
type SparseBackend string

const (
	SparseOkapi SparseBackend = "okapi"
	SparseBleve SparseBackend = "bleve"
)

// ParseSparseBackend converts a configuration string to a SparseBackend.
func ParseSparseBackend(s string) (SparseBackend, error) {
	switch b := SparseBackend(strings.ToLower(strings.TrimSpace(s))); b {
	case SparseOkapi, SparseBleve:
		return b, nil
	case "":
		return SparseOkapi, nil
	default:
		return "", fmt.Errorf("unknown sparse backend %q (use okapi or bleve)", s)
	}
}

// Invalidation selects how the cache detects a changed store.
type Invalidation string

const (
	// InvalidateByCount rebuilds when the chunk count changes. Replacing
	// chunks at equal count goes unnoticed, which is safe when ingestion
	// always clears before populating.
	InvalidateByCount Invalidation = "count"
	// InvalidateByFingerprint rebuilds when the sha256 of all chunk
	// identities changes. Costs a full AllChunks read per search.
	InvalidateByFingerprint Invalidation = "fingerprint"
)

// ParseInvalidation converts a configuration string to an Invalidation.
func ParseInvalidation(s string) (Invalidation, error) {
	switch v := Invalidation(strings.ToLower(strings.TrimSpace(s))); v {
	case InvalidateByCount, InvalidateByFingerprint:
		return v, nil
	case "":
		return InvalidateByCount, nil
	default:
		return "", fmt.Errorf("unknown invalidation %q (use count or fingerprint)", s)
	}
}

// scoredDoc is a position in a snapshot's chunk slice with its score.
type scoredDoc struct {
	pos   int
	score float64
}

// sparseScorer ranks the chunks of one snapshot.
type sparseScorer interface {
	search(ctx context.Context, query string, k int) ([]scoredDoc, error)
	close() error
}

// sparseSnapshot is an immutable index plus the chunks it was built from.
type sparseSnapshot struct {
	key    string
	chunks []store.Chunk
	scorer sparseScorer
}

// SparseIndex is a lazily rebuilt keyword index over the whole chunk store.
// Safe for concurrent use: one rebuild runs at a time and readers always see
// a complete snapshot.
type SparseIndex struct {
	store        store.ChunkStore
	backend      SparseBackend
	invalidation Invalidation
	metrics      *telemetry.Metrics

	mu       sync.RWMutex
	snapshot *sparseSnapshot

	group    singleflight.Group
	rebuilds atomic.Int64
}

// SparseOption configures a SparseIndex.
type SparseOption func(*SparseIndex)

// WithSparseBackend selects the scoring backend.
func WithSparseBackend(b SparseBackend) SparseOption {
	return func(s *SparseIndex) {
		s.backend = b
	}
}

// WithInvalidation selects the cache invalidation key.
func WithInvalidation(v Invalidation) SparseOption {
	return func(s *SparseIndex) {
		s.invalidation = v
	}
}

// WithSparseMetrics records rebuilds.
func WithSparseMetrics(m *telemetry.Metrics) SparseOption {
	return func(s *SparseIndex) {
		s.metrics = m
	}
}

// NewSparseIndex creates an empty cache over st. Nothing is built until the
// first search.
func NewSparseIndex(st store.ChunkStore, opts ...SparseOption) *SparseIndex {
	s := &SparseIndex{
		store:        st,
		backend:      SparseOkapi,
		invalidation: InvalidateByCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rebuilds returns how many times the index has been built.
func (s *SparseIndex) Rebuilds() int64 {
	return s.rebuilds.Load()
}

// Backend returns the scoring backend.
func (s *SparseIndex) Backend() SparseBackend {
	return s.backend
}

// State compares the cache with the live store.
func (s *SparseIndex) State(ctx context.Context) (SparseState, error) {
	size, err := s.store.Size(ctx)
	if err != nil {
		return "", err
	}
	if size == 0 {
		return SparseEmpty, nil
	}

	key, _, err := s.liveKey(ctx, size)
	if err != nil {
		return "", err
	}
	if snap := s.current(); snap != nil && snap.key == key {
		return SparseFresh, nil
	}
	return SparseStale, nil
}

// Search returns up to k chunks ranked by keyword relevance, tagged bm25.
// A stale cache is rebuilt first. Zero-score chunks are never returned.
func (s *SparseIndex) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	if k <= 0 {
		return []Candidate{}, nil
	}
	size, err := s.store.Size(ctx)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []Candidate{}, nil
	}

	snap, err := s.ensureFresh(ctx, size)
	if err != nil {
		return nil, err
	}

	docs, err := snap.scorer.search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(docs))
	for _, d := range docs {
		out = append(out, Candidate{Chunk: snap.chunks[d.pos], Score: d.score, Source: SourceBM25})
	}
	return out, nil
}

// ensureFresh returns a snapshot whose key matches the live store,
// rebuilding if needed.
func (s *SparseIndex) ensureFresh(ctx context.Context, size int) (*sparseSnapshot, error) {
	key, chunks, err := s.liveKey(ctx, size)
	if err != nil {
		return nil, err
	}
	if snap := s.current(); snap != nil && snap.key == key {
		return snap, nil
	}

	// The rebuild is shared, so it must outlive the caller that started it.
	// Each caller still stops waiting when its own ctx is done.
	rebuildCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		// another caller may have finished this rebuild while we waited
		if snap := s.current(); snap != nil && snap.key == key {
			return snap, nil
		}
		return s.rebuild(rebuildCtx, chunks)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*sparseSnapshot), nil
	}
}

// liveKey computes the invalidation key. For fingerprints the chunks read
// to compute it are returned so a rebuild need not read them again.
func (s *SparseIndex) liveKey(ctx context.Context, size int) (string, []store.Chunk, error) {
	if s.invalidation != InvalidateByFingerprint {
		return strconv.Itoa(size), nil, nil
	}
	chunks, err := s.store.AllChunks(ctx)
	if err != nil {
		return "", nil, err
	}
	return fingerprint(chunks), chunks, nil
}

func (s *SparseIndex) current() *sparseSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *SparseIndex) rebuild(ctx context.Context, chunks []store.Chunk) (*sparseSnapshot, error) {
	start := time.Now()

	if chunks == nil {
		var err error
		if chunks, err = s.store.AllChunks(ctx); err != nil {
			return nil, err
		}
	}

	// key from what was actually read, so a concurrent ingest shows up as
	// stale on the next search
	key := strconv.Itoa(len(chunks))
	if s.invalidation == InvalidateByFingerprint {
		key = fingerprint(chunks)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var scorer sparseScorer
	switch s.backend {
	case SparseBleve:
		b, err := newBleveIndex(ctx, texts)
		if err != nil {
			return nil, err
		}
		scorer = b
	default:
		scorer = newOkapiIndex(texts)
	}

	snap := &sparseSnapshot{key: key, chunks: chunks, scorer: scorer}

	// The previous snapshot is left open: searches may still hold it, and
	// both backends are memory-only.
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	n := s.rebuilds.Add(1)
	elapsed := time.Since(start)
	s.metrics.ObserveSparseRebuild(string(s.backend), elapsed)
	slog.Debug("sparse_index_rebuilt",
		slog.String("backend", string(s.backend)),
		slog.Int("chunks", len(chunks)),
		slog.Int64("rebuilds", n),
		slog.Duration("duration", elapsed))

	return snap, nil
}

// Close releases the current snapshot.
func (s *SparseIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil
	}
	err := s.snapshot.scorer.close()
	s.snapshot = nil
	return err
}

// fingerprint hashes chunk identities and positions in store order, so a
// replaced document is detected even at equal chunk count.
func fingerprint(chunks []store.Chunk) string {
	h := sha256.New()
	for _, c := range chunks {
		fmt.Fprintf(h, "%s\x00%d\x00%d\x00%s\x00", c.Metadata.Document, c.Metadata.Page, c.Metadata.ChunkIndex, c.Identity())
	}
	return hex.EncodeToString(h.Sum(nil))
}
