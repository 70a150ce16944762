package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	"github.com/Aman-CERP/legalwise/internal/embed"
	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

// exactSearchLimit is the graph size at or below which Search scans every
// vector instead of walking the HNSW graph.
const exactSearchLimit = 64

// HNSWStore is an in-process ChunkStore backed by a coder/hnsw graph.
// With a SQLiteChunkDB attached, every write goes to SQLite first and the
// graph is rebuilt from it on open.
type HNSWStore struct {
	embedder embed.Embedder
	db       *SQLiteChunkDB

	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	chunks  map[uint64]Chunk
	vectors map[uint64][]float32
	order   []uint64 // insertion order
	nextKey uint64
	closed  bool

	// allCache is the AllChunks snapshot, valid while len(order) == allCacheSize.
	allCache     []Chunk
	allCacheSize int
}

var _ ChunkStore = (*HNSWStore)(nil)

// HNSWOption configures an HNSWStore.
type HNSWOption func(*HNSWStore)

// WithPersistence attaches a SQLite database. The store takes ownership and
// closes it on Close.
func WithPersistence(db *SQLiteChunkDB) HNSWOption {
	return func(s *HNSWStore) {
		s.db = db
	}
}

// NewHNSWStore creates a store that embeds with embedder. With persistence
// attached, stored chunks are loaded and the graph rebuilt.
func NewHNSWStore(ctx context.Context, embedder embed.Embedder, opts ...HNSWOption) (*HNSWStore, error) {
	s := &HNSWStore{
		embedder:     embedder,
		graph:        newGraph(),
		chunks:       make(map[uint64]Chunk),
		vectors:      make(map[uint64][]float32),
		allCacheSize: -1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.db == nil {
		return s, nil
	}

	if err := s.db.CheckEmbedding(ctx, embedder.ModelName(), embedder.Dimensions()); err != nil {
		return nil, err
	}

	stored, err := s.db.LoadAll(ctx)
	if err != nil {
		return nil, lwerrors.StoreError("failed to load chunks", err)
	}
	nodes := make([]hnsw.Node[uint64], 0, len(stored))
	for _, sc := range stored {
		s.chunks[sc.Key] = sc.Chunk
		s.vectors[sc.Key] = sc.Vector
		s.order = append(s.order, sc.Key)
		nodes = append(nodes, hnsw.MakeNode(sc.Key, sc.Vector))
		if sc.Key >= s.nextKey {
			s.nextKey = sc.Key + 1
		}
	}
	if len(nodes) > 0 {
		s.graph.Add(nodes...)
	}

	slog.Debug("hnsw_store_loaded",
		slog.String("path", s.db.Path()),
		slog.Int("chunks", len(stored)))
	return s, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 40
	g.Ml = 0.25
	return g
}

// Size returns the number of stored chunks.
func (s *HNSWStore) Size(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.order), nil
}

// Search embeds query and returns up to k hits by ascending cosine distance.
func (s *HNSWStore) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}

	if n, err := s.Size(ctx); err != nil || n == 0 {
		return []Hit{}, err
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(vec) != s.embedder.Dimensions() {
		return nil, ErrDimensionMismatch{Expected: s.embedder.Dimensions(), Got: len(vec)}
	}

	k = min(k, len(s.order))
	var keys []uint64
	if len(s.order) <= exactSearchLimit {
		keys = s.order
	} else {
		for _, node := range s.graph.Search(vec, k) {
			keys = append(keys, node.Key)
		}
	}

	hits := make([]Hit, 0, len(keys))
	for _, key := range keys {
		chunk, ok := s.chunks[key]
		if !ok {
			continue
		}
		hits = append(hits, Hit{
			Chunk:    chunk,
			Distance: float64(hnsw.CosineDistance(vec, s.vectors[key])),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// AllChunks returns every chunk in insertion order. The snapshot is cached
// until the chunk count changes.
func (s *HNSWStore) AllChunks(_ context.Context) ([]Chunk, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	if s.allCacheSize == len(s.order) {
		out := slices.Clone(s.allCache)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	all := make([]Chunk, 0, len(s.order))
	for _, key := range s.order {
		all = append(all, s.chunks[key])
	}
	s.allCache = all
	s.allCacheSize = len(s.order)
	return slices.Clone(all), nil
}

// ChunksByPages returns chunks on any of pages, in insertion order.
func (s *HNSWStore) ChunksByPages(_ context.Context, pages []int) ([]Chunk, error) {
	if len(pages) == 0 {
		return []Chunk{}, nil
	}
	want := pageSet(pages)
	return s.filter(func(c Chunk) bool {
		_, ok := want[c.Metadata.Page]
		return ok
	})
}

// ChunksByDocument returns one document's chunks in insertion order.
func (s *HNSWStore) ChunksByDocument(_ context.Context, document string) ([]Chunk, error) {
	return s.filter(func(c Chunk) bool { return c.Metadata.Document == document })
}

func (s *HNSWStore) filter(keep func(Chunk) bool) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := []Chunk{}
	for _, key := range s.order {
		if c := s.chunks[key]; keep(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Add validates, embeds, and stores chunks. IDs are assigned here.
func (s *HNSWStore) Add(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return s.Size(ctx)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if err := c.Validate(); err != nil {
			return 0, lwerrors.ValidationError(fmt.Sprintf("chunk %d: %v", i, err), err)
		}
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, lwerrors.ModelError(fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)), nil)
	}
	for _, v := range vectors {
		if len(v) != s.embedder.Dimensions() {
			return 0, ErrDimensionMismatch{Expected: s.embedder.Dimensions(), Got: len(v)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	stored := make([]StoredChunk, len(chunks))
	for i, c := range chunks {
		c.ID = uuid.NewString()
		stored[i] = StoredChunk{Key: s.nextKey + uint64(i), Chunk: c, Vector: vectors[i]}
	}

	if s.db != nil {
		if err := s.db.Insert(ctx, stored); err != nil {
			return 0, lwerrors.StoreError("failed to persist chunks", err)
		}
	}

	nodes := make([]hnsw.Node[uint64], len(stored))
	for i, sc := range stored {
		s.chunks[sc.Key] = sc.Chunk
		s.vectors[sc.Key] = sc.Vector
		s.order = append(s.order, sc.Key)
		nodes[i] = hnsw.MakeNode(sc.Key, sc.Vector)
	}
	s.graph.Add(nodes...)
	s.nextKey += uint64(len(stored))
	s.allCacheSize = -1

	return len(s.order), nil
}

// DeleteDocument removes a document's chunks and rebuilds the graph.
func (s *HNSWStore) DeleteDocument(ctx context.Context, document string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	if s.db != nil {
		if _, err := s.db.DeleteDocument(ctx, document); err != nil {
			return 0, lwerrors.StoreError("failed to delete document", err)
		}
	}

	kept := s.order[:0]
	removed := 0
	for _, key := range s.order {
		if s.chunks[key].Metadata.Document == document {
			delete(s.chunks, key)
			delete(s.vectors, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	s.order = kept

	if removed > 0 {
		s.rebuildGraphLocked()
	}
	return removed, nil
}

// rebuildGraphLocked recreates the graph from the live vectors. coder/hnsw
// misbehaves when deleting its last node, so deletes never touch the graph.
func (s *HNSWStore) rebuildGraphLocked() {
	s.graph = newGraph()
	nodes := make([]hnsw.Node[uint64], 0, len(s.order))
	for _, key := range s.order {
		nodes = append(nodes, hnsw.MakeNode(key, s.vectors[key]))
	}
	if len(nodes) > 0 {
		s.graph.Add(nodes...)
	}
	s.allCacheSize = -1
}

// Documents returns the sorted unique document names.
func (s *HNSWStore) Documents(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	seen := make(map[string]struct{})
	for _, c := range s.chunks {
		seen[c.Metadata.Document] = struct{}{}
	}
	docs := make([]string, 0, len(seen))
	for d := range seen {
		docs = append(docs, d)
	}
	slices.Sort(docs)
	return docs, nil
}

// Clear removes every chunk.
func (s *HNSWStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if s.db != nil {
		if err := s.db.Clear(ctx); err != nil {
			return lwerrors.StoreError("failed to clear chunks", err)
		}
	}

	s.chunks = make(map[uint64]Chunk)
	s.vectors = make(map[uint64][]float32)
	s.order = nil
	s.graph = newGraph()
	s.allCacheSize = -1
	return nil
}

// Close releases the graph and closes the database, if any.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	s.allCache = nil
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
