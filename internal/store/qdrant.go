package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/Aman-CERP/legalwise/internal/embed"
	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

// Payload field names stored with each Qdrant point.
const (
	payloadText             = "text"
	payloadDocument         = "document"
	payloadPage             = "page"
	payloadChunkIndex       = "chunk_index"
	payloadExtractionMethod = "extraction_method"
)

// point is a chunk with its vector, as held by the collection.
type point struct {
	Chunk  Chunk
	Vector []float32
}

// scoredPoint is a query match with Qdrant's cosine similarity.
type scoredPoint struct {
	Chunk Chunk
	Score float32
}

// pointFilter restricts scroll/delete to a document and/or a page set.
type pointFilter struct {
	Document string
	Pages    []int
}

// pointIndex is the collection surface QdrantStore needs. qdrantCollection
// implements it over the gRPC client.
type pointIndex interface {
	exists(ctx context.Context) (bool, error)
	create(ctx context.Context, dims int) error
	drop(ctx context.Context) error
	upsert(ctx context.Context, points []point) error
	query(ctx context.Context, vector []float32, limit int) ([]scoredPoint, error)
	count(ctx context.Context) (int, error)
	scroll(ctx context.Context, filter pointFilter, limit int) ([]Chunk, error)
	remove(ctx context.Context, filter pointFilter) error
	close() error
}

// QdrantConfig locates the collection.
type QdrantConfig struct {
	// URL is Qdrant's HTTP URL; the gRPC port is derived as HTTP port + 1.
	URL        string
	Collection string
}

// QdrantStore is a ChunkStore over a Qdrant collection. A collection that
// disappears underneath it (deleted, or Qdrant restarted without storage)
// is re-created and the failed operation retried once.
type QdrantStore struct {
	index    pointIndex
	embedder embed.Embedder
	dims     int
}

var _ ChunkStore = (*QdrantStore)(nil)

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, embedder embed.Embedder) (*QdrantStore, error) {
	host, port, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, lwerrors.ConfigError("invalid Qdrant URL", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, lwerrors.New(lwerrors.ErrCodeStoreUnavailable, "failed to create Qdrant client", err)
	}

	s := newQdrantStoreWithIndex(&qdrantCollection{client: client, name: cfg.Collection}, embedder)
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func newQdrantStoreWithIndex(index pointIndex, embedder embed.Embedder) *QdrantStore {
	return &QdrantStore{index: index, embedder: embedder, dims: embedder.Dimensions()}
}

// parseQdrantURL returns host and gRPC port for an HTTP URL.
func parseQdrantURL(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, err
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := u.Port(); p != "" {
		httpPort, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid port %q", p)
		}
		port = httpPort + 1
	}
	return host, port, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	ok, err := s.index.exists(ctx)
	if err != nil {
		return lwerrors.New(lwerrors.ErrCodeStoreUnavailable, "failed to reach Qdrant", err)
	}
	if ok {
		return nil
	}
	if err := s.index.create(ctx, s.dims); err != nil {
		return lwerrors.New(lwerrors.ErrCodeStoreUnavailable, "failed to create Qdrant collection", err)
	}
	slog.Info("qdrant_collection_created", slog.Int("dimensions", s.dims))
	return nil
}

// withHeal runs op; if it fails and the collection is gone, re-creates the
// collection and runs op once more.
func (s *QdrantStore) withHeal(ctx context.Context, name string, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}

	ok, exErr := s.index.exists(ctx)
	if exErr != nil || ok {
		return lwerrors.StoreError(fmt.Sprintf("qdrant %s failed", name), err)
	}

	slog.Warn("qdrant_collection_missing",
		slog.String("operation", name),
		slog.String("error", err.Error()))
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	if err := op(); err != nil {
		return lwerrors.StoreError(fmt.Sprintf("qdrant %s failed after re-creating collection", name), err)
	}
	return nil
}

// Size returns the exact point count.
func (s *QdrantStore) Size(ctx context.Context) (int, error) {
	var n int
	err := s.withHeal(ctx, "count", func() error {
		var err error
		n, err = s.index.count(ctx)
		return err
	})
	return n, err
}

// Search embeds query and returns up to k hits ordered by ascending cosine
// distance (1 - similarity).
func (s *QdrantStore) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	size, err := s.Size(ctx)
	if err != nil || size == 0 {
		return []Hit{}, err
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var matches []scoredPoint
	err = s.withHeal(ctx, "query", func() error {
		var err error
		matches, err = s.index.query(ctx, vec, min(k, size))
		return err
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(matches))
	for i, m := range matches {
		hits[i] = Hit{Chunk: m.Chunk, Distance: 1 - float64(m.Score)}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	return hits, nil
}

func (s *QdrantStore) scrollAll(ctx context.Context, filter pointFilter) ([]Chunk, error) {
	size, err := s.Size(ctx)
	if err != nil || size == 0 {
		return []Chunk{}, err
	}

	var chunks []Chunk
	err = s.withHeal(ctx, "scroll", func() error {
		var err error
		chunks, err = s.index.scroll(ctx, filter, size)
		return err
	})
	if err != nil {
		return nil, err
	}

	sortByPosition(chunks)
	return chunks, nil
}

// sortByPosition orders chunks by document, then chunk index, matching the
// insertion order of single-document ingestion.
func sortByPosition(chunks []Chunk) {
	slices.SortStableFunc(chunks, func(a, b Chunk) int {
		if a.Metadata.Document != b.Metadata.Document {
			if a.Metadata.Document < b.Metadata.Document {
				return -1
			}
			return 1
		}
		return a.Metadata.ChunkIndex - b.Metadata.ChunkIndex
	})
}

// AllChunks returns every chunk.
func (s *QdrantStore) AllChunks(ctx context.Context) ([]Chunk, error) {
	return s.scrollAll(ctx, pointFilter{})
}

// ChunksByPages returns chunks on any of pages.
func (s *QdrantStore) ChunksByPages(ctx context.Context, pages []int) ([]Chunk, error) {
	if len(pages) == 0 {
		return []Chunk{}, nil
	}
	return s.scrollAll(ctx, pointFilter{Pages: pages})
}

// ChunksByDocument returns one document's chunks.
func (s *QdrantStore) ChunksByDocument(ctx context.Context, document string) ([]Chunk, error) {
	return s.scrollAll(ctx, pointFilter{Document: document})
}

// Add embeds and upserts chunks, returning the new total.
func (s *QdrantStore) Add(ctx context.Context, chunks []Chunk) (int, error) {
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

	points := make([]point, len(chunks))
	for i, c := range chunks {
		c.ID = uuid.NewString()
		points[i] = point{Chunk: c, Vector: vectors[i]}
	}

	if err := s.withHeal(ctx, "upsert", func() error { return s.index.upsert(ctx, points) }); err != nil {
		return 0, err
	}
	return s.Size(ctx)
}

// DeleteDocument removes a document's points and returns how many.
func (s *QdrantStore) DeleteDocument(ctx context.Context, document string) (int, error) {
	existing, err := s.ChunksByDocument(ctx, document)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}

	err = s.withHeal(ctx, "delete", func() error {
		return s.index.remove(ctx, pointFilter{Document: document})
	})
	if err != nil {
		return 0, err
	}
	return len(existing), nil
}

// Documents returns the sorted unique document names.
func (s *QdrantStore) Documents(ctx context.Context) ([]string, error) {
	all, err := s.AllChunks(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]string, 0)
	for _, c := range all {
		docs = append(docs, c.Metadata.Document)
	}
	slices.Sort(docs)
	return slices.Compact(docs), nil
}

// Clear drops and re-creates the collection.
func (s *QdrantStore) Clear(ctx context.Context) error {
	if err := s.index.drop(ctx); err != nil {
		return lwerrors.StoreError("failed to drop Qdrant collection", err)
	}
	return s.ensureCollection(ctx)
}

// Close closes the client connection.
func (s *QdrantStore) Close() error {
	return s.index.close()
}

// =============================================================================
// gRPC collection
// =============================================================================

type qdrantCollection struct {
	client *qdrant.Client
	name   string
}

func (c *qdrantCollection) exists(ctx context.Context) (bool, error) {
	return c.client.CollectionExists(ctx, c.name)
}

func (c *qdrantCollection) create(ctx context.Context, dims int) error {
	return c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (c *qdrantCollection) drop(ctx context.Context) error {
	return c.client.DeleteCollection(ctx, c.name)
}

func (c *qdrantCollection) upsert(ctx context.Context, points []point) error {
	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.Chunk.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(chunkPayload(p.Chunk)),
		}
	}
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Points:         qpoints,
		Wait:           qdrant.PtrOf(true),
	})
	return err
}

func (c *qdrantCollection) query(ctx context.Context, vector []float32, limit int) ([]scoredPoint, error) {
	res, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	out := make([]scoredPoint, 0, len(res))
	for _, sp := range res {
		out = append(out, scoredPoint{Chunk: payloadChunk(sp.GetId().GetUuid(), sp.GetPayload()), Score: sp.GetScore()})
	}
	return out, nil
}

func (c *qdrantCollection) count(ctx context.Context) (int, error) {
	n, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.name,
		Exact:          qdrant.PtrOf(true),
	})
	return int(n), err
}

func (c *qdrantCollection) scroll(ctx context.Context, filter pointFilter, limit int) ([]Chunk, error) {
	res, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.name,
		Filter:         qdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Chunk, 0, len(res))
	for _, rp := range res {
		out = append(out, payloadChunk(rp.GetId().GetUuid(), rp.GetPayload()))
	}
	return out, nil
}

func (c *qdrantCollection) remove(ctx context.Context, filter pointFilter) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.name,
		Points:         qdrant.NewPointsSelectorFilter(qdrantFilter(filter)),
		Wait:           qdrant.PtrOf(true),
	})
	return err
}

func (c *qdrantCollection) close() error {
	return c.client.Close()
}

// qdrantFilter builds Must(document) AND Should(any page). Nil when empty.
func qdrantFilter(f pointFilter) *qdrant.Filter {
	if f.Document == "" && len(f.Pages) == 0 {
		return nil
	}

	filter := &qdrant.Filter{}
	if f.Document != "" {
		filter.Must = append(filter.Must, qdrant.NewMatch(payloadDocument, f.Document))
	}
	for _, p := range f.Pages {
		filter.Should = append(filter.Should, qdrant.NewMatchInt(payloadPage, int64(p)))
	}
	return filter
}

func chunkPayload(c Chunk) map[string]any {
	return map[string]any{
		payloadText:             c.Text,
		payloadDocument:         c.Metadata.Document,
		payloadPage:             int64(c.Metadata.Page),
		payloadChunkIndex:       int64(c.Metadata.ChunkIndex),
		payloadExtractionMethod: string(c.Metadata.ExtractionMethod),
	}
}

func payloadChunk(id string, payload map[string]*qdrant.Value) Chunk {
	return Chunk{
		ID:   id,
		Text: payload[payloadText].GetStringValue(),
		Metadata: Metadata{
			Document:         payload[payloadDocument].GetStringValue(),
			Page:             int(payload[payloadPage].GetIntegerValue()),
			ChunkIndex:       int(payload[payloadChunkIndex].GetIntegerValue()),
			ExtractionMethod: ParseExtractionMethod(payload[payloadExtractionMethod].GetStringValue()),
		},
	}
}
