package cmd

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/legalwise/internal/chunk"
	"github.com/Aman-CERP/legalwise/internal/config"
	"github.com/Aman-CERP/legalwise/internal/embed"
	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
	"github.com/Aman-CERP/legalwise/internal/ingest"
	"github.com/Aman-CERP/legalwise/internal/search"
	"github.com/Aman-CERP/legalwise/internal/store"
	"github.com/Aman-CERP/legalwise/internal/telemetry"
)

// dataDirName is the per-project state directory.
const dataDirName = ".legalwise"

// app is the wired component graph for one command invocation.
type app struct {
	dir      string
	cfg      *config.Config
	embedder embed.Embedder
	store    store.ChunkStore
	encoder  search.CrossEncoder
	eng      *search.Engine
}

// openApp loads configuration and opens the embedder and chunk store.
func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	dir, err := filepath.Abs(opts.dir)
	if err != nil {
		return nil, lwerrors.ConfigError("invalid project directory", err)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return nil, lwerrors.ConfigError(err.Error(), nil)
	}
	embedder, err := embed.NewEmbedder(ctx, provider, embed.Options{
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.OllamaHost,
		Dimensions: cfg.Embeddings.Dimensions,
		Timeout:    cfg.Embeddings.Timeout,
		CacheSize:  cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	backend, err := store.ParseBackend(cfg.Store.Backend)
	if err != nil {
		_ = embedder.Close()
		return nil, lwerrors.ConfigError(err.Error(), nil)
	}
	storePath := cfg.Store.Path
	if storePath != "" && !filepath.IsAbs(storePath) {
		storePath = filepath.Join(dir, storePath)
	}
	st, err := store.NewChunkStore(ctx, store.Options{
		Backend:    backend,
		Path:       storePath,
		QdrantURL:  cfg.Store.QdrantURL,
		Collection: cfg.Store.Collection,
	}, embedder)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	slog.Debug("app_opened",
		slog.String("dir", dir),
		slog.String("store_backend", string(backend)),
		slog.String("embedder", embedder.ModelName()))

	return &app{dir: dir, cfg: cfg, embedder: embedder, store: st}, nil
}

// dataDir is where the ingestion lock lives.
func (a *app) dataDir() string {
	return filepath.Join(a.dir, dataDirName)
}

// splitter builds the ingestion splitter from configuration.
func (a *app) splitter() (*chunk.Splitter, error) {
	opts := chunk.DefaultOptions()
	opts.Size = a.cfg.Chunking.Size
	opts.Overlap = a.cfg.Chunking.Overlap
	return chunk.NewSplitter(opts)
}

// ingester builds an Ingester over the app's store.
func (a *app) ingester() (*ingest.Ingester, error) {
	splitter, err := a.splitter()
	if err != nil {
		return nil, err
	}
	return ingest.New(a.store, splitter, a.dataDir()), nil
}

// engine builds the retrieval engine. metrics may be nil.
func (a *app) engine(ctx context.Context, metrics *telemetry.Metrics) (*search.Engine, error) {
	rc := a.cfg.Retrieval

	provider, err := search.ParseRerankerProvider(a.cfg.Reranker.Provider)
	if err != nil {
		return nil, lwerrors.ConfigError(err.Error(), nil)
	}
	encoder, err := search.NewCrossEncoder(ctx, provider, search.HTTPRerankerConfig{
		Endpoint: a.cfg.Reranker.Endpoint,
		Model:    a.cfg.Reranker.Model,
		Timeout:  a.cfg.Reranker.Timeout,
	})
	if err != nil {
		return nil, err
	}
	a.encoder = encoder

	backend, err := search.ParseSparseBackend(rc.SparseBackend)
	if err != nil {
		return nil, lwerrors.ConfigError(err.Error(), nil)
	}
	invalidation, err := search.ParseInvalidation(rc.Invalidation)
	if err != nil {
		return nil, lwerrors.ConfigError(err.Error(), nil)
	}
	sparse := search.NewSparseIndex(a.store,
		search.WithSparseBackend(backend),
		search.WithInvalidation(invalidation),
		search.WithSparseMetrics(metrics))

	eng, err := search.NewEngine(a.store, encoder, search.Config{
		FirstPassK:          rc.FirstPassK,
		RerankK:             rc.RerankK,
		RerankPoolFactor:    rc.RerankPoolFactor,
		FullCorpusThreshold: rc.FullCorpusThreshold,
		RRFConstant:         rc.RRFConstant,
		Weights:             search.Weights{Semantic: rc.SemanticWeight, BM25: rc.BM25Weight},
	}, search.WithSparseIndex(sparse), search.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}
	a.eng = eng
	return eng, nil
}

// Close releases everything the app opened.
func (a *app) Close() error {
	var errs []error
	if a.eng != nil {
		errs = append(errs, a.eng.Close())
	}
	if a.encoder != nil {
		errs = append(errs, a.encoder.Close())
	}
	errs = append(errs, a.store.Close(), a.embedder.Close())
	return errors.Join(errs...)
}
