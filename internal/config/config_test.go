package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

// isolate points the user config at an empty temp dir so the developer's
// real ~/.config never leaks into tests.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return t.TempDir()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// =============================================================================
// Defaults
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration at all
	cfg := NewConfig()

	// Then: retrieval defaults match the pipeline constants
	assert.Equal(t, 15, cfg.Retrieval.FirstPassK)
	assert.Equal(t, 5, cfg.Retrieval.RerankK)
	assert.Equal(t, 2, cfg.Retrieval.RerankPoolFactor)
	assert.Equal(t, 0.7, cfg.Retrieval.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Retrieval.BM25Weight)
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 40, cfg.Retrieval.FullCorpusThreshold)
	assert.Equal(t, "okapi", cfg.Retrieval.SparseBackend)
	assert.Equal(t, "count", cfg.Retrieval.Invalidation)
	assert.Equal(t, 0.6, cfg.Retrieval.FallbackThreshold)

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "legalwise_docs", cfg.Store.Collection)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, 1000, cfg.Embeddings.CacheSize)
	assert.Equal(t, "http", cfg.Reranker.Provider)
	assert.Equal(t, 30*time.Second, cfg.Reranker.Timeout)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 150, cfg.Chunking.Overlap)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, ":8765", cfg.Server.HTTPAddr)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_ReturnsDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

// =============================================================================
// Precedence
// =============================================================================

func TestLoad_ProjectOverridesUser(t *testing.T) {
	// Given: a user config and a project config disagreeing on rerank_k
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeFile(t, filepath.Join(xdg, "legalwise", "config.yaml"), `
retrieval:
  rerank_k: 7
  first_pass_k: 20
`)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), `
retrieval:
  rerank_k: 3
`)

	// When: loading
	cfg, err := Load(dir)

	// Then: project wins where set, user value survives elsewhere
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.RerankK)
	assert.Equal(t, 20, cfg.Retrieval.FirstPassK)
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
}

func TestLoad_YAMLExplicitZeroIsHonored(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ProjectConfigName), `
retrieval:
  semantic_weight: 1.0
  bm25_weight: 0
  full_corpus_threshold: 0
`)

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Retrieval.BM25Weight)
	assert.Equal(t, 0, cfg.Retrieval.FullCorpusThreshold)
}

func TestLoad_YAMLDurations(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ProjectConfigName), `
reranker:
  timeout: 5s
`)

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Reranker.Timeout)
}

func TestLoad_EnvOverridesProject(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ProjectConfigName), `
store:
  backend: memory
`)
	t.Setenv("LEGALWISE_STORE_BACKEND", "QDRANT")
	t.Setenv("LEGALWISE_RERANK_K", "8")
	t.Setenv("LEGALWISE_RERANKER_TIMEOUT", "2s")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "qdrant", cfg.Store.Backend)
	assert.Equal(t, 8, cfg.Retrieval.RerankK)
	assert.Equal(t, 2*time.Second, cfg.Reranker.Timeout)
}

func TestLoad_DotEnvDoesNotOverrideRealEnvironment(t *testing.T) {
	// Given: a .env file setting two variables, one already exported
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), "LEGALWISE_RERANK_K=9\nLEGALWISE_LOG_LEVEL=debug\n")
	t.Setenv("LEGALWISE_RERANK_K", "4")
	t.Setenv("LEGALWISE_LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("LEGALWISE_LOG_LEVEL"))
	t.Cleanup(func() { _ = os.Unsetenv("LEGALWISE_LOG_LEVEL") })

	// When: loading
	cfg, err := Load(dir)

	// Then: the exported value wins, the unset one comes from .env
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Retrieval.RerankK)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_MalformedEnvNumber_IsConfigError(t *testing.T) {
	dir := isolate(t)
	t.Setenv("LEGALWISE_FIRST_PASS_K", "fifteen")

	_, err := Load(dir)

	require.Error(t, err)
	assert.Equal(t, lwerrors.ErrCodeConfigInvalid, lwerrors.GetCode(err))
}

func TestLoad_MalformedYAML_IsConfigError(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ProjectConfigName), "retrieval: [unclosed")

	_, err := Load(dir)

	require.Error(t, err)
	assert.Equal(t, lwerrors.ErrCodeConfigInvalid, lwerrors.GetCode(err))
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights do not sum to one", func(c *Config) { c.Retrieval.BM25Weight = 0.5 }},
		{"negative weight", func(c *Config) { c.Retrieval.SemanticWeight = -0.1; c.Retrieval.BM25Weight = 1.1 }},
		{"zero first pass", func(c *Config) { c.Retrieval.FirstPassK = 0 }},
		{"zero rerank k", func(c *Config) { c.Retrieval.RerankK = 0 }},
		{"zero pool factor", func(c *Config) { c.Retrieval.RerankPoolFactor = 0 }},
		{"unknown sparse backend", func(c *Config) { c.Retrieval.SparseBackend = "tfidf" }},
		{"unknown invalidation", func(c *Config) { c.Retrieval.Invalidation = "mtime" }},
		{"unknown store", func(c *Config) { c.Store.Backend = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }},
		{"unknown embedder", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"unknown reranker", func(c *Config) { c.Reranker.Provider = "cohere" }},
		{"overlap not below size", func(c *Config) { c.Chunking.Overlap = 800 }},
		{"unknown transport", func(c *Config) { c.Server.Transport = "sse" }},
		{"unknown log level", func(c *Config) { c.Server.LogLevel = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Equal(t, lwerrors.ErrCodeConfigInvalid, lwerrors.GetCode(err))
		})
	}
}

func TestValidate_WeightSumTolerance(t *testing.T) {
	cfg := NewConfig()
	cfg.Retrieval.SemanticWeight = 0.705
	cfg.Retrieval.BM25Weight = 0.3

	assert.NoError(t, cfg.Validate())
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	dir := isolate(t)
	cfg := NewConfig()
	cfg.Retrieval.RerankK = 11
	cfg.Reranker.Timeout = 90 * time.Second

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigName)))
	loaded, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 11, loaded.Retrieval.RerankK)
	assert.Equal(t, 90*time.Second, loaded.Reranker.Timeout)
}
