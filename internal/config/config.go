// Package config loads legalwise configuration.
//
// Precedence, lowest to highest:
//
//  1. Built-in defaults (NewConfig)
//  2. User config (~/.config/legalwise/config.yaml)
//  3. Project config (.legalwise.yaml in the working directory)
//  4. .env file in the working directory (never overrides the real environment)
//  5. LEGALWISE_* environment variables
//
// The result is validated once; configuration is read at startup only.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEGALWISE_"

// ProjectConfigName is the per-directory config file name.
const ProjectConfigName = ".legalwise.yaml"

// Config is the complete legalwise configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// RetrievalConfig tunes the hybrid retrieval pipeline.
type RetrievalConfig struct {
	// FirstPassK is how many candidates each of dense and sparse search return.
	FirstPassK int `yaml:"first_pass_k" json:"first_pass_k"`
	// RerankK is how many results survive re-ranking.
	RerankK int `yaml:"rerank_k" json:"rerank_k"`
	// RerankPoolFactor multiplies FirstPassK to size the re-rank candidate pool.
	RerankPoolFactor int `yaml:"rerank_pool_factor" json:"rerank_pool_factor"`

	// SemanticWeight and BM25Weight must sum to 1.0.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight"`

	// RRFConstant is the k in 1/(k+rank+1).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// FullCorpusThreshold: stores at or below this size skip ranking entirely.
	FullCorpusThreshold int `yaml:"full_corpus_threshold" json:"full_corpus_threshold"`

	// SparseBackend is "okapi" or "bleve".
	SparseBackend string `yaml:"sparse_backend" json:"sparse_backend"`
	// Invalidation is "count" or "fingerprint".
	Invalidation string `yaml:"invalidation" json:"invalidation"`

	// FallbackThreshold is the best-score floor below which callers should
	// consider a web fallback.
	FallbackThreshold float64 `yaml:"fallback_threshold" json:"fallback_threshold"`
}

// StoreConfig selects and locates the chunk store.
type StoreConfig struct {
	// Backend is "memory", "sqlite", or "qdrant".
	Backend    string `yaml:"backend" json:"backend"`
	Path       string `yaml:"path" json:"path"`
	QdrantURL  string `yaml:"qdrant_url" json:"qdrant_url"`
	Collection string `yaml:"collection" json:"collection"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static".
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// RerankerConfig configures the cross-encoder.
type RerankerConfig struct {
	// Provider is "http" or "lexical".
	Provider string        `yaml:"provider" json:"provider"`
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Model    string        `yaml:"model" json:"model"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// ChunkingConfig configures the ingestion splitter.
type ChunkingConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// ServerConfig configures the MCP and HTTP surfaces.
type ServerConfig struct {
	// Transport is "stdio" or "http".
	Transport string `yaml:"transport" json:"transport"`
	HTTPAddr  string `yaml:"http_addr" json:"http_addr"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Retrieval: RetrievalConfig{
			FirstPassK:          15,
			RerankK:             5,
			RerankPoolFactor:    2,
			SemanticWeight:      0.7,
			BM25Weight:          0.3,
			RRFConstant:         60,
			FullCorpusThreshold: 40,
			SparseBackend:       "okapi",
			Invalidation:        "count",
			FallbackThreshold:   0.6,
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			Path:       filepath.Join(".legalwise", "chunks.db"),
			QdrantURL:  "http://localhost:6333",
			Collection: "legalwise_docs",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			Dimensions: 768,
			CacheSize:  1000,
			Timeout:    60 * time.Second,
		},
		Reranker: RerankerConfig{
			Provider: "http",
			Endpoint: "http://localhost:8080",
			Model:    "cross-encoder/ms-marco-MiniLM-L-6-v2",
			Timeout:  30 * time.Second,
		},
		Chunking: ChunkingConfig{
			Size:    800,
			Overlap: 150,
		},
		Server: ServerConfig{
			Transport: "stdio",
			HTTPAddr:  ":8765",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the user config path, honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "legalwise", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "legalwise", "config.yaml")
	}
	return filepath.Join(home, ".config", "legalwise", "config.yaml")
}

// Load builds the configuration for the project rooted at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAMLIfExists(GetUserConfigPath()); err != nil {
		return nil, err
	}
	if err := cfg.loadYAMLIfExists(filepath.Join(dir, ProjectConfigName)); err != nil {
		return nil, err
	}

	envPath := filepath.Join(dir, ".env")
	if fileExists(envPath) {
		// godotenv.Load leaves variables that are already set untouched.
		if err := godotenv.Load(envPath); err != nil {
			return nil, lwerrors.ConfigError(fmt.Sprintf("failed to read %s", envPath), err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) normalize() {
	for _, s := range []*string{
		&c.Retrieval.SparseBackend,
		&c.Retrieval.Invalidation,
		&c.Store.Backend,
		&c.Embeddings.Provider,
		&c.Reranker.Provider,
		&c.Server.Transport,
		&c.Server.LogLevel,
	} {
		*s = strings.ToLower(strings.TrimSpace(*s))
	}
}

// loadYAMLIfExists decodes path on top of the current values, so keys absent
// from the file keep their previous value and explicit zeros are honored.
func (c *Config) loadYAMLIfExists(path string) error {
	if !fileExists(path) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return lwerrors.New(lwerrors.ErrCodeConfigNotFound, fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return lwerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithSuggestion("check the YAML syntax")
	}
	return nil
}

// applyEnvOverrides applies LEGALWISE_* variables. Malformed numbers are
// configuration errors rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	ints := map[string]*int{
		"FIRST_PASS_K":          &c.Retrieval.FirstPassK,
		"RERANK_K":              &c.Retrieval.RerankK,
		"RERANK_POOL_FACTOR":    &c.Retrieval.RerankPoolFactor,
		"RRF_CONSTANT":          &c.Retrieval.RRFConstant,
		"FULL_CORPUS_THRESHOLD": &c.Retrieval.FullCorpusThreshold,
		"EMBEDDINGS_DIMENSIONS": &c.Embeddings.Dimensions,
		"EMBEDDINGS_CACHE_SIZE": &c.Embeddings.CacheSize,
		"CHUNK_SIZE":            &c.Chunking.Size,
		"CHUNK_OVERLAP":         &c.Chunking.Overlap,
	}
	for key, dst := range ints {
		if v, ok := lookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return envError(key, v, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"SEMANTIC_WEIGHT":    &c.Retrieval.SemanticWeight,
		"BM25_WEIGHT":        &c.Retrieval.BM25Weight,
		"FALLBACK_THRESHOLD": &c.Retrieval.FallbackThreshold,
	}
	for key, dst := range floats {
		if v, ok := lookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return envError(key, v, err)
			}
			*dst = f
		}
	}

	durations := map[string]*time.Duration{
		"EMBEDDINGS_TIMEOUT": &c.Embeddings.Timeout,
		"RERANKER_TIMEOUT":   &c.Reranker.Timeout,
	}
	for key, dst := range durations {
		if v, ok := lookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return envError(key, v, err)
			}
			*dst = d
		}
	}

	strs := map[string]*string{
		"SPARSE_BACKEND":      &c.Retrieval.SparseBackend,
		"INVALIDATION":        &c.Retrieval.Invalidation,
		"STORE_BACKEND":       &c.Store.Backend,
		"STORE_PATH":          &c.Store.Path,
		"QDRANT_URL":          &c.Store.QdrantURL,
		"QDRANT_COLLECTION":   &c.Store.Collection,
		"EMBEDDINGS_PROVIDER": &c.Embeddings.Provider,
		"EMBEDDINGS_MODEL":    &c.Embeddings.Model,
		"OLLAMA_HOST":         &c.Embeddings.OllamaHost,
		"RERANKER_PROVIDER":   &c.Reranker.Provider,
		"RERANKER_ENDPOINT":   &c.Reranker.Endpoint,
		"RERANKER_MODEL":      &c.Reranker.Model,
		"TRANSPORT":           &c.Server.Transport,
		"HTTP_ADDR":           &c.Server.HTTPAddr,
		"LOG_LEVEL":           &c.Server.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookupEnv(key); ok {
			*dst = v
		}
	}

	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func envError(key, value string, cause error) error {
	return lwerrors.ConfigError(fmt.Sprintf("invalid value %q for %s%s", value, EnvPrefix, key), cause)
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.SemanticWeight < 0 || r.SemanticWeight > 1 {
		return invalid("retrieval.semantic_weight must be between 0 and 1, got %v", r.SemanticWeight)
	}
	if r.BM25Weight < 0 || r.BM25Weight > 1 {
		return invalid("retrieval.bm25_weight must be between 0 and 1, got %v", r.BM25Weight)
	}
	if sum := r.SemanticWeight + r.BM25Weight; math.Abs(sum-1.0) > 0.01 {
		return invalid("retrieval.semantic_weight + retrieval.bm25_weight must equal 1.0, got %.2f", sum).
			WithSuggestion("set the two weights so they sum to 1.0")
	}
	if r.FirstPassK < 1 {
		return invalid("retrieval.first_pass_k must be positive, got %d", r.FirstPassK)
	}
	if r.RerankK < 1 {
		return invalid("retrieval.rerank_k must be positive, got %d", r.RerankK)
	}
	if r.RerankPoolFactor < 1 {
		return invalid("retrieval.rerank_pool_factor must be positive, got %d", r.RerankPoolFactor)
	}
	if r.RRFConstant < 0 {
		return invalid("retrieval.rrf_constant must be non-negative, got %d", r.RRFConstant)
	}
	if r.FullCorpusThreshold < 0 {
		return invalid("retrieval.full_corpus_threshold must be non-negative, got %d", r.FullCorpusThreshold)
	}
	if err := oneOf("retrieval.sparse_backend", r.SparseBackend, "okapi", "bleve"); err != nil {
		return err
	}
	if err := oneOf("retrieval.invalidation", r.Invalidation, "count", "fingerprint"); err != nil {
		return err
	}
	if err := oneOf("store.backend", c.Store.Backend, "memory", "sqlite", "qdrant"); err != nil {
		return err
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return invalid("store.path is required for the sqlite backend")
	}
	if c.Store.Backend == "qdrant" && (c.Store.QdrantURL == "" || c.Store.Collection == "") {
		return invalid("store.qdrant_url and store.collection are required for the qdrant backend")
	}
	if err := oneOf("embeddings.provider", c.Embeddings.Provider, "ollama", "static"); err != nil {
		return err
	}
	if c.Embeddings.Dimensions < 1 {
		return invalid("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.CacheSize < 0 {
		return invalid("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}
	if err := oneOf("reranker.provider", c.Reranker.Provider, "http", "lexical"); err != nil {
		return err
	}
	if c.Reranker.Provider == "http" && c.Reranker.Endpoint == "" {
		return invalid("reranker.endpoint is required for the http provider")
	}
	if c.Chunking.Size < 1 {
		return invalid("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return invalid("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}
	if err := oneOf("server.transport", c.Server.Transport, "stdio", "http"); err != nil {
		return err
	}
	if err := oneOf("server.log_level", c.Server.LogLevel, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	return nil
}

func invalid(format string, args ...any) *lwerrors.LegalError {
	return lwerrors.ConfigError(fmt.Sprintf(format, args...), nil)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return invalid("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
