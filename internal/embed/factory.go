package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hashed bag-of-words vectors, no model required.
	ProviderStatic ProviderType = "static"
)

// ParseProvider converts a configuration string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOllama, ProviderStatic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown embeddings provider %q (use ollama or static)", s)
	}
}

// Options configures NewEmbedder.
type Options struct {
	Model      string
	Host       string
	Dimensions int
	Timeout    time.Duration
	// CacheSize > 0 wraps the embedder in a CachedEmbedder.
	CacheSize int
}

// NewEmbedder builds the embedder for provider. An explicitly chosen provider
// that cannot be reached is an error; there is no silent fallback, since
// vectors from different models are not comparable.
func NewEmbedder(ctx context.Context, provider ProviderType, opts Options) (Embedder, error) {
	var (
		embedder Embedder
		err      error
	)

	switch provider {
	case ProviderOllama:
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       opts.Host,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Timeout:    opts.Timeout,
		})
	case ProviderStatic:
		embedder = NewStaticEmbedder(opts.Dimensions)
	default:
		err = fmt.Errorf("unknown embeddings provider %q", provider)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("embedder_ready",
		slog.String("provider", string(provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	if opts.CacheSize > 0 {
		return NewCachedEmbedder(embedder, opts.CacheSize), nil
	}
	return embedder, nil
}
