package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
	"github.com/Aman-CERP/legalwise/pkg/version"
)

// HTTP cross-encoder defaults.
const (
	DefaultRerankerEndpoint = "http://localhost:8080"
	DefaultRerankerModel    = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	DefaultRerankerTimeout  = 30 * time.Second
)

// HTTPRerankerConfig configures an HTTPCrossEncoder.
type HTTPRerankerConfig struct {
	// Endpoint is the base URL of a text-embeddings-inference style server.
	Endpoint string

	// Model is informational; the server decides which model it serves.
	Model string

	Timeout time.Duration

	// SkipHealthCheck skips the health check during creation (for testing).
	SkipHealthCheck bool
}

// DefaultHTTPRerankerConfig returns the default configuration.
func DefaultHTTPRerankerConfig() HTTPRerankerConfig {
	return HTTPRerankerConfig{
		Endpoint: DefaultRerankerEndpoint,
		Model:    DefaultRerankerModel,
		Timeout:  DefaultRerankerTimeout,
	}
}

// HTTPCrossEncoder calls POST {endpoint}/rerank on a cross-encoder server.
// Errors are ERR_304_MODEL_UNAVAILABLE and are not retried.
type HTTPCrossEncoder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPRerankerConfig

	mu     sync.RWMutex
	closed bool
}

var _ CrossEncoder = (*HTTPCrossEncoder)(nil)

// NewHTTPCrossEncoder creates a client and, unless SkipHealthCheck is set,
// checks GET {endpoint}/health.
func NewHTTPCrossEncoder(ctx context.Context, cfg HTTPRerankerConfig) (*HTTPCrossEncoder, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultRerankerEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultRerankerModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankerTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	r := &HTTPCrossEncoder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := r.healthCheck(checkCtx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
	}

	slog.Debug("cross_encoder_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return r, nil
}

func (r *HTTPCrossEncoder) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.Endpoint+"/health", nil)
	if err != nil {
		return lwerrors.InternalError("failed to create health check request", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return lwerrors.ModelError("cross-encoder server unreachable", err).
			WithDetail("endpoint", r.config.Endpoint).
			WithSuggestion("Start the reranker server or set reranker.provider: lexical")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return lwerrors.ModelError(fmt.Sprintf("cross-encoder server unhealthy (status %d): %s", resp.StatusCode, body), nil)
	}
	return nil
}

// rerankRequest is the JSON body of POST /rerank.
type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

// rerankScore is one element of the /rerank response array.
type rerankScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// ScorePairs implements CrossEncoder. The server may return scores in any
// order; they are placed back at their passage index.
func (r *HTTPCrossEncoder) ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, lwerrors.ModelError("cross-encoder is closed", nil)
	}

	if len(passages) == 0 {
		return []float64{}, nil
	}

	start := time.Now()

	body, err := json.Marshal(rerankRequest{Query: query, Texts: passages, RawScores: true, Truncate: true})
	if err != nil {
		return nil, lwerrors.InternalError("failed to marshal rerank request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, lwerrors.InternalError("failed to create rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, lwerrors.ModelError("rerank request failed", err).WithDetail("endpoint", r.config.Endpoint)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, lwerrors.ModelError(fmt.Sprintf("rerank failed with status %d: %s", resp.StatusCode, msg), nil)
	}

	var ranked []rerankScore
	if err := json.NewDecoder(resp.Body).Decode(&ranked); err != nil {
		return nil, lwerrors.ModelError("failed to decode rerank response", err)
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, s := range ranked {
		if s.Index < 0 || s.Index >= len(passages) || seen[s.Index] {
			return nil, lwerrors.New(lwerrors.ErrCodeRerankFailed,
				fmt.Sprintf("rerank response has invalid index %d", s.Index), nil)
		}
		seen[s.Index] = true
		scores[s.Index] = s.Score
	}
	if len(ranked) != len(passages) {
		return nil, lwerrors.New(lwerrors.ErrCodeRerankFailed,
			fmt.Sprintf("rerank response has %d scores for %d passages", len(ranked), len(passages)), nil)
	}

	slog.Debug("cross_encoder_scored",
		slog.Int("passages", len(passages)),
		slog.Int("payload_bytes", len(body)),
		slog.Duration("duration", time.Since(start)))

	return scores, nil
}

// Available checks the health endpoint.
func (r *HTTPCrossEncoder) Available(ctx context.Context) bool {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.healthCheck(ctx) == nil
}

// Close releases idle connections.
func (r *HTTPCrossEncoder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.transport.CloseIdleConnections()
	return nil
}
