// Package api serves retrieval over HTTP.
//
// Routes:
//
//	POST /v1/retrieve   {"query": "...", "include_context": false}
//	GET  /v1/documents
//	GET  /healthz
//	GET  /metrics       Prometheus exposition
//	     /mcp           MCP streamable HTTP transport, when configured
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/legalwise/internal/mcp"
	"github.com/Aman-CERP/legalwise/internal/rag"
	"github.com/Aman-CERP/legalwise/internal/search"
	"github.com/Aman-CERP/legalwise/internal/store"
	"github.com/Aman-CERP/legalwise/internal/telemetry"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	// Retriever runs retrievals (required).
	Retriever mcp.Retriever
	// Store lists documents and backs the health check (required).
	Store store.ChunkStore
	// Encoder is probed by the health check. Optional.
	Encoder search.CrossEncoder
	// Metrics serves /metrics. Optional.
	Metrics *telemetry.Metrics
	// MCP is mounted at /mcp. Optional.
	MCP http.Handler
	// FallbackThreshold is reported as needs_fallback; 0 means the default.
	FallbackThreshold float64
}

// ErrMissingDependency is returned when a required dependency is nil.
var ErrMissingDependency = errors.New("api: retriever and store are required")

// NewRouter creates the HTTP router.
func NewRouter(deps *Deps) (http.Handler, error) {
	if deps == nil || deps.Retriever == nil || deps.Store == nil {
		return nil, ErrMissingDependency
	}
	threshold := deps.FallbackThreshold
	if threshold <= 0 {
		threshold = rag.DefaultFallbackThreshold
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(CORS)

	retrieve := &RetrieveHandler{retriever: deps.Retriever, fallbackThreshold: threshold}
	documents := &DocumentsHandler{store: deps.Store}
	health := NewHealthHandler(deps.Store, deps.Encoder)

	r.Route("/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/retrieve", retrieve)
		r.Method(http.MethodGet, "/documents", documents)
	})
	r.Method(http.MethodGet, "/healthz", health)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	if deps.MCP != nil {
		r.Handle("/mcp", deps.MCP)
		r.Handle("/mcp/*", deps.MCP)
	}
	return r, nil
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http_shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	slog.Info("http_server_starting", slog.String("addr", addr))
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		slog.Info("http_server_stopped")
		return nil
	}
	return err
}
