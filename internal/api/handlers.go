package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
	"github.com/Aman-CERP/legalwise/internal/mcp"
	"github.com/Aman-CERP/legalwise/internal/rag"
	"github.com/Aman-CERP/legalwise/internal/search"
	"github.com/Aman-CERP/legalwise/internal/store"
)

// maxRequestBytes bounds a retrieve request body.
const maxRequestBytes = 64 << 10

// RetrieveRequest is the POST /v1/retrieve payload.
type RetrieveRequest struct {
	Query          string `json:"query"`
	IncludeContext bool   `json:"include_context,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error code and a message safe to display.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RetrieveHandler serves POST /v1/retrieve.
type RetrieveHandler struct {
	retriever         mcp.Retriever
	fallbackThreshold float64
}

func (h *RetrieveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := LoggerFromContext(ctx)

	var req RetrieveRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(ctx, w, lwerrors.ValidationError("request body must be JSON", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(ctx, w, lwerrors.New(lwerrors.ErrCodeQueryEmpty, "query is empty", nil))
		return
	}

	ret, err := h.retriever.Retrieve(ctx, req.Query)
	if err != nil {
		logger.WarnContext(ctx, "retrieve_failed", lwerrors.LogAttrs(err)...)
		writeError(ctx, w, err)
		return
	}

	out := mcp.ToRetrieveOutput(ret, h.fallbackThreshold)
	if req.IncludeContext {
		out.Context = rag.BuildContext(ret.Results)
	}
	writeJSON(ctx, w, http.StatusOK, out)
}

// DocumentsHandler serves GET /v1/documents.
type DocumentsHandler struct {
	store store.ChunkStore
}

func (h *DocumentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := mcp.ListDocuments(ctx, h.store)
	if err != nil {
		LoggerFromContext(ctx).WarnContext(ctx, "list_documents_failed", lwerrors.LogAttrs(err)...)
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, docs)
}

// HealthResponse is the GET /healthz body.
type HealthResponse struct {
	// Status is "healthy" or "unhealthy".
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Chunks    int               `json:"chunks"`
	Issues    []string          `json:"issues,omitempty"`
}

// HealthHandler serves GET /healthz. The store must answer Size and, when
// configured, the cross-encoder must report available.
type HealthHandler struct {
	store              store.ChunkStore
	encoder            search.CrossEncoder
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a HealthHandler. encoder may be nil.
func NewHealthHandler(st store.ChunkStore, encoder search.CrossEncoder) *HealthHandler {
	return &HealthHandler{
		store:              st,
		encoder:            encoder,
		healthCheckTimeout: 5 * time.Second,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.healthCheckTimeout)
	defer cancel()
	logger := LoggerFromContext(ctx)

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string),
	}

	size, err := h.store.Size(ctx)
	if err != nil {
		logger.WarnContext(ctx, "store_health_check_failed", lwerrors.LogAttrs(err)...)
		resp.Checks["store"] = "error"
		resp.Issues = append(resp.Issues, "store_unavailable")
	} else {
		resp.Checks["store"] = "ok"
		resp.Chunks = size
	}

	if h.encoder != nil {
		if h.encoder.Available(ctx) {
			resp.Checks["reranker"] = "ok"
		} else {
			resp.Checks["reranker"] = "error"
			resp.Issues = append(resp.Issues, "reranker_unavailable")
		}
	}

	status := http.StatusOK
	if len(resp.Issues) > 0 {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(ctx, w, status, resp)
}

// StatusForError maps an error to an HTTP status.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}

	le, ok := lwerrors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch {
	case le.Category == lwerrors.CategoryValidation:
		return http.StatusBadRequest
	case le.Category == lwerrors.CategoryNetwork,
		le.Code == lwerrors.ErrCodeStoreUnavailable,
		le.Code == lwerrors.ErrCodeCorruptIndex,
		le.Code == lwerrors.ErrCodeLockHeld:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := lwerrors.GetCode(err)
	if code == "" {
		code = lwerrors.ErrCodeInternal
	}
	writeJSON(ctx, w, StatusForError(err), ErrorResponse{
		Error: ErrorBody{Code: code, Message: lwerrors.FormatForUser(err, false)},
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		LoggerFromContext(ctx).ErrorContext(ctx, "response_encode_failed", lwerrors.LogAttrs(err)...)
	}
}
