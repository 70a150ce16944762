package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{
			name:    "validation keeps message",
			err:     lwerrors.New(lwerrors.ErrCodeQueryEmpty, "query is empty", nil),
			code:    ErrCodeInvalidParams,
			message: "query is empty",
		},
		{
			name:    "model unavailable",
			err:     lwerrors.ModelError("reranker down", nil),
			code:    ErrCodeModelUnavailable,
			message: "The ranking model is unavailable. Please try again later.",
		},
		{
			name:    "rerank failure",
			err:     lwerrors.New(lwerrors.ErrCodeRerankFailed, "bad index 9", nil),
			code:    ErrCodeModelUnavailable,
			message: "The ranking model is unavailable. Please try again later.",
		},
		{
			name:    "store unavailable",
			err:     lwerrors.StoreError("qdrant at qdrant:6334 unreachable", nil),
			code:    ErrCodeStoreUnavailable,
			message: lwerrors.GenericUserMessage,
		},
		{
			name:    "search failed",
			err:     fmt.Errorf("stage: %w", lwerrors.New(lwerrors.ErrCodeSearchFailed, "dense search failed", nil)),
			code:    ErrCodeInternalError,
			message: lwerrors.GenericUserMessage,
		},
		{
			name:    "deadline",
			err:     context.DeadlineExceeded,
			code:    ErrCodeTimeout,
			message: "Request timed out.",
		},
		{
			name:    "canceled",
			err:     fmt.Errorf("wrapped: %w", context.Canceled),
			code:    ErrCodeTimeout,
			message: "Request was canceled.",
		},
		{
			name:    "plain error",
			err:     errors.New("panic in /srv/internal/path.go"),
			code:    ErrCodeInternalError,
			message: lwerrors.GenericUserMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.message, got.Message)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMCPError_Error(t *testing.T) {
	err := NewInvalidParamsError("query parameter is required")
	assert.Equal(t, "MCP error -32602: query parameter is required", err.Error())
	assert.Contains(t, NewResourceNotFoundError("legalwise://x").Message, "legalwise://x")
}
