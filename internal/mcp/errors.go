// Package mcp implements the Model Context Protocol (MCP) server for legalwise.
package mcp

import (
	"context"
	"errors"
	"fmt"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

// Custom MCP error codes for legalwise.
const (
	// ErrCodeModelUnavailable indicates the embedding or ranking model failed.
	ErrCodeModelUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeStoreUnavailable indicates the chunk store could not be read.
	ErrCodeStoreUnavailable = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrMissingRetriever is returned by NewServer without a retriever.
var ErrMissingRetriever = errors.New("retriever is required")

// ErrMissingStore is returned by NewServer without a chunk store.
var ErrMissingStore = errors.New("chunk store is required")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Only validation messages
// reach the client verbatim; everything else gets a generic message.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	if le, ok := lwerrors.As(err); ok {
		return mapLegalError(le)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: lwerrors.GenericUserMessage}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapLegalError(le *lwerrors.LegalError) *MCPError {
	switch le.Category {
	case lwerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: lwerrors.FormatForUser(le, false)}
	case lwerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeModelUnavailable, Message: "The ranking model is unavailable. Please try again later."}
	}

	switch le.Code {
	case lwerrors.ErrCodeStoreUnavailable, lwerrors.ErrCodeCorruptIndex:
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: lwerrors.GenericUserMessage}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: lwerrors.GenericUserMessage}
	}
}
