package errors

import (
	"errors"
	"fmt"
)

// LegalError is the structured error type for LegalWise.
// It carries enough context for logging, CLI output, and API responses.
type LegalError struct {
	// Code is the unique error code (e.g., "ERR_304_MODEL_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the caller may retry the operation.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *LegalError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *LegalError) Unwrap() error {
	return e.Cause
}

// Is matches another LegalError by code, so errors.Is works with sentinels
// built by New.
func (e *LegalError) Is(target error) bool {
	if t, ok := target.(*LegalError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *LegalError) WithDetail(key, value string) *LegalError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *LegalError) WithSuggestion(suggestion string) *LegalError {
	e.Suggestion = suggestion
	return e
}

// New creates a new LegalError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *LegalError {
	return &LegalError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a LegalError from an existing error.
// The error's message becomes the LegalError message.
func Wrap(code string, err error) *LegalError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *LegalError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *LegalError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ModelError marks an embedding or cross-encoder failure.
func ModelError(message string, cause error) *LegalError {
	return New(ErrCodeModelUnavailable, message, cause)
}

// StoreError marks a chunk store failure.
func StoreError(message string, cause error) *LegalError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *LegalError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first LegalError in err's chain.
func As(err error) (*LegalError, bool) {
	var le *LegalError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	le, ok := As(err)
	return ok && le.Retryable
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	le, ok := As(err)
	return ok && le.Severity == SeverityFatal
}

// GetCode extracts the error code from a LegalError.
// Returns empty string if err carries no LegalError.
func GetCode(err error) string {
	if le, ok := As(err); ok {
		return le.Code
	}
	return ""
}

// GetCategory extracts the category from a LegalError.
func GetCategory(err error) Category {
	if le, ok := As(err); ok {
		return le.Category
	}
	return ""
}
