package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// GenericUserMessage is shown to end users for failures whose details are internal.
const GenericUserMessage = "Could not process your question. Please try again later."

// FormatForUser returns a message safe to show to end users.
// Validation errors are shown as-is; everything else collapses to
// GenericUserMessage unless debug is set.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	le, ok := As(err)
	if !ok {
		if debug {
			return err.Error()
		}
		return GenericUserMessage
	}

	if le.Category != CategoryValidation && !debug {
		return GenericUserMessage
	}

	var sb strings.Builder
	sb.WriteString(le.Message)
	if le.Suggestion != "" {
		sb.WriteString(" (")
		sb.WriteString(le.Suggestion)
		sb.WriteString(")")
	}
	if debug {
		sb.WriteString(fmt.Sprintf(" [%s]", le.Code))
	}
	return sb.String()
}

// FormatForCLI formats an error for CLI output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	le, ok := As(err)
	if !ok {
		le = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", le.Message))
	if le.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", le.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", le.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	le, ok := As(err)
	if !ok {
		le = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       le.Code,
		Message:    le.Message,
		Category:   string(le.Category),
		Severity:   string(le.Severity),
		Details:    le.Details,
		Suggestion: le.Suggestion,
		Retryable:  le.Retryable,
	}
	if le.Cause != nil {
		je.Cause = le.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	le, ok := As(err)
	if !ok {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error_code", le.Code),
		slog.String("error", le.Message),
		slog.String("category", string(le.Category)),
		slog.Bool("retryable", le.Retryable),
	}
	if le.Cause != nil {
		attrs = append(attrs, slog.String("cause", le.Cause.Error()))
	}
	for k, v := range le.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}
