package cmd

import (
	"fmt"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	default:
		return lwerrors.ValidationError(fmt.Sprintf("unknown format %q", format), nil).
			WithSuggestion("Use --format text or --format json")
	}
}
