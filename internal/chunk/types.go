// Package chunk splits extracted page text into overlapping chunks for the
// chunk store.
package chunk

import (
	"github.com/Aman-CERP/legalwise/internal/store"
)

// Chunk size defaults, in characters.
const (
	DefaultSize    = 800
	DefaultOverlap = 150
)

// DefaultSeparators are tried in order, coarsest first. The empty separator
// splits between characters and always applies.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "; ", ", ", " ", ""}

// Page is one page of extracted document text.
type Page struct {
	Number int    `json:"page" yaml:"page"`
	Text   string `json:"text" yaml:"text"`
	// Method is how the text was extracted: native, ocr, native+ocr, empty.
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
}

// Options configures a Splitter.
type Options struct {
	Size       int      // Maximum characters per chunk (default: DefaultSize)
	Overlap    int      // Characters carried into the next chunk (0 for none)
	Separators []string // Split points, coarsest first (default: DefaultSeparators)
}

// Stats summarizes a ChunkDocument call.
type Stats struct {
	Pages       int
	EmptyPages  int
	Chunks      int
	Characters  int
	ByExtractor map[store.ExtractionMethod]int
}
