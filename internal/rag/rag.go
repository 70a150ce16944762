// Package rag turns retrieval results into the artifacts an answer
// generator consumes: a labeled context block, per-source citations, and
// the confidence check that decides whether to look beyond the documents.
package rag

import (
	"fmt"
	"math"
	"strings"

	"github.com/Aman-CERP/legalwise/internal/search"
)

// DefaultFallbackThreshold is the best-score floor below which a caller
// should supplement document results with an external search.
const DefaultFallbackThreshold = 0.6

// PreviewLength is the number of characters kept in a citation preview.
const PreviewLength = 200

const (
	sourceSeparator = "\n\n---\n\n"
	unknownDocument = "unknown"
)

// Citation describes one numbered source for display alongside an answer.
type Citation struct {
	SourceID     int     `json:"source_id"`
	Document     string  `json:"document"`
	Page         int     `json:"page"`
	ChunkPreview string  `json:"chunk_preview"`
	Score        float64 `json:"score"`
}

// BuildContext formats results as numbered sources, in result order:
//
//	[Source 1] (Document: lease.pdf, Page: 3)
//	<chunk text>
//
// Sources are separated by a horizontal rule. No results yields "".
func BuildContext(results []search.Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source %d] (Document: %s, Page: %d)\n%s",
			i+1, documentName(r), r.Chunk.Metadata.Page, r.Chunk.Text)
	}
	return strings.Join(parts, sourceSeparator)
}

// Citations returns one citation per result, numbered to match BuildContext.
func Citations(results []search.Result) []Citation {
	citations := make([]Citation, len(results))
	for i, r := range results {
		citations[i] = Citation{
			SourceID:     i + 1,
			Document:     documentName(r),
			Page:         r.Chunk.Metadata.Page,
			ChunkPreview: Preview(r.Chunk.Text),
			Score:        round4(r.Score),
		}
	}
	return citations
}

// Preview truncates text to PreviewLength characters, appending "..." when
// anything was cut.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= PreviewLength {
		return text
	}
	return string(runes[:PreviewLength]) + "..."
}

// NeedsFallback reports whether the best result scores below threshold.
// A non-positive threshold means DefaultFallbackThreshold. No results always
// needs a fallback.
func NeedsFallback(results []search.Result, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultFallbackThreshold
	}
	return MaxScore(results) < threshold
}

// MaxScore returns the highest result score, or 0 for no results.
func MaxScore(results []search.Result) float64 {
	best := 0.0
	for i, r := range results {
		if i == 0 || r.Score > best {
			best = r.Score
		}
	}
	return best
}

func documentName(r search.Result) string {
	if r.Chunk.Metadata.Document == "" {
		return unknownDocument
	}
	return r.Chunk.Metadata.Document
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
