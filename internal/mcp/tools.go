package mcp

import (
	"github.com/Aman-CERP/legalwise/internal/rag"
)

// RetrieveInput defines the input schema for the retrieve tool.
type RetrieveInput struct {
	Query          string `json:"query" jsonschema:"question about the uploaded legal documents"`
	IncludeContext bool   `json:"include_context,omitempty" jsonschema:"also return the numbered source block for answer generation"`
}

// RetrieveOutput defines the output schema for the retrieve tool.
type RetrieveOutput struct {
	Mode          string         `json:"mode" jsonschema:"strategy used: empty, page, full_corpus, or hybrid"`
	Pages         []int          `json:"pages,omitempty" jsonschema:"page numbers referenced by the question"`
	Results       []ResultOutput `json:"results" jsonschema:"retrieved passages, best first"`
	Citations     []rag.Citation `json:"citations" jsonschema:"numbered sources matching the context block"`
	Context       string         `json:"context,omitempty" jsonschema:"numbered source block, when requested"`
	MaxScore      float64        `json:"max_score" jsonschema:"highest result score"`
	NeedsFallback bool           `json:"needs_fallback" jsonschema:"true when the best score is below the confidence threshold"`
	DurationMs    int64          `json:"duration_ms" jsonschema:"retrieval time in milliseconds"`
}

// ResultOutput is one retrieved passage.
type ResultOutput struct {
	Rank        int     `json:"rank"`
	Kind        string  `json:"kind" jsonschema:"exact_match or reranked"`
	Document    string  `json:"document"`
	Page        int     `json:"page"`
	ChunkIndex  int     `json:"chunk_index"`
	Score       float64 `json:"score" jsonschema:"1.0 for exact matches, cross-encoder score otherwise"`
	Text        string  `json:"text"`
	InBothLists bool    `json:"in_both_lists,omitempty" jsonschema:"true if found by both semantic and keyword search"`
}

// ListDocumentsInput defines the input schema for the list_documents tool (no parameters).
type ListDocumentsInput struct{}

// ListDocumentsOutput defines the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents   []DocumentOutput `json:"documents"`
	TotalChunks int              `json:"total_chunks"`
}

// DocumentOutput describes one stored document.
type DocumentOutput struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
	Pages  int    `json:"pages"`
}

// QueryMetricsOutput is the query_metrics resource body.
type QueryMetricsOutput struct {
	TotalQueries        int64            `json:"total_queries"`
	Failures            int64            `json:"failures"`
	ModeCounts          map[string]int64 `json:"mode_counts"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
	TopTerms            []TermCount      `json:"top_terms"`
	ZeroResultQueries   []string         `json:"zero_result_queries"`
	Since               string           `json:"since"`
}

// TermCount is a query term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}
