// Package search is the retrieval core: a cached sparse (BM25) index, a dense
// adapter over the chunk store, Reciprocal Rank Fusion, a cross-encoder
// re-ranker, and the Engine that picks between page-targeted, full-corpus,
// and hybrid retrieval.
package search

import (
	"time"

	"github.com/Aman-CERP/legalwise/internal/store"
)

// Source tags where a candidate came from.
type Source string

const (
	SourceSemantic Source = "semantic"
	SourceBM25     Source = "bm25"
)

// Candidate is a chunk with a score from one retriever. For semantic
// candidates Score is the raw cosine distance (lower is closer); for bm25
// candidates it is the BM25 score (higher is better).
type Candidate struct {
	Chunk  store.Chunk
	Score  float64
	Source Source
}

// Fused is a candidate after Reciprocal Rank Fusion.
type Fused struct {
	Chunk store.Chunk
	// Score is the summed RRF contribution.
	Score float64
	// SemanticRank and SparseRank are 1-based positions in the input lists,
	// 0 when absent.
	SemanticRank int
	SparseRank   int
	InBothLists  bool
}

// ResultKind distinguishes unranked results from model-ranked ones.
type ResultKind int

const (
	// ResultExactMatch results were selected by page reference or because
	// the corpus is small. Their score is the fixed ExactMatchScore.
	ResultExactMatch ResultKind = iota
	// ResultReranked results carry a cross-encoder score and fusion detail.
	ResultReranked
)

// String returns the kind name used in logs and JSON output.
func (k ResultKind) String() string {
	switch k {
	case ResultExactMatch:
		return "exact_match"
	case ResultReranked:
		return "reranked"
	default:
		return "unknown"
	}
}

// ExactMatchScore is assigned to every page-targeted and full-corpus result.
const ExactMatchScore = 1.0

// Result is one retrieved chunk returned to callers.
type Result struct {
	Kind  ResultKind
	Chunk store.Chunk
	Score float64
	// Fusion is set for ResultReranked only.
	Fusion *Fused
}

// Mode is the retrieval path the Engine took.
type Mode string

const (
	ModeEmpty      Mode = "empty"
	ModePage       Mode = "page"
	ModeFullCorpus Mode = "full_corpus"
	ModeHybrid     Mode = "hybrid"
)

// Retrieval is the outcome of Engine.Retrieve.
type Retrieval struct {
	Mode Mode
	// Pages are the page numbers extracted from the query, if any.
	Pages   []int
	Results []Result

	// Hybrid stage sizes; zero in other modes.
	SemanticCount int
	SparseCount   int
	FusedCount    int

	Duration time.Duration
}

// MinScore returns the lowest result score, or 0 with no results.
func (r *Retrieval) MinScore() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	lowest := r.Results[0].Score
	for _, res := range r.Results[1:] {
		lowest = min(lowest, res.Score)
	}
	return lowest
}

// MaxScore returns the highest result score, or 0 with no results.
func (r *Retrieval) MaxScore() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	highest := r.Results[0].Score
	for _, res := range r.Results[1:] {
		highest = max(highest, res.Score)
	}
	return highest
}

// Chunks returns the result chunks in order.
func (r *Retrieval) Chunks() []store.Chunk {
	out := make([]store.Chunk, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Chunk
	}
	return out
}

// Weights sets the relative trust of the two retrievers in fusion.
type Weights struct {
	Semantic float64
	BM25     float64
}

// DefaultWeights favours dense retrieval.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.7, BM25: 0.3}
}

// Config holds the retrieval knobs. Read once at startup.
type Config struct {
	// FirstPassK is the fan-out of dense and sparse search.
	FirstPassK int
	// RerankK is the final result count in hybrid mode.
	RerankK int
	// RerankPoolFactor times FirstPassK fused candidates go to the re-ranker.
	RerankPoolFactor int
	// FullCorpusThreshold: at or below this many chunks every chunk is
	// returned. Zero disables the shortcut.
	FullCorpusThreshold int
	RRFConstant         int
	Weights             Weights
}

// DefaultConfig returns the standard retrieval configuration.
func DefaultConfig() Config {
	return Config{
		FirstPassK:          15,
		RerankK:             5,
		RerankPoolFactor:    2,
		FullCorpusThreshold: 40,
		RRFConstant:         DefaultRRFConstant,
		Weights:             DefaultWeights(),
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FirstPassK <= 0 {
		c.FirstPassK = d.FirstPassK
	}
	if c.RerankK <= 0 {
		c.RerankK = d.RerankK
	}
	if c.RerankPoolFactor <= 0 {
		c.RerankPoolFactor = d.RerankPoolFactor
	}
	if c.FullCorpusThreshold < 0 {
		c.FullCorpusThreshold = d.FullCorpusThreshold
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = d.RRFConstant
	}
	if c.Weights == (Weights{}) {
		c.Weights = d.Weights
	}
	return c
}
