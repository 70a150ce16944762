package search

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

// CrossEncoder scores (query, passage) pairs jointly. Implementations make
// one batched model call per ScorePairs and return one score per passage, in
// passage order.
type CrossEncoder interface {
	ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error)

	// Available checks if the model service is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Reranker narrows fused candidates to a final top-K with a CrossEncoder.
type Reranker struct {
	encoder CrossEncoder
}

// NewReranker creates a re-ranker over encoder.
func NewReranker(encoder CrossEncoder) *Reranker {
	return &Reranker{encoder: encoder}
}

// Encoder returns the underlying model client.
func (r *Reranker) Encoder() CrossEncoder {
	return r.encoder
}

// Rerank scores every candidate in one call and returns the topK best as
// ResultReranked, sorted by descending score with ties in input order. No
// model call is made for an empty list.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Fused, topK int) ([]Result, error) {
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Chunk.Text
	}

	scores, err := r.encoder.ScorePairs(ctx, query, passages)
	if err != nil {
		if _, ok := lwerrors.As(err); ok {
			return nil, err
		}
		return nil, lwerrors.ModelError("cross-encoder scoring failed", err)
	}
	if len(scores) != len(candidates) {
		return nil, lwerrors.New(lwerrors.ErrCodeRerankFailed,
			fmt.Sprintf("cross-encoder returned %d scores for %d passages", len(scores), len(candidates)), nil)
	}

	results := make([]Result, len(candidates))
	for i := range candidates {
		fused := candidates[i]
		results[i] = Result{
			Kind:   ResultReranked,
			Chunk:  fused.Chunk,
			Score:  scores[i],
			Fusion: &fused,
		}
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// =============================================================================
// Lexical cross-encoder
// =============================================================================

// LexicalCrossEncoder is a deterministic offline scorer: the fraction of
// distinct query terms found in the passage, damped by passage length. It
// needs no model service and is used for the "lexical" provider and tests.
type LexicalCrossEncoder struct{}

var _ CrossEncoder = LexicalCrossEncoder{}

// ScorePairs implements CrossEncoder.
func (LexicalCrossEncoder) ScorePairs(_ context.Context, query string, passages []string) ([]float64, error) {
	terms := distinctTerms(query)
	scores := make([]float64, len(passages))
	if len(terms) == 0 {
		return scores, nil
	}

	for i, p := range passages {
		words := termWords(p)
		present := make(map[string]struct{}, len(words))
		for _, w := range words {
			present[w] = struct{}{}
		}

		matched := 0
		for _, t := range terms {
			if _, ok := present[t]; ok {
				matched++
			}
		}
		coverage := float64(matched) / float64(len(terms))
		scores[i] = coverage / (1 + math.Log1p(float64(len(words)))/10)
	}
	return scores, nil
}

// Available always returns true.
func (LexicalCrossEncoder) Available(context.Context) bool { return true }

// Close is a no-op.
func (LexicalCrossEncoder) Close() error { return nil }

// termWords lower-cases s and splits on anything that is not a letter or
// digit.
func termWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func distinctTerms(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range termWords(s) {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// RerankerProvider names a CrossEncoder implementation.
type RerankerProvider string

const (
	RerankerHTTP    RerankerProvider = "http"
	RerankerLexical RerankerProvider = "lexical"
)

// ParseRerankerProvider converts a configuration string to a provider.
func ParseRerankerProvider(s string) (RerankerProvider, error) {
	switch p := RerankerProvider(strings.ToLower(strings.TrimSpace(s))); p {
	case RerankerHTTP, RerankerLexical:
		return p, nil
	case "":
		return RerankerHTTP, nil
	default:
		return "", fmt.Errorf("unknown reranker provider %q (use http or lexical)", s)
	}
}

// NewCrossEncoder creates the configured cross-encoder.
func NewCrossEncoder(ctx context.Context, provider RerankerProvider, cfg HTTPRerankerConfig) (CrossEncoder, error) {
	switch provider {
	case RerankerLexical:
		return LexicalCrossEncoder{}, nil
	case RerankerHTTP, "":
		return NewHTTPCrossEncoder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown reranker provider %q", provider)
	}
}
