package search

import (
	"cmp"
	"slices"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// RRFFusion merges semantic and sparse candidate lists with Reciprocal Rank
// Fusion:
//
//	score(d) = Σ weight_i / (K + rank_i + 1)
//
// where rank_i is the 0-based position of d in list i. Candidates are
// identified by exact chunk text.
type RRFFusion struct {
	K       int
	Weights Weights
}

// NewRRFFusion creates a fusion with K=60 and the default weights.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant, Weights: DefaultWeights()}
}

// NewRRFFusionWithK creates a fusion with custom parameters. k <= 0 means 60.
func NewRRFFusionWithK(k int, weights Weights) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k, Weights: weights}
}

// Fuse combines the two lists. The semantic list is processed first, so for
// duplicate texts the semantic payload is kept. The result is sorted by
// descending score; equal scores keep first-seen order.
func (f *RRFFusion) Fuse(semantic, sparse []Candidate) []Fused {
	if len(semantic) == 0 && len(sparse) == 0 {
		return []Fused{}
	}

	results := make([]Fused, 0, len(semantic)+len(sparse))
	positions := make(map[string]int, len(semantic)+len(sparse))

	accumulate := func(list []Candidate, weight float64, setRank func(*Fused, int)) {
		for rank, c := range list {
			i, ok := positions[c.Chunk.Text]
			if !ok {
				i = len(results)
				positions[c.Chunk.Text] = i
				results = append(results, Fused{Chunk: c.Chunk})
			}
			results[i].Score += weight / float64(f.K+rank+1)
			setRank(&results[i], rank+1)
		}
	}

	accumulate(semantic, f.Weights.Semantic, func(r *Fused, rank int) {
		if r.SemanticRank == 0 {
			r.SemanticRank = rank
		}
	})
	accumulate(sparse, f.Weights.BM25, func(r *Fused, rank int) {
		if r.SparseRank == 0 {
			r.SparseRank = rank
		}
	})

	for i := range results {
		results[i].InBothLists = results[i].SemanticRank > 0 && results[i].SparseRank > 0
	}

	slices.SortStableFunc(results, func(a, b Fused) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return results
}
