package search

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
)

// Okapi BM25 parameters, matching the rank_bm25 defaults.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// tokenize lower-cases text and splits on whitespace.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// okapiIndex is an immutable Okapi BM25 index over a chunk snapshot.
type okapiIndex struct {
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

var _ sparseScorer = (*okapiIndex)(nil)

// newOkapiIndex tokenizes docs and computes document frequencies. Negative
// IDF values (terms in more than half the corpus) are floored to
// epsilon times the average IDF.
func newOkapiIndex(docs []string) *okapiIndex {
	idx := &okapiIndex{
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	total := 0
	for i, doc := range docs {
		tokens := tokenize(doc)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		for tok := range freqs {
			docFreq[tok]++
		}
		idx.termFreqs[i] = freqs
		idx.docLens[i] = len(tokens)
		total += len(tokens)
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(total) / float64(len(docs))
	}

	n := float64(len(docs))
	idfSum := 0.0
	var negative []string
	for term, df := range docFreq {
		v := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		idx.idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	if len(docFreq) > 0 {
		floor := bm25Epsilon * idfSum / float64(len(docFreq))
		for _, term := range negative {
			idx.idf[term] = floor
		}
	}
	return idx
}

func (idx *okapiIndex) scores(queryTokens []string) []float64 {
	out := make([]float64, len(idx.termFreqs))
	if idx.avgDocLen == 0 {
		return out
	}
	for i, freqs := range idx.termFreqs {
		norm := bm25K1 * (1 - bm25B + bm25B*float64(idx.docLens[i])/idx.avgDocLen)
		var s float64
		for _, q := range queryTokens {
			tf := float64(freqs[q])
			if tf == 0 {
				continue
			}
			s += idx.idf[q] * tf * (bm25K1 + 1) / (tf + norm)
		}
		out[i] = s
	}
	return out
}

// topK returns the positions of the k best documents for query, best first.
// Documents with score <= 0 are dropped.
func (idx *okapiIndex) topK(query string, k int) []scoredDoc {
	if k <= 0 || len(idx.termFreqs) == 0 {
		return nil
	}
	scores := idx.scores(tokenize(query))

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	k = min(k, len(order))
	selectTopK(order, scores, k)

	top := order[:k]
	slices.SortFunc(top, func(a, b int) int {
		return byScoreThenPosition(scores, a, b)
	})

	out := make([]scoredDoc, 0, k)
	for _, i := range top {
		if scores[i] <= 0 {
			break
		}
		out = append(out, scoredDoc{pos: i, score: scores[i]})
	}
	return out
}

// byScoreThenPosition orders descending by score, then ascending by position.
func byScoreThenPosition(scores []float64, a, b int) int {
	if c := cmp.Compare(scores[b], scores[a]); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// selectTopK partially orders positions in place so the first k entries are
// the k best by byScoreThenPosition (in no particular order). Expected
// linear time.
func selectTopK(positions []int, scores []float64, k int) {
	lo, hi := 0, len(positions)-1
	for lo < hi {
		p := partition(positions, scores, lo, hi)
		switch {
		case p == k-1:
			return
		case p < k-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partition is a Lomuto partition around a median-of-three pivot.
func partition(positions []int, scores []float64, lo, hi int) int {
	less := func(i, j int) bool {
		return byScoreThenPosition(scores, positions[i], positions[j]) < 0
	}

	mid := lo + (hi-lo)/2
	if less(mid, lo) {
		positions[lo], positions[mid] = positions[mid], positions[lo]
	}
	if less(hi, lo) {
		positions[lo], positions[hi] = positions[hi], positions[lo]
	}
	if less(mid, hi) {
		positions[mid], positions[hi] = positions[hi], positions[mid]
	}

	store := lo
	for i := lo; i < hi; i++ {
		if less(i, hi) {
			positions[store], positions[i] = positions[i], positions[store]
			store++
		}
	}
	positions[store], positions[hi] = positions[hi], positions[store]
	return store
}

func (idx *okapiIndex) search(_ context.Context, query string, k int) ([]scoredDoc, error) {
	return idx.topK(query, k), nil
}

func (idx *okapiIndex) close() error { return nil }
