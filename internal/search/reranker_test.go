package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

func fusedFrom(texts ...string) []Fused {
	return NewRRFFusion().Fuse(candidates(SourceSemantic, texts...), nil)
}

// =============================================================================
// Reranker
// =============================================================================

func TestReranker_EmptyCandidatesSkipModel(t *testing.T) {
	enc := &stubEncoder{score: func(string, string) float64 { return 1 }}

	got, err := NewReranker(enc).Rerank(context.Background(), "rent", nil, 5)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, enc.calls.Load())
}

func TestReranker_SortsByScoreAndTruncates(t *testing.T) {
	// Given: passage length as the score
	enc := &stubEncoder{score: func(_, p string) float64 { return float64(len(p)) }}

	// When: re-ranking four candidates to the top 3
	got, err := NewReranker(enc).Rerank(context.Background(), "q", fusedFrom("bb", "a", "dddd", "ccc"), 3)

	// Then: one model call, non-increasing scores, fusion detail attached
	require.NoError(t, err)
	assert.Equal(t, int64(1), enc.calls.Load())
	assert.Equal(t, []string{"dddd", "ccc", "bb"}, resultTexts(got))
	for i, r := range got {
		assert.Equal(t, ResultReranked, r.Kind)
		require.NotNil(t, r.Fusion)
		if i > 0 {
			assert.LessOrEqual(t, r.Score, got[i-1].Score)
		}
	}
	assert.Equal(t, 3, got[0].Fusion.SemanticRank)
}

func TestReranker_TiesKeepFusionOrder(t *testing.T) {
	enc := &stubEncoder{score: func(string, string) float64 { return 0.5 }}

	got, err := NewReranker(enc).Rerank(context.Background(), "q", fusedFrom("x", "y", "z"), 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, resultTexts(got))
}

func TestReranker_ScoreCountMismatch(t *testing.T) {
	enc := &stubEncoder{scores: []float64{0.1}}

	_, err := NewReranker(enc).Rerank(context.Background(), "q", fusedFrom("a", "b"), 5)

	require.Error(t, err)
	assert.Equal(t, lwerrors.ErrCodeRerankFailed, lwerrors.GetCode(err))
}

func TestReranker_PlainErrorBecomesModelError(t *testing.T) {
	enc := &stubEncoder{err: errors.New("onnx session lost")}

	_, err := NewReranker(enc).Rerank(context.Background(), "q", fusedFrom("a"), 5)

	require.Error(t, err)
	assert.Equal(t, lwerrors.ErrCodeModelUnavailable, lwerrors.GetCode(err))
	assert.False(t, lwerrors.IsRetryable(err))
}

// =============================================================================
// Lexical cross-encoder
// =============================================================================

func TestLexicalCrossEncoder(t *testing.T) {
	scores, err := LexicalCrossEncoder{}.ScorePairs(context.Background(), "What is the termination clause?", []string{
		"Section 5 governs termination.",
		"Payment due in 30 days.",
		"The termination clause in Section 5 is strict.",
	})

	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Greater(t, scores[2], scores[0])
	assert.Greater(t, scores[0], scores[1])
	assert.Zero(t, scores[1])
}

func TestLexicalCrossEncoder_Deterministic(t *testing.T) {
	enc := LexicalCrossEncoder{}
	a, _ := enc.ScorePairs(context.Background(), "rent deposit", []string{"rent due", "deposit and rent"})
	b, _ := enc.ScorePairs(context.Background(), "rent deposit", []string{"rent due", "deposit and rent"})
	assert.Equal(t, a, b)
}

// =============================================================================
// HTTP cross-encoder
// =============================================================================

func TestHTTPCrossEncoder_ScorePairs(t *testing.T) {
	// Given: a server that returns scores sorted by relevance
	var got rerankRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/rerank":
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode([]rerankScore{{Index: 1, Score: 0.9}, {Index: 0, Score: 0.2}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	enc, err := NewHTTPCrossEncoder(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL + "/"})
	require.NoError(t, err)
	defer enc.Close()

	// When: scoring two passages
	scores, err := enc.ScorePairs(context.Background(), "termination", []string{"rent", "termination"})

	// Then: scores are back in passage order
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.9}, scores)
	assert.Equal(t, "termination", got.Query)
	assert.Equal(t, []string{"rent", "termination"}, got.Texts)
	assert.True(t, got.RawScores, "raw logits requested")
	assert.True(t, got.Truncate)
	assert.True(t, enc.Available(context.Background()))
}

func TestHTTPCrossEncoder_Failures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model not loaded", http.StatusServiceUnavailable)
			},
			wantCode: lwerrors.ErrCodeModelUnavailable,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			wantCode: lwerrors.ErrCodeModelUnavailable,
		},
		{
			name: "missing score",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode([]rerankScore{{Index: 0, Score: 1}})
			},
			wantCode: lwerrors.ErrCodeRerankFailed,
		},
		{
			name: "index out of range",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode([]rerankScore{{Index: 0, Score: 1}, {Index: 5, Score: 1}})
			},
			wantCode: lwerrors.ErrCodeRerankFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			enc, err := NewHTTPCrossEncoder(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL, SkipHealthCheck: true})
			require.NoError(t, err)

			_, err = enc.ScorePairs(context.Background(), "q", []string{"a", "b"})

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, lwerrors.GetCode(err))
		})
	}
}

func TestHTTPCrossEncoder_UnreachableAtStartup(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPCrossEncoder(context.Background(), HTTPRerankerConfig{Endpoint: url})

	require.Error(t, err)
	assert.Equal(t, lwerrors.ErrCodeModelUnavailable, lwerrors.GetCode(err))
	assert.True(t, strings.Contains(lwerrors.FormatForCLI(err), "lexical"))
}

func TestHTTPCrossEncoder_ClosedAndEmpty(t *testing.T) {
	enc, err := NewHTTPCrossEncoder(context.Background(), HTTPRerankerConfig{Endpoint: "http://127.0.0.1:1", SkipHealthCheck: true})
	require.NoError(t, err)

	scores, err := enc.ScorePairs(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)

	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close())
	_, err = enc.ScorePairs(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
	assert.False(t, enc.Available(context.Background()))
}

func TestNewCrossEncoder(t *testing.T) {
	enc, err := NewCrossEncoder(context.Background(), RerankerLexical, HTTPRerankerConfig{})
	require.NoError(t, err)
	assert.IsType(t, LexicalCrossEncoder{}, enc)

	p, err := ParseRerankerProvider("HTTP")
	require.NoError(t, err)
	assert.Equal(t, RerankerHTTP, p)
	_, err = ParseRerankerProvider("onnx")
	assert.Error(t, err)
}
