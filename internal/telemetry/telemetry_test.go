package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Circular Buffer
// =============================================================================

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	// Given: a buffer of capacity 3
	b := NewCircularBuffer[int](3)

	// When: adding five items
	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	// Then: the last three remain in FIFO order
	assert.Equal(t, []int{3, 4, 5}, b.Items())
	assert.Equal(t, 3, b.Size())
}

func TestCircularBuffer_EmptyAndPartial(t *testing.T) {
	b := NewCircularBuffer[string](0)
	assert.Empty(t, b.Items())

	b.Add("a")
	b.Add("b")
	assert.Equal(t, []string{"a", "b"}, b.Items())
}

// =============================================================================
// Latency Buckets
// =============================================================================

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{10 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP250},
		{300 * time.Millisecond, BucketP1000},
		{2 * time.Second, BucketP5000},
		{8 * time.Second, BucketSlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

// =============================================================================
// Query Log
// =============================================================================

func TestQueryLog_RecordAndSnapshot(t *testing.T) {
	// Given: a log with a hybrid hit, a zero-result query, and a failure
	l := NewQueryLog(DefaultQueryLogConfig())
	l.Record(RetrievalEvent{Query: "termination notice period", Mode: "hybrid", ResultCount: 5, Latency: 120 * time.Millisecond})
	l.Record(RetrievalEvent{Query: "termination fee", Mode: "hybrid", ResultCount: 0, Latency: 80 * time.Millisecond})
	l.Record(RetrievalEvent{Query: "indemnity", ErrorCode: "ERR_304_MODEL_UNAVAILABLE", Latency: time.Millisecond})

	// When: taking a snapshot
	snap := l.Snapshot()

	// Then: aggregates reflect all three events
	assert.Equal(t, int64(3), snap.Total)
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, int64(2), snap.ModeCounts["hybrid"])
	assert.Equal(t, []string{"termination fee"}, snap.ZeroResultQueries)
	require.Len(t, snap.Recent, 3)
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "termination", Count: 2}, snap.TopTerms[0])
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP250])
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"termination", "clause", "section"},
		ExtractTerms("What is the termination clause on page 5, section 12(b)?"))
	assert.Empty(t, ExtractTerms("  "))
}

// =============================================================================
// Prometheus
// =============================================================================

func TestMetrics_ObserveRetrieval(t *testing.T) {
	m := NewMetrics()

	m.ObserveRetrieval(RetrievalEvent{Query: "rent", Mode: "page", ResultCount: 3})
	m.ObserveRetrieval(RetrievalEvent{Query: "rent", Mode: "page", ResultCount: 1})
	m.ObserveRetrieval(RetrievalEvent{Query: "rent", ErrorCode: "ERR_503_SEARCH_FAILED"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.retrievalsTotal.WithLabelValues("page", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievalsTotal.WithLabelValues("unknown", "error")))
	assert.Equal(t, int64(3), m.Snapshot().Total)
}

func TestMetrics_HandlerExposesRegistry(t *testing.T) {
	// Given: one sparse rebuild recorded
	m := NewMetrics()
	m.ObserveSparseRebuild("okapi", 3*time.Millisecond)
	m.SetStoreSize(42)

	// When: scraping
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	// Then: the series are present
	assert.Contains(t, string(body), `legalwise_sparse_rebuilds_total{backend="okapi"} 1`)
	assert.Contains(t, string(body), "legalwise_store_chunks 42")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRetrieval(RetrievalEvent{Mode: "hybrid"})
		m.ObserveStage("dense", time.Millisecond)
		m.ObserveSparseRebuild("bleve", time.Millisecond)
		m.SetStoreSize(1)
		_ = m.Snapshot()
	})
}
