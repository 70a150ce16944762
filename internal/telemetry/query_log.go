// Package telemetry records retrieval metrics. Query history stays in process
// memory; aggregate counters are exported for Prometheus scraping.
package telemetry

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket represents a coarse latency histogram bucket.
type LatencyBucket string

const (
	BucketP50   LatencyBucket = "p50"   // <50ms
	BucketP250  LatencyBucket = "p250"  // 50-250ms
	BucketP1000 LatencyBucket = "p1000" // 250ms-1s
	BucketP5000 LatencyBucket = "p5000" // 1-5s
	BucketSlow  LatencyBucket = "slow"  // >=5s
)

// LatencyToBucket converts a duration to its bucket. Retrieval latency is
// dominated by model calls, so buckets are wider than a plain index lookup.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 50:
		return BucketP50
	case ms < 250:
		return BucketP250
	case ms < 1000:
		return BucketP1000
	case ms < 5000:
		return BucketP5000
	default:
		return BucketSlow
	}
}

// =============================================================================
// Retrieval Event
// =============================================================================

// RetrievalEvent is one completed (or failed) retrieval.
type RetrievalEvent struct {
	Query       string
	Mode        string
	ResultCount int
	TopScore    float64
	Latency     time.Duration
	ErrorCode   string
	Timestamp   time.Time
}

// IsZeroResult reports a successful retrieval that found nothing.
func (e RetrievalEvent) IsZeroResult() bool {
	return e.ErrorCode == "" && e.ResultCount == 0
}

// Failed reports whether the retrieval returned an error.
func (e RetrievalEvent) Failed() bool {
	return e.ErrorCode != ""
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a buffer; non-positive capacity means 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// =============================================================================
// Query Log
// =============================================================================

// TermCount is a query term with its frequency.
type TermCount struct {
	Term  string
	Count int64
}

// QueryLogSnapshot is a point-in-time copy of the query log.
type QueryLogSnapshot struct {
	Total               int64
	Failures            int64
	ModeCounts          map[string]int64
	LatencyDistribution map[LatencyBucket]int64
	Recent              []RetrievalEvent
	ZeroResultQueries   []string
	TopTerms            []TermCount
	Since               time.Time
}

// QueryLogConfig sizes the in-memory structures.
type QueryLogConfig struct {
	RecentCapacity     int
	ZeroResultCapacity int
	TopTermsCapacity   int
}

// DefaultQueryLogConfig returns the default sizes.
func DefaultQueryLogConfig() QueryLogConfig {
	return QueryLogConfig{
		RecentCapacity:     200,
		ZeroResultCapacity: 100,
		TopTermsCapacity:   100,
	}
}

// QueryLog keeps recent retrievals and simple aggregates. Safe for
// concurrent use.
type QueryLog struct {
	mu          sync.Mutex
	total       int64
	failures    int64
	modes       map[string]int64
	latencies   map[LatencyBucket]int64
	recent      *CircularBuffer[RetrievalEvent]
	zeroResults *CircularBuffer[string]
	topTerms    *lru.Cache[string, int64]
	since       time.Time
}

// NewQueryLog creates a query log.
func NewQueryLog(cfg QueryLogConfig) *QueryLog {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	return &QueryLog{
		modes:       make(map[string]int64),
		latencies:   make(map[LatencyBucket]int64),
		recent:      NewCircularBuffer[RetrievalEvent](cfg.RecentCapacity),
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultCapacity),
		topTerms:    topTerms,
		since:       time.Now(),
	}
}

// Record adds an event.
func (l *QueryLog) Record(event RetrievalEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	l.recent.Add(event)
	l.latencies[LatencyToBucket(event.Latency)]++

	if event.Failed() {
		l.failures++
		return
	}
	l.modes[event.Mode]++
	if event.IsZeroResult() {
		l.zeroResults.Add(event.Query)
	}
	for _, term := range ExtractTerms(event.Query) {
		count, _ := l.topTerms.Get(term)
		l.topTerms.Add(term, count+1)
	}
}

// Snapshot copies the current state.
func (l *QueryLog) Snapshot() QueryLogSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	modes := make(map[string]int64, len(l.modes))
	for k, v := range l.modes {
		modes[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(l.latencies))
	for k, v := range l.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, l.topTerms.Len())
	for _, key := range l.topTerms.Keys() {
		if count, ok := l.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	slices.SortStableFunc(terms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Term, b.Term)
	})

	return QueryLogSnapshot{
		Total:               l.total,
		Failures:            l.failures,
		ModeCounts:          modes,
		LatencyDistribution: latencies,
		Recent:              l.recent.Items(),
		ZeroResultQueries:   l.zeroResults.Items(),
		TopTerms:            terms,
		Since:               l.since,
	}
}

// legalStopWords are dropped from term statistics.
var legalStopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "what": {}, "which": {}, "this": {},
	"that": {}, "with": {}, "are": {}, "does": {}, "from": {}, "under": {},
	"page": {}, "pages": {},
}

// ExtractTerms lower-cases query and returns words of three or more
// letters, minus stop words.
func ExtractTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, stop := legalStopWords[f]; stop {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
