// Package ingest populates the chunk store from extracted page text.
//
// An ingestion chunks a document's pages and then either replaces the whole
// store (the default: one working document at a time) or, in append mode,
// replaces just that document's chunks. Ingestions are serialized across
// processes by a file lock in the data directory.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/legalwise/internal/chunk"
	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
	"github.com/Aman-CERP/legalwise/internal/store"
)

// DefaultBatchSize bounds how many chunks are embedded per store call.
const DefaultBatchSize = 512

// Options controls one ingestion.
type Options struct {
	// Append keeps other documents and replaces only this one's chunks.
	Append bool
	// Wait blocks on a held lock instead of failing with ERR_207_LOCK_HELD.
	Wait bool
}

// Result describes a completed ingestion.
type Result struct {
	Document   string        `json:"document"`
	Pages      int           `json:"pages"`
	EmptyPages int           `json:"empty_pages"`
	Characters int           `json:"characters"`
	Chunks     int           `json:"chunks"`
	Removed    int           `json:"removed"`
	Total      int           `json:"total"`
	Duration   time.Duration `json:"duration"`
}

// Ingester writes chunked documents into a store.
type Ingester struct {
	store     store.ChunkStore
	splitter  *chunk.Splitter
	lock      *FileLock
	batchSize int
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) IngesterOption {
	return func(i *Ingester) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// New creates an ingester that locks dataDir while it writes.
func New(st store.ChunkStore, splitter *chunk.Splitter, dataDir string, opts ...IngesterOption) *Ingester {
	i := &Ingester{
		store:     st,
		splitter:  splitter,
		lock:      NewFileLock(dataDir),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest chunks pages and stores them under document. Pages are chunked
// before anything is removed, so invalid input leaves the store untouched.
func (i *Ingester) Ingest(ctx context.Context, document string, pages []chunk.Page, opts Options) (*Result, error) {
	start := time.Now()
	document = strings.TrimSpace(document)
	if document == "" {
		return nil, lwerrors.ValidationError("document name is empty", nil)
	}

	chunks, stats, err := i.splitter.ChunkDocument(ctx, document, pages)
	if err != nil {
		return nil, err
	}

	if err := i.acquire(opts.Wait); err != nil {
		return nil, err
	}
	defer func() {
		if err := i.lock.Unlock(); err != nil {
			slog.Warn("ingest_unlock_failed", slog.String("error", err.Error()))
		}
	}()

	removed, err := i.removePrevious(ctx, document, opts.Append)
	if err != nil {
		return nil, err
	}

	total, err := i.addBatches(ctx, document, chunks)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Document:   document,
		Pages:      stats.Pages,
		EmptyPages: stats.EmptyPages,
		Characters: stats.Characters,
		Chunks:     len(chunks),
		Removed:    removed,
		Total:      total,
		Duration:   time.Since(start),
	}
	slog.Info("ingest_complete",
		slog.String("document", document),
		slog.Bool("append", opts.Append),
		slog.Int("chunks", result.Chunks),
		slog.Int("removed", result.Removed),
		slog.Int("total", result.Total),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// Clear removes every chunk under the ingestion lock.
func (i *Ingester) Clear(ctx context.Context, wait bool) (int, error) {
	if err := i.acquire(wait); err != nil {
		return 0, err
	}
	defer func() { _ = i.lock.Unlock() }()

	size, err := i.store.Size(ctx)
	if err != nil {
		return 0, err
	}
	if err := i.store.Clear(ctx); err != nil {
		return 0, err
	}
	slog.Info("store_cleared", slog.Int("removed", size))
	return size, nil
}

func (i *Ingester) acquire(wait bool) error {
	if wait {
		return i.lock.Lock()
	}
	return i.lock.TryLock()
}

func (i *Ingester) removePrevious(ctx context.Context, document string, appendMode bool) (int, error) {
	if appendMode {
		removed, err := i.store.DeleteDocument(ctx, document)
		if err != nil {
			return 0, err
		}
		if removed > 0 {
			slog.Info("document_replaced", slog.String("document", document), slog.Int("removed", removed))
		}
		return removed, nil
	}

	size, err := i.store.Size(ctx)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, nil
	}
	if err := i.store.Clear(ctx); err != nil {
		return 0, err
	}
	slog.Info("store_cleared", slog.Int("removed", size))
	return size, nil
}

func (i *Ingester) addBatches(ctx context.Context, document string, chunks []store.Chunk) (int, error) {
	total, err := i.store.Size(ctx)
	if err != nil {
		return 0, err
	}

	batches := (len(chunks) + i.batchSize - 1) / i.batchSize
	for b := 0; b < batches; b++ {
		lo := b * i.batchSize
		hi := min(lo+i.batchSize, len(chunks))

		total, err = i.store.Add(ctx, chunks[lo:hi])
		if err != nil {
			if _, ok := lwerrors.As(err); ok {
				return 0, err
			}
			return 0, lwerrors.New(lwerrors.ErrCodeIndexFailed,
				fmt.Sprintf("storing batch %d/%d failed", b+1, batches), err).
				WithDetail("document", document)
		}
		slog.Debug("ingest_batch_stored",
			slog.String("document", document),
			slog.Int("batch", b+1),
			slog.Int("batches", batches),
			slog.Int("chunks", hi-lo))
	}
	return total, nil
}
