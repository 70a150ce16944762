package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/legalwise/internal/embed"
)

// Backend names a ChunkStore implementation.
type Backend string

const (
	// BackendMemory is an HNSWStore without persistence.
	BackendMemory Backend = "memory"
	// BackendSQLite is an HNSWStore persisted to SQLite (default).
	BackendSQLite Backend = "sqlite"
	// BackendQdrant is a QdrantStore.
	BackendQdrant Backend = "qdrant"
)

// ParseBackend converts a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendMemory, BackendSQLite, BackendQdrant:
		return b, nil
	default:
		return "", fmt.Errorf("unknown store backend %q (use memory, sqlite, or qdrant)", s)
	}
}

// Options configures NewChunkStore.
type Options struct {
	Backend Backend
	// Path is the SQLite database file.
	Path string
	// QdrantURL and Collection locate the Qdrant collection.
	QdrantURL  string
	Collection string
}

// NewChunkStore opens the configured store.
func NewChunkStore(ctx context.Context, opts Options, embedder embed.Embedder) (ChunkStore, error) {
	slog.Debug("chunk_store_opening", slog.String("backend", string(opts.Backend)))

	switch opts.Backend {
	case BackendMemory:
		return NewHNSWStore(ctx, embedder)

	case BackendSQLite, "":
		db, err := OpenSQLiteChunkDB(opts.Path)
		if err != nil {
			return nil, err
		}
		s, err := NewHNSWStore(ctx, embedder, WithPersistence(db))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil

	case BackendQdrant:
		return NewQdrantStore(ctx, QdrantConfig{URL: opts.QdrantURL, Collection: opts.Collection}, embedder)

	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
