package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, no CGO

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

// State keys recorded alongside the chunks.
const (
	StateKeyEmbeddingModel     = "embedding_model"
	StateKeyEmbeddingDimension = "embedding_dimension"
)

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	key               INTEGER PRIMARY KEY,
	id                TEXT NOT NULL UNIQUE,
	text              TEXT NOT NULL,
	document          TEXT NOT NULL,
	page              INTEGER NOT NULL,
	chunk_index       INTEGER NOT NULL,
	extraction_method TEXT NOT NULL,
	embedding         BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document);
CREATE INDEX IF NOT EXISTS idx_chunks_page ON chunks(page);
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// StoredChunk is a persisted chunk with its graph key and embedding.
type StoredChunk struct {
	Key    uint64
	Chunk  Chunk
	Vector []float32
}

// SQLiteChunkDB persists chunks and embeddings so an HNSWStore can rebuild
// its graph on open. It uses WAL mode and a single connection.
type SQLiteChunkDB struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// validateSQLiteIntegrity runs PRAGMA integrity_check on an existing file.
// A missing file is fine.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// OpenSQLiteChunkDB opens or creates the database at path. An empty path
// opens a private in-memory database. A corrupted file is removed and
// recreated empty; the caller must re-ingest.
func OpenSQLiteChunkDB(path string) (*SQLiteChunkDB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, lwerrors.New(lwerrors.ErrCodeFileNotFound, "failed to create store directory", err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("chunk_db_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, lwerrors.New(lwerrors.ErrCodeCorruptIndex,
					fmt.Sprintf("chunk database corrupted at %s and cannot be removed", path), err)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("chunk_db_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, re-ingest required"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, lwerrors.StoreError("failed to open chunk database", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc ignores most DSN parameters, so pragmas are set explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, lwerrors.StoreError("failed to set pragma", err)
		}
	}

	if _, err := db.Exec(chunkSchema); err != nil {
		_ = db.Close()
		return nil, lwerrors.StoreError("failed to create schema", err)
	}

	return &SQLiteChunkDB{db: db, path: path}, nil
}

// Path returns the database file path ("" when in memory).
func (s *SQLiteChunkDB) Path() string { return s.path }

// LoadAll returns every stored chunk in key order.
func (s *SQLiteChunkDB) LoadAll(ctx context.Context) ([]StoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, id, text, document, page, chunk_index, extraction_method, embedding
		FROM chunks ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []StoredChunk
	for rows.Next() {
		var (
			sc     StoredChunk
			method string
			blob   []byte
		)
		if err := rows.Scan(&sc.Key, &sc.Chunk.ID, &sc.Chunk.Text, &sc.Chunk.Metadata.Document,
			&sc.Chunk.Metadata.Page, &sc.Chunk.Metadata.ChunkIndex, &method, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		sc.Chunk.Metadata.ExtractionMethod = ParseExtractionMethod(method)
		if sc.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", sc.Chunk.ID, err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Insert writes chunks in a single transaction.
func (s *SQLiteChunkDB) Insert(ctx context.Context, chunks []StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (key, id, text, document, page, chunk_index, extraction_method, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sc := range chunks {
		md := sc.Chunk.Metadata
		if _, err := stmt.ExecContext(ctx, int64(sc.Key), sc.Chunk.ID, sc.Chunk.Text, md.Document,
			md.Page, md.ChunkIndex, string(md.ExtractionMethod), encodeVector(sc.Vector)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", sc.Chunk.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document's chunks and returns how many.
func (s *SQLiteChunkDB) DeleteDocument(ctx context.Context, document string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document = ?`, document)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear removes every chunk. State entries are kept.
func (s *SQLiteChunkDB) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	return nil
}

// GetState returns a state value, or "" if unset.
func (s *SQLiteChunkDB) GetState(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetState upserts a state value.
func (s *SQLiteChunkDB) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// CheckEmbedding records model and dims on first use and afterwards rejects
// a different dimension, since vectors from different models do not mix.
func (s *SQLiteChunkDB) CheckEmbedding(ctx context.Context, model string, dims int) error {
	stored, err := s.GetState(ctx, StateKeyEmbeddingDimension)
	if err != nil {
		return err
	}
	if stored == "" {
		if err := s.SetState(ctx, StateKeyEmbeddingModel, model); err != nil {
			return err
		}
		return s.SetState(ctx, StateKeyEmbeddingDimension, strconv.Itoa(dims))
	}

	storedDims, err := strconv.Atoi(stored)
	if err != nil {
		return lwerrors.New(lwerrors.ErrCodeCorruptIndex, "stored embedding dimension is not a number", err)
	}
	if storedDims != dims {
		storedModel, _ := s.GetState(ctx, StateKeyEmbeddingModel)
		return lwerrors.New(lwerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("store was built with %s (%d dims), current embedder %s has %d dims",
				storedModel, storedDims, model, dims), ErrDimensionMismatch{Expected: storedDims, Got: dims}).
			WithSuggestion("run 'legalwise clear' and re-ingest")
	}
	return nil
}

// Close closes the database.
func (s *SQLiteChunkDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has invalid length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
