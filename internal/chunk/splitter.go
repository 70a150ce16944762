package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
	"github.com/Aman-CERP/legalwise/internal/store"
)

// Splitter is a recursive character splitter. It splits on the coarsest
// separator present, recurses into pieces that are still too long with the
// finer separators, and merges small pieces back up to Size with Overlap
// characters of carry-over. A Splitter is stateless and safe for concurrent
// use.
type Splitter struct {
	options Options
}

// DefaultOptions returns the 800/150 character configuration.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap, Separators: DefaultSeparators}
}

// NewSplitter creates a splitter. A zero Size or nil Separators take the
// defaults; a zero Overlap means no overlap.
func NewSplitter(opts Options) (*Splitter, error) {
	if opts.Size == 0 {
		opts.Size = DefaultSize
	}
	if len(opts.Separators) == 0 {
		opts.Separators = DefaultSeparators
	}
	if opts.Size < 0 || opts.Overlap < 0 {
		return nil, lwerrors.ConfigError(
			fmt.Sprintf("chunk size and overlap must not be negative, got %d and %d", opts.Size, opts.Overlap), nil)
	}
	if opts.Overlap >= opts.Size {
		return nil, lwerrors.ConfigError(
			fmt.Sprintf("chunk overlap %d must be smaller than chunk size %d", opts.Overlap, opts.Size), nil).
			WithSuggestion("Set chunking.overlap below chunking.size")
	}
	return &Splitter{options: opts}, nil
}

// Options returns the effective options.
func (s *Splitter) Options() Options {
	return s.options
}

// SplitText splits text into trimmed, non-empty chunks. Text that cannot be
// split further than a single over-long piece is returned as is.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.options.Separators)
}

// ChunkDocument cleans and splits each page and returns chunks carrying the
// document name, page number, and a chunk index that runs across pages from
// zero. Pages that are empty after cleaning produce no chunks.
func (s *Splitter) ChunkDocument(ctx context.Context, document string, pages []Page) ([]store.Chunk, Stats, error) {
	stats := Stats{Pages: len(pages), ByExtractor: make(map[store.ExtractionMethod]int)}
	var chunks []store.Chunk

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if page.Number < 1 {
			return nil, stats, lwerrors.New(lwerrors.ErrCodeChunkingFailed,
				fmt.Sprintf("page number must be >= 1, got %d", page.Number), nil).
				WithDetail("document", document)
		}

		cleaned := Clean(page.Text)
		if cleaned == "" {
			stats.EmptyPages++
			continue
		}

		method := store.ParseExtractionMethod(page.Method)
		for _, text := range s.SplitText(cleaned) {
			chunks = append(chunks, store.Chunk{
				Text: text,
				Metadata: store.Metadata{
					Document:         document,
					Page:             page.Number,
					ChunkIndex:       len(chunks),
					ExtractionMethod: method,
				},
			})
			stats.ByExtractor[method]++
			stats.Characters += utf8.RuneCountInString(text)
		}
	}
	stats.Chunks = len(chunks)

	slog.Info("chunking_complete",
		slog.String("document", document),
		slog.Int("pages", stats.Pages),
		slog.Int("empty_pages", stats.EmptyPages),
		slog.Int("chunks", stats.Chunks),
		slog.Int("size", s.options.Size),
		slog.Int("overlap", s.options.Overlap))

	return chunks, stats, nil
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var final, small []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.options.Size {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			final = append(final, s.merge(small)...)
			small = nil
		}
		if len(finer) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, finer)...)
		}
	}
	if len(small) > 0 {
		final = append(final, s.merge(small)...)
	}
	return final
}

// merge packs pieces into chunks of at most Size characters. When a chunk is
// emitted, pieces are dropped from its front until at most Overlap
// characters remain to start the next one.
func (s *Splitter) merge(pieces []string) []string {
	var chunks, current []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.options.Size && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.options.Overlap || (total+n > s.options.Size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepingSeparator splits text on sep and re-attaches each separator to
// the start of the piece that follows it. Empty pieces are dropped.
func splitKeepingSeparator(text, sep string) []string {
	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	for i, part := range strings.Split(text, sep) {
		if i > 0 {
			part = sep + part
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
