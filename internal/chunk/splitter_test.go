package chunk

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
	"github.com/Aman-CERP/legalwise/internal/store"
)

func newSplitter(t *testing.T, size, overlap int) *Splitter {
	t.Helper()
	s, err := NewSplitter(Options{Size: size, Overlap: overlap})
	require.NoError(t, err)
	return s
}

// =============================================================================
// SplitText
// =============================================================================

func TestSplitter_ShortTextIsOneTrimmedChunk(t *testing.T) {
	s, err := NewSplitter(DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"Short clause text."}, s.SplitText("  Short clause text.  "))
}

func TestSplitter_EmptyText(t *testing.T) {
	s := newSplitter(t, 40, 0)
	assert.Empty(t, s.SplitText(""))
	assert.Empty(t, s.SplitText("   \n\n  "))
}

func TestSplitter_PrefersParagraphBreaks(t *testing.T) {
	// Given: three paragraphs that do not fit together in 40 characters
	s := newSplitter(t, 40, 0)
	text := "The tenant shall pay rent.\n\nThe landlord shall repair the roof.\n\nNotices must be written."

	// When: splitting
	chunks := s.SplitText(text)

	// Then: one chunk per paragraph
	assert.Equal(t, []string{
		"The tenant shall pay rent.",
		"The landlord shall repair the roof.",
		"Notices must be written.",
	}, chunks)
}

func TestSplitter_SeparatorStartsTheNextPiece(t *testing.T) {
	s := newSplitter(t, 30, 0)

	chunks := s.SplitText("Rent is due. Late fees apply. Deposits are refundable.")

	assert.Equal(t, []string{"Rent is due. Late fees apply", ". Deposits are refundable."}, chunks)
}

func TestSplitter_FallsBackToFinerSeparators(t *testing.T) {
	s := newSplitter(t, 30, 0)

	chunks := s.SplitText("Rent is due on the first day; late fees apply after five days")

	assert.Equal(t, []string{"Rent is due on the first day", "; late fees apply after five", "days"}, chunks)
}

func TestSplitter_Overlap(t *testing.T) {
	// Given: words and a 10 character overlap
	s := newSplitter(t, 20, 10)

	// When: splitting on spaces
	chunks := s.SplitText("one two three four five six seven eight nine ten")

	// Then: trailing words repeat at the start of the next chunk
	assert.Equal(t, []string{
		"one two three four",
		"four five six seven",
		"six seven eight",
		"eight nine ten",
	}, chunks)
}

func TestSplitter_CharacterFallback(t *testing.T) {
	s := newSplitter(t, 10, 0)

	chunks := s.SplitText("abcdefghijklmnopqrstuvwxy")

	assert.Equal(t, []string{"abcdefghij", "klmnopqrst", "uvwxy"}, chunks)
}

func TestSplitter_ChunksNeverExceedSize(t *testing.T) {
	// Given: 2000 random legal words
	words := []string{"tenant", "landlord", "premises", "shall", "notice", "rent", "deposit", "clause"}
	rng := rand.New(rand.NewSource(1))
	parts := make([]string, 2000)
	for i := range parts {
		parts[i] = words[rng.Intn(len(words))]
	}
	s, err := NewSplitter(DefaultOptions())
	require.NoError(t, err)

	// When: splitting with the defaults
	chunks := s.SplitText(strings.Join(parts, " "))

	// Then: every chunk fits
	require.Greater(t, len(chunks), 10)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultSize)
		assert.Equal(t, strings.TrimSpace(c), c)
	}
}

func TestSplitter_CountsCharactersNotBytes(t *testing.T) {
	s := newSplitter(t, 5, 0)

	chunks := s.SplitText("§§§§§§§")

	assert.Equal(t, []string{"§§§§§", "§§"}, chunks)
}

func TestNewSplitter_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"overlap equals size", Options{Size: 100, Overlap: 100}},
		{"overlap above size", Options{Size: 100, Overlap: 150}},
		{"negative size", Options{Size: -1}},
		{"negative overlap", Options{Size: 100, Overlap: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.opts)
			require.Error(t, err)
			assert.Equal(t, lwerrors.ErrCodeConfigInvalid, lwerrors.GetCode(err))
		})
	}
}

func TestNewSplitter_Defaults(t *testing.T) {
	s, err := NewSplitter(Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultSize, s.Options().Size)
	assert.Zero(t, s.Options().Overlap)
	assert.Equal(t, DefaultSeparators, s.Options().Separators)
}

// =============================================================================
// ChunkDocument
// =============================================================================

func TestChunkDocument_IndexesAcrossPages(t *testing.T) {
	// Given: three pages, the middle one blank
	s := newSplitter(t, 40, 0)
	pages := []Page{
		{Number: 1, Text: "The tenant shall pay rent.\n\nThe landlord shall repair the roof.", Method: "native"},
		{Number: 2, Text: "  \n\t ", Method: "empty"},
		{Number: 3, Text: "Notices must be written.", Method: "OCR"},
	}

	// When: chunking the document
	chunks, stats, err := s.ChunkDocument(context.Background(), "lease.pdf", pages)

	// Then: indexes run across pages and the blank page is skipped
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, "lease.pdf", c.Metadata.Document)
		assert.NoError(t, c.Validate())
	}
	assert.Equal(t, 1, chunks[1].Metadata.Page)
	assert.Equal(t, 3, chunks[2].Metadata.Page)
	assert.Equal(t, store.ExtractionNative, chunks[0].Metadata.ExtractionMethod)
	assert.Equal(t, store.ExtractionOCR, chunks[2].Metadata.ExtractionMethod)

	assert.Equal(t, 3, stats.Pages)
	assert.Equal(t, 1, stats.EmptyPages)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 2, stats.ByExtractor[store.ExtractionNative])
}

func TestChunkDocument_CleansBeforeSplitting(t *testing.T) {
	s, err := NewSplitter(DefaultOptions())
	require.NoError(t, err)

	chunks, _, err := s.ChunkDocument(context.Background(), "nda.pdf", []Page{
		{Number: 4, Text: "The recipi-\nent shall keep “Confidential Information” secret."},
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, `The recipient shall keep "Confidential Information" secret.`, chunks[0].Text)
	assert.Equal(t, store.ExtractionUnknown, chunks[0].Metadata.ExtractionMethod)
}

func TestChunkDocument_RejectsInvalidPageNumber(t *testing.T) {
	s := newSplitter(t, 40, 0)

	_, _, err := s.ChunkDocument(context.Background(), "lease.pdf", []Page{{Number: 0, Text: "text"}})

	assert.Equal(t, lwerrors.ErrCodeChunkingFailed, lwerrors.GetCode(err))
}

func TestChunkDocument_Cancelled(t *testing.T) {
	s := newSplitter(t, 40, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.ChunkDocument(ctx, "lease.pdf", []Page{{Number: 1, Text: "text"}})

	assert.ErrorIs(t, err, context.Canceled)
}
