package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// WhitespaceTokenizerName splits on Unicode whitespace only, keeping
	// punctuation attached ("5(b)," stays one token) like tokenize.
	WhitespaceTokenizerName = "legal_whitespace"

	// LegalAnalyzerName is whitespace tokenization plus lower-casing.
	LegalAnalyzerName = "legal_analyzer"

	bleveContentField = "content"
)

func init() {
	_ = registry.RegisterTokenizer(WhitespaceTokenizerName, whitespaceTokenizerConstructor)
}

// bleveDocument is the indexed form of a chunk.
type bleveDocument struct {
	Content string `json:"content"`
}

// bleveIndex is an in-memory bleve index over one snapshot. Document IDs
// are snapshot positions.
type bleveIndex struct {
	index bleve.Index
}

var _ sparseScorer = (*bleveIndex)(nil)

func newBleveMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(LegalAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": WhitespaceTokenizerName,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = LegalAnalyzerName
	return indexMapping, nil
}

// newBleveIndex builds a memory-only index of texts.
func newBleveIndex(ctx context.Context, texts []string) (*bleveIndex, error) {
	indexMapping, err := newBleveMapping()
	if err != nil {
		return nil, err
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	batch := idx.NewBatch()
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			_ = idx.Close()
			return nil, err
		}
		if err := batch.Index(strconv.Itoa(i), bleveDocument{Content: text}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index chunk %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to execute batch: %w", err)
	}

	return &bleveIndex{index: idx}, nil
}

func (b *bleveIndex) search(ctx context.Context, query string, k int) ([]scoredDoc, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField(bleveContentField)

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = k

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	out := make([]scoredDoc, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if hit.Score <= 0 {
			continue
		}
		pos, err := strconv.Atoi(hit.ID)
		if err != nil {
			return nil, fmt.Errorf("unexpected bleve document id %q", hit.ID)
		}
		out = append(out, scoredDoc{pos: pos, score: hit.Score})
	}
	return out, nil
}

func (b *bleveIndex) close() error {
	return b.index.Close()
}

func whitespaceTokenizerConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	return &whitespaceTokenizer{}, nil
}

// whitespaceTokenizer implements analysis.Tokenizer.
type whitespaceTokenizer struct{}

// Tokenize emits maximal runs of non-space runes with byte offsets.
func (t *whitespaceTokenizer) Tokenize(input []byte) analysis.TokenStream {
	stream := make(analysis.TokenStream, 0, 16)
	pos := 1
	start := -1

	emit := func(end int) {
		stream = append(stream, &analysis.Token{
			Term:     input[start:end],
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		start = -1
	}

	for i := 0; i < len(input); {
		r, size := utf8.DecodeRune(input[i:])
		if unicode.IsSpace(r) {
			if start >= 0 {
				emit(i)
			}
		} else if start < 0 {
			start = i
		}
		i += size
	}
	if start >= 0 {
		emit(len(input))
	}
	return stream
}
