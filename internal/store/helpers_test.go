package store

import (
	"fmt"

	"github.com/Aman-CERP/legalwise/internal/embed"
)

func testEmbedder() embed.Embedder {
	return embed.NewStaticEmbedder(64)
}

func makeChunk(doc string, page, idx int, text string) Chunk {
	return Chunk{
		Text: text,
		Metadata: Metadata{
			Document:         doc,
			Page:             page,
			ChunkIndex:       idx,
			ExtractionMethod: ExtractionNative,
		},
	}
}

// leaseChunks returns n chunks of distinct text spread over pages.
func leaseChunks(doc string, n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = makeChunk(doc, i/3+1, i, fmt.Sprintf("Clause %d of %s: the tenant covenant number %d applies.", i, doc, i))
	}
	return chunks
}

func texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
