// Package chunk splits documents into retrievable units. A chunk packs as
// many whole sections as fit its character budget; a section too large for
// one chunk is hard-split across several, marked as continuations.
package chunk

import "github.com/quillindex/quill/internal/connectors"

const (
	// DefaultChunkSize is the character budget of one chunk.
	DefaultChunkSize = 2000
	// BlurbLength caps the word-boundary preview taken from a document's
	// first section and shared by all of its chunks.
	BlurbLength = 200
	// MiniChunkSize is the character budget of the optional sub-chunks
	// embedded alongside the full chunk for finer-grained matching.
	MiniChunkSize = 150
	// SectionSeparator joins sections packed into the same chunk.
	SectionSeparator = "\n\n"
)

// BaseChunk is the part of a chunk shared between indexing and retrieval.
type BaseChunk struct {
	// ChunkID is the 0-based position of this chunk within its document.
	// IDs are contiguous regardless of how sections were packed or split.
	ChunkID int
	// Blurb is the document preview, identical across the document's chunks.
	Blurb   string
	Content string
	// SourceLinks maps a character offset within Content to the citation
	// link of the section starting there.
	SourceLinks map[int]string
	// SectionContinuation is true when this chunk holds a middle or tail
	// piece of a section that was split across chunks.
	SectionContinuation bool
}

// IndexChunk is a chunk on its way into the index, still attached to the
// document it came from.
type IndexChunk struct {
	BaseChunk
	SourceDocument *connectors.Document
}

// ChunkEmbedding holds the vectors for one chunk. MiniChunkEmbeddings is
// empty unless mini-chunking is enabled.
type ChunkEmbedding struct {
	FullEmbedding       []float32
	MiniChunkEmbeddings [][]float32
}

// EmbeddedIndexChunk is an IndexChunk with its embedding attached, ready
// for the document index.
type EmbeddedIndexChunk struct {
	IndexChunk
	Embeddings ChunkEmbedding
}

// InferenceChunk is a chunk coming back out of the index at query time.
// It carries the document fields needed to render a result without loading
// the source document.
type InferenceChunk struct {
	BaseChunk
	DocumentID         string
	Source             connectors.Source
	SemanticIdentifier string
	Score              float64
	Boost              int
	MatchedTerms       []string
	Metadata           map[string]string
}

// ShortDescriptor identifies a chunk in logs without dumping content.
func (c *IndexChunk) ShortDescriptor() string {
	if c.SourceDocument == nil {
		return "Chunk ID: '?'"
	}
	return c.SourceDocument.ShortDescriptor()
}
