package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/quillindex/quill/internal/connectors"
)

// Chunker splits one document into index-ready chunks. Chunking is pure:
// the same document always produces the same chunks, which keeps repeated
// indexing of unchanged documents idempotent downstream.
type Chunker interface {
	Chunk(document *connectors.Document) ([]IndexChunk, error)
}

// Options configures the default chunker.
type Options struct {
	ChunkSize int // character budget per chunk (default: DefaultChunkSize)
}

// DefaultChunker packs whole sections greedily and hard-splits sections
// larger than the budget. Split pieces carry no overlapping text.
type DefaultChunker struct {
	chunkSize int
}

var _ Chunker = (*DefaultChunker)(nil)

// NewChunker creates a chunker with default options.
func NewChunker() *DefaultChunker {
	return NewChunkerWithOptions(Options{})
}

// NewChunkerWithOptions creates a chunker with custom options.
func NewChunkerWithOptions(opts Options) *DefaultChunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &DefaultChunker{chunkSize: opts.ChunkSize}
}

// Chunk splits a document into chunks with contiguous 0-based IDs.
// A document with no sections (or only empty ones) yields no chunks.
func (c *DefaultChunker) Chunk(document *connectors.Document) ([]IndexChunk, error) {
	blurb := extractBlurb(document)

	var chunks []IndexChunk
	var content strings.Builder
	links := map[int]string{}

	add := func(text string, sourceLinks map[int]string, continuation bool) {
		chunks = append(chunks, IndexChunk{
			BaseChunk: BaseChunk{
				ChunkID:             len(chunks),
				Blurb:               blurb,
				Content:             text,
				SourceLinks:         sourceLinks,
				SectionContinuation: continuation,
			},
			SourceDocument: document,
		})
	}

	flush := func() {
		if content.Len() == 0 {
			return
		}
		add(content.String(), links, false)
		content.Reset()
		links = map[int]string{}
	}

	for _, section := range document.Sections {
		text := section.Text
		if strings.TrimSpace(text) == "" {
			continue
		}

		if len(text) > c.chunkSize {
			flush()
			for i, piece := range splitOversized(text, c.chunkSize) {
				add(piece, map[int]string{0: section.Link}, i > 0)
			}
			continue
		}

		if content.Len() > 0 && content.Len()+len(SectionSeparator)+len(text) > c.chunkSize {
			flush()
		}
		if content.Len() > 0 {
			content.WriteString(SectionSeparator)
		}
		links[content.Len()] = section.Link
		content.WriteString(text)
	}
	flush()

	return chunks, nil
}

// splitOversized cuts text into pieces of at most max bytes, never splitting
// a UTF-8 rune. Pieces share no text.
func splitOversized(text string, max int) []string {
	var pieces []string
	for len(text) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		pieces = append(pieces, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		pieces = append(pieces, text)
	}
	return pieces
}

// SplitMiniChunks cuts chunk content into pieces of at most MiniChunkSize
// bytes for finer-grained embedding. Used only when mini-chunking is on.
func SplitMiniChunks(content string) []string {
	return splitOversized(content, MiniChunkSize)
}

// extractBlurb takes a whitespace-normalized, word-boundary preview from
// the document's first non-empty section.
func extractBlurb(document *connectors.Document) string {
	for _, section := range document.Sections {
		text := strings.Join(strings.Fields(section.Text), " ")
		if text == "" {
			continue
		}
		if len(text) <= BlurbLength {
			return text
		}
		cut := strings.LastIndex(text[:BlurbLength], " ")
		if cut <= 0 {
			cut = BlurbLength
		}
		return text[:cut]
	}
	return ""
}
