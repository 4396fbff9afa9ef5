package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillindex/quill/internal/connectors"
)

func doc(id string, sections ...connectors.Section) *connectors.Document {
	return &connectors.Document{
		ID:                 id,
		Source:             connectors.SourceFile,
		SemanticIdentifier: id,
		Sections:           sections,
	}
}

func TestChunkSingleSmallSection(t *testing.T) {
	chunker := NewChunker()

	chunks, err := chunker.Chunk(doc("doc1", connectors.Section{Link: "file://doc1", Text: "hello world"}))

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkID)
	assert.Equal(t, "hello world", chunks[0].Content)
	assert.Equal(t, "hello world", chunks[0].Blurb)
	assert.False(t, chunks[0].SectionContinuation)
	assert.Equal(t, map[int]string{0: "file://doc1"}, chunks[0].SourceLinks)
}

func TestChunkNoSections(t *testing.T) {
	chunker := NewChunker()

	chunks, err := chunker.Chunk(doc("empty"))

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkSkipsWhitespaceOnlySections(t *testing.T) {
	chunker := NewChunker()

	chunks, err := chunker.Chunk(doc("ws",
		connectors.Section{Link: "a", Text: "   \n\t "},
		connectors.Section{Link: "b", Text: "real content"},
	))

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "real content", chunks[0].Content)
}

func TestChunkPacksSectionsUpToBudget(t *testing.T) {
	chunker := NewChunkerWithOptions(Options{ChunkSize: 30})

	chunks, err := chunker.Chunk(doc("packed",
		connectors.Section{Link: "s1", Text: "first part"},  // 10 chars
		connectors.Section{Link: "s2", Text: "second part"}, // fits with separator
		connectors.Section{Link: "s3", Text: "third part overflows"},
	))

	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "first part"+SectionSeparator+"second part", chunks[0].Content)
	assert.Equal(t, map[int]string{0: "s1", 12: "s2"}, chunks[0].SourceLinks)
	assert.Equal(t, "third part overflows", chunks[1].Content)
	assert.Equal(t, []int{0, 1}, []int{chunks[0].ChunkID, chunks[1].ChunkID})
}

func TestChunkHardSplitsOversizedSection(t *testing.T) {
	chunker := NewChunkerWithOptions(Options{ChunkSize: 10})
	text := "aaaaaaaaaabbbbbbbbbbcc" // 22 chars -> 10, 10, 2

	chunks, err := chunker.Chunk(doc("big", connectors.Section{Link: "s", Text: text}))

	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// Pieces share no text and reassemble exactly.
	var rebuilt strings.Builder
	for _, c := range chunks {
		rebuilt.WriteString(c.Content)
	}
	assert.Equal(t, text, rebuilt.String())

	assert.False(t, chunks[0].SectionContinuation)
	assert.True(t, chunks[1].SectionContinuation)
	assert.True(t, chunks[2].SectionContinuation)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkID)
		assert.Equal(t, map[int]string{0: "s"}, c.SourceLinks)
	}
}

func TestChunkHardSplitRespectsRuneBoundaries(t *testing.T) {
	chunker := NewChunkerWithOptions(Options{ChunkSize: 5})
	text := "日本語のテキスト" // 3-byte runes; naive byte cuts would corrupt them

	chunks, err := chunker.Chunk(doc("utf8", connectors.Section{Link: "s", Text: text}))

	require.NoError(t, err)
	for _, c := range chunks {
		assert.True(t, strings.ToValidUTF8(c.Content, "?") == c.Content,
			"chunk content must stay valid UTF-8: %q", c.Content)
	}
}

func TestChunkDeterministic(t *testing.T) {
	chunker := NewChunker()
	d := doc("det",
		connectors.Section{Link: "a", Text: strings.Repeat("alpha beta ", 300)},
		connectors.Section{Link: "b", Text: "short tail"},
	)

	first, err := chunker.Chunk(d)
	require.NoError(t, err)
	second, err := chunker.Chunk(d)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExtractBlurbWordBoundary(t *testing.T) {
	long := strings.Repeat("word ", 100) // 500 chars
	d := doc("blurb", connectors.Section{Link: "s", Text: long})

	chunker := NewChunker()
	chunks, err := chunker.Chunk(d)

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	blurb := chunks[0].Blurb
	assert.LessOrEqual(t, len(blurb), BlurbLength)
	assert.False(t, strings.HasSuffix(blurb, " "))
	// All chunks of one document share the blurb.
	for _, c := range chunks {
		assert.Equal(t, blurb, c.Blurb)
	}
}

func TestSplitMiniChunks(t *testing.T) {
	content := strings.Repeat("x", MiniChunkSize*2+10)

	pieces := SplitMiniChunks(content)

	require.Len(t, pieces, 3)
	assert.Equal(t, content, strings.Join(pieces, ""))
}
