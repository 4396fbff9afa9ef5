package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillindex/quill/internal/chunk"
	"github.com/quillindex/quill/internal/connectors"
	"github.com/quillindex/quill/internal/docindex"
	"github.com/quillindex/quill/internal/embed"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "stop words removed and terms stemmed",
			query: "Where is the Eiffel Tower?",
			want:  "eiffel tower",
		},
		{
			name:  "inflected forms reduced",
			query: "running quickly towards buildings",
			want:  "run quickli toward build",
		},
		{
			name:  "case insensitive stop words",
			query: "The THE the tower",
			want:  "tower",
		},
		{
			name:  "all stop words leaves empty string",
			query: "is the of and",
			want:  "",
		},
		{
			name:  "empty query",
			query: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuery(tt.query))
		})
	}
}

func newRetriever(t *testing.T) (*Retriever, *docindex.LocalIndex) {
	t.Helper()

	idx, err := docindex.Open(docindex.Config{
		DataDir:  t.TempDir(),
		Embedder: embed.NewStaticEmbedder(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	return NewRetriever(idx, nil), idx
}

func indexText(t *testing.T, idx *docindex.LocalIndex, docID, text string) {
	t.Helper()
	ctx := context.Background()

	doc := &connectors.Document{
		ID:                 docID,
		Source:             connectors.SourceFile,
		SemanticIdentifier: docID,
		Sections:           []connectors.Section{{Link: docID, Text: text}},
		UpdatedAt:          time.Now(),
	}
	chunks, err := chunk.NewChunker().Chunk(doc)
	require.NoError(t, err)

	embedded, err := embed.NewChunkEmbedder(embed.NewStaticEmbedder(), embed.ChunkEmbedderOptions{}).
		EmbedChunks(ctx, chunks)
	require.NoError(t, err)

	_, err = idx.Index(ctx, embedded, connectors.IndexAttemptMetadata{ConnectorID: 1, CredentialID: 10})
	require.NoError(t, err)
}

func TestRetrieveKeywordNormalizesQuery(t *testing.T) {
	r, idx := newRetriever(t)
	indexText(t, idx, "doc1", "the eiffel tower stands in paris")

	results, found, err := r.RetrieveKeyword(context.Background(), "Where is the Eiffel Tower?", docindex.Filters{}, 10)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "doc1", results[0].DocumentID)
}

func TestRetrieveKeywordNoResultsIsNotAnError(t *testing.T) {
	r, idx := newRetriever(t)
	indexText(t, idx, "doc1", "the eiffel tower stands in paris")

	results, found, err := r.RetrieveKeyword(context.Background(), "zanzibar spice markets", docindex.Filters{}, 10)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, results)
}

func TestRetrieveSemantic(t *testing.T) {
	r, idx := newRetriever(t)
	indexText(t, idx, "doc1", "the eiffel tower stands in paris")
	indexText(t, idx, "doc2", "golden gate bridge over the bay")

	results, found, err := r.RetrieveSemantic(context.Background(), "eiffel tower paris", docindex.Filters{}, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "doc1", results[0].DocumentID)
}

func TestRetrieveHybrid(t *testing.T) {
	r, idx := newRetriever(t)
	indexText(t, idx, "doc1", "the eiffel tower stands in paris")
	indexText(t, idx, "doc2", "golden gate bridge over the bay")

	results, found, err := r.RetrieveHybrid(context.Background(), "eiffel tower", docindex.Filters{}, 10)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "doc1", results[0].DocumentID)
}
