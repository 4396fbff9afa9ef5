package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemIndex(t *testing.T) *BleveBM25Index {
	t.Helper()
	idx, err := NewBleveBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBM25IndexAndSearch(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	err := idx.Index(ctx, []*IndexEntry{
		{ID: "c1", Content: "the eiffel tower stands in paris"},
		{ID: "c2", Content: "the golden gate bridge spans the bay"},
	})
	require.NoError(t, err)

	results, err := idx.Search(ctx, "eiffel tower", 10)
	require.NoError(t, err)

	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.Contains(t, results[0].MatchedTerms, "eiffel")
}

func TestBM25ReindexReplaces(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*IndexEntry{{ID: "c1", Content: "original topic"}}))
	require.NoError(t, idx.Index(ctx, []*IndexEntry{{ID: "c1", Content: "replacement topic"}}))

	results, err := idx.Search(ctx, "original", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.Equal(t, 1, idx.Stats().ChunkCount)
}

func TestBM25Delete(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*IndexEntry{{ID: "c1", Content: "deletable content"}}))
	require.NoError(t, idx.Delete(ctx, []string{"c1"}))

	results, err := idx.Search(ctx, "deletable", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBM25EmptyQuery(t *testing.T) {
	idx := newMemIndex(t)

	results, err := idx.Search(context.Background(), "   ", 10)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBM25ClosedIndex(t *testing.T) {
	idx := newMemIndex(t)
	require.NoError(t, idx.Close())

	_, err := idx.Search(context.Background(), "anything", 10)
	assert.Error(t, err)

	err = idx.Index(context.Background(), []*IndexEntry{{ID: "x", Content: "y"}})
	assert.Error(t, err)
}
