package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVectorStore(t *testing.T, dims int) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(DefaultVectorStoreConfig(dims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHNSWAddAndSearch(t *testing.T) {
	s := newVectorStore(t, 3)
	ctx := context.Background()

	err := s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)

	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Greater(t, results[0].Score, float32(0.9))
}

func TestHNSWDimensionMismatch(t *testing.T) {
	s := newVectorStore(t, 3)
	ctx := context.Background()

	err := s.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)

	_, err = s.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorAs(t, err, &mismatch)
}

func TestHNSWReplaceSameID(t *testing.T) {
	s := newVectorStore(t, 3)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0}}))
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{0, 1, 0}}))

	assert.Equal(t, 1, s.Count())

	results, err := s.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestHNSWLazyDelete(t *testing.T) {
	s := newVectorStore(t, 3)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx,
		[]string{"keep", "drop"},
		[][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.Delete(ctx, []string{"drop"}))

	assert.False(t, s.Contains("drop"))
	assert.True(t, s.Contains("keep"))
	assert.Equal(t, 1, s.Count())

	// The orphaned node never surfaces in results.
	results, err := s.Search(ctx, []float32{0, 1, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "drop", r.ChunkID)
	}
}

func TestHNSWSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")
	ctx := context.Background()

	s := newVectorStore(t, 3)
	require.NoError(t, s.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.Save(path))

	restored, err := NewHNSWStore(DefaultVectorStoreConfig(3))
	require.NoError(t, err)
	defer restored.Close()
	require.NoError(t, restored.Load(path))

	assert.Equal(t, 2, restored.Count())
	results, err := restored.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestHNSWEmptySearch(t *testing.T) {
	s := newVectorStore(t, 3)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, results)
}
