package embed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillindex/quill/internal/chunk"
	"github.com/quillindex/quill/internal/errors"
)

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	first, err := e.Embed(context.Background(), "the eiffel tower is in paris")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "the eiffel tower is in paris")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, StaticDimensions)
}

func TestStaticEmbedderNormalized(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "some document content")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-5)
}

func TestStaticEmbedderEmptyText(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)

	assert.Equal(t, make([]float32, StaticDimensions), vec)
}

func TestStaticEmbedderClosed(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")

	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

// countingEmbedder records backend calls for cache tests.
type countingEmbedder struct {
	*StaticEmbedder
	batchCalls int
	textsSeen  int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	c.textsSeen += len(texts)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.textsSeen++
	return c.StaticEmbedder.Embed(ctx, text)
}

func TestCachedEmbedderHit(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)

	first, err := cached.Embed(context.Background(), "repeated query")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "repeated query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.textsSeen)
}

func TestCachedEmbedderBatchOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)

	_, err := cached.Embed(context.Background(), "warm")
	require.NoError(t, err)
	inner.textsSeen = 0

	results, err := cached.EmbedBatch(context.Background(), []string{"warm", "cold"})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, 1, inner.textsSeen)
}

// failingEmbedder fails every call after the first n successes.
type failingEmbedder struct {
	*StaticEmbedder
	succeedCalls int
	calls        int
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls > f.succeedCalls {
		return nil, fmt.Errorf("backend unavailable")
	}
	return f.StaticEmbedder.EmbedBatch(ctx, texts)
}

func makeChunks(n int) []chunk.IndexChunk {
	chunks := make([]chunk.IndexChunk, n)
	for i := range chunks {
		chunks[i] = chunk.IndexChunk{
			BaseChunk: chunk.BaseChunk{ChunkID: i, Content: fmt.Sprintf("content of chunk %d", i)},
		}
	}
	return chunks
}

func fastRetry() errors.RetryConfig {
	return errors.RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestEmbedChunksCountAndOrder(t *testing.T) {
	e := NewChunkEmbedder(NewStaticEmbedder(), ChunkEmbedderOptions{BatchSize: 2, Retry: fastRetry()})
	chunks := makeChunks(5)

	embedded, err := e.EmbedChunks(context.Background(), chunks)

	require.NoError(t, err)
	require.Len(t, embedded, len(chunks))
	for i, ec := range embedded {
		assert.Equal(t, chunks[i].ChunkID, ec.ChunkID)
		assert.Len(t, ec.Embeddings.FullEmbedding, StaticDimensions)
		assert.Empty(t, ec.Embeddings.MiniChunkEmbeddings)
	}
}

func TestEmbedChunksAllOrNothing(t *testing.T) {
	// Given a backend that only survives the first batch
	inner := &failingEmbedder{StaticEmbedder: NewStaticEmbedder(), succeedCalls: 1}
	e := NewChunkEmbedder(inner, ChunkEmbedderOptions{BatchSize: 2, Retry: fastRetry()})

	// When embedding more chunks than fit one batch
	embedded, err := e.EmbedChunks(context.Background(), makeChunks(5))

	// Then no chunks at all are returned
	require.Error(t, err)
	assert.Nil(t, embedded)
	assert.Equal(t, errors.ErrCodeEmbeddingFailed, errors.GetCode(err))
}

func TestEmbedChunksEmptyInput(t *testing.T) {
	e := NewChunkEmbedder(NewStaticEmbedder(), ChunkEmbedderOptions{})

	embedded, err := e.EmbedChunks(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, embedded)
}

func TestEmbedChunksMiniChunks(t *testing.T) {
	e := NewChunkEmbedder(NewStaticEmbedder(), ChunkEmbedderOptions{EnableMiniChunks: true, Retry: fastRetry()})

	long := chunk.IndexChunk{BaseChunk: chunk.BaseChunk{
		ChunkID: 0, Content: strings.Repeat("x", chunk.MiniChunkSize*2+10),
	}}
	short := chunk.IndexChunk{BaseChunk: chunk.BaseChunk{ChunkID: 1, Content: "short"}}

	embedded, err := e.EmbedChunks(context.Background(), []chunk.IndexChunk{long, short})

	require.NoError(t, err)
	require.Len(t, embedded, 2)
	assert.Len(t, embedded[0].Embeddings.MiniChunkEmbeddings, 3)
	assert.Empty(t, embedded[1].Embeddings.MiniChunkEmbeddings)
}
