package embed

import (
	"context"
	"fmt"

	"github.com/quillindex/quill/internal/chunk"
	"github.com/quillindex/quill/internal/errors"
)

// ChunkEmbedderOptions configures batch embedding of chunks.
type ChunkEmbedderOptions struct {
	// BatchSize is the number of texts per backend call.
	BatchSize int
	// EnableMiniChunks also embeds sub-chunk pieces for finer matching.
	// Off by default: it multiplies embedding cost per chunk.
	EnableMiniChunks bool
	// Retry controls backoff on transient backend failures. Zero value
	// means errors.DefaultRetryConfig.
	Retry errors.RetryConfig
}

// ChunkEmbedder embeds a batch of chunks against a backend. The contract is
// all-or-nothing: either every chunk comes back embedded, in input order,
// or the whole batch fails. Partially embedded batches never reach the
// index, so a document is always fully searchable or not indexed at all.
type ChunkEmbedder struct {
	embedder   Embedder
	batchSize  int
	miniChunks bool
	retry      errors.RetryConfig
}

// NewChunkEmbedder creates a ChunkEmbedder over the given backend.
func NewChunkEmbedder(embedder Embedder, opts ChunkEmbedderOptions) *ChunkEmbedder {
	if opts.BatchSize < MinBatchSize || opts.BatchSize > MaxBatchSize {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialDelay == 0 {
		opts.Retry = errors.DefaultRetryConfig()
	}
	return &ChunkEmbedder{
		embedder:   embedder,
		batchSize:  opts.BatchSize,
		miniChunks: opts.EnableMiniChunks,
		retry:      opts.Retry,
	}
}

// EmbedChunks embeds every chunk and returns exactly one embedded chunk per
// input, in input order. Any backend failure fails the entire call.
func (e *ChunkEmbedder) EmbedChunks(ctx context.Context, chunks []chunk.IndexChunk) ([]chunk.EmbeddedIndexChunk, error) {
	if len(chunks) == 0 {
		return []chunk.EmbeddedIndexChunk{}, nil
	}

	// Flatten full contents plus optional mini-chunk pieces into one text
	// list so batching cuts across chunk boundaries.
	type span struct {
		full  int
		minis []int
	}
	var texts []string
	spans := make([]span, len(chunks))
	for i, c := range chunks {
		spans[i].full = len(texts)
		texts = append(texts, c.Content)
		if e.miniChunks {
			pieces := chunk.SplitMiniChunks(c.Content)
			if len(pieces) > 1 {
				for _, piece := range pieces {
					spans[i].minis = append(spans[i].minis, len(texts))
					texts = append(texts, piece)
				}
			}
		}
	}

	vectors, err := e.embedAll(ctx, texts)
	if err != nil {
		return nil, errors.EmbeddingError(
			fmt.Sprintf("embedding %d chunks failed, none were indexed", len(chunks)), err).
			WithDetail("model", e.embedder.ModelName())
	}

	embedded := make([]chunk.EmbeddedIndexChunk, len(chunks))
	for i, c := range chunks {
		emb := chunk.ChunkEmbedding{FullEmbedding: vectors[spans[i].full]}
		for _, idx := range spans[i].minis {
			emb.MiniChunkEmbeddings = append(emb.MiniChunkEmbeddings, vectors[idx])
		}
		embedded[i] = chunk.EmbeddedIndexChunk{IndexChunk: c, Embeddings: emb}
	}
	return embedded, nil
}

// embedAll runs the backend in batches, retrying each batch on transient
// failures, and validates counts and dimensions.
func (e *ChunkEmbedder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	want := e.embedder.Dimensions()
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		var result [][]float32
		err := errors.Retry(ctx, e.retry, func() error {
			var embedErr error
			result, embedErr = e.embedder.EmbedBatch(ctx, batch)
			return embedErr
		})
		if err != nil {
			return nil, err
		}
		if len(result) != len(batch) {
			return nil, errors.New(errors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("backend returned %d vectors for %d texts", len(result), len(batch)), nil)
		}
		for _, vec := range result {
			if len(vec) != want {
				return nil, errors.New(errors.ErrCodeDimensionMismatch,
					fmt.Sprintf("backend returned %d dimensions, expected %d", len(vec), want), nil).
					WithDetail("model", e.embedder.ModelName())
			}
		}
		vectors = append(vectors, result...)
	}
	return vectors, nil
}
