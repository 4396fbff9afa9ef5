// Package pipeline wires connectors, chunking, embedding and the document
// index into one ingestion flow. Documents are chunked concurrently, embedded
// all-or-nothing, and landed in the index together with their ownership
// records.
package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/quillindex/quill/internal/chunk"
	"github.com/quillindex/quill/internal/connectors"
	"github.com/quillindex/quill/internal/docindex"
	"github.com/quillindex/quill/internal/embed"
	"github.com/quillindex/quill/internal/errors"
	"github.com/quillindex/quill/internal/store"
)

// Pipeline turns raw connector documents into indexed, searchable chunks.
type Pipeline struct {
	chunker  chunk.Chunker
	embedder *embed.ChunkEmbedder
	index    docindex.DocumentIndex
	meta     store.MetadataStore
	pool     *ants.Pool
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent chunking.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// New creates an ingestion pipeline over the given components. The metadata
// store must be the one backing the index so that ownership records and
// chunks land in the same database.
func New(
	chunker chunk.Chunker,
	embedder *embed.ChunkEmbedder,
	index docindex.DocumentIndex,
	meta store.MetadataStore,
	opts ...Option,
) (*Pipeline, error) {
	if chunker == nil {
		return nil, errors.InternalError("pipeline requires a chunker", nil)
	}
	if embedder == nil {
		return nil, errors.InternalError("pipeline requires a chunk embedder", nil)
	}
	if index == nil {
		return nil, errors.InternalError("pipeline requires a document index", nil)
	}
	if meta == nil {
		return nil, errors.InternalError("pipeline requires a metadata store", nil)
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		meta:     meta,
		pool:     pool,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	return p, nil
}

// Release releases the worker pool. The pipeline should not be used after
// calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Index ingests one batch of documents for the given connector/credential
// pair. It returns the number of net-new distinct documents and the total
// number of chunks indexed. Re-running the same batch yields zero net-new
// documents but the same chunk count.
func (p *Pipeline) Index(ctx context.Context, docs []connectors.Document, metadata connectors.IndexAttemptMetadata) (int, int, error) {
	if len(docs) == 0 {
		return 0, 0, nil
	}

	chunked, err := p.chunkAll(docs)
	if err != nil {
		return 0, 0, err
	}

	flat := make([]chunk.IndexChunk, 0, len(docs))
	for i := range docs {
		p.logger.Debug("chunked document",
			"document", docs[i].ShortDescriptor(),
			"chunks", len(chunked[i]))
		flat = append(flat, chunked[i]...)
	}
	if len(flat) == 0 {
		return 0, 0, nil
	}

	embedded, err := p.embedder.EmbedChunks(ctx, flat)
	if err != nil {
		return 0, 0, err
	}

	records, err := p.index.Index(ctx, embedded, metadata)
	if err != nil {
		return 0, 0, err
	}

	// Count each distinct document once, whatever record granularity the
	// index produced.
	docIDs := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	netNew := 0
	for _, record := range records {
		if _, dup := seen[record.DocumentID]; dup {
			continue
		}
		seen[record.DocumentID] = struct{}{}
		docIDs = append(docIDs, record.DocumentID)
		if !record.AlreadyExisted {
			netNew++
		}
	}

	// Document rows first, then the ownership edges referencing them.
	if err := p.meta.UpsertDocuments(ctx, docIDs); err != nil {
		return 0, 0, err
	}
	if err := p.meta.UpsertDocumentEdges(ctx, docIDs, metadata.ConnectorID, metadata.CredentialID); err != nil {
		return 0, 0, err
	}

	return netNew, len(embedded), nil
}

type chunkResult struct {
	chunks []chunk.IndexChunk
	err    error
}

// chunkAll chunks every document on the worker pool, preserving input order.
func (p *Pipeline) chunkAll(docs []connectors.Document) ([][]chunk.IndexChunk, error) {
	results := make([]chunkResult, len(docs))
	var wg sync.WaitGroup
	for i := range docs {
		wg.Add(1)
		idx := i
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			chunks, err := p.chunker.Chunk(&docs[idx])
			results[idx] = chunkResult{chunks: chunks, err: err}
		})
		if submitErr != nil {
			wg.Done()
			results[idx] = chunkResult{err: submitErr}
		}
	}
	wg.Wait()

	out := make([][]chunk.IndexChunk, len(docs))
	for i, result := range results {
		if result.err != nil {
			return nil, errors.New(errors.ErrCodeChunkingFailed,
				"chunking document "+docs[i].ShortDescriptor()+" failed", result.err)
		}
		out[i] = result.chunks
	}
	return out, nil
}

// AttemptResult summarizes one connector run through the pipeline.
type AttemptResult struct {
	AttemptID     int64
	NewDocuments  int
	ChunksIndexed int
	Batches       int
	// Interrupted is true when the run stopped early because the pair was
	// disabled mid-run.
	Interrupted bool
}

// RunAttempt drives one full indexing attempt for a connector/credential
// pair: it records the attempt, consumes the connector's batches, indexes
// each one, and marks the attempt succeeded or failed. Between batches it
// re-reads the pair and stops cooperatively if it has been disabled.
//
// lastSuccess is the end time of the previous successful run; polling
// connectors resume slightly before it to absorb clock skew. A zero
// lastSuccess means a first run, which prefers a full load when the
// connector supports one.
func (p *Pipeline) RunAttempt(ctx context.Context, conn connectors.BaseConnector, pair *store.ConnectorCredentialPair, lastSuccess time.Time) (AttemptResult, error) {
	result := AttemptResult{}

	batches, err := p.openBatches(ctx, conn, lastSuccess)
	if err != nil {
		return result, err
	}

	attemptID, err := p.meta.CreateIndexAttempt(ctx, pair.ConnectorID, pair.CredentialID)
	if err != nil {
		return result, err
	}
	result.AttemptID = attemptID

	if err := p.meta.UpdateIndexAttempt(ctx, attemptID, store.AttemptStatusInProgress, ""); err != nil {
		return result, err
	}

	metadata := connectors.IndexAttemptMetadata{
		ConnectorID:  pair.ConnectorID,
		CredentialID: pair.CredentialID,
	}

	fail := func(cause error) (AttemptResult, error) {
		if updateErr := p.meta.UpdateIndexAttempt(ctx, attemptID, store.AttemptStatusFailed, cause.Error()); updateErr != nil {
			p.logger.Warn("failed to record attempt failure", "attempt_id", attemptID, "error", updateErr)
		}
		return result, cause
	}

	for batch := range batches {
		if batch.Err != nil {
			return fail(batch.Err)
		}

		disabled, err := p.pairDisabled(ctx, pair)
		if err != nil {
			return fail(err)
		}
		if disabled {
			p.logger.Info("pair disabled mid-run, stopping",
				"connector_id", pair.ConnectorID,
				"credential_id", pair.CredentialID,
				"batches_done", result.Batches)
			result.Interrupted = true
			break
		}

		netNew, chunks, err := p.Index(ctx, batch.Batch, metadata)
		if err != nil {
			return fail(err)
		}
		result.NewDocuments += netNew
		result.ChunksIndexed += chunks
		result.Batches++
	}

	if err := p.meta.UpdateIndexAttempt(ctx, attemptID, store.AttemptStatusSuccess, ""); err != nil {
		return result, err
	}
	return result, nil
}

// openBatches selects the connector's lazy document sequence for this run.
func (p *Pipeline) openBatches(ctx context.Context, conn connectors.BaseConnector, lastSuccess time.Time) (<-chan connectors.BatchResult, error) {
	if lastSuccess.IsZero() {
		if loader, ok := conn.(connectors.LoadConnector); ok {
			return loader.LoadFromState(ctx), nil
		}
	}
	if poller, ok := conn.(connectors.PollConnector); ok {
		start := connectors.SecondsSinceUnixEpoch(0)
		if !lastSuccess.IsZero() {
			start = lastSuccess.Add(-connectors.PollStartOffset).Unix()
		}
		return poller.PollSource(ctx, start, time.Now().Unix()), nil
	}
	if loader, ok := conn.(connectors.LoadConnector); ok {
		return loader.LoadFromState(ctx), nil
	}
	return nil, errors.New(errors.ErrCodeInputTypeMismatch,
		"connector supports neither load nor poll runs", nil)
}

func (p *Pipeline) pairDisabled(ctx context.Context, pair *store.ConnectorCredentialPair) (bool, error) {
	current, err := p.meta.GetConnectorCredentialPair(ctx, pair.ConnectorID, pair.CredentialID)
	if err != nil {
		return false, err
	}
	return current != nil && current.Disabled, nil
}
