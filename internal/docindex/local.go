package docindex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quillindex/quill/internal/chunk"
	"github.com/quillindex/quill/internal/connectors"
	"github.com/quillindex/quill/internal/embed"
	"github.com/quillindex/quill/internal/errors"
	"github.com/quillindex/quill/internal/store"
)

const (
	keywordIndexName = "keyword.bleve"
	vectorIndexName  = "vectors.hnsw"
	metadataDBName   = "metadata.db"

	// defaultOversample widens raw retrieval so that post-filtering and
	// mini-chunk deduplication still leave enough results.
	defaultOversample = 4
)

// Config configures a LocalIndex.
type Config struct {
	// DataDir holds all index files. One process at a time.
	DataDir string

	// Embedder embeds queries at retrieval time. Wrap it in
	// embed.NewCachedEmbedder to avoid re-embedding repeated queries.
	Embedder embed.Embedder

	// BM25 configures the keyword index. Zero value selects defaults.
	BM25 store.BM25Config

	// Weights balance keyword and semantic legs during hybrid fusion.
	Weights Weights

	// RRFK is the RRF smoothing constant; 0 selects the default.
	RRFK int

	// DistanceCutoff drops semantic results with cosine distance above
	// the cutoff. 0 disables the cutoff.
	DistanceCutoff float32

	// Oversample is the raw retrieval multiplier; 0 selects the default.
	Oversample int

	Logger *slog.Logger
}

// LocalIndex is the on-disk hybrid document index: Bleve for keywords, HNSW
// for vectors, SQLite for chunk payloads and access metadata. Writes are
// serialized; reads run concurrently.
type LocalIndex struct {
	mu sync.Mutex

	dataDir    string
	vectorPath string

	bm25     store.BM25Index
	vectors  store.VectorStore
	meta     store.MetadataStore
	embedder embed.Embedder

	fusion         *RRFFusion
	weights        Weights
	distanceCutoff float32
	oversample     int

	lock   *store.DirLock
	logger *slog.Logger
}

var _ DocumentIndex = (*LocalIndex)(nil)

// Open creates or opens a LocalIndex in the data directory. The directory
// is locked against other processes for the lifetime of the index.
func Open(cfg Config) (*LocalIndex, error) {
	if cfg.DataDir == "" {
		return nil, errors.ConfigError("document index requires a data directory", nil)
	}
	if cfg.Embedder == nil {
		return nil, errors.ConfigError("document index requires an embedder", nil)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.BackendError(fmt.Sprintf("creating data directory %s", cfg.DataDir), err)
	}

	lock := store.NewDirLock(cfg.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, errors.BackendError("locking data directory", err)
	}
	if !acquired {
		return nil, errors.BackendError(
			fmt.Sprintf("data directory %s is locked by another process", cfg.DataDir), nil).
			WithSuggestion("stop the other instance or use a different data directory")
	}

	cleanup := func() { _ = lock.Unlock() }

	if cfg.BM25.K1 == 0 {
		cfg.BM25 = store.DefaultBM25Config()
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Oversample <= 0 {
		cfg.Oversample = defaultOversample
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	meta, err := store.NewSQLiteMetadataStore(filepath.Join(cfg.DataDir, metadataDBName))
	if err != nil {
		cleanup()
		return nil, errors.New(errors.ErrCodeStoreFailed, "opening metadata store", err)
	}

	bm25, err := store.NewBleveBM25Index(filepath.Join(cfg.DataDir, keywordIndexName), cfg.BM25)
	if err != nil {
		_ = meta.Close()
		cleanup()
		return nil, errors.New(errors.ErrCodeCorruptIndex, "opening keyword index", err)
	}

	vectorPath := filepath.Join(cfg.DataDir, vectorIndexName)
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(cfg.Embedder.Dimensions()))
	if err != nil {
		_ = bm25.Close()
		_ = meta.Close()
		cleanup()
		return nil, errors.New(errors.ErrCodeStoreFailed, "creating vector store", err)
	}
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := vectors.Load(vectorPath); err != nil {
			_ = bm25.Close()
			_ = meta.Close()
			cleanup()
			return nil, errors.New(errors.ErrCodeCorruptIndex, "loading vector index", err).
				WithSuggestion("delete the data directory and reindex")
		}
	}

	idx := &LocalIndex{
		dataDir:        cfg.DataDir,
		vectorPath:     vectorPath,
		bm25:           bm25,
		vectors:        vectors,
		meta:           meta,
		embedder:       cfg.Embedder,
		fusion:         NewRRFFusion(cfg.RRFK),
		weights:        cfg.Weights,
		distanceCutoff: cfg.DistanceCutoff,
		oversample:     cfg.Oversample,
		lock:           lock,
		logger:         cfg.Logger,
	}

	if err := idx.EnsureIndicesExist(context.Background()); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// EnsureIndicesExist validates the backing stores against the configured
// embedder. It is idempotent and cheap.
func (s *LocalIndex) EnsureIndicesExist(ctx context.Context) error {
	if !s.embedder.Available(ctx) {
		return errors.EmbeddingError("query embedder is not available", nil)
	}
	// A vector index built with a different embedder would silently
	// return garbage neighbors; fail loudly instead.
	if s.vectors.Count() > 0 {
		_, err := s.vectors.Search(ctx, make([]float32, s.embedder.Dimensions()), 1)
		if err != nil {
			return errors.New(errors.ErrCodeDimensionMismatch,
				"vector index dimensions do not match the configured embedder", err).
				WithSuggestion("reindex with the current embedder or restore the previous one")
		}
	}
	return nil
}

// Index stores embedded chunks grouped by document. An existing document is
// fully replaced: all of its previous chunks are removed first, so a
// shrunken document leaves no stale tail behind. Fresh documents start
// public; access set by earlier Update calls survives re-indexing.
func (s *LocalIndex) Index(ctx context.Context, chunks []chunk.EmbeddedIndexChunk, metadata connectors.IndexAttemptMetadata) ([]InsertionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docOrder []string
	byDoc := map[string][]chunk.EmbeddedIndexChunk{}
	for _, c := range chunks {
		if c.SourceDocument == nil {
			return nil, errors.New(errors.ErrCodeIndexFailed, "chunk without source document", nil)
		}
		docID := NormalizeDocumentID(c.SourceDocument.ID)
		if _, seen := byDoc[docID]; !seen {
			docOrder = append(docOrder, docID)
		}
		byDoc[docID] = append(byDoc[docID], c)
	}

	records := make([]InsertionRecord, 0, len(docOrder))
	for _, docID := range docOrder {
		existed, err := s.indexDocument(ctx, docID, byDoc[docID])
		if err != nil {
			return nil, err
		}
		records = append(records, InsertionRecord{DocumentID: docID, AlreadyExisted: existed})
	}

	if err := s.vectors.Save(s.vectorPath); err != nil {
		return nil, errors.New(errors.ErrCodeIndexFailed, "persisting vector index", err)
	}
	return records, nil
}

func (s *LocalIndex) indexDocument(ctx context.Context, docID string, docChunks []chunk.EmbeddedIndexChunk) (alreadyExisted bool, err error) {
	existed, err := s.meta.HasChunksForDocument(ctx, docID)
	if err != nil {
		return false, errors.New(errors.ErrCodeStoreFailed, "checking existing chunks", err)
	}

	allowedUsers := []string{PublicUser}
	boost := 1
	if existed {
		oldIDs, err := s.meta.GetChunkIDsForDocument(ctx, docID)
		if err != nil {
			return false, errors.New(errors.ErrCodeStoreFailed, "listing existing chunks", err)
		}
		oldChunks, err := s.meta.GetChunks(ctx, oldIDs)
		if err != nil {
			return false, errors.New(errors.ErrCodeStoreFailed, "loading existing chunks", err)
		}
		if len(oldChunks) > 0 {
			allowedUsers = oldChunks[0].AllowedUsers
			boost = oldChunks[0].Boost
		}
		if err := s.removeChunks(ctx, oldIDs, oldChunks); err != nil {
			return false, err
		}
		if err := s.meta.DeleteChunksForDocuments(ctx, []string{docID}); err != nil {
			return false, errors.New(errors.ErrCodeStoreFailed, "clearing previous chunks", err)
		}
	}

	stored := make([]*store.StoredChunk, 0, len(docChunks))
	entries := make([]*store.IndexEntry, 0, len(docChunks))
	var vecIDs []string
	var vecs [][]float32

	for _, c := range docChunks {
		id := ChunkUUID(docID, c.ChunkID)
		doc := c.SourceDocument

		stored = append(stored, &store.StoredChunk{
			ID:                  id,
			DocumentID:          docID,
			ChunkIndex:          c.ChunkID,
			Blurb:               c.Blurb,
			Content:             c.Content,
			SourceLinks:         c.SourceLinks,
			SectionContinuation: c.SectionContinuation,
			Source:              string(doc.Source),
			SemanticID:          doc.SemanticIdentifier,
			Metadata:            doc.Metadata,
			AllowedUsers:        allowedUsers,
			Boost:               boost,
			UpdatedAt:           doc.UpdatedAt,
		})
		entries = append(entries, &store.IndexEntry{ID: id, Content: c.Content})

		vecIDs = append(vecIDs, id)
		vecs = append(vecs, c.Embeddings.FullEmbedding)
		for i, mini := range c.Embeddings.MiniChunkEmbeddings {
			vecIDs = append(vecIDs, miniVectorID(id, i))
			vecs = append(vecs, mini)
		}
	}

	if err := s.meta.UpsertChunks(ctx, stored); err != nil {
		return false, errors.New(errors.ErrCodeStoreFailed, "storing chunk payloads", err)
	}
	if err := s.bm25.Index(ctx, entries); err != nil {
		return false, errors.New(errors.ErrCodeIndexFailed, "indexing keywords", err)
	}
	if err := s.vectors.Add(ctx, vecIDs, vecs); err != nil {
		return false, errors.New(errors.ErrCodeIndexFailed, "indexing vectors", err)
	}
	return existed, nil
}

// removeChunks drops chunk entries from the keyword and vector indexes.
// Mini-chunk vector IDs are re-derived from the stored content, which is
// how they were generated at index time.
func (s *LocalIndex) removeChunks(ctx context.Context, chunkIDs []string, payloads []*store.StoredChunk) error {
	if err := s.bm25.Delete(ctx, chunkIDs); err != nil {
		return errors.New(errors.ErrCodeIndexDeleteFailed, "removing keyword entries", err)
	}
	vectorIDs := make([]string, 0, len(chunkIDs))
	for _, p := range payloads {
		vectorIDs = append(vectorIDs, p.ID)
		pieces := chunk.SplitMiniChunks(p.Content)
		if len(pieces) > 1 {
			for i := range pieces {
				vectorIDs = append(vectorIDs, miniVectorID(p.ID, i))
			}
		}
	}
	if err := s.vectors.Delete(ctx, vectorIDs); err != nil {
		return errors.New(errors.ErrCodeIndexDeleteFailed, "removing vector entries", err)
	}
	return nil
}

// Delete removes the documents and all their chunks from every store.
func (s *LocalIndex) Delete(ctx context.Context, documentIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		normalized[i] = NormalizeDocumentID(id)
	}

	for _, docID := range normalized {
		chunkIDs, err := s.meta.GetChunkIDsForDocument(ctx, docID)
		if err != nil {
			return errors.New(errors.ErrCodeStoreFailed, "listing document chunks", err)
		}
		if len(chunkIDs) == 0 {
			continue
		}
		payloads, err := s.meta.GetChunks(ctx, chunkIDs)
		if err != nil {
			return errors.New(errors.ErrCodeStoreFailed, "loading document chunks", err)
		}
		if err := s.removeChunks(ctx, chunkIDs, payloads); err != nil {
			return err
		}
	}

	if err := s.meta.DeleteDocumentsComplete(ctx, normalized); err != nil {
		return errors.New(errors.ErrCodeIndexDeleteFailed, "removing document metadata", err)
	}
	if err := s.vectors.Save(s.vectorPath); err != nil {
		return errors.New(errors.ErrCodeIndexDeleteFailed, "persisting vector index", err)
	}
	return nil
}

// Update patches access and boost on documents in place without touching
// content or embeddings.
func (s *LocalIndex) Update(ctx context.Context, requests []UpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range requests {
		normalized := make([]string, len(req.DocumentIDs))
		for i, id := range req.DocumentIDs {
			normalized[i] = NormalizeDocumentID(id)
		}
		if req.AllowedUsers != nil {
			if err := s.meta.UpdateAccess(ctx, normalized, *req.AllowedUsers); err != nil {
				return errors.New(errors.ErrCodeIndexUpdateFailed, "updating document access", err)
			}
		}
		if req.Boost != nil {
			if err := s.meta.UpdateBoost(ctx, normalized, *req.Boost); err != nil {
				return errors.New(errors.ErrCodeIndexUpdateFailed, "updating document boost", err)
			}
		}
	}
	return nil
}

// KeywordRetrieval runs the BM25 leg alone.
func (s *LocalIndex) KeywordRetrieval(ctx context.Context, query string, filters Filters, limit int) ([]chunk.InferenceChunk, error) {
	raw, err := s.bm25.Search(ctx, query, limit*s.oversample)
	if err != nil {
		return nil, errors.New(errors.ErrCodeRetrievalFailed, "keyword retrieval", err)
	}

	candidates := make([]scoredID, 0, len(raw))
	for _, r := range raw {
		candidates = append(candidates, scoredID{id: r.ChunkID, score: r.Score, terms: r.MatchedTerms})
	}
	return s.hydrate(ctx, candidates, filters, limit)
}

// SemanticRetrieval runs the vector leg alone.
func (s *LocalIndex) SemanticRetrieval(ctx context.Context, query string, filters Filters, limit int) ([]chunk.InferenceChunk, error) {
	raw, err := s.searchVectors(ctx, query, limit*s.oversample)
	if err != nil {
		return nil, err
	}

	candidates := make([]scoredID, 0, len(raw))
	for _, r := range raw {
		candidates = append(candidates, scoredID{id: r.ChunkID, score: float64(r.Score)})
	}
	return s.hydrate(ctx, candidates, filters, limit)
}

// HybridRetrieval runs both legs in parallel and fuses them with RRF.
func (s *LocalIndex) HybridRetrieval(ctx context.Context, query string, filters Filters, limit int) ([]chunk.InferenceChunk, error) {
	var (
		keywordResults []*store.BM25Result
		vectorResults  []*store.VectorResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		keywordResults, err = s.bm25.Search(gctx, query, limit*s.oversample)
		if err != nil {
			return fmt.Errorf("keyword leg: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		vectorResults, err = s.searchVectors(gctx, query, limit*s.oversample)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.New(errors.ErrCodeRetrievalFailed, "hybrid retrieval", err)
	}

	fused := s.fusion.Fuse(keywordResults, vectorResults, s.weights)
	candidates := make([]scoredID, 0, len(fused))
	for _, r := range fused {
		candidates = append(candidates, scoredID{id: r.ChunkID, score: r.RRFScore, terms: r.MatchedTerms})
	}
	return s.hydrate(ctx, candidates, filters, limit)
}

// RetrieveDocumentChunks fetches one document's chunks in index order,
// unscored. A non-nil chunkIndex fetches just that chunk. Filters apply
// the same visibility rules as the scored retrieval paths, so access
// restrictions cannot be sidestepped by looking a document up by ID.
func (s *LocalIndex) RetrieveDocumentChunks(ctx context.Context, documentID string, chunkIndex *int, filters Filters) ([]chunk.InferenceChunk, error) {
	docID := NormalizeDocumentID(documentID)

	var chunkIDs []string
	if chunkIndex != nil {
		chunkIDs = []string{ChunkUUID(docID, *chunkIndex)}
	} else {
		ids, err := s.meta.GetChunkIDsForDocument(ctx, docID)
		if err != nil {
			return nil, errors.New(errors.ErrCodeStoreFailed, "listing document chunks", err)
		}
		chunkIDs = ids
	}

	payloads, err := s.meta.GetChunks(ctx, chunkIDs)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreFailed, "loading document chunks", err)
	}

	results := make([]chunk.InferenceChunk, 0, len(payloads))
	for _, p := range payloads {
		if !passesFilters(p, filters) {
			continue
		}
		results = append(results, toInferenceChunk(p, 0, nil))
	}
	return results, nil
}

// Close releases every backing store and the directory lock.
func (s *LocalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, closer := range []func() error{
		s.bm25.Close,
		s.vectors.Close,
		s.meta.Close,
		s.lock.Unlock,
	} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// searchVectors embeds the query, searches the graph, applies the distance
// cutoff, and deduplicates mini-chunk hits to their base chunk keeping the
// best score per chunk.
func (s *LocalIndex) searchVectors(ctx context.Context, query string, k int) ([]*store.VectorResult, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.EmbeddingError("embedding query", err)
	}

	// Oversample further: mini-chunk hits collapse into their base chunk.
	raw, err := s.vectors.Search(ctx, queryVec, k*2)
	if err != nil {
		return nil, errors.New(errors.ErrCodeRetrievalFailed, "vector retrieval", err)
	}

	best := map[string]*store.VectorResult{}
	var order []string
	for _, r := range raw {
		if s.distanceCutoff > 0 && r.Distance > s.distanceCutoff {
			continue
		}
		base := baseChunkUUID(r.ChunkID)
		if existing, ok := best[base]; !ok {
			best[base] = &store.VectorResult{ChunkID: base, Distance: r.Distance, Score: r.Score}
			order = append(order, base)
		} else if r.Score > existing.Score {
			existing.Score = r.Score
			existing.Distance = r.Distance
		}
	}

	results := make([]*store.VectorResult, 0, len(order))
	for _, base := range order {
		results = append(results, best[base])
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

type scoredID struct {
	id    string
	score float64
	terms []string
}

// hydrate loads payloads for scored candidates, applies filters and boost,
// and returns the top results by boosted score.
func (s *LocalIndex) hydrate(ctx context.Context, candidates []scoredID, filters Filters, limit int) ([]chunk.InferenceChunk, error) {
	if len(candidates) == 0 {
		return []chunk.InferenceChunk{}, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	payloads, err := s.meta.GetChunks(ctx, ids)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreFailed, "loading result chunks", err)
	}
	byID := make(map[string]*store.StoredChunk, len(payloads))
	for _, p := range payloads {
		byID[p.ID] = p
	}

	results := make([]chunk.InferenceChunk, 0, limit)
	for _, c := range candidates {
		p, ok := byID[c.id]
		if !ok || !passesFilters(p, filters) {
			continue
		}
		boost := p.Boost
		if boost < 1 {
			boost = 1
		}
		results = append(results, toInferenceChunk(p, c.score*float64(boost), c.terms))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func passesFilters(p *store.StoredChunk, filters Filters) bool {
	if filters.AllowedUsers != nil {
		if !userAllowed(p.AllowedUsers, filters.AllowedUsers) {
			return false
		}
	}
	if len(filters.Sources) > 0 {
		match := false
		for _, src := range filters.Sources {
			if string(src) == p.Source {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if filters.TimeCutoff != nil && !p.UpdatedAt.IsZero() && p.UpdatedAt.Before(*filters.TimeCutoff) {
		return false
	}
	return true
}

func userAllowed(chunkUsers, queryUsers []string) bool {
	for _, cu := range chunkUsers {
		if cu == PublicUser {
			return true
		}
		for _, qu := range queryUsers {
			if cu == qu {
				return true
			}
		}
	}
	return false
}

func toInferenceChunk(p *store.StoredChunk, score float64, terms []string) chunk.InferenceChunk {
	return chunk.InferenceChunk{
		BaseChunk: chunk.BaseChunk{
			ChunkID:             p.ChunkIndex,
			Blurb:               p.Blurb,
			Content:             p.Content,
			SourceLinks:         p.SourceLinks,
			SectionContinuation: p.SectionContinuation,
		},
		DocumentID:         p.DocumentID,
		Source:             connectors.Source(p.Source),
		SemanticIdentifier: p.SemanticID,
		Score:              score,
		Boost:              p.Boost,
		MatchedTerms:       terms,
		Metadata:           p.Metadata,
	}
}

// Metadata returns the metadata store shared with the pipeline and
// background jobs.
func (s *LocalIndex) Metadata() store.MetadataStore {
	return s.meta
}
