// Package store is the persistence layer: BM25 keyword index (Bleve),
// vector store (HNSW), and document/ownership metadata (SQLite).
package store

import (
	"context"
	"fmt"
	"time"
)

// BM25Result is a single keyword search result.
type BM25Result struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the keyword index.
type IndexStats struct {
	ChunkCount int
}

// BM25Index provides keyword search over chunk contents.
type BM25Index interface {
	// Index adds chunk texts to the index, replacing existing entries
	// with the same ID.
	Index(ctx context.Context, entries []*IndexEntry) error

	// Search returns chunks matching the query, scored by BM25.
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)

	// Delete removes chunks from the index.
	Delete(ctx context.Context, chunkIDs []string) error

	// Stats returns index statistics.
	Stats() *IndexStats

	Close() error
}

// IndexEntry is the keyword-indexable projection of a chunk.
type IndexEntry struct {
	ID      string
	Content string
}

// BM25Config configures the keyword index.
type BM25Config struct {
	// K1 is the term frequency saturation parameter.
	K1 float64

	// B is the length normalization parameter.
	B float64

	// StopWords are dropped during analysis.
	StopWords []string

	// MinTokenLength is the minimum token length to index.
	MinTokenLength int
}

// DefaultBM25Config returns the default keyword index configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultEnglishStopWords,
		MinTokenLength: 2,
	}
}

// VectorResult is a single vector search result.
type VectorResult struct {
	ChunkID  string
	Distance float32 // lower is more similar (0-2 for cosine)
	Score    float32 // normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension; must match the embedder.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible vector store defaults.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// VectorStore provides nearest-neighbor search over chunk embeddings.
type VectorStore interface {
	// Add inserts vectors with their IDs. An existing ID is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors of the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Contains reports whether an ID exists.
	Contains(id string) bool

	// Count returns the number of live vectors.
	Count() int

	// Save persists the store to disk.
	Save(path string) error

	// Load restores the store from disk.
	Load(path string) error

	Close() error
}

// ErrDimensionMismatch is returned when a vector's dimension does not match
// the store's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// AttemptStatus is the lifecycle state of an indexing attempt.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "not_started"
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSuccess    AttemptStatus = "success"
	AttemptStatusFailed     AttemptStatus = "failed"
)

// ConnectorCredentialPair is one registered connector/credential combination.
// Documents indexed through a pair are owned by it; access control derives
// from the owning pairs.
type ConnectorCredentialPair struct {
	ConnectorID  int64
	CredentialID int64
	UserID       string // empty for credential-less pairs
	IsPublic     bool
	Disabled     bool
	CreatedAt    time.Time
}

// AccessInfo is the merged access view of one document across all of its
// owning pairs.
type AccessInfo struct {
	IsPublic bool
	UserIDs  []string
}

// IndexAttempt is one recorded run of a connector through the pipeline.
type IndexAttempt struct {
	ID           int64
	ConnectorID  int64
	CredentialID int64
	Status       AttemptStatus
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StoredChunk is the persisted payload of one indexed chunk. The keyword
// and vector indexes hold only IDs and scores; content, access and document
// fields needed to render results live here.
type StoredChunk struct {
	ID                  string
	DocumentID          string
	ChunkIndex          int
	Blurb               string
	Content             string
	SourceLinks         map[int]string
	SectionContinuation bool
	Source              string
	SemanticID          string
	Metadata            map[string]string
	AllowedUsers        []string
	Boost               int
	UpdatedAt           time.Time
}
