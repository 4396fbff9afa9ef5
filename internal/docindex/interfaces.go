// Package docindex defines the document index contract as composable
// capability interfaces and provides LocalIndex, the on-disk hybrid
// implementation backed by Bleve, HNSW and SQLite.
package docindex

import (
	"context"
	"time"

	"github.com/quillindex/quill/internal/chunk"
	"github.com/quillindex/quill/internal/connectors"
)

// PublicUser is the sentinel user granting everyone access to a document.
const PublicUser = "PUBLIC"

// InsertionRecord reports the outcome of indexing one document.
type InsertionRecord struct {
	DocumentID string
	// AlreadyExisted is true when a previous version of the document was
	// replaced rather than inserted fresh.
	AlreadyExisted bool
}

// UpdateRequest is a partial metadata update for a set of documents.
// Nil fields are left untouched; content is never re-embedded.
type UpdateRequest struct {
	DocumentIDs  []string
	AllowedUsers *[]string
	Boost        *int
}

// Filters restricts retrieval results.
type Filters struct {
	// AllowedUsers, when non-nil, keeps only chunks visible to at least
	// one of the given users. Public chunks always pass.
	AllowedUsers []string
	// Sources, when non-empty, keeps only chunks from these sources.
	Sources []connectors.Source
	// TimeCutoff, when non-nil, keeps only chunks whose document was
	// updated at or after the cutoff.
	TimeCutoff *time.Time
}

// Verifiable indexes can check and prepare their backing storage.
type Verifiable interface {
	// EnsureIndicesExist creates anything missing and validates what is
	// there. Safe to call repeatedly.
	EnsureIndicesExist(ctx context.Context) error
}

// Indexable indexes accept embedded chunks for storage.
type Indexable interface {
	// Index stores the chunks and returns one record per distinct
	// document. Re-indexing an unchanged document is a no-op apart from
	// the record's AlreadyExisted flag; a changed document fully
	// replaces its previous chunks, including stale ones beyond the new
	// chunk count.
	Index(ctx context.Context, chunks []chunk.EmbeddedIndexChunk, metadata connectors.IndexAttemptMetadata) ([]InsertionRecord, error)
}

// Deletable indexes can remove documents wholesale.
type Deletable interface {
	// Delete removes all chunks of the given documents from every
	// backing store.
	Delete(ctx context.Context, documentIDs []string) error
}

// Updatable indexes can patch document metadata in place.
type Updatable interface {
	Update(ctx context.Context, requests []UpdateRequest) error
}

// KeywordCapable indexes answer keyword queries.
type KeywordCapable interface {
	KeywordRetrieval(ctx context.Context, query string, filters Filters, limit int) ([]chunk.InferenceChunk, error)
}

// VectorCapable indexes answer semantic queries.
type VectorCapable interface {
	SemanticRetrieval(ctx context.Context, query string, filters Filters, limit int) ([]chunk.InferenceChunk, error)
}

// HybridCapable indexes fuse keyword and semantic retrieval.
type HybridCapable interface {
	HybridRetrieval(ctx context.Context, query string, filters Filters, limit int) ([]chunk.InferenceChunk, error)
}

// IDCapable indexes can fetch a document's chunks directly, without
// scoring. A non-nil chunkIndex narrows the lookup to that single chunk;
// filters apply the same visibility rules as scored retrieval.
type IDCapable interface {
	RetrieveDocumentChunks(ctx context.Context, documentID string, chunkIndex *int, filters Filters) ([]chunk.InferenceChunk, error)
}

// DocumentIndex is the full contract the pipeline and query layers build
// against.
type DocumentIndex interface {
	Verifiable
	Indexable
	Deletable
	Updatable
	KeywordCapable
	VectorCapable
	HybridCapable
	IDCapable

	Close() error
}
