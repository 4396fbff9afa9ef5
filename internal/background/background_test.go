package background

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillindex/quill/internal/chunk"
	"github.com/quillindex/quill/internal/connectors"
	"github.com/quillindex/quill/internal/docindex"
	"github.com/quillindex/quill/internal/dynconfig"
	"github.com/quillindex/quill/internal/embed"
	"github.com/quillindex/quill/internal/errors"
	"github.com/quillindex/quill/internal/store"
)

type fixture struct {
	index  *docindex.LocalIndex
	meta   store.MetadataStore
	config *dynconfig.FileStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	idx, err := docindex.Open(docindex.Config{
		DataDir:  t.TempDir(),
		Embedder: embed.NewStaticEmbedder(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	config, err := dynconfig.NewFileStore(t.TempDir())
	require.NoError(t, err)

	return &fixture{index: idx, meta: idx.Metadata(), config: config}
}

// indexDoc chunks, embeds and indexes one document and records its ownership
// edge for the given pair.
func (f *fixture) indexDoc(t *testing.T, docID, text string, connectorID, credentialID int64) {
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

	embedder := embed.NewChunkEmbedder(embed.NewStaticEmbedder(), embed.ChunkEmbedderOptions{})
	embedded, err := embedder.EmbedChunks(ctx, chunks)
	require.NoError(t, err)

	_, err = f.index.Index(ctx, embedded, connectors.IndexAttemptMetadata{
		ConnectorID: connectorID, CredentialID: credentialID,
	})
	require.NoError(t, err)

	require.NoError(t, f.meta.UpsertDocuments(ctx, []string{docID}))
	require.NoError(t, f.meta.UpsertDocumentEdges(ctx, []string{docID}, connectorID, credentialID))
}

func (f *fixture) addPair(t *testing.T, connectorID, credentialID int64, userID string, public bool) {
	t.Helper()
	require.NoError(t, f.meta.UpsertConnectorCredentialPair(context.Background(), &store.ConnectorCredentialPair{
		ConnectorID:  connectorID,
		CredentialID: credentialID,
		UserID:       userID,
		IsPublic:     public,
	}))
}

func TestSyncACLAppliesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addPair(t, 1, 10, "alice", false)
	f.addPair(t, 2, 20, "bob", false)
	f.indexDoc(t, "doc1", "shared design notes", 1, 10)
	f.indexDoc(t, "doc1", "shared design notes", 2, 20)

	require.NoError(t, SyncACL(ctx, f.index, f.meta, f.config, ACLSyncOptions{}))

	// Both owners now see the document; outsiders do not.
	for _, user := range []string{"alice", "bob"} {
		results, err := f.index.KeywordRetrieval(ctx, "design notes", docindex.Filters{AllowedUsers: []string{user}}, 10)
		require.NoError(t, err)
		assert.NotEmpty(t, results, "user %s should see doc1", user)
	}
	results, err := f.index.KeywordRetrieval(ctx, "design notes", docindex.Filters{AllowedUsers: []string{"mallory"}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSyncACLPublicPairWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addPair(t, 1, 10, "alice", false)
	f.addPair(t, 2, 20, "bob", true)
	f.indexDoc(t, "doc1", "company handbook", 1, 10)
	f.indexDoc(t, "doc1", "company handbook", 2, 20)

	require.NoError(t, SyncACL(ctx, f.index, f.meta, f.config, ACLSyncOptions{}))

	results, err := f.index.KeywordRetrieval(ctx, "handbook", docindex.Filters{AllowedUsers: []string{"mallory"}}, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSyncACLMarkerShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addPair(t, 1, 10, "alice", false)
	f.indexDoc(t, "doc1", "private memo", 1, 10)

	require.NoError(t, SyncACL(ctx, f.index, f.meta, f.config, ACLSyncOptions{}))

	_, err := f.config.Load(CompletedACLUpdateKey)
	require.NoError(t, err)

	// A later restricted reindex stays restricted when the caller opts into
	// the marker: the pass is skipped entirely.
	f.indexDoc(t, "doc2", "another memo", 1, 10)
	require.NoError(t, SyncACL(ctx, f.index, f.meta, f.config, ACLSyncOptions{SkipIfDone: true}))

	results, err := f.index.KeywordRetrieval(ctx, "another memo", docindex.Filters{AllowedUsers: []string{"mallory"}}, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results, "doc2 keeps its fresh public default because the pass was skipped")
}

func TestRunACLSyncNonblockingCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addPair(t, 1, 10, "alice", false)
	f.indexDoc(t, "doc1", "background reconciliation target", 1, 10)

	done := RunACLSyncNonblocking(f.index, f.meta, f.config, ACLSyncOptions{})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reconciliation pass did not finish")
	}

	// Completion is observable through the config-store marker.
	_, err := f.config.Load(CompletedACLUpdateKey)
	require.NoError(t, err)

	results, err := f.index.KeywordRetrieval(ctx, "reconciliation target", docindex.Filters{AllowedUsers: []string{"mallory"}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// wrappedNotFoundStore decorates Load errors the way a caching layer might.
type wrappedNotFoundStore struct {
	inner dynconfig.Store
}

func (s wrappedNotFoundStore) Load(key string) (json.RawMessage, error) {
	data, err := s.inner.Load(key)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return data, nil
}

func (s wrappedNotFoundStore) Store(key string, value any) error {
	return s.inner.Store(key, value)
}

func TestSyncACLSkipIfDoneTreatsWrappedNotFoundAsMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addPair(t, 1, 10, "alice", false)
	f.indexDoc(t, "doc1", "wrapped marker memo", 1, 10)

	// A wrapped not-found from the store still means "marker absent": the
	// pass runs rather than erroring out.
	require.NoError(t, SyncACL(ctx, f.index, f.meta, wrappedNotFoundStore{f.config}, ACLSyncOptions{SkipIfDone: true}))

	results, err := f.index.KeywordRetrieval(ctx, "wrapped marker", docindex.Filters{AllowedUsers: []string{"mallory"}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeletePairExclusiveDocumentsRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addPair(t, 1, 10, "alice", false)
	f.indexDoc(t, "doc1", "only alice has this", 1, 10)

	result, err := DeletePair(ctx, f.index, f.meta, 1, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsDeleted)
	assert.Zero(t, result.EdgesDeleted)

	results, err := f.index.KeywordRetrieval(ctx, "alice", docindex.Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	pair, err := f.meta.GetConnectorCredentialPair(ctx, 1, 10)
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestDeletePairSharedDocumentsSurvive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addPair(t, 1, 10, "alice", false)
	f.addPair(t, 2, 20, "bob", false)
	f.indexDoc(t, "doc1", "shared roadmap", 1, 10)
	f.indexDoc(t, "doc1", "shared roadmap", 2, 20)
	require.NoError(t, SyncACL(ctx, f.index, f.meta, f.config, ACLSyncOptions{}))

	result, err := DeletePair(ctx, f.index, f.meta, 1, 10, nil)
	require.NoError(t, err)
	assert.Zero(t, result.DocumentsDeleted)
	assert.Equal(t, 1, result.EdgesDeleted)

	// The document survives, but alice lost access with her pair.
	results, err := f.index.KeywordRetrieval(ctx, "roadmap", docindex.Filters{AllowedUsers: []string{"bob"}}, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	results, err = f.index.KeywordRetrieval(ctx, "roadmap", docindex.Filters{AllowedUsers: []string{"alice"}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Deleting the last owner removes the document for good.
	_, err = DeletePair(ctx, f.index, f.meta, 2, 20, nil)
	require.NoError(t, err)

	results, err = f.index.KeywordRetrieval(ctx, "roadmap", docindex.Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeletePairBlockedByActiveAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addPair(t, 1, 10, "alice", false)
	f.indexDoc(t, "doc1", "in flight", 1, 10)

	attemptID, err := f.meta.CreateIndexAttempt(ctx, 1, 10)
	require.NoError(t, err)

	_, err = DeletePair(ctx, f.index, f.meta, 1, 10, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDeletionBlocked, errors.GetCode(err))

	// Once the attempt completes the deletion goes through.
	require.NoError(t, f.meta.UpdateIndexAttempt(ctx, attemptID, store.AttemptStatusSuccess, ""))
	_, err = DeletePair(ctx, f.index, f.meta, 1, 10, nil)
	require.NoError(t, err)
}
