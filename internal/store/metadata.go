package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// MetadataStore persists documents, ownership edges, connector credential
// pairs, indexing attempts, and chunk payloads in SQLite.
type MetadataStore interface {
	// Document operations. Upserts tolerate concurrent duplicate inserts.
	UpsertDocuments(ctx context.Context, documentIDs []string) error
	UpsertDocumentEdges(ctx context.Context, documentIDs []string, connectorID, credentialID int64) error
	DeleteDocumentsComplete(ctx context.Context, documentIDs []string) error
	DeleteDocumentEdges(ctx context.Context, documentIDs []string, connectorID, credentialID int64) error
	GetDocumentsForPair(ctx context.Context, connectorID, credentialID int64) ([]string, error)
	CountPairsForDocuments(ctx context.Context, documentIDs []string) (map[string]int, error)
	GetAccessInfoForDocuments(ctx context.Context, documentIDs []string) (map[string]AccessInfo, error)
	AllDocumentIDs(ctx context.Context) ([]string, error)

	// Connector credential pair operations.
	UpsertConnectorCredentialPair(ctx context.Context, pair *ConnectorCredentialPair) error
	GetConnectorCredentialPair(ctx context.Context, connectorID, credentialID int64) (*ConnectorCredentialPair, error)
	SetPairDisabled(ctx context.Context, connectorID, credentialID int64, disabled bool) error
	DeleteConnectorCredentialPair(ctx context.Context, connectorID, credentialID int64) error

	// Index attempt operations.
	CreateIndexAttempt(ctx context.Context, connectorID, credentialID int64) (int64, error)
	UpdateIndexAttempt(ctx context.Context, attemptID int64, status AttemptStatus, errMsg string) error
	HasActiveAttempt(ctx context.Context, connectorID, credentialID int64) (bool, error)

	// Chunk payload operations.
	UpsertChunks(ctx context.Context, chunks []*StoredChunk) error
	GetChunks(ctx context.Context, chunkIDs []string) ([]*StoredChunk, error)
	GetChunkIDsForDocument(ctx context.Context, documentID string) ([]string, error)
	HasChunksForDocument(ctx context.Context, documentID string) (bool, error)
	DeleteChunksForDocuments(ctx context.Context, documentIDs []string) error
	UpdateAccess(ctx context.Context, documentIDs []string, allowedUsers []string) error
	UpdateBoost(ctx context.Context, documentIDs []string, boost int) error
	ChunkCount(ctx context.Context) (int, error)

	Close() error
}

// SQLiteMetadataStore implements MetadataStore over a single SQLite file.
type SQLiteMetadataStore struct {
	db   *sql.DB
	path string
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore opens (or creates) the metadata database. An empty
// path uses an in-memory database.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening metadata database: %w", err)
	}

	// WAL must be set via PRAGMA statements; modernc.org/sqlite ignores
	// some DSN parameters.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteMetadataStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteMetadataStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS document (
		id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS document_by_connector_credential_pair (
		document_id   TEXT NOT NULL,
		connector_id  INTEGER NOT NULL,
		credential_id INTEGER NOT NULL,
		PRIMARY KEY (document_id, connector_id, credential_id)
	);
	CREATE INDEX IF NOT EXISTS idx_edge_pair
		ON document_by_connector_credential_pair (connector_id, credential_id);

	CREATE TABLE IF NOT EXISTS connector_credential_pair (
		connector_id  INTEGER NOT NULL,
		credential_id INTEGER NOT NULL,
		user_id       TEXT NOT NULL DEFAULT '',
		is_public     INTEGER NOT NULL DEFAULT 0,
		disabled      INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		PRIMARY KEY (connector_id, credential_id)
	);

	CREATE TABLE IF NOT EXISTS index_attempt (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		connector_id  INTEGER NOT NULL,
		credential_id INTEGER NOT NULL,
		status        TEXT NOT NULL,
		error         TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempt_pair_status
		ON index_attempt (connector_id, credential_id, status);

	CREATE TABLE IF NOT EXISTS chunk (
		id                   TEXT PRIMARY KEY,
		document_id          TEXT NOT NULL,
		chunk_index          INTEGER NOT NULL,
		blurb                TEXT NOT NULL,
		content              TEXT NOT NULL,
		source_links         TEXT NOT NULL,
		section_continuation INTEGER NOT NULL,
		source               TEXT NOT NULL,
		semantic_id          TEXT NOT NULL,
		metadata             TEXT NOT NULL,
		allowed_users        TEXT NOT NULL,
		boost                INTEGER NOT NULL DEFAULT 1,
		updated_at           TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunk_document ON chunk (document_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// UpsertDocuments records documents, ignoring ones already present. Runs in
// its own transaction so concurrent indexing runs over shared documents do
// not entangle.
func (s *SQLiteMetadataStore) UpsertDocuments(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO document (id) VALUES (?) ON CONFLICT DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range documentIDs {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("upserting document %s: %w", id, err)
			}
		}
		return nil
	})
}

// UpsertDocumentEdges records ownership of documents by a pair, ignoring
// edges already present. Runs in its own transaction, after the documents
// themselves are committed.
func (s *SQLiteMetadataStore) UpsertDocumentEdges(ctx context.Context, documentIDs []string, connectorID, credentialID int64) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO document_by_connector_credential_pair
			 (document_id, connector_id, credential_id) VALUES (?, ?, ?)
			 ON CONFLICT DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range documentIDs {
			if _, err := stmt.ExecContext(ctx, id, connectorID, credentialID); err != nil {
				return fmt.Errorf("upserting edge for document %s: %w", id, err)
			}
		}
		return nil
	})
}

// DeleteDocumentsComplete removes documents, their ownership edges, and
// their chunk payloads in one transaction.
func (s *SQLiteMetadataStore) DeleteDocumentsComplete(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		placeholders, args := inArgs(documentIDs)
		for _, q := range []string{
			`DELETE FROM chunk WHERE document_id IN (` + placeholders + `)`,
			`DELETE FROM document_by_connector_credential_pair WHERE document_id IN (` + placeholders + `)`,
			`DELETE FROM document WHERE id IN (` + placeholders + `)`,
		} {
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("deleting documents: %w", err)
			}
		}
		return nil
	})
}

// DeleteDocumentEdges removes one pair's ownership of the given documents.
// Documents themselves stay; other pairs may still own them.
func (s *SQLiteMetadataStore) DeleteDocumentEdges(ctx context.Context, documentIDs []string, connectorID, credentialID int64) error {
	if len(documentIDs) == 0 {
		return nil
	}
	placeholders, args := inArgs(documentIDs)
	args = append(args, connectorID, credentialID)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM document_by_connector_credential_pair
		 WHERE document_id IN (`+placeholders+`) AND connector_id = ? AND credential_id = ?`,
		args...)
	if err != nil {
		return fmt.Errorf("deleting edges: %w", err)
	}
	return nil
}

// GetDocumentsForPair returns the IDs of all documents owned by a pair.
func (s *SQLiteMetadataStore) GetDocumentsForPair(ctx context.Context, connectorID, credentialID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id FROM document_by_connector_credential_pair
		 WHERE connector_id = ? AND credential_id = ? ORDER BY document_id`,
		connectorID, credentialID)
	if err != nil {
		return nil, fmt.Errorf("querying pair documents: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// CountPairsForDocuments returns, per document, how many pairs own it.
// Documents with no edges are absent from the result.
func (s *SQLiteMetadataStore) CountPairsForDocuments(ctx context.Context, documentIDs []string) (map[string]int, error) {
	if len(documentIDs) == 0 {
		return map[string]int{}, nil
	}
	placeholders, args := inArgs(documentIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, COUNT(*) FROM document_by_connector_credential_pair
		 WHERE document_id IN (`+placeholders+`) GROUP BY document_id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("counting owning pairs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(documentIDs))
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// GetAccessInfoForDocuments merges access across all owning pairs of each
// document: public if any owning pair is public, otherwise the union of the
// owning pairs' user IDs.
func (s *SQLiteMetadataStore) GetAccessInfoForDocuments(ctx context.Context, documentIDs []string) (map[string]AccessInfo, error) {
	if len(documentIDs) == 0 {
		return map[string]AccessInfo{}, nil
	}
	placeholders, args := inArgs(documentIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.document_id, p.user_id, p.is_public
		 FROM document_by_connector_credential_pair e
		 JOIN connector_credential_pair p
		   ON p.connector_id = e.connector_id AND p.credential_id = e.credential_id
		 WHERE e.document_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying access info: %w", err)
	}
	defer rows.Close()

	type acc struct {
		public bool
		users  map[string]struct{}
	}
	merged := make(map[string]*acc)
	for rows.Next() {
		var docID, userID string
		var isPublic bool
		if err := rows.Scan(&docID, &userID, &isPublic); err != nil {
			return nil, err
		}
		a := merged[docID]
		if a == nil {
			a = &acc{users: map[string]struct{}{}}
			merged[docID] = a
		}
		if isPublic {
			a.public = true
		}
		if userID != "" {
			a.users[userID] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make(map[string]AccessInfo, len(merged))
	for docID, a := range merged {
		info := AccessInfo{IsPublic: a.public}
		for user := range a.users {
			info.UserIDs = append(info.UserIDs, user)
		}
		result[docID] = info
	}
	return result, nil
}

// AllDocumentIDs returns every known document ID.
func (s *SQLiteMetadataStore) AllDocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM document ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// UpsertConnectorCredentialPair registers or updates a pair.
func (s *SQLiteMetadataStore) UpsertConnectorCredentialPair(ctx context.Context, pair *ConnectorCredentialPair) error {
	createdAt := pair.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connector_credential_pair
		 (connector_id, credential_id, user_id, is_public, disabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (connector_id, credential_id) DO UPDATE SET
		   user_id = excluded.user_id,
		   is_public = excluded.is_public,
		   disabled = excluded.disabled`,
		pair.ConnectorID, pair.CredentialID, pair.UserID,
		pair.IsPublic, pair.Disabled, createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting pair (%d, %d): %w", pair.ConnectorID, pair.CredentialID, err)
	}
	return nil
}

// GetConnectorCredentialPair loads one pair, or nil if unknown.
func (s *SQLiteMetadataStore) GetConnectorCredentialPair(ctx context.Context, connectorID, credentialID int64) (*ConnectorCredentialPair, error) {
	var pair ConnectorCredentialPair
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT connector_id, credential_id, user_id, is_public, disabled, created_at
		 FROM connector_credential_pair WHERE connector_id = ? AND credential_id = ?`,
		connectorID, credentialID).
		Scan(&pair.ConnectorID, &pair.CredentialID, &pair.UserID,
			&pair.IsPublic, &pair.Disabled, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying pair (%d, %d): %w", connectorID, credentialID, err)
	}
	pair.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &pair, nil
}

// SetPairDisabled flips a pair's disabled flag. Indexing runs check this
// between batches and stop cooperatively.
func (s *SQLiteMetadataStore) SetPairDisabled(ctx context.Context, connectorID, credentialID int64, disabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE connector_credential_pair SET disabled = ?
		 WHERE connector_id = ? AND credential_id = ?`,
		disabled, connectorID, credentialID)
	if err != nil {
		return fmt.Errorf("updating pair disabled flag: %w", err)
	}
	return nil
}

// DeleteConnectorCredentialPair removes a pair row. Ownership edges must be
// cleaned up by the caller first.
func (s *SQLiteMetadataStore) DeleteConnectorCredentialPair(ctx context.Context, connectorID, credentialID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM connector_credential_pair
		 WHERE connector_id = ? AND credential_id = ?`,
		connectorID, credentialID)
	if err != nil {
		return fmt.Errorf("deleting pair (%d, %d): %w", connectorID, credentialID, err)
	}
	return nil
}

// CreateIndexAttempt records a new attempt in the not_started state.
func (s *SQLiteMetadataStore) CreateIndexAttempt(ctx context.Context, connectorID, credentialID int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO index_attempt (connector_id, credential_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		connectorID, credentialID, AttemptStatusNotStarted, now, now)
	if err != nil {
		return 0, fmt.Errorf("creating index attempt: %w", err)
	}
	return result.LastInsertId()
}

// UpdateIndexAttempt transitions an attempt's status.
func (s *SQLiteMetadataStore) UpdateIndexAttempt(ctx context.Context, attemptID int64, status AttemptStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE index_attempt SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC().Format(time.RFC3339), attemptID)
	if err != nil {
		return fmt.Errorf("updating index attempt %d: %w", attemptID, err)
	}
	return nil
}

// HasActiveAttempt reports whether the pair has an attempt that is queued
// or running. Pair deletion is blocked while this is true.
func (s *SQLiteMetadataStore) HasActiveAttempt(ctx context.Context, connectorID, credentialID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_attempt
		 WHERE connector_id = ? AND credential_id = ? AND status IN (?, ?)`,
		connectorID, credentialID, AttemptStatusNotStarted, AttemptStatusInProgress).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("querying active attempts: %w", err)
	}
	return count > 0, nil
}

// UpsertChunks writes chunk payloads, replacing existing rows by ID.
func (s *SQLiteMetadataStore) UpsertChunks(ctx context.Context, chunks []*StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO chunk
			 (id, document_id, chunk_index, blurb, content, source_links,
			  section_continuation, source, semantic_id, metadata,
			  allowed_users, boost, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			links, err := json.Marshal(c.SourceLinks)
			if err != nil {
				return fmt.Errorf("encoding source links for chunk %s: %w", c.ID, err)
			}
			meta, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("encoding metadata for chunk %s: %w", c.ID, err)
			}
			users, err := json.Marshal(c.AllowedUsers)
			if err != nil {
				return fmt.Errorf("encoding allowed users for chunk %s: %w", c.ID, err)
			}
			updatedAt := c.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = time.Now().UTC()
			}
			_, err = stmt.ExecContext(ctx,
				c.ID, c.DocumentID, c.ChunkIndex, c.Blurb, c.Content,
				string(links), c.SectionContinuation, c.Source, c.SemanticID,
				string(meta), string(users), c.Boost, updatedAt.Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("upserting chunk %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// GetChunks loads chunk payloads by ID. Missing IDs are silently skipped;
// the result preserves the request order of the found chunks.
func (s *SQLiteMetadataStore) GetChunks(ctx context.Context, chunkIDs []string) ([]*StoredChunk, error) {
	if len(chunkIDs) == 0 {
		return []*StoredChunk{}, nil
	}
	placeholders, args := inArgs(chunkIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, blurb, content, source_links,
		        section_continuation, source, semantic_id, metadata,
		        allowed_users, boost, updated_at
		 FROM chunk WHERE id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*StoredChunk, len(chunkIDs))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*StoredChunk, 0, len(byID))
	for _, id := range chunkIDs {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// GetChunkIDsForDocument returns the IDs of a document's chunks in chunk
// index order.
func (s *SQLiteMetadataStore) GetChunkIDsForDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunk WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying document chunks: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// HasChunksForDocument reports whether any chunk of the document exists.
func (s *SQLiteMetadataStore) HasChunksForDocument(ctx context.Context, documentID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunk WHERE document_id = ? LIMIT 1`, documentID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking document chunks: %w", err)
	}
	return count > 0, nil
}

// DeleteChunksForDocuments removes all chunk payloads of the documents.
func (s *SQLiteMetadataStore) DeleteChunksForDocuments(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	placeholders, args := inArgs(documentIDs)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunk WHERE document_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// UpdateAccess overwrites the allowed user list on every chunk of the given
// documents.
func (s *SQLiteMetadataStore) UpdateAccess(ctx context.Context, documentIDs []string, allowedUsers []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	users, err := json.Marshal(allowedUsers)
	if err != nil {
		return fmt.Errorf("encoding allowed users: %w", err)
	}
	placeholders, args := inArgs(documentIDs)
	args = append([]any{string(users)}, args...)
	_, err = s.db.ExecContext(ctx,
		`UPDATE chunk SET allowed_users = ? WHERE document_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("updating access: %w", err)
	}
	return nil
}

// UpdateBoost overwrites the boost on every chunk of the given documents.
func (s *SQLiteMetadataStore) UpdateBoost(ctx context.Context, documentIDs []string, boost int) error {
	if len(documentIDs) == 0 {
		return nil
	}
	placeholders, args := inArgs(documentIDs)
	args = append([]any{boost}, args...)
	_, err := s.db.ExecContext(ctx,
		`UPDATE chunk SET boost = ? WHERE document_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("updating boost: %w", err)
	}
	return nil
}

// ChunkCount returns the total number of stored chunks.
func (s *SQLiteMetadataStore) ChunkCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// Close closes the database after a final WAL checkpoint.
func (s *SQLiteMetadataStore) Close() error {
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

func (s *SQLiteMetadataStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanChunk(rows *sql.Rows) (*StoredChunk, error) {
	var c StoredChunk
	var links, meta, users, updatedAt string
	err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Blurb, &c.Content,
		&links, &c.SectionContinuation, &c.Source, &c.SemanticID,
		&meta, &users, &c.Boost, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning chunk row: %w", err)
	}
	if err := json.Unmarshal([]byte(links), &c.SourceLinks); err != nil {
		return nil, fmt.Errorf("decoding source links for chunk %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for chunk %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(users), &c.AllowedUsers); err != nil {
		return nil, fmt.Errorf("decoding allowed users for chunk %s: %w", c.ID, err)
	}
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func inArgs(ids []string) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders, args
}
