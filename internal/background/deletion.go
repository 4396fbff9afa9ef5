package background

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/quillindex/quill/internal/docindex"
	"github.com/quillindex/quill/internal/errors"
	"github.com/quillindex/quill/internal/store"
)

// DeletionIndex is the slice of the document index the deletion flow needs.
type DeletionIndex interface {
	docindex.Deletable
	docindex.Updatable
}

// DeletionResult reports what a pair deletion removed.
type DeletionResult struct {
	// DocumentsDeleted are documents exclusively owned by the pair, removed
	// from both the index and the metadata store.
	DocumentsDeleted int
	// EdgesDeleted are ownership edges removed from documents that other
	// pairs still own; the documents themselves survive with updated access.
	EdgesDeleted int
}

// DeletePair removes a connector-credential pair and everything it
// exclusively owns. Documents shared with other pairs keep their chunks and
// get their access lists recomputed from the surviving owners. The deletion
// is refused while an indexing attempt for the pair is in flight.
func DeletePair(ctx context.Context, index DeletionIndex, meta store.MetadataStore, connectorID, credentialID int64, logger *slog.Logger) (DeletionResult, error) {
	result := DeletionResult{}
	if logger == nil {
		logger = slog.Default()
	}

	active, err := meta.HasActiveAttempt(ctx, connectorID, credentialID)
	if err != nil {
		return result, err
	}
	if active {
		return result, errors.GuardError(
			"cannot delete connector-credential pair while an indexing attempt is in flight", nil).
			WithDetail("connector_id", strconv.FormatInt(connectorID, 10)).
			WithDetail("credential_id", strconv.FormatInt(credentialID, 10)).
			WithSuggestion("wait for the attempt to finish, or disable the pair and retry")
	}

	documentIDs, err := meta.GetDocumentsForPair(ctx, connectorID, credentialID)
	if err != nil {
		return result, err
	}

	counts, err := meta.CountPairsForDocuments(ctx, documentIDs)
	if err != nil {
		return result, err
	}

	var exclusive, shared []string
	for _, documentID := range documentIDs {
		if counts[documentID] <= 1 {
			exclusive = append(exclusive, documentID)
		} else {
			shared = append(shared, documentID)
		}
	}

	// Exclusively owned documents go away entirely: chunks from the index,
	// then rows and edges from the metadata store.
	if len(exclusive) > 0 {
		if err := index.Delete(ctx, exclusive); err != nil {
			return result, err
		}
		result.DocumentsDeleted = len(exclusive)
	}

	// Shared documents only lose this pair's edge, then get their access
	// recomputed from the owners that remain.
	if len(shared) > 0 {
		if err := meta.DeleteDocumentEdges(ctx, shared, connectorID, credentialID); err != nil {
			return result, err
		}
		result.EdgesDeleted = len(shared)

		accessInfo, err := meta.GetAccessInfoForDocuments(ctx, shared)
		if err != nil {
			return result, err
		}
		requests := make([]docindex.UpdateRequest, 0, len(accessInfo))
		for documentID, info := range accessInfo {
			allowed := info.UserIDs
			if info.IsPublic {
				allowed = []string{docindex.PublicUser}
			}
			requests = append(requests, docindex.UpdateRequest{
				DocumentIDs:  []string{documentID},
				AllowedUsers: &allowed,
			})
		}
		if err := index.Update(ctx, requests); err != nil {
			return result, err
		}
	}

	if err := meta.DeleteConnectorCredentialPair(ctx, connectorID, credentialID); err != nil {
		return result, err
	}

	logger.Info("connector-credential pair deleted",
		"connector_id", connectorID,
		"credential_id", credentialID,
		"documents_deleted", result.DocumentsDeleted,
		"edges_deleted", result.EdgesDeleted)
	return result, nil
}
