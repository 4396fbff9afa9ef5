// Package background holds the maintenance jobs that run alongside the
// indexing pipeline: access-control reconciliation and connector-credential
// pair deletion.
package background

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/quillindex/quill/internal/docindex"
	"github.com/quillindex/quill/internal/dynconfig"
	"github.com/quillindex/quill/internal/store"
)

// CompletedACLUpdateKey marks a finished reconciliation pass in the config
// store.
const CompletedACLUpdateKey = "completed_acl_update"

// aclUpdateBatchSize bounds the documents resolved per Index.update call.
const aclUpdateBatchSize = 100

// ACLSyncOptions controls one reconciliation pass.
type ACLSyncOptions struct {
	// SkipIfDone short-circuits the pass when the completion marker is
	// already present in the config store.
	SkipIfDone bool
	Logger     *slog.Logger
}

// SyncACL reconciles every indexed document's access list with the current
// ownership state in the metadata store: a document is public when any of
// its owning pairs is public, otherwise its allowed users are the union of
// the owning pairs' users. Safe to run concurrently with indexing; both
// sides converge.
func SyncACL(ctx context.Context, index docindex.Updatable, meta store.MetadataStore, config dynconfig.Store, opts ACLSyncOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.SkipIfDone {
		if _, err := config.Load(CompletedACLUpdateKey); err == nil {
			logger.Info("access reconciliation already completed, skipping")
			return nil
		} else if !stderrors.Is(err, dynconfig.ErrNotFound) {
			return err
		}
	}

	documentIDs, err := meta.AllDocumentIDs(ctx)
	if err != nil {
		return err
	}
	logger.Info("access reconciliation starting", "documents", len(documentIDs))

	for start := 0; start < len(documentIDs); start += aclUpdateBatchSize {
		end := start + aclUpdateBatchSize
		if end > len(documentIDs) {
			end = len(documentIDs)
		}
		batch := documentIDs[start:end]

		accessInfo, err := meta.GetAccessInfoForDocuments(ctx, batch)
		if err != nil {
			return err
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
			return err
		}
	}

	if err := config.Store(CompletedACLUpdateKey, true); err != nil {
		return err
	}
	logger.Info("access reconciliation finished", "documents", len(documentIDs))
	return nil
}

// RunACLSyncNonblocking starts a reconciliation pass in the background and
// returns immediately. Failures are logged, not returned. The returned
// channel closes when the pass finishes; callers whose process or index
// must outlive the pass wait on it before shutting down.
func RunACLSyncNonblocking(index docindex.Updatable, meta store.MetadataStore, config dynconfig.Store, opts ACLSyncOptions) <-chan struct{} {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := SyncACL(context.Background(), index, meta, config, opts); err != nil {
			logger.Error("access reconciliation failed", "error", err)
		}
	}()
	return done
}
