package docindex

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NormalizeDocumentID strips trailing slashes so that URL-derived IDs like
// "https://example.com/page" and "https://example.com/page/" map to the
// same document.
func NormalizeDocumentID(id string) string {
	if id == "/" {
		return id
	}
	return strings.TrimRight(id, "/")
}

// ChunkUUID derives the stable chunk identifier from the document ID and
// chunk index. The same document content always yields the same IDs, which
// is what makes re-indexing idempotent.
func ChunkUUID(documentID string, chunkIndex int) string {
	name := fmt.Sprintf("%s_%d", NormalizeDocumentID(documentID), chunkIndex)
	return uuid.NewSHA1(uuid.NameSpaceX500, []byte(name)).String()
}

// miniVectorID derives the vector store ID of one mini-chunk piece.
func miniVectorID(chunkUUID string, miniIndex int) string {
	return fmt.Sprintf("%s__mini_%d", chunkUUID, miniIndex)
}

// baseChunkUUID maps a vector store ID back to its chunk UUID, stripping
// any mini-chunk suffix.
func baseChunkUUID(vectorID string) string {
	if idx := strings.Index(vectorID, "__mini_"); idx >= 0 {
		return vectorID[:idx]
	}
	return vectorID
}
