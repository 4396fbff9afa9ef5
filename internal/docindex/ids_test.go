package docindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDocumentID(t *testing.T) {
	assert.Equal(t, "https://example.com/page", NormalizeDocumentID("https://example.com/page/"))
	assert.Equal(t, "https://example.com/page", NormalizeDocumentID("https://example.com/page"))
	assert.Equal(t, "/", NormalizeDocumentID("/"))
}

func TestChunkUUIDStable(t *testing.T) {
	first := ChunkUUID("https://example.com/page", 0)
	second := ChunkUUID("https://example.com/page/", 0)

	// Trailing slash variants collapse to the same chunk identity.
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, ChunkUUID("https://example.com/page", 1))
	assert.NotEqual(t, first, ChunkUUID("https://example.com/other", 0))
}

func TestBaseChunkUUID(t *testing.T) {
	id := ChunkUUID("doc", 0)

	assert.Equal(t, id, baseChunkUUID(id))
	assert.Equal(t, id, baseChunkUUID(miniVectorID(id, 2)))
}
