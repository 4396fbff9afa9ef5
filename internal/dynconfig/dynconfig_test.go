package dynconfig

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_LoadMissingKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("never_stored")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_StoreThenLoad(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Store("completed_acl_update", true))

	raw, err := store.Load("completed_acl_update")
	require.NoError(t, err)

	var done bool
	require.NoError(t, json.Unmarshal(raw, &done))
	assert.True(t, done)
}

func TestFileStore_Overwrite(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Store("cursor", map[string]int{"offset": 1}))
	require.NoError(t, store.Store("cursor", map[string]int{"offset": 2}))

	raw, err := store.Load("cursor")
	require.NoError(t, err)

	var cursor map[string]int
	require.NoError(t, json.Unmarshal(raw, &cursor))
	assert.Equal(t, 2, cursor["offset"])
}

func TestFileStore_KeyCannotEscapeRoot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Store("../outside/key", "value"))

	// The sanitized key is still loadable through the same API.
	raw, err := store.Load("../outside/key")
	require.NoError(t, err)
	assert.JSONEq(t, `"value"`, string(raw))
}
