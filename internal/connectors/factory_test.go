package connectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillindex/quill/internal/errors"
)

type fakeLoadConnector struct {
	rotated map[string]any
}

func (f *fakeLoadConnector) LoadCredentials(credentials map[string]any) (map[string]any, error) {
	return f.rotated, nil
}

func (f *fakeLoadConnector) LoadFromState(ctx context.Context) <-chan BatchResult {
	ch := make(chan BatchResult)
	close(ch)
	return ch
}

func TestInstantiateUnknownSource(t *testing.T) {
	_, _, err := Instantiate(Source("jira"), InputTypeLoadState, nil, nil)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConnectorMissing, errors.GetCode(err))
}

func TestInstantiateInputTypeMismatch(t *testing.T) {
	// Given a registered connector that only supports full loads
	Register(Source("test_load_only"), func(config map[string]any) (BaseConnector, error) {
		return &fakeLoadConnector{}, nil
	})

	// When asked to poll it
	_, _, err := Instantiate(Source("test_load_only"), InputTypePoll, nil, nil)

	// Then the mismatch is reported as such, not as a missing connector
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInputTypeMismatch, errors.GetCode(err))
}

func TestInstantiateReturnsRotatedCredentials(t *testing.T) {
	rotated := map[string]any{"token": "refreshed"}
	Register(Source("test_rotating"), func(config map[string]any) (BaseConnector, error) {
		return &fakeLoadConnector{rotated: rotated}, nil
	})

	conn, updated, err := Instantiate(Source("test_rotating"), InputTypeLoadState, nil, map[string]any{"token": "stale"})

	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, rotated, updated)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register(Source("test_dup"), func(config map[string]any) (BaseConnector, error) {
		return &fakeLoadConnector{}, nil
	})

	assert.Panics(t, func() {
		Register(Source("test_dup"), func(config map[string]any) (BaseConnector, error) {
			return &fakeLoadConnector{}, nil
		})
	})
}

func TestShortDescriptor(t *testing.T) {
	doc := Document{ID: "https://example.com/a", SemanticIdentifier: "A Page"}

	assert.Equal(t, "ID: 'https://example.com/a'; Semantic ID: 'A Page'", doc.ShortDescriptor())
}
