package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassificationFromCode(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"config", ErrCodeConnectorMissing, CategoryConfig, SeverityFatal, false},
		{"auth", ErrCodeCredentialsInvalid, CategoryAuth, SeverityFatal, false},
		{"embedding", ErrCodeEmbeddingFailed, CategoryEmbedding, SeverityError, true},
		{"backend", ErrCodeIndexFailed, CategoryBackend, SeverityError, false},
		{"corrupt index", ErrCodeCorruptIndex, CategoryBackend, SeverityFatal, false},
		{"store", ErrCodeStoreFailed, CategoryStore, SeverityError, false},
		{"guard", ErrCodeDeletionBlocked, CategoryGuard, SeverityError, true},
		{"internal", ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestQuillError_ErrorFormat(t *testing.T) {
	err := New(ErrCodeEmbeddingFailed, "model unavailable", nil)
	assert.Equal(t, "[ERR_301_EMBEDDING_FAILED] model unavailable", err.Error())
}

func TestQuillError_UnwrapAndIs(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeIndexFailed, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(err, New(ErrCodeIndexFailed, "other message", nil)))
	assert.False(t, stderrors.Is(err, New(ErrCodeStoreFailed, "other code", nil)))
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeIndexFailed, nil))
}

func TestQuillError_WithDetailAndSuggestion(t *testing.T) {
	err := GuardError("deletion blocked", nil).
		WithDetail("connector_id", "3").
		WithDetail("credential_id", "7").
		WithSuggestion("retry after the indexing attempt completes")

	assert.Equal(t, "3", err.Details["connector_id"])
	assert.Equal(t, "7", err.Details["credential_id"])
	assert.NotEmpty(t, err.Suggestion)
}

func TestIsRetryableAndIsFatal(t *testing.T) {
	assert.True(t, IsRetryable(EmbeddingError("transient", nil)))
	assert.False(t, IsRetryable(AuthError("bad token", nil)))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(stderrors.New("plain error")))

	assert.True(t, IsFatal(ConfigError("unsupported source", nil)))
	assert.False(t, IsFatal(BackendError("insert failed", nil)))
	assert.False(t, IsFatal(nil))
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}, func() error {
		calls++
		return AuthError("bad credentials", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesRetryableThenSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}, func() error {
		calls++
		if calls < 3 {
			return EmbeddingError("transient", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	}, func() error {
		calls++
		return EmbeddingError(fmt.Sprintf("attempt %d", calls), nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error {
		return EmbeddingError("never reached", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
}
