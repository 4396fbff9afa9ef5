// Package errors provides structured error handling for Quill.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Authorization errors
//   - 3XX: Embedding errors
//   - 4XX: Index backend errors
//   - 5XX: Metadata store errors
//   - 6XX: Guard violations
//   - 7XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryAuth indicates credential and authorization errors.
	CategoryAuth Category = "AUTH"
	// CategoryEmbedding indicates embedding model errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryBackend indicates document index backend errors.
	CategoryBackend Category = "BACKEND"
	// CategoryStore indicates metadata store errors.
	CategoryStore Category = "STORE"
	// CategoryGuard indicates concurrency guard violations.
	CategoryGuard Category = "GUARD"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid     = "ERR_101_CONFIG_INVALID"
	ErrCodeConnectorMissing  = "ERR_102_CONNECTOR_MISSING"
	ErrCodeInputTypeMismatch = "ERR_103_INPUT_TYPE_MISMATCH"
	ErrCodeConfigNotFound    = "ERR_104_CONFIG_NOT_FOUND"

	// Authorization errors (200-299)
	ErrCodeCredentialsMissing = "ERR_201_CREDENTIALS_MISSING"
	ErrCodeCredentialsInvalid = "ERR_202_CREDENTIALS_INVALID"

	// Embedding errors (300-399)
	ErrCodeEmbeddingFailed   = "ERR_301_EMBEDDING_FAILED"
	ErrCodeDimensionMismatch = "ERR_302_DIMENSION_MISMATCH"

	// Index backend errors (400-499)
	ErrCodeIndexFailed       = "ERR_401_INDEX_FAILED"
	ErrCodeIndexUpdateFailed = "ERR_402_INDEX_UPDATE_FAILED"
	ErrCodeIndexDeleteFailed = "ERR_403_INDEX_DELETE_FAILED"
	ErrCodeRetrievalFailed   = "ERR_404_RETRIEVAL_FAILED"
	ErrCodeCorruptIndex      = "ERR_405_CORRUPT_INDEX"

	// Metadata store errors (500-599)
	ErrCodeStoreFailed      = "ERR_501_STORE_FAILED"
	ErrCodeDocumentNotFound = "ERR_502_DOCUMENT_NOT_FOUND"

	// Guard errors (600-699)
	ErrCodeDeletionBlocked = "ERR_601_DELETION_BLOCKED"

	// Internal errors (700-799)
	ErrCodeInternal       = "ERR_701_INTERNAL"
	ErrCodeChunkingFailed = "ERR_702_CHUNKING_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryAuth
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryBackend
	case '5':
		return CategoryStore
	case '6':
		return CategoryGuard
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
// Configuration and authorization problems abort the attempt outright;
// a corrupt index cannot be worked around either.
func severityFromCode(code string) Severity {
	if code == ErrCodeCorruptIndex {
		return SeverityFatal
	}

	switch categoryFromCode(code) {
	case CategoryConfig, CategoryAuth:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// isRetryableCode checks if an error code represents a retryable condition.
// An embedding failure aborts only the current batch, and the batch is safe
// to retry because indexing is idempotent. A blocked deletion succeeds once
// the in-flight attempt finishes. Credential problems require operator
// action and are never retried automatically.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingFailed, ErrCodeDeletionBlocked:
		return true
	default:
		return false
	}
}
