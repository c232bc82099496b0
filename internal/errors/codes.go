// Package errors provides structured error handling for amanctx.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (collections, records, locks)
//   - 3XX: Network errors (embedding provider, chunker)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryStorage    Category = "STORAGE"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal means the process cannot do useful work until fixed.
	SeverityFatal Severity = "FATAL"
	// SeverityError means the operation failed but others can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning means the operation degraded and continued.
	SeverityWarning Severity = "WARNING"
)

const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeCollectionProvision = "ERR_201_COLLECTION_PROVISION"
	ErrCodeSchemaDrift         = "ERR_202_SCHEMA_DRIFT"
	ErrCodeUpsertFailed        = "ERR_203_UPSERT_FAILED"
	ErrCodeLockHeld            = "ERR_204_LOCK_HELD"
	ErrCodeQueue               = "ERR_205_QUEUE"
	ErrCodeStoreClosed         = "ERR_206_STORE_CLOSED"
	ErrCodeIndexFailed         = "ERR_207_INDEX_FAILED"

	// Network errors (300-399)
	ErrCodeEmbeddingFailed  = "ERR_301_EMBEDDING_FAILED"
	ErrCodeChunkerFailed    = "ERR_302_CHUNKER_FAILED"
	ErrCodeProviderTimeout  = "ERR_303_PROVIDER_TIMEOUT"
	ErrCodeProviderRejected = "ERR_304_PROVIDER_REJECTED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidWorkItem   = "ERR_403_INVALID_WORK_ITEM"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
)

func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCollectionProvision, ErrCodeSchemaDrift, ErrCodeConfigInvalid:
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode reports codes worth retrying. A rejected request (4xx from the
// provider) is not retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingFailed, ErrCodeChunkerFailed, ErrCodeProviderTimeout, ErrCodeLockHeld:
		return true
	default:
		return false
	}
}
