// Package errors provides structured error handling for DIRC.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and extraction errors
//   - 3XX: Network and provider errors
//   - 4XX: Validation (caller input) errors
//   - 5XX: Store, pipeline, and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and extraction errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network and provider errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates caller input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates store, pipeline, and unexpected errors.
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
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO and extraction errors (200-299)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission   = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull         = "ERR_203_DISK_FULL"
	ErrCodeCorruptIndex     = "ERR_205_CORRUPT_INDEX"
	ErrCodeExtractionFailed = "ERR_210_EXTRACTION_FAILED"
	ErrCodeEmptyDocument    = "ERR_211_EMPTY_DOCUMENT"

	// Network and provider errors (300-399)
	ErrCodeNetworkTimeout      = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable  = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeProviderRateLimited = "ERR_303_PROVIDER_RATE_LIMITED"

	// Validation errors (400-499)
	ErrCodeInvalidInput       = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch  = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery       = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty         = "ERR_404_QUERY_EMPTY"
	ErrCodeUnknownFileID      = "ERR_405_UNKNOWN_FILE_ID"
	ErrCodeInvalidChunkConfig = "ERR_406_INVALID_CHUNK_CONFIG"

	// Store, pipeline, and internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed   = "ERR_502_EMBEDDING_FAILED"
	ErrCodeDocumentBusy      = "ERR_503_DOCUMENT_BUSY"
	ErrCodeChunkingFailed    = "ERR_504_CHUNKING_FAILED"
	ErrCodeVectorStore       = "ERR_505_VECTOR_STORE"
	ErrCodeKeywordStore      = "ERR_506_KEYWORD_STORE"
	ErrCodeRelationalStore   = "ERR_507_RELATIONAL_STORE"
	ErrCodeInconsistentIndex = "ERR_508_INCONSISTENT_INDEX"
	ErrCodeSearchFailed      = "ERR_509_SEARCH_FAILED"
	ErrCodeCancelled         = "ERR_590_CANCELLED"
	ErrCodeDeadlineExceeded  = "ERR_591_DEADLINE_EXCEEDED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Fatal errors
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDiskFull:
		return SeverityFatal
	}

	// Retryable provider errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeProviderRateLimited, ErrCodeDocumentBusy:
		return true
	default:
		return false
	}
}
