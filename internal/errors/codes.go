// Package errors provides structured error handling for docrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, blob store)
//   - 3XX: Provider and network errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and blob I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates provider and network errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the current run.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the current item but the run can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound     = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid      = "ERR_102_CONFIG_INVALID"
	ErrCodeCredentialsMissing = "ERR_103_CREDENTIALS_MISSING"
	ErrCodeMetricMismatch     = "ERR_104_METRIC_MISMATCH"
	ErrCodeStoreUnreachable   = "ERR_105_STORE_UNREACHABLE"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeCorruptIndex   = "ERR_205_CORRUPT_INDEX"
	ErrCodeFileUnreadable = "ERR_207_FILE_UNREADABLE"
	ErrCodeStoreLocked    = "ERR_208_STORE_LOCKED"

	// Provider and network errors (300-399)
	ErrCodeNetworkTimeout      = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable  = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeRateLimited         = "ERR_303_RATE_LIMITED"
	ErrCodeProviderUnavailable = "ERR_304_PROVIDER_UNAVAILABLE"
	ErrCodeProviderRejected    = "ERR_305_PROVIDER_REJECTED"

	// Validation errors (400-499)
	ErrCodeInvalidInput         = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch    = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty           = "ERR_404_QUERY_EMPTY"
	ErrCodeUnsupportedExtension = "ERR_406_UNSUPPORTED_EXTENSION"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed   = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed      = "ERR_505_INDEX_FAILED"
	ErrCodeCompletionFailed = "ERR_506_COMPLETION_FAILED"
	ErrCodeRecordNotFound   = "ERR_507_NOT_FOUND"
)

// categoryFromCode extracts category from error code.
// The dimension mismatch lives in the 4XX block for historical reasons but is
// a configuration failure: the provider returned vectors of the wrong size
// for this deployment.
func categoryFromCode(code string) Category {
	if code == ErrCodeDimensionMismatch {
		return CategoryConfig
	}
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
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
	if categoryFromCode(code) == CategoryConfig {
		return SeverityFatal
	}

	switch code {
	case ErrCodeCorruptIndex, ErrCodeStoreLocked:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a transient failure.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable,
		ErrCodeRateLimited, ErrCodeProviderUnavailable:
		return true
	default:
		return false
	}
}
