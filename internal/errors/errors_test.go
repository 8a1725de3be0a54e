package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping it
	err := New(ErrCodeFileUnreadable, "cannot read notes.txt", originalErr)

	// Then: the chain still reaches the original
	require.NotNil(t, err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{"config", ErrCodeConfigNotFound, "config file not found", "[ERR_101_CONFIG_NOT_FOUND] config file not found"},
		{"io", ErrCodeFileNotFound, "notes.md not found", "[ERR_201_FILE_NOT_FOUND] notes.md not found"},
		{"network", ErrCodeNetworkTimeout, "request timed out", "[ERR_301_NETWORK_TIMEOUT] request timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, tt.message, nil).Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("embedding chunk 3: %w", DimensionMismatch(768, 1536))

	assert.True(t, errors.Is(err, Code(ErrCodeDimensionMismatch)))
	assert.False(t, errors.Is(err, Code(ErrCodeQueryEmpty)))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		retryable bool
		fatal     bool
	}{
		{ErrCodeRateLimited, CategoryNetwork, true, false},
		{ErrCodeProviderUnavailable, CategoryNetwork, true, false},
		{ErrCodeNetworkTimeout, CategoryNetwork, true, false},
		{ErrCodeProviderRejected, CategoryNetwork, false, false},
		{ErrCodeDimensionMismatch, CategoryConfig, false, true},
		{ErrCodeCredentialsMissing, CategoryConfig, false, true},
		{ErrCodeStoreUnreachable, CategoryConfig, false, true},
		{ErrCodeQueryEmpty, CategoryValidation, false, false},
		{ErrCodeUnsupportedExtension, CategoryValidation, false, false},
		{ErrCodeEmbeddingFailed, CategoryInternal, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", New(tt.code, "x", nil))
			assert.Equal(t, tt.category, GetCategory(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.fatal, IsFatal(err))
			assert.Equal(t, tt.code, GetCode(err))
		})
	}
}

func TestHelpers_PlainErrors(t *testing.T) {
	plain := errors.New("boom")

	assert.False(t, IsRetryable(plain))
	assert.False(t, IsFatal(plain))
	assert.Empty(t, GetCode(plain))
	assert.Empty(t, GetCategory(plain))
	assert.False(t, IsRetryable(nil))
}

func TestFormatForCLI(t *testing.T) {
	err := DimensionMismatch(2, 3)

	out := FormatForCLI(err)

	assert.Contains(t, out, "expected 2, got 3")
	assert.Contains(t, out, "Hint: use one embedding model per index")
	assert.Contains(t, out, "Code: ERR_402_DIMENSION_MISMATCH")
	assert.Equal(t, "Error: boom\n", FormatForCLI(errors.New("boom")))
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(New(ErrCodeRateLimited, "slow down", nil).WithDetail("status", "429"))

	keys := make(map[string]string)
	for _, a := range attrs {
		keys[a.Key] = a.Value.String()
	}
	assert.Equal(t, ErrCodeRateLimited, keys["error_code"])
	assert.Equal(t, "true", keys["retryable"])
	assert.Equal(t, "429", keys["detail_status"])
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, IsAuthFailure(FromStatus("openai", 401, "", "")))
	assert.True(t, IsAuthFailure(fmt.Errorf("embed: %w", FromStatus("openai", 403, "", ""))))
	assert.False(t, IsAuthFailure(FromStatus("openai", 400, "bad input", "")))
	assert.False(t, IsAuthFailure(FromStatus("openai", 429, "", "")))
	assert.False(t, IsAuthFailure(errors.New("plain")))
}
