package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error is the structured error type for docrag.
// It carries enough context to classify a failure (retry, skip, abort) and
// to present it to the user.
type Error struct {
	// Code is the unique error code (e.g., "ERR_402_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string

	// RetryDelay is a server-provided wait before the next attempt (Retry-After).
	RetryDelay time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code so errors.Is works against the
// package-level code constructors.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// WithRetryAfter records a server-provided backoff hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryDelay = d
	return e
}

// RetryAfter implements DelayHint.
func (e *Error) RetryAfter() time.Duration {
	return e.RetryDelay
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Code returns a bare *Error usable as an errors.Is target.
func Code(code string) *Error {
	return &Error{Code: code}
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *Error {
	return New(ErrCodeFileUnreadable, message, cause)
}

// NetworkError creates a transient network error.
func NetworkError(message string, cause error) *Error {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// DimensionMismatch reports a vector whose length differs from the locked dimension.
func DimensionMismatch(expected, got int) *Error {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("vector dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got)).
		WithSuggestion("use one embedding model per index, or rebuild the index")
}

// as finds the first *Error in err's chain.
func as(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	if e, ok := as(err); ok {
		return e.Retryable
	}
	return false
}

// IsFatal reports whether err must abort the current run.
func IsFatal(err error) bool {
	if e, ok := as(err); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" when err carries none.
func GetCode(err error) string {
	if e, ok := as(err); ok {
		return e.Code
	}
	return ""
}

// GetCategory extracts the category, or "" when err carries none.
func GetCategory(err error) Category {
	if e, ok := as(err); ok {
		return e.Category
	}
	return ""
}

// IsAuthFailure reports a provider rejection caused by credentials
// (HTTP 401 or 403). Retrying or moving on to the next item cannot help.
func IsAuthFailure(err error) bool {
	e, ok := as(err)
	if !ok || e.Code != ErrCodeProviderRejected {
		return false
	}
	status := e.Details["status"]
	return status == "401" || status == "403"
}
