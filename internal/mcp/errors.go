// Package mcp exposes the retrieval pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
)

// Custom MCP error codes.
const (
	// ErrCodeIndexNotFound indicates nothing has been ingested yet.
	ErrCodeIndexNotFound = -32001

	// ErrCodeProviderFailed indicates the embedding or completion provider
	// failed or is being short-circuited.
	ErrCodeProviderFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeMisconfigured indicates the server cannot answer until its
	// configuration is fixed.
	ErrCodeMisconfigured = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Messages carry the
// suggestion of a coded error so the client can relay it.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	switch {
	case stderrors.Is(err, store.ErrIndexNotCreated):
		return &MCPError{Code: ErrCodeIndexNotFound, Message: "Nothing has been ingested yet. Run 'docrag ingest <path>' first."}
	case stderrors.Is(err, errors.ErrCircuitOpen):
		return &MCPError{Code: ErrCodeProviderFailed, Message: "The completion provider is failing; requests are paused briefly."}
	case stderrors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case stderrors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	var coded *errors.Error
	if stderrors.As(err, &coded) {
		return mapCoded(coded)
	}
	return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
}

// NewInvalidParamsError creates an error for invalid tool arguments.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapCoded(e *errors.Error) *MCPError {
	message := e.Message
	if e.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", e.Message, e.Suggestion)
	}

	switch e.Category {
	case errors.CategoryConfig:
		return &MCPError{Code: ErrCodeMisconfigured, Message: message}
	case errors.CategoryNetwork:
		return &MCPError{Code: ErrCodeProviderFailed, Message: message}
	case errors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	}
	switch e.Code {
	case errors.ErrCodeEmbeddingFailed, errors.ErrCodeCompletionFailed:
		return &MCPError{Code: ErrCodeProviderFailed, Message: message}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: message}
}
