// Package mcp exposes DIRC over the Model Context Protocol: a stdio
// server with tools for searching, ingesting, verifying, and
// repairing gazette documents. It is a thin adapter; all semantics
// live in the pipeline, index, and search packages.
package mcp

import (
	"context"
	"errors"
	"fmt"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// MCP protocol error codes.
const (
	ErrCodeDocumentBusy    = -32001
	ErrCodeEmbeddingFailed = -32002
	ErrCodeTimeout         = -32003
	ErrCodeFileNotFound    = -32004
	ErrCodeInconsistent    = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-parameters error.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts internal errors to MCP errors. Suggestions ride
// along in the message so the client can surface them.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var coreErr *dircerrors.CoreError
	if errors.As(err, &coreErr) {
		return mapCoreError(coreErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

func mapCoreError(ce *dircerrors.CoreError) *MCPError {
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ce.Message, ce.Suggestion)
	}

	switch ce.Code {
	case dircerrors.ErrCodeDocumentBusy:
		return &MCPError{Code: ErrCodeDocumentBusy, Message: message}
	case dircerrors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case dircerrors.ErrCodeFileNotFound, dircerrors.ErrCodeUnknownFileID:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case dircerrors.ErrCodeInconsistentIndex:
		return &MCPError{Code: ErrCodeInconsistent, Message: message}
	case dircerrors.ErrCodeCancelled, dircerrors.ErrCodeDeadlineExceeded,
		dircerrors.ErrCodeNetworkTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}

	switch ce.Category {
	case dircerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case dircerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
