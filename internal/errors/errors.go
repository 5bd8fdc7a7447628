package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Re-exports so callers inside the module do not need a second errors import.
var (
	Is   = stderrors.Is
	As   = stderrors.As
	Join = stderrors.Join
)

// CoreError is the structured error type for DIRC.
// It provides rich context for error handling, logging, and user presentation.
type CoreError struct {
	// Code is the unique error code (e.g., "ERR_507_RELATIONAL_STORE").
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
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with CoreError.
func (e *CoreError) Is(target error) bool {
	if t, ok := target.(*CoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *CoreError) WithDetail(key, value string) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *CoreError) WithSuggestion(suggestion string) *CoreError {
	e.Suggestion = suggestion
	return e
}

// New creates a new CoreError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CoreError {
	return &CoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CoreError from an existing error.
// The error's message becomes the CoreError message.
func Wrap(code string, err error) *CoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Input creates a caller-input validation error. Non-retryable, surfaced
// to the caller unchanged.
func Input(message string, cause error) *CoreError {
	return New(ErrCodeInvalidInput, message, cause)
}

// Extraction creates an error for PDF-to-text failures. Pipeline terminal;
// no partial state exists to clean.
func Extraction(message string, cause error) *CoreError {
	return New(ErrCodeExtractionFailed, message, cause)
}

// Chunking creates an error for a chunker that produced no usable chunks.
func Chunking(message string, cause error) *CoreError {
	return New(ErrCodeChunkingFailed, message, cause)
}

// Embedding creates an error for a provider that failed after its own
// retries. Triggers per-document rollback in the orchestrator.
func Embedding(message string, cause error) *CoreError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// VectorStore creates an error for vector store read/write failures.
func VectorStore(message string, cause error) *CoreError {
	return New(ErrCodeVectorStore, message, cause)
}

// KeywordStore creates an error for full-text index read failures.
func KeywordStore(message string, cause error) *CoreError {
	return New(ErrCodeKeywordStore, message, cause)
}

// RelationalStore creates an error for chunk store transaction failures.
func RelationalStore(message string, cause error) *CoreError {
	return New(ErrCodeRelationalStore, message, cause)
}

// Inconsistent creates an error describing a triple-index mismatch found
// by verification. Returned as a field by verify, never raised mid-ingest.
func Inconsistent(message string) *CoreError {
	return New(ErrCodeInconsistentIndex, message, nil)
}

// Busy creates the fail-fast error for concurrent indexing of one document.
func Busy(documentID string) *CoreError {
	return New(ErrCodeDocumentBusy,
		fmt.Sprintf("document %s is being indexed by another caller", documentID), nil).
		WithSuggestion("retry after the running ingest completes")
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CoreError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CoreError {
	return New(ErrCodeInternal, message, cause)
}

// FromContext classifies a context error into the cancellation/deadline
// codes. Other errors pass through unchanged.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.Canceled):
		return New(ErrCodeCancelled, "operation cancelled by caller", err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return New(ErrCodeDeadlineExceeded, "operation deadline exceeded", err)
	default:
		return err
	}
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a CoreError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a CoreError.
// Returns empty string if not a CoreError.
func GetCode(err error) string {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a CoreError.
// Returns empty string if not a CoreError.
func GetCategory(err error) Category {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

