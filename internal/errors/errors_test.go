package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with CoreError
	coreErr := New(ErrCodeRelationalStore, "insert failed", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, coreErr)
	assert.Equal(t, originalErr, errors.Unwrap(coreErr))
	assert.True(t, errors.Is(coreErr, originalErr))
}

func TestCoreError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "extraction error",
			code:     ErrCodeExtractionFailed,
			message:  "pdf produced no text",
			expected: "[ERR_210_EXTRACTION_FAILED] pdf produced no text",
		},
		{
			name:     "vector store error",
			code:     ErrCodeVectorStore,
			message:  "add failed",
			expected: "[ERR_505_VECTOR_STORE] add failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestCoreError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code, different messages
	err1 := New(ErrCodeKeywordStore, "fts query failed", nil)
	err2 := New(ErrCodeKeywordStore, "fts insert failed", nil)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
}

func TestCoreError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeVectorStore, "add failed", nil)
	err2 := New(ErrCodeKeywordStore, "query failed", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestCoreError_CategoryDerivedFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeExtractionFailed, CategoryIO},
		{ErrCodeNetworkTimeout, CategoryNetwork},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeRelationalStore, CategoryInternal},
		{ErrCodeCancelled, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.category, New(tt.code, "x", nil).Category)
		})
	}
}

func TestTaxonomyConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *CoreError
		code      string
		retryable bool
	}{
		{"input", Input("bad overlap", nil), ErrCodeInvalidInput, false},
		{"extraction", Extraction("no text", nil), ErrCodeExtractionFailed, false},
		{"chunking", Chunking("no chunks", nil), ErrCodeChunkingFailed, false},
		{"embedding", Embedding("provider died", nil), ErrCodeEmbeddingFailed, false},
		{"vector", VectorStore("add failed", nil), ErrCodeVectorStore, false},
		{"keyword", KeywordStore("match failed", nil), ErrCodeKeywordStore, false},
		{"relational", RelationalStore("tx failed", nil), ErrCodeRelationalStore, false},
		{"inconsistent", Inconsistent("counts differ"), ErrCodeInconsistentIndex, false},
		{"busy", Busy("doc-1"), ErrCodeDocumentBusy, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
		})
	}
}

func TestFromContext_ClassifiesContextErrors(t *testing.T) {
	// Cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := FromContext(ctx.Err())
	assert.Equal(t, ErrCodeCancelled, GetCode(err))
	assert.True(t, errors.Is(err, context.Canceled))

	// Expired deadline
	err = FromContext(context.DeadlineExceeded)
	assert.Equal(t, ErrCodeDeadlineExceeded, GetCode(err))

	// Unrelated errors pass through untouched
	plain := errors.New("boom")
	assert.Equal(t, plain, FromContext(plain))
	assert.Nil(t, FromContext(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeNetworkTimeout, "timeout", nil)))
	assert.False(t, IsRetryable(New(ErrCodeInvalidInput, "bad input", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestWrap_KeepsCauseChain(t *testing.T) {
	inner := Busy("doc-9")
	wrapped := Wrap(ErrCodeInternal, inner)

	// Wrap replaces the code at the top but keeps the chain
	assert.Equal(t, ErrCodeInternal, GetCode(wrapped))
	assert.True(t, errors.Is(wrapped, inner))
}

func TestGetCode_NonCoreError(t *testing.T) {
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.Equal(t, Category(""), GetCategory(errors.New("plain")))
}
