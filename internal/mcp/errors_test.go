package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout, "timed out"},
		{"canceled", fmt.Errorf("search: %w", context.Canceled), ErrCodeTimeout, "canceled"},
		{"plain", errors.New("boom"), ErrCodeInternalError, "Internal server error."},
		{
			name:     "store closed",
			err:      amerrors.New(amerrors.ErrCodeStoreClosed, "store is closed", nil),
			wantCode: ErrCodeIndexUnavailable,
			wantMsg:  "store is closed",
		},
		{
			name:     "provider timeout",
			err:      amerrors.New(amerrors.ErrCodeProviderTimeout, "embedding timed out", nil),
			wantCode: ErrCodeTimeout,
			wantMsg:  "embedding timed out",
		},
		{
			name:     "chunker failed",
			err:      amerrors.New(amerrors.ErrCodeChunkerFailed, "chunker returned 500", nil),
			wantCode: ErrCodeProviderFailed,
			wantMsg:  "chunker returned 500",
		},
		{
			name:     "invalid input with suggestion",
			err:      amerrors.New(amerrors.ErrCodeInvalidInput, "scope is required", nil).WithSuggestion("Pass --scope."),
			wantCode: ErrCodeInvalidParams,
			wantMsg:  "scope is required Pass --scope.",
		},
		{
			name:     "internal",
			err:      amerrors.New(amerrors.ErrCodeInternal, "panic", nil),
			wantCode: ErrCodeInternalError,
			wantMsg:  "panic",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Contains(t, got.Message, tt.wantMsg)
		})
	}
}

func TestMapError_NilAndPassthrough(t *testing.T) {
	assert.Nil(t, MapError(nil))

	orig := NewInvalidParamsError("query cannot be empty")
	assert.Same(t, orig, MapError(fmt.Errorf("wrapped: %w", orig)))
}

func TestMCPError_Error(t *testing.T) {
	err := &MCPError{Code: ErrCodeInvalidParams, Message: "bad"}
	assert.Equal(t, "MCP error -32602: bad", err.Error())
}
