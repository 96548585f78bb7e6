package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		retryable bool
	}{
		{ErrCodeInvalidInput, CategoryValidation, false},
		{ErrCodeCollectionNotFound, CategoryNotFound, false},
		{ErrCodeCollectionExists, CategoryConflict, false},
		{ErrCodeGenesisOnly, CategoryPermission, false},
		{ErrCodeValueTooLarge, CategoryCapacity, false},
		{ErrCodeProxyHTTP, CategoryUpstream, false},
		{ErrCodeNetworkTimeout, CategoryTransient, true},
		{ErrCodeOutOfCycles, CategoryTransient, true},
		{ErrCodeDataCorruption, CategoryCorruption, false},
		{ErrCodeInternal, CategoryInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "message", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestError_FormatAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCodeStorage, cause)

	assert.Equal(t, "[ERR_902_STORAGE] root cause", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, New(ErrCodeStorage, "other message", nil)))
	assert.False(t, errors.Is(err, New(ErrCodeInternal, "other", nil)))
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeStorage, nil))
}

func TestWithDetail(t *testing.T) {
	err := NotFoundError(ErrCodeDocumentNotFound, "document", "doc_1").
		WithDetail("collection", "docs")

	assert.Equal(t, "doc_1", err.Details["id"])
	assert.Equal(t, "docs", err.Details["collection"])
}

func TestGetCodeAndCategory(t *testing.T) {
	assert.Equal(t, "", GetCode(fmt.Errorf("plain")))
	assert.Equal(t, CategoryInternal, GetCategory(fmt.Errorf("plain")))

	err := New(ErrCodeNotAdmin, "denied", nil)
	assert.Equal(t, ErrCodeNotAdmin, GetCode(err))
	assert.Equal(t, CategoryPermission, GetCategory(err))
}

func TestRetryWithResult_RetriesOnlyTransient(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	// Transient errors retry until success.
	calls := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, New(ErrCodeNetworkTimeout, "timeout", nil)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)

	// Hard failures return immediately.
	calls = 0
	_, err = RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, New(ErrCodeProxyHTTP, "boom", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ErrCodeProxyHTTP, GetCode(err))
}

func TestRetryWithResult_ExhaustsRetries(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, New(ErrCodeNetworkTimeout, "timeout", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, ErrCodeNetworkTimeout, GetCode(err))
}

func TestRetryWithResult_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithResult(ctx, DefaultRetryConfig(), func() (int, error) {
		return 0, New(ErrCodeNetworkTimeout, "timeout", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
}
