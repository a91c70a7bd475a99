package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(cause, ErrCodeDatabaseQuery, "insert failed")

	assert.Equal(t, "DATABASE_QUERY: insert failed: disk full", err.Error())
	assert.True(t, stderrors.Is(err, cause))

	plain := New(ErrCodeNotFound, "missing")
	assert.Equal(t, "NOT_FOUND: missing", plain.Error())
}

func TestAppError_FoundThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("complete: %w", NewAlreadyCompletedError(7))

	assert.True(t, IsAlreadyCompleted(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, ErrCodeAlreadyCompleted, GetCode(wrapped))

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, int64(7), appErr.Context["entry_id"])
}

func TestGetCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternalError, GetCode(stderrors.New("boom")))
	assert.False(t, HasCode(nil, ErrCodeInternalError))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewConnectionLostError("ws://x/ws", stderrors.New("eof"))))
	assert.False(t, IsRetryable(NewTransportError("c1", stderrors.New("closed"))))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("serviceType", "", "must not be empty"), http.StatusBadRequest},
		{"not found", NewNotFoundError("queue entry", "9"), http.StatusNotFound},
		{"already completed", NewAlreadyCompletedError(9), http.StatusConflict},
		{"auth", NewAuthError("missing token"), http.StatusForbidden},
		{"rate limit", NewRateLimitError(10, "1m"), http.StatusTooManyRequests},
		{"database", NewDatabaseError("insert", stderrors.New("locked")), http.StatusServiceUnavailable},
		{"unknown", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestToHTTPResponse_HidesSensitiveContext(t *testing.T) {
	err := NewValidationError("serviceType", "x", "too short").WithContext("token", "hunter2")

	resp := ToHTTPResponse(err, "req_1")

	assert.Equal(t, ErrCodeValidationFailed, resp.Error.Code)
	assert.Equal(t, "Invalid serviceType: too short", resp.Error.Message)
	assert.Equal(t, "req_1", resp.RequestID)
	ctx, ok := resp.Error.Context.(map[string]interface{})
	require.True(t, ok)
	assert.NotContains(t, ctx, "token")
	assert.Equal(t, "serviceType", ctx["field"])
}

func TestToHTTPResponse_PlainError(t *testing.T) {
	resp := ToHTTPResponse(stderrors.New("boom"), "")

	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
	assert.Equal(t, "An internal error occurred", resp.Error.Message)
	assert.Nil(t, resp.Error.Context)
}
