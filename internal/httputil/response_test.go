package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"queuesync/internal/errors"
	"queuesync/internal/tracing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"count": 2})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   errors.ErrorCode
	}{
		{"validation", errors.NewValidationError("serviceType", "", "service type cannot be empty"), http.StatusBadRequest, errors.ErrCodeValidationFailed},
		{"not found", errors.NewNotFoundError("queue entry", "7"), http.StatusNotFound, errors.ErrCodeNotFound},
		{"already completed", errors.NewAlreadyCompletedError(7), http.StatusConflict, errors.ErrCodeAlreadyCompleted},
		{"plain error", assert.AnError, http.StatusInternalServerError, errors.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(tracing.WithRequestID(req.Context(), "req_test"))
			rec := httptest.NewRecorder()

			WriteError(rec, req, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body errors.HTTPErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, "req_test", body.RequestID)
		})
	}
}
