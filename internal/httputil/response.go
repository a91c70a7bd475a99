package httputil

import (
	"encoding/json"
	"net/http"

	"queuesync/internal/errors"
	"queuesync/internal/tracing"
)

// WriteJSON writes v with the given status. Encoding errors are ignored;
// the status line has already gone out.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its HTTP status and writes the standard error body.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	WriteJSON(w, errors.HTTPStatusCode(err), errors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())))
}
