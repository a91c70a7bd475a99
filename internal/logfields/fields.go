// Package logfields defines the structured field names shared by every
// log line, so that queries over the JSON logs can rely on one spelling.
//
// Level usage:
//
//	DEBUG: frame-level detail (ignored messages, pings, adopted pulls)
//	INFO:  lifecycle and successful mutations
//	WARN:  recoverable failures (dropped connection, rejected admin call)
//	ERROR: failed operations that surface to a caller
package logfields

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Core identifiers
const (
	RequestID = "request_id"
	TraceID   = "trace_id"
	ClientID  = "client_id"
	UserID    = "user_id"
	EntryID   = "entry_id"
)

// Service and operation fields
const (
	Component   = "component"
	Operation   = "operation"
	Method      = "method"
	MessageType = "message_type"
	Direction   = "direction"
	State       = "state"
)

// Performance and counts
const (
	Duration = "duration_ms"
	Count    = "count"
	Clients  = "clients"
	Size     = "size_bytes"
)

// Network
const (
	URL        = "url"
	Endpoint   = "endpoint"
	StatusCode = "status_code"
	RemoteIP   = "remote_ip"
	UserAgent  = "user_agent"
)

// Errors
const (
	ErrorCode = "error_code"
	Attempt   = "attempt"
)

// NewLogger builds the JSON logger used by every binary. verbose forces
// debug level; otherwise level is parsed and falls back to info.
func NewLogger(level string, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	logger.SetLevel(ParseLevel(level, verbose))
	return logger
}

// ParseLevel resolves the effective log level.
func ParseLevel(level string, verbose bool) logrus.Level {
	if verbose {
		return logrus.DebugLevel
	}
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}
