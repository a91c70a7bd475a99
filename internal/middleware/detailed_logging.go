package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"queuesync/internal/logfields"
	"queuesync/internal/tracing"

	"github.com/sirupsen/logrus"
)

// DetailedLoggingConfig controls the debug-level request dump.
type DetailedLoggingConfig struct {
	LogRequestHeaders bool
	LogRequestBody    bool
	MaxBodySize       int
	SensitiveHeaders  []string
	SkipEndpoints     []string
}

func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		LogRequestBody:    false,
		MaxBodySize:       1024,
		SensitiveHeaders: []string{
			"authorization", "x-admin-token", "x-webhook-signature",
			"cookie", "set-cookie",
		},
		SkipEndpoints: []string{"/metrics", "/health", "/ws"},
	}
}

// DetailedLoggingMiddleware dumps request headers, and optionally small
// JSON bodies, at debug level. Sensitive headers are masked.
func DetailedLoggingMiddleware(logger *logrus.Logger, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.IsLevelEnabled(logrus.DebugLevel) || skipEndpoint(r.URL.Path, config.SkipEndpoints) {
				next.ServeHTTP(w, r)
				return
			}

			requestInfo := tracing.GetRequestInfo(r.Context())
			fields := logrus.Fields{
				logfields.RequestID: requestInfo.RequestID,
				logfields.TraceID:   requestInfo.TraceID,
				logfields.Method:    r.Method,
				logfields.URL:       r.URL.String(),
				"content_length":    r.ContentLength,
				"protocol":          r.Proto,
			}

			if config.LogRequestHeaders {
				headers := make(map[string]string, len(r.Header))
				for name, values := range r.Header {
					if isSensitiveHeader(name, config.SensitiveHeaders) {
						headers[name] = "***MASKED***"
					} else {
						headers[name] = strings.Join(values, ", ")
					}
				}
				fields["request_headers"] = headers
			}

			if config.LogRequestBody && shouldLogBody(r) && r.ContentLength > 0 && r.ContentLength <= int64(config.MaxBodySize) {
				body, err := io.ReadAll(r.Body)
				if err == nil {
					r.Body = io.NopCloser(bytes.NewReader(body))
					fields["request_body"] = string(body)
				}
			}

			logger.WithFields(fields).Debug("Detailed request logging")
			next.ServeHTTP(w, r)
		})
	}
}

func skipEndpoint(path string, skip []string) bool {
	for _, s := range skip {
		if path == s || strings.HasPrefix(path, s+"/") {
			return true
		}
	}
	return false
}

func isSensitiveHeader(headerName string, sensitiveHeaders []string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(sensitive, headerName) {
			return true
		}
	}
	return false
}

func shouldLogBody(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}
