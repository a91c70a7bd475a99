package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		expected   string
	}{
		{name: "remote addr ipv4", remoteAddr: "192.168.1.10:5555", expected: "192.168.1.10"},
		{name: "remote addr ipv6", remoteAddr: "[2001:db8::1]:443", expected: "2001:db8::1"},
		{name: "remote addr without port", remoteAddr: "[::1]", expected: "::1"},
		{
			name:       "forwarded headers ignored when proxy untrusted",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9", "X-Real-IP": "203.0.113.10"},
			expected:   "10.0.0.1",
		},
		{
			name:       "first hop of forwarded chain",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": " 203.0.113.9 , 10.0.0.5"},
			trustProxy: true,
			expected:   "203.0.113.9",
		},
		{
			name:       "real ip when no forwarded for",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7"},
			trustProxy: true,
			expected:   "198.51.100.7",
		},
		{
			name:       "empty forwarded for falls back",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": " ,10.0.0.5"},
			trustProxy: true,
			expected:   "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/queue/status", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, GetClientIP(req, tt.trustProxy))
		})
	}
}
