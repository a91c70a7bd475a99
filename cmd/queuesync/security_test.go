package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(body, header, value string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook/ai-response", bytes.NewBufferString(body))
	if value != "" {
		req.Header.Set(header, value)
	}
	return req
}

func TestVerifySignature(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	const header = "X-Webhook-Signature"
	body := `{"userId":"admin","message":"hi"}`

	tests := []struct {
		name    string
		value   string
		wantErr string
	}{
		{"valid", signBody(secret, []byte(body)), ""},
		{"upper-case hex", "sha256=" + strings.ToUpper(strings.TrimPrefix(signBody(secret, []byte(body)), "sha256=")), ""},
		{"missing header", "", "missing signature header"},
		{"wrong scheme", "sha1=abcdef", "invalid signature format"},
		{"no scheme", "abcdef", "invalid signature format"},
		{"wrong secret", signBody("another-secret", []byte(body)), "signature mismatch"},
		{"tampered body", signBody(secret, []byte(body+" ")), "signature mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := signedRequest(body, header, tt.value)
			got, err := verifySignature(req, secret, header)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, body, string(got))

			// The body stays readable for later handlers.
			rest, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, body, string(rest))
		})
	}
}

func TestVerifySignature_NoSecret(t *testing.T) {
	body := `{"userId":"admin","message":"hi"}`

	t.Setenv("QUEUESYNC_ENV", "development")
	got, err := verifySignature(signedRequest(body, "", ""), "", "X-Webhook-Signature")
	require.NoError(t, err)
	assert.Equal(t, body, string(got))

	t.Setenv("QUEUESYNC_ENV", "production")
	_, err = verifySignature(signedRequest(body, "", ""), "", "X-Webhook-Signature")
	assert.Error(t, err)
}
