// Package auth decides whether a request may use the admin routes. How an
// admin obtains a token is outside this service.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"queuesync/internal/errors"
	"queuesync/internal/httputil"
	"queuesync/internal/logfields"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const AdminTokenHeader = "X-Admin-Token"

type Gate interface {
	Authorize(r *http.Request) bool
}

// TokenGate accepts a bearer token (or X-Admin-Token) matching a bcrypt hash.
type TokenGate struct {
	hash []byte

	// The digest of the last token that passed bcrypt, so that a busy admin
	// console does not pay the bcrypt cost on every request.
	mu       sync.Mutex
	verified [sha256.Size]byte
	hasValid bool
}

func NewTokenGate(hash string) (*TokenGate, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid admin token hash: %w", err)
	}
	return &TokenGate{hash: []byte(hash)}, nil
}

func (g *TokenGate) Authorize(r *http.Request) bool {
	token := Token(r)
	if token == "" {
		return false
	}

	digest := sha256.Sum256([]byte(token))
	g.mu.Lock()
	cached := g.hasValid && subtle.ConstantTimeCompare(digest[:], g.verified[:]) == 1
	g.mu.Unlock()
	if cached {
		return true
	}

	if bcrypt.CompareHashAndPassword(g.hash, []byte(token)) != nil {
		return false
	}
	g.mu.Lock()
	g.verified = digest
	g.hasValid = true
	g.mu.Unlock()
	return true
}

// DenyAll rejects every request. It guards the admin routes while no
// admin token hash is configured.
type DenyAll struct{}

func (DenyAll) Authorize(*http.Request) bool { return false }

// Token extracts the presented admin token, preferring the Authorization
// header.
func Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(AdminTokenHeader))
}

// NewGate returns a TokenGate for a configured hash and DenyAll otherwise.
func NewGate(hash string, logger *logrus.Logger) (Gate, error) {
	if hash == "" {
		logger.Warn("No admin token hash configured; admin routes will reject every request")
		return DenyAll{}, nil
	}
	return NewTokenGate(hash)
}

// Middleware rejects requests the gate does not authorize.
func Middleware(gate Gate, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate.Authorize(r) {
				next.ServeHTTP(w, r)
				return
			}

			var err *errors.AppError
			if Token(r) == "" {
				err = errors.New(errors.ErrCodeAuthentication, "missing admin token").
					WithUserMessage("Admin token required")
			} else {
				err = errors.NewAuthError("token rejected")
			}
			logger.WithFields(logrus.Fields{
				logfields.Method:    r.Method,
				logfields.URL:       r.URL.Path,
				logfields.ErrorCode: err.Code,
			}).Warn("Admin request rejected")
			httputil.WriteError(w, r, err)
		})
	}
}
