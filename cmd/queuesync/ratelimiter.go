package main

import (
	"net/http"
	"sync"
	"time"

	"queuesync/internal/errors"
	"queuesync/internal/httputil"
	"queuesync/internal/logfields"
	"queuesync/internal/privacy"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const visitorIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Idle buckets are
// swept while serving requests rather than by a background goroutine.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	perMinute int
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		perMinute: perMinute,
		burst:     burst,
		now:       time.Now,
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	if rl.perMinute <= 0 {
		return false
	}

	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastSweep) > visitorIdleTTL {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(rl.visitors, key)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60), rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Middleware answers 429 once a client exhausts its bucket.
func (rl *RateLimiter) Middleware(logger *logrus.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := httputil.GetClientIP(r, trustProxy)
			if !rl.Allow(ip) {
				logger.WithFields(logrus.Fields{
					logfields.RemoteIP: privacy.MaskIP(ip),
					logfields.URL:      r.URL.Path,
				}).Warn("Rate limit exceeded")
				httputil.WriteError(w, r, errors.NewRateLimitError(rl.perMinute, "1m"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
