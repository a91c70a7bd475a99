package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(perMinute, burst int) (*RateLimiter, *manualClock) {
	clock := &manualClock{now: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute, burst)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_BurstTraffic(t *testing.T) {
	rl, _ := newTestLimiter(60, 10)

	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow("127.0.0.1") {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed, "Should allow exactly the burst")
}

func TestRateLimiter_Refill(t *testing.T) {
	rl, clock := newTestLimiter(60, 2)
	ip := "192.168.1.1"

	assert.True(t, rl.Allow(ip))
	assert.True(t, rl.Allow(ip))
	assert.False(t, rl.Allow(ip))

	// 60 per minute refills one token per second.
	clock.Advance(time.Second)
	assert.True(t, rl.Allow(ip))
	assert.False(t, rl.Allow(ip))
}

func TestRateLimiter_MultipleIPs(t *testing.T) {
	rl, _ := newTestLimiter(60, 1)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.False(t, rl.Allow("10.0.0.0"))
	assert.Equal(t, 5, rl.size())
}

func TestRateLimiter_ZeroOrNegativeLimit(t *testing.T) {
	for _, limit := range []int{0, -5} {
		rl, _ := newTestLimiter(limit, 10)
		assert.False(t, rl.Allow("127.0.0.1"), "limit %d", limit)
	}
}

func TestRateLimiter_SweepsIdleVisitors(t *testing.T) {
	rl, clock := newTestLimiter(60, 5)

	for i := 0; i < 50; i++ {
		rl.Allow(fmt.Sprintf("172.16.0.%d", i))
	}
	assert.Equal(t, 50, rl.size())

	clock.Advance(visitorIdleTTL + time.Second)
	rl.Allow("172.16.1.1")
	assert.Equal(t, 1, rl.size())
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl, _ := newTestLimiter(60, 100)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if rl.Allow("127.0.0.1") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(100), allowed.Load())
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(60, 1)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := rl.Middleware(logger, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhook/ai-response", nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, send("203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.7"))
	assert.Equal(t, http.StatusNoContent, send("203.0.113.8"))
}
