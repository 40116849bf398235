package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc names the bucket a request draws from.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP gives signed-in callers one bucket per user id and everyone
// else one per client IP, as "user:<id>" and "ip:<addr>".
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if s := asString(c.Value(ctxKeyUserID)); s != "" {
			return "user:" + s
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	*rate.Limiter
	seen time.Time
}

// RateLimiter is a process-local token bucket per key. With several
// instances behind a balancer each instance enforces its own budget.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn keyFunc
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	// Buckets idle for idleTTL are dropped once every sweepEvery lookups.
	idleTTL    time.Duration
	sweepEvery int
	untilSweep int
}

// NewRateLimiter refills rps tokens per second up to burst (at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{
		limit:      rate.Limit(rps),
		burst:      max(burst, 1),
		keyFn:      keyFn,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
		idleTTL:    10 * time.Minute,
		sweepEvery: 5000,
		untilSweep: 5000,
	}
}

// take reports whether key may spend a token now.
func (rl *RateLimiter) take(key string) bool {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Sweep first so an expired bucket is replaced, not refreshed.
	if rl.untilSweep--; rl.untilSweep <= 0 {
		rl.sweep(now)
		rl.untilSweep = rl.sweepEvery
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.AllowN(now, 1)
}

func (rl *RateLimiter) sweep(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.seen) >= rl.idleTTL {
			delete(rl.buckets, k)
		}
	}
}

// IsRateBypass reports whether IdempotencyValidator found a stored result
// for this request. Replays do not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// Handler rejects requests over budget with 429 and Retry-After: 1.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		key := rl.keyFn(c)
		if rl.take(key) {
			c.Next()
			return
		}
		kind, _, _ := strings.Cut(key, ":")
		rateLimited.WithLabelValues(kind).Inc()
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "too many requests, slow down",
		})
	}
}
