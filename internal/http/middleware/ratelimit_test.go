package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyByUserOrIP(t *testing.T) {
	c, _ := gin.CreateTestContext(nil)
	c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.7:1234"
	key := KeyByUserOrIP()
	if got := key(c); got != "ip:203.0.113.7" {
		t.Fatalf("anonymous key = %q", got)
	}
	c.Set(ctxKeyUserID, "u1")
	if got := key(c); got != "user:u1" {
		t.Fatalf("user key = %q", got)
	}
}

func TestRateLimiter_RefillAndIdleSweep(t *testing.T) {
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 0, KeyByUserOrIP())
	rl.now = func() time.Time { return now }
	if rl.burst != 1 {
		t.Fatalf("burst not coerced: %d", rl.burst)
	}

	if !rl.take("user:a") || rl.take("user:a") {
		t.Fatalf("burst of one should allow exactly one request")
	}
	if !rl.take("user:b") {
		t.Fatalf("buckets must be independent per key")
	}
	now = now.Add(time.Second)
	if !rl.take("user:a") {
		t.Fatalf("token should refill after a second")
	}

	rl.sweepEvery, rl.untilSweep = 1, 1
	now = now.Add(time.Hour)
	rl.take("user:a")
	if _, ok := rl.buckets["user:b"]; ok {
		t.Fatalf("idle bucket survived the sweep")
	}
	if _, ok := rl.buckets["user:a"]; !ok {
		t.Fatalf("bucket in use was dropped")
	}
}

func TestRateLimiter_DeniesOverBudgetAndLetsReplaysThrough(t *testing.T) {
	rl := NewRateLimiter(0.0001, 1, KeyByUserOrIP())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Replay") != "" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}, rl.Handler())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusCreated) })

	if w := do(r, http.MethodPost, "/x", nil, nil); w.Code != http.StatusCreated {
		t.Fatalf("first = %d", w.Code)
	}
	w := do(r, http.MethodPost, "/x", nil, nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second = %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/x", nil, map[string]string{"X-Replay": "1"}); w.Code != http.StatusCreated {
		t.Fatalf("replay = %d", w.Code)
	}
}
