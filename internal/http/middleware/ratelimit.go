// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file throttles the triage API with one token bucket per mailbox.
// Callers that passed Identity are keyed by their normalized address; anything
// else (health probes, rejected requests) shares a bucket per client IP.
// Buckets live in process memory and idle ones are swept during lookups.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Bucket key namespaces. The part before ':' is the metric scope label.
const (
	scopeMailbox = "mailbox"
	scopeIP      = "ip"
)

// BucketKeyFunc maps a request to the bucket it draws tokens from. Keys are
// "<scope>:<identity>".
type BucketKeyFunc func(*gin.Context) string

// KeyByMailboxOrIP keys requests by the X-User-Email owner and falls back to
// the client IP when no mailbox is known.
//
//	"mailbox:me@inbox.com"
//	"ip:203.0.113.7"
func KeyByMailboxOrIP() BucketKeyFunc {
	return func(c *gin.Context) string {
		if u := UserEmail(c); u != "" {
			return scopeMailbox + ":" + u
		}
		return scopeIP + ":" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// RateLimiter hands out per-mailbox token buckets. Safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   BucketKeyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int

	idleAfter  time.Duration
	sweepEvery int
	now        func() time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to burst.
// A burst below 1 is raised to 1; a nil key uses KeyByMailboxOrIP.
func NewRateLimiter(rps float64, burst int, key BucketKeyFunc) *RateLimiter {
	if key == nil {
		key = KeyByMailboxOrIP()
	}
	return &RateLimiter{
		limit:      rate.Limit(rps),
		burst:      max(burst, 1),
		key:        key,
		buckets:    make(map[string]*bucket),
		idleAfter:  10 * time.Minute,
		sweepEvery: 5000,
		now:        time.Now,
	}
}

// limiterFor returns the bucket for key, creating it on first use. Every
// sweepEvery lookups, buckets idle for idleAfter are dropped first so a stale
// bucket is replaced by a full one.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.sweepEvery {
		rl.lookups = 0
		for k, b := range rl.buckets {
			if now.Sub(b.lastUsed) >= rl.idleAfter {
				delete(rl.buckets, k)
			}
		}
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastUsed = now
	return b.lim
}

// Size reports how many buckets are currently tracked.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator found a stored response
// for this request. Replays never consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the Gin middleware. A throttled request gets 429 with the
// API error body and a Retry-After holding the whole seconds until the next
// token; the reservation is cancelled so the rejection itself costs nothing.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		key := rl.key(c)
		now := rl.now()
		res := rl.limiterFor(key, now).ReserveN(now, 1)

		var wait time.Duration
		if res.OK() {
			wait = res.DelayFrom(now)
			if wait == 0 {
				c.Next()
				return
			}
			res.CancelAt(now)
		}

		httpLimited.WithLabelValues(bucketScope(key)).Inc()
		c.Header("Retry-After", retryAfter(wait))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
			"request_id": c.Writer.Header().Get(requestIDHeader),
		})
	}
}

// retryAfter renders a wait as delta-seconds, rounding up and never below 1.
// A zero wait means the bucket can never refill (rps 0).
func retryAfter(wait time.Duration) string {
	if wait <= 0 {
		return "60"
	}
	return strconv.Itoa(max(int(math.Ceil(wait.Seconds())), 1))
}

func bucketScope(key string) string {
	if scope, _, ok := strings.Cut(key, ":"); ok {
		return scope
	}
	return "other"
}
