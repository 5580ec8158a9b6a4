package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Per-IP rate limiting
// ──────────────────────────────────────────────────────────────────────────────

// Trading traffic is bursty around market resolution and big price moves, so
// each lane of the API carries its own per-IP token bucket: strict on the
// auth lane, looser on the trade lane. Per-wallet abuse inside a market is
// the engine's job (same-slot fee escalation); this guard protects the HTTP
// layer itself.

// ipBucket holds one client's token level. level refills continuously at the
// lane rate up to the burst ceiling.
type ipBucket struct {
	mu         sync.Mutex
	level      float64
	refilledAt time.Time
}

// ipLimiter is one lane's set of buckets keyed by client IP.
type ipLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*ipBucket
	rate    float64 // tokens per second
	burst   float64 // bucket ceiling; absorbs short spikes
}

func newIPLimiter(rps, burst int) *ipLimiter {
	if burst < rps {
		burst = rps
	}
	return &ipLimiter{
		buckets: make(map[string]*ipBucket),
		rate:    float64(rps),
		burst:   float64(burst),
	}
}

// take deducts one token for ip. When the bucket is empty it returns false
// plus the wait until the next token accrues.
func (l *ipLimiter) take(ip string) (bool, time.Duration) {
	l.mu.RLock()
	b, ok := l.buckets[ip]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		if b, ok = l.buckets[ip]; !ok {
			b = &ipBucket{level: l.burst, refilledAt: time.Now()}
			l.buckets[ip] = b
		}
		l.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.level += now.Sub(b.refilledAt).Seconds() * l.rate
	if b.level > l.burst {
		b.level = l.burst
	}
	b.refilledAt = now

	if b.level < 1 {
		wait := time.Duration((1 - b.level) / l.rate * float64(time.Second))
		return false, wait
	}
	b.level--
	return true, 0
}

// sweep drops buckets idle long enough to have refilled completely, keeping
// the map bounded across IP churn.
func (l *ipLimiter) sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	for ip, b := range l.buckets {
		b.mu.Lock()
		stale := b.refilledAt.Before(cutoff)
		b.mu.Unlock()
		if stale {
			delete(l.buckets, ip)
		}
	}
}

// RateLimitMiddleware enforces a per-IP token bucket of rps requests per
// second with the given burst ceiling. Clients over the limit get 429 with
// the standard error envelope and a Retry-After hint.
func RateLimitMiddleware(rps, burst int) gin.HandlerFunc {
	l := newIPLimiter(rps, burst)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			l.sweep(10 * time.Minute)
		}
	}()

	return func(c *gin.Context) {
		ok, wait := l.take(c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests, slow down",
				"code":    "ERR_RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
