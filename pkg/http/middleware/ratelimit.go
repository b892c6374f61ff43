package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	applogger "AdaptiveEnsemble/pkg/logger"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// DefaultIdleTTL is how long a bucket may go untouched before it is swept.
const DefaultIdleTTL = 10 * time.Minute

// full reports whether b would be back at capacity at now.
func (b *bucket) full(now time.Time) bool {
	return b.tokens+now.Sub(b.last).Seconds()*b.refillRate >= b.capacity
}

// Limiter is a keyed token bucket limiter. Buckets idle for longer than the
// TTL that have refilled to capacity are dropped, so forgetting them never
// grants a client more than a fresh bucket would.
type Limiter struct {
	mu        sync.Mutex
	m         map[string]*bucket
	now       func() time.Time
	ttl       time.Duration
	lastSweep time.Time
}

func NewLimiter() *Limiter { return NewLimiterTTL(DefaultIdleTTL) }

// NewLimiterTTL creates a limiter that sweeps buckets idle for ttl.
func NewLimiterTTL(ttl time.Duration) *Limiter {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Limiter{m: make(map[string]*bucket), now: time.Now, ttl: ttl}
}

// Len is the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// sweep runs at most once per ttl. Callers hold mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.ttl {
		return
	}
	l.lastSweep = now
	for k, b := range l.m {
		if now.Sub(b.last) >= l.ttl && b.full(now) {
			delete(l.m, k)
		}
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RateLimit rejects requests with 429 once the client's bucket for name is empty.
func RateLimit(lim *Limiter, name string, capacity, refillPerSec float64, l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !lim.Allow(c.RealIP()+":"+name, capacity, refillPerSec) {
				l.Warn("rate limited",
					applogger.String("route", name),
					applogger.String("remote", c.RealIP()),
				)
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limited")
			}
			return next(c)
		}
	}
}
