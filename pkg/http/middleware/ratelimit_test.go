package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "AdaptiveEnsemble/pkg/logger"
)

func TestLimiterRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLimiter()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a", 2, 1))
	assert.True(t, l.Allow("a", 2, 1))
	assert.False(t, l.Allow("a", 2, 1))
	assert.True(t, l.Allow("b", 2, 1), "keys have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a", 2, 1))
	assert.False(t, l.Allow("a", 2, 1))

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("a", 2, 1))
	assert.True(t, l.Allow("a", 2, 1))
	assert.False(t, l.Allow("a", 2, 1), "refill is capped at capacity")
}

func TestLimiterSweepsIdleBuckets(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLimiterTTL(time.Minute)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	for i := 0; i < 100; i++ {
		l.Allow(fmt.Sprintf("client-%d", i), 2, 1)
	}
	assert.True(t, l.Allow("drained", 1, 0))
	require.Equal(t, 101, l.Len())

	now = now.Add(2 * time.Minute)
	assert.True(t, l.Allow("fresh", 2, 1))
	assert.Equal(t, 2, l.Len(), "refilled idle buckets are dropped, the empty one stays")
	assert.False(t, l.Allow("drained", 1, 0), "sweeping never resets a bucket that is still short")
}

func TestRateLimitMiddleware(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, RateLimit(NewLimiter(), "x", 1, 0, applogger.NewNop()))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
