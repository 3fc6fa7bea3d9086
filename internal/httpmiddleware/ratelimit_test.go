package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "request %d", i)
	}

	ok, _ := l.Allow(ctx, "10.0.0.2")
	assert.True(t, ok, "keys are independent")

	now = now.Add(2 * time.Second)
	ok, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, ok, "tokens refilled at 60/min")
}

func TestRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisWindow(client, "test", 2)
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "actor-1")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "request %d", i)
	}
	assert.True(t, mr.TTL("test:actor-1") > 0)

	mr.FastForward(time.Minute + time.Second)
	ok, err := l.Allow(ctx, "actor-1")
	require.NoError(t, err)
	assert.True(t, ok, "window expired")
}

func TestRedisWindowRestoresMissingTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	// A counter left without a TTL must not lock the client out for good.
	require.NoError(t, mr.Set("test:actor-1", "5"))

	l := NewRedisWindow(client, "test", 2)
	ok, err := l.Allow(context.Background(), "actor-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.TTL("test:actor-1") > 0)

	mr.FastForward(time.Minute + time.Second)
	ok, err = l.Allow(context.Background(), "actor-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisWindowUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err := NewRedisWindow(client, "test", 2).Allow(context.Background(), "actor-1")
	assert.Error(t, err)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(l Limiter) int {
		r := gin.New()
		r.Use(RateLimit(l, nil, nil))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		return rec.Code
	}

	l := NewTokenBucket(1, 1)
	assert.Equal(t, http.StatusOK, serve(l))
	assert.Equal(t, http.StatusTooManyRequests, serve(l))
	assert.Equal(t, http.StatusOK, serve(failingLimiter{}))
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}
