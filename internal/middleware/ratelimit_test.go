package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Nekit-S/drowsiness-detection/internal/config"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows requests under limit", func(t *testing.T) {
		limiter := NewRateLimiter()

		for i := 0; i < 5; i++ {
			allowed, remaining, _ := limiter.Check("ip:10.0.0.1", 10)
			assert.True(t, allowed)
			assert.Equal(t, 10-i-1, remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		limiter := NewRateLimiter()

		for i := 0; i < 5; i++ {
			limiter.Check("ip:10.0.0.2", 5)
		}

		allowed, remaining, _ := limiter.Check("ip:10.0.0.2", 5)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)
	})

	t.Run("tracks clients separately", func(t *testing.T) {
		limiter := NewRateLimiter()

		for i := 0; i < 5; i++ {
			limiter.Check("ip:10.0.0.3", 5)
		}

		allowed, _, _ := limiter.Check("ip:10.0.0.4", 5)
		assert.True(t, allowed)
	})

	t.Run("returns reset time", func(t *testing.T) {
		limiter := NewRateLimiter()

		_, _, resetAt := limiter.Check("ip:10.0.0.5", 10)
		assert.Greater(t, resetAt, int64(0))
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/detection-event", nil)
	req.RemoteAddr = ip + ":51000"
	return req
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("sets rate limit headers", func(t *testing.T) {
		handler := NewRateLimitMiddleware(100).Handler(okHandler())

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("192.0.2.1"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("returns 429 when rate limited", func(t *testing.T) {
		handler := NewRateLimitMiddleware(2).Handler(okHandler())

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, requestFrom("192.0.2.2"))
			assert.Equal(t, http.StatusOK, rec.Code)
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("192.0.2.2"))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), `"code":"RATE_LIMIT_EXCEEDED"`)
	})

	t.Run("limits each client ip on its own", func(t *testing.T) {
		handler := NewRateLimitMiddleware(1).Handler(okHandler())

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("192.0.2.3"))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("192.0.2.4"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("keys on the forwarded client", func(t *testing.T) {
		handler := NewRateLimitMiddleware(1).Handler(okHandler())

		first := requestFrom("10.1.1.1")
		first.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.1.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, first)
		assert.Equal(t, http.StatusOK, rec.Code)

		second := requestFrom("10.1.1.2")
		second.Header.Set("X-Forwarded-For", "203.0.113.9")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, second)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("uses default limit when zero", func(t *testing.T) {
		handler := NewRateLimitMiddleware(0).Handler(okHandler())

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("192.0.2.5"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, strconv.Itoa(config.DefaultRateLimitPerMin), rec.Header().Get("X-RateLimit-Limit"))
	})
}
