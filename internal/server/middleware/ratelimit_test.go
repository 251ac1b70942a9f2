package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qupredict/qupredict/internal/domain/domaintest"
)

func TestRateLimitAllows(t *testing.T) {
	limiter := &domaintest.RateLimiter{}
	h := RateLimit(limiter, 600, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/markets", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, limiter.Keys, 1)
	assert.Equal(t, "ratelimit:api:10.1.2.3", limiter.Keys[0])
}

func TestRateLimitDenies(t *testing.T) {
	limiter := &domaintest.RateLimiter{Deny: true}
	h := RateLimit(limiter, 600, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/markets", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &domaintest.RateLimiter{Err: errors.New("redis: connection refused")}
	h := RateLimit(limiter, 600, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/markets", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "limiter failure must not refuse traffic")
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*http.Request)
		remote string
		want   string
	}{
		{
			"forwarded chain",
			func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1") },
			"10.0.0.2:1234",
			"203.0.113.9",
		},
		{
			"real ip header",
			func(r *http.Request) { r.Header.Set("X-Real-IP", "203.0.113.7") },
			"10.0.0.2:1234",
			"203.0.113.7",
		},
		{
			"remote addr fallback",
			func(r *http.Request) {},
			"192.0.2.4:9999",
			"192.0.2.4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			tt.setup(req)
			assert.Equal(t, tt.want, extractClientIP(req))
		})
	}
}
