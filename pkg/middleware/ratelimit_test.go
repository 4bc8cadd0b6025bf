package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimit_RejectsAfterBurst(t *testing.T) {
	var buf bytes.Buffer
	store := newVisitorStore(RateLimitConfig{RPS: 0.001, Burst: 2})
	handler := rateLimitWithStore(store, newTestLogger(&buf))(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/carts/c-1/checkout", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Contains(t, buf.String(), "rate limit exceeded")
}

func TestRateLimit_SeparateBucketsPerClient(t *testing.T) {
	var buf bytes.Buffer
	store := newVisitorStore(RateLimitConfig{RPS: 0.001, Burst: 1})
	handler := rateLimitWithStore(store, newTestLogger(&buf))(http.HandlerFunc(okHandler))

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, addr)
	}
	assert.Equal(t, 2, store.size())
}

func TestVisitorStore_EvictIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newVisitorStore(RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	store.now = func() time.Time { return now }

	store.limiter("a")
	now = now.Add(30 * time.Second)
	store.limiter("b")
	now = now.Add(45 * time.Second)
	store.evictIdle()

	assert.Equal(t, 1, store.size())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.9:80", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.9:80", "198.51.100.2"},
		{"garbage header", map[string]string{"X-Forwarded-For": "nope"}, "10.0.0.9:80", "10.0.0.9"},
		{"remote addr", nil, "192.0.2.1:443", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
