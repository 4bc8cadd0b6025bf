package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/CommerceCheckout/pkg/httpclient"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	doer := httpclient.New(httpclient.DefaultConfig())
	return New(Config{BaseURL: srv.URL, Timeout: 200 * time.Millisecond}, doer, newTestLogger()), &calls
}

func writeEnvelope(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// ---------------------------------------------------------------------------
// Authorize
// ---------------------------------------------------------------------------

func TestAuthorize_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payments/authorize", r.URL.Path)
		var req AuthorizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "attempt-1", req.Reference)
		assert.Equal(t, int64(2500), req.Amount)
		writeEnvelope(w, http.StatusCreated, `{"data":{"id":"A1","reference":"attempt-1","status":"AUTHORIZED"}}`)
	})

	res := c.Authorize(context.Background(), AuthorizeRequest{Amount: 2500, Currency: "USD", Reference: "attempt-1"})
	assert.Equal(t, Authorized, res.Status)
	assert.Equal(t, "A1", res.Ref)
}

func TestAuthorize_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   AuthorizeStatus
		reason string
	}{
		{"payment required", http.StatusPaymentRequired, `{"error":{"code":"PAYMENT_DECLINED","message":"insufficient_funds"}}`, Declined, "PAYMENT_DECLINED: insufficient_funds"},
		{"conflict", http.StatusConflict, `{"error":{"code":"CONFLICT"}}`, Declined, "CONFLICT"},
		{"bad request", http.StatusBadRequest, `not json`, Declined, "declined"},
		{"too many requests", http.StatusTooManyRequests, ``, AuthorizeTransient, ""},
		{"server error", http.StatusInternalServerError, ``, AuthorizeTransient, ""},
		{"unavailable", http.StatusServiceUnavailable, ``, AuthorizeTransient, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeEnvelope(w, tt.status, tt.body)
			})
			res := c.Authorize(context.Background(), AuthorizeRequest{Amount: 1, Currency: "USD", Reference: "r"})
			assert.Equal(t, tt.want, res.Status)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, res.Reason)
			}
			assert.Equal(t, int32(1), atomic.LoadInt32(calls), "client must not retry")
		})
	}
}

func TestAuthorize_TimeoutIsTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	res := c.Authorize(context.Background(), AuthorizeRequest{Amount: 1, Reference: "r"})
	assert.Equal(t, AuthorizeTransient, res.Status)
}

func TestAuthorize_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url}, httpclient.New(httpclient.DefaultConfig()), newTestLogger())
	res := c.Authorize(context.Background(), AuthorizeRequest{Amount: 1, Reference: "r"})
	assert.Equal(t, AuthorizeTransient, res.Status)
}

func TestAuthorize_UndecodableSuccessIsTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"data":{}}`)
	})
	res := c.Authorize(context.Background(), AuthorizeRequest{Amount: 1, Reference: "r"})
	assert.Equal(t, AuthorizeTransient, res.Status)
}

func TestAuthorize_OpenCircuitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cb := httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.DefaultConfig()), httpclient.CircuitBreakerConfig{
		Name: "payment-test-open", MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute,
		FailureRatio: 0.5, MinRequests: 1,
	}, newTestLogger())
	c := New(Config{BaseURL: srv.URL}, cb, newTestLogger())

	first := c.Authorize(context.Background(), AuthorizeRequest{Amount: 1, Reference: "r"})
	assert.Equal(t, AuthorizeTransient, first.Status)

	second := c.Authorize(context.Background(), AuthorizeRequest{Amount: 1, Reference: "r"})
	assert.Equal(t, AuthorizeTransient, second.Status)
	assert.Contains(t, second.Reason, "open")
}

// ---------------------------------------------------------------------------
// Capture / Void
// ---------------------------------------------------------------------------

func TestCapture_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   CaptureStatus
	}{
		{http.StatusOK, Captured},
		{http.StatusConflict, CaptureFailed},
		{http.StatusUnprocessableEntity, CaptureFailed},
		{http.StatusNotFound, CaptureFailed},
		{http.StatusBadGateway, CaptureTransient},
	}
	for _, tt := range tests {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/payments/A1/capture", r.URL.Path)
			writeEnvelope(w, tt.status, `{}`)
		})
		assert.Equal(t, tt.want, c.Capture(context.Background(), "A1").Status, tt.status)
	}
}

func TestVoid_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   VoidStatus
	}{
		{http.StatusOK, Voided},
		{http.StatusConflict, VoidRejected},
		{http.StatusServiceUnavailable, VoidTransient},
	}
	for _, tt := range tests {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/payments/A1/void", r.URL.Path)
			writeEnvelope(w, tt.status, `{"error":{"code":"ALREADY_CAPTURED"}}`)
		})
		assert.Equal(t, tt.want, c.Void(context.Background(), "A1").Status, tt.status)
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   LookupStatus
	}{
		{"found", http.StatusOK, `{"data":{"id":"A1","reference":"attempt-1","status":"AUTHORIZED"}}`, Found},
		{"not found", http.StatusNotFound, `{"error":{"code":"NOT_FOUND"}}`, NotFound},
		{"bad request is not definitive", http.StatusBadRequest, `{}`, LookupTransient},
		{"server error", http.StatusInternalServerError, `{}`, LookupTransient},
		{"empty body", http.StatusOK, `{"data":{}}`, LookupTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/v1/payments/by-reference/attempt-1", r.URL.Path)
				writeEnvelope(w, tt.status, tt.body)
			})
			res := c.Lookup(context.Background(), "attempt-1")
			assert.Equal(t, tt.want, res.Status)
			if tt.want == Found {
				assert.Equal(t, "A1", res.Payment.ID)
				assert.Equal(t, "AUTHORIZED", res.Payment.Status)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Balance
// ---------------------------------------------------------------------------

func TestBalance(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeEnvelope(w, http.StatusOK, `{"data":{"balance":97500,"currency":"USD"}}`)
	})
	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(97500), bal)
}

func TestBalance_Unavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusServiceUnavailable, `{"error":{"code":"SERVICE_UNAVAILABLE","message":"db down"}}`)
	})
	_, err := c.Balance(context.Background())
	require.Error(t, err)
	assert.True(t, httpclient.IsTransient(err))
}
