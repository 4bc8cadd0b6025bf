package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/pkg/httpclient"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Namespace: "checkout", Owner: "attachments", Timeout: timeout},
		httpclient.New(httpclient.DefaultConfig()), newTestLogger())
}

func TestStore_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/media", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "checkout", r.FormValue("namespace"))
		assert.Equal(t, "attachments", r.FormValue("owner"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "receipt.png", header.Filename)
		assert.Equal(t, []byte("bytes"), data)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"M1","key":"checkout/attachments/abc","content_type":"image/png","size":5,"checksum":"abc"}}`)
	}, time.Second)

	ref, err := c.Store(context.Background(), []byte("bytes"), "receipt.png")
	require.NoError(t, err)
	assert.Equal(t, "M1", ref.ID)
	assert.Equal(t, "checkout/attachments/abc", ref.Key)
	assert.Equal(t, "image/png", ref.ContentType)
	assert.Equal(t, int64(5), ref.Size)
}

func TestStore_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":"INVALID_INPUT","message":"content type not allowed"}}`)
	}, time.Second)

	_, err := c.Store(context.Background(), []byte("x"), "x.exe")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStore_TimeoutIsFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)

	start := time.Now()
	_, err := c.Store(context.Background(), []byte("x"), "x.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestStore_EmptyReference(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{}}`)
	}, time.Second)

	_, err := c.Store(context.Background(), []byte("x"), "")
	assert.ErrorIs(t, err, ErrStorageFailure)
}
