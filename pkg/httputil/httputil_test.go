package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/pkg/logger"
	"github.com/utafrali/CommerceCheckout/pkg/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// --- WriteJSON / WriteData ---

func TestWriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, Response{Data: "hello"})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestWriteData_WrapsEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusOK, map[string]string{"state": "SETTLED"})

	resp := decode(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "SETTLED", data["state"])
	assert.Nil(t, resp.Error)
}

// --- WriteError ---

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/carts/c-1", nil)

	WriteError(rec, req, apperrors.NotFound("cart", "c-1"), testLogger())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "c-1")
}

func TestWriteError_WrappedAppErrorKeepsCode(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/carts/c-1/items", nil)

	err := fmt.Errorf("update cart: %w", apperrors.VersionConflict("cart", "c-1", 4))
	WriteError(rec, req, err, testLogger())

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "VERSION_CONFLICT", decode(t, rec).Error.Code)
}

func TestWriteError_SentinelMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", apperrors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("x: %w", apperrors.ErrConflict), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("x: %w", apperrors.ErrServiceUnavail), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		WriteError(rec, req, tt.err, testLogger())

		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		assert.Equal(t, tt.code, decode(t, rec).Error.Code)
	}
}

func TestWriteError_InternalHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	WriteError(rec, req, errors.New("pq: password authentication failed"), testLogger())

	resp := decode(t, rec)
	assert.NotContains(t, resp.Error.Message, "password")
}

func TestWriteError_IncludesCorrelationID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-9"))

	WriteError(rec, req, apperrors.InvalidInput("bad"), testLogger())

	assert.Equal(t, "corr-9", decode(t, rec).Error.RequestID)
}

// --- WriteValidationError ---

type itemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

func TestWriteValidationError_FieldErrors(t *testing.T) {
	err := validator.Validate(itemRequest{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	WriteValidationError(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "product_id")
	assert.Contains(t, resp.Error.Fields, "quantity")
}

func TestWriteValidationError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValidationError(rec, errors.New("unexpected EOF"))

	assert.Equal(t, "INVALID_INPUT", decode(t, rec).Error.Code)
}

// --- ParseUUID ---

func TestParseUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseUUID(rec, "6f1c1b5e-3c1a-4f7e-9a55-0b8a3e9a1d20")
	assert.True(t, ok)
	assert.Equal(t, "6f1c1b5e-3c1a-4f7e-9a55-0b8a3e9a1d20", id.String())

	rec = httptest.NewRecorder()
	_, ok = ParseUUID(rec, "not-a-uuid")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", decode(t, rec).Error.Code)
}

// --- IdempotencyKey ---

func TestIdempotencyKey(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"trimmed", "  K1  ", "K1", false},
		{"missing", "", "", true},
		{"too long", strings.Repeat("k", 256), "", true},
		{"control characters", "K\x01", "", true},
		{"uuid", "0c6f2c52-8c53-4a36-a4c7-6c4c5b1e7f11", "0c6f2c52-8c53-4a36-a4c7-6c4c5b1e7f11", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/carts/c-1/checkout", nil)
			if tt.header != "" {
				req.Header.Set(IdempotencyKeyHeader, tt.header)
			}
			got, err := IdempotencyKey(req)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewPage(t *testing.T) {
	tests := []struct {
		name                        string
		total, page, perPage, pages int
		hasNext                     bool
	}{
		{"partial last page", 25, 1, 10, 3, true},
		{"on last page", 21, 3, 10, 3, false},
		{"exact division", 30, 2, 10, 3, true},
		{"empty", 0, 1, 20, 0, false},
		{"zero per page", 5, 1, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPage[string](nil, tt.total, tt.page, tt.perPage)
			assert.Equal(t, tt.pages, p.TotalPages)
			assert.Equal(t, tt.hasNext, p.HasNext)
			assert.NotNil(t, p.Data)
		})
	}

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, NewPage([]string{"o-1"}, 1, 1, 20))
	assert.JSONEq(t, `{"data":["o-1"],"total_count":1,"page":1,"per_page":20,"total_pages":1,"has_next":false}`, rec.Body.String())
}
