package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
)

// ============================================================================
// Order endpoints
// ============================================================================

func TestOrders_WrittenBySettledCheckout(t *testing.T) {
	s := newTestServer(t)
	s.createCart(t)

	rec := s.do(t, http.MethodPost, "/api/v1/carts/C1/checkout", nil, checkoutHeaders("K1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out domain.CheckoutOutcome
	decode(t, rec, &out)

	rec = s.do(t, http.MethodGet, "/api/v1/orders/"+out.AttemptID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var order domain.Order
	decode(t, rec, &order)
	assert.Equal(t, "C1", order.CartID)
	assert.Equal(t, "A1", order.PaymentRef)
	assert.Equal(t, int64(2500), order.TotalAmount)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "P1", order.Items[0].ProductID)

	rec = s.do(t, http.MethodGet, "/api/v1/orders?cart_id=C1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data       []domain.Order `json:"data"`
		TotalCount int            `json:"total_count"`
		Page       int            `json:"page"`
		PerPage    int            `json:"per_page"`
		HasNext    bool           `json:"has_next"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PerPage)
	assert.False(t, page.HasNext)
	require.Len(t, page.Data, 1)
	assert.Equal(t, out.AttemptID, page.Data[0].ID)
}

func TestListOrders_Empty(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/orders", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"total_count":0,"page":1,"per_page":20,"total_pages":0,"has_next":false}`, rec.Body.String())
}

func TestListOrders_InvalidPaging(t *testing.T) {
	s := newTestServer(t)

	for _, q := range []string{"page=0", "page=x", "per_page=0", "per_page=101"} {
		rec := s.do(t, http.MethodGet, "/api/v1/orders?"+q, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		env := decode(t, rec, nil)
		require.NotNil(t, env.Error, q)
		assert.Equal(t, "INVALID_PARAMETER", env.Error.Code)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/orders/8c1f2a40-0000-4000-8000-000000000001", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrder_InvalidID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
