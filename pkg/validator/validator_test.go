package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=200"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=999"`
	UnitPrice int64  `json:"unit_price" validate:"gt=0"`
	Currency  string `json:"currency" validate:"required,len=3,uppercase"`
}

func validItem() addItemRequest {
	return addItemRequest{ProductID: "p-1", Name: "Mug", Quantity: 2, UnitPrice: 1299, Currency: "EUR"}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(validItem()))
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	req := validItem()
	req.ProductID = ""
	req.Quantity = 0
	req.Currency = "eu"

	err := Validate(req)
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["product_id"])
	assert.Equal(t, "must be greater than or equal to 1", fields["quantity"])
	assert.Contains(t, fields, "currency")
	assert.Contains(t, valErr.Error(), "field 'product_id' is required")
}

func TestValidate_GreaterThan(t *testing.T) {
	req := validItem()
	req.UnitPrice = 0

	var valErr *ValidationError
	require.True(t, errors.As(Validate(req), &valErr))
	assert.Equal(t, "must be greater than 0", valErr.Fields()["unit_price"])
}

func TestDecodeAndValidate(t *testing.T) {
	body := `{"product_id":"p-1","name":"Mug","quantity":1,"unit_price":500,"currency":"USD"}`
	r := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(body))

	var dst addItemRequest
	require.NoError(t, DecodeAndValidate(r, &dst))
	assert.Equal(t, int64(500), dst.UnitPrice)
}

func TestDecodeAndValidate_UnknownField(t *testing.T) {
	body := `{"product_id":"p-1","name":"Mug","quantity":1,"unit_price":500,"currency":"USD","discount":5}`
	r := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(body))

	var dst addItemRequest
	err := DecodeAndValidate(r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_MalformedJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader("{"))
	var dst addItemRequest
	assert.Error(t, DecodeAndValidate(r, &dst))
}
