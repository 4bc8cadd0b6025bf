package service

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/event"
	redisrepo "github.com/utafrali/CommerceCheckout/services/cart/internal/repository/redis"
	paymentclient "github.com/utafrali/CommerceCheckout/services/payment/client"
)

// --- Mock payment gateway ---

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Authorize(ctx context.Context, req paymentclient.AuthorizeRequest) paymentclient.AuthorizeResult {
	return m.Called(ctx, req).Get(0).(paymentclient.AuthorizeResult)
}

func (m *mockGateway) Capture(ctx context.Context, ref string) paymentclient.CaptureResult {
	return m.Called(ctx, ref).Get(0).(paymentclient.CaptureResult)
}

func (m *mockGateway) Void(ctx context.Context, ref string) paymentclient.VoidResult {
	return m.Called(ctx, ref).Get(0).(paymentclient.VoidResult)
}

func (m *mockGateway) Lookup(ctx context.Context, reference string) paymentclient.LookupResult {
	return m.Called(ctx, reference).Get(0).(paymentclient.LookupResult)
}

func (m *mockGateway) Balance(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// --- Test Helpers ---

func newTestCartService(t *testing.T) (*CartService, *mockGateway) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gw := &mockGateway{}
	logger := newTestLogger()
	return NewCartService(redisrepo.NewCartStore(client, 0), gw, event.NewProducer(nil, logger), logger), gw
}

func createTestCart(t *testing.T, svc *CartService) *domain.Cart {
	t.Helper()
	cart, err := svc.CreateCart(context.Background(), CreateCartInput{
		Items: []ItemInput{{ProductID: "P1", Name: "Widget", Quantity: 2, UnitPrice: 1250}},
	})
	require.NoError(t, err)
	return cart
}

// --- CreateCart ---

func TestCreateCart_Defaults(t *testing.T) {
	svc, _ := newTestCartService(t)

	cart, err := svc.CreateCart(context.Background(), CreateCartInput{})
	require.NoError(t, err)

	assert.NotEmpty(t, cart.ID)
	assert.Equal(t, "USD", cart.Currency)
	assert.Equal(t, domain.CartOpen, cart.Status)
	assert.Equal(t, int64(1), cart.Version)
	assert.Empty(t, cart.Items)
}

func TestCreateCart_MergesDuplicateProducts(t *testing.T) {
	svc, _ := newTestCartService(t)

	cart, err := svc.CreateCart(context.Background(), CreateCartInput{
		ID:       "C1",
		Currency: "eur",
		Items: []ItemInput{
			{ProductID: "P1", Name: "Widget", Quantity: 1, UnitPrice: 500},
			{ProductID: "P1", Name: "Widget", Quantity: 2, UnitPrice: 500},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", cart.Currency)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, int64(1500), cart.TotalAmount())
}

func TestCreateCart_DuplicateID(t *testing.T) {
	svc, _ := newTestCartService(t)
	_, err := svc.CreateCart(context.Background(), CreateCartInput{ID: "C1"})
	require.NoError(t, err)

	_, err = svc.CreateCart(context.Background(), CreateCartInput{ID: "C1"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

// --- AddItem / UpdateItemQuantity / RemoveItem ---

func TestAddItem_BumpsVersion(t *testing.T) {
	svc, _ := newTestCartService(t)
	cart := createTestCart(t, svc)

	updated, err := svc.AddItem(context.Background(), cart.ID, domain.Ptr(cart.Version),
		ItemInput{ProductID: "P2", Name: "Gadget", Quantity: 1, UnitPrice: 999})
	require.NoError(t, err)

	assert.Equal(t, cart.Version+1, updated.Version)
	assert.Len(t, updated.Items, 2)
	assert.Equal(t, int64(3499), updated.TotalAmount())
}

func TestAddItem_StaleVersion(t *testing.T) {
	svc, _ := newTestCartService(t)
	cart := createTestCart(t, svc)

	_, err := svc.AddItem(context.Background(), cart.ID, domain.Ptr(cart.Version),
		ItemInput{ProductID: "P2", Name: "Gadget", Quantity: 1, UnitPrice: 999})
	require.NoError(t, err)

	_, err = svc.AddItem(context.Background(), cart.ID, domain.Ptr(cart.Version),
		ItemInput{ProductID: "P3", Name: "Gizmo", Quantity: 1, UnitPrice: 1})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VERSION_CONFLICT", appErr.Code)
}

func TestAddItem_WithoutVersionUsesCurrent(t *testing.T) {
	svc, _ := newTestCartService(t)
	cart := createTestCart(t, svc)

	updated, err := svc.AddItem(context.Background(), cart.ID, nil,
		ItemInput{ProductID: "P1", Name: "Widget", Quantity: 3, UnitPrice: 1250})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Items[0].Quantity)
}

func TestAddItem_Validation(t *testing.T) {
	svc, _ := newTestCartService(t)
	cart := createTestCart(t, svc)

	tests := []ItemInput{
		{Name: "x", Quantity: 1},
		{ProductID: "P", Name: "x", Quantity: 0},
		{ProductID: "P", Name: "x", Quantity: MaxQuantityPerItem + 1},
		{ProductID: "P", Name: "x", Quantity: 1, UnitPrice: -1},
		{ProductID: "P", Name: "x", Quantity: 1, UnitPrice: MaxUnitPrice + 1},
	}
	for _, in := range tests {
		_, err := svc.AddItem(context.Background(), cart.ID, nil, in)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "%+v", in)
	}
}

func TestAddItem_ClosedCart(t *testing.T) {
	svc, _ := newTestCartService(t)
	cart := createTestCart(t, svc)

	_, err := svc.store.CompareAndSwap(context.Background(), cart.ID, 1, func(c *domain.Cart) error {
		c.Status = domain.CartSettled
		return nil
	})
	require.NoError(t, err)

	_, err = svc.AddItem(context.Background(), cart.ID, nil, ItemInput{ProductID: "P2", Name: "x", Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestUpdateItemQuantity(t *testing.T) {
	svc, _ := newTestCartService(t)
	cart := createTestCart(t, svc)

	updated, err := svc.UpdateItemQuantity(context.Background(), cart.ID, domain.Ptr(int64(1)), "P1", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Items[0].Quantity)

	updated, err = svc.UpdateItemQuantity(context.Background(), cart.ID, domain.Ptr(int64(2)), "P1", 0)
	require.NoError(t, err)
	assert.Empty(t, updated.Items)
	assert.Equal(t, int64(3), updated.Version)
}

func TestUpdateItemQuantity_MissingItem(t *testing.T) {
	svc, _ := newTestCartService(t)
	cart := createTestCart(t, svc)

	_, err := svc.UpdateItemQuantity(context.Background(), cart.ID, nil, "nope", 1)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRemoveItem(t *testing.T) {
	svc, _ := newTestCartService(t)
	cart := createTestCart(t, svc)

	updated, err := svc.RemoveItem(context.Background(), cart.ID, domain.Ptr(int64(1)), "P1")
	require.NoError(t, err)
	assert.Empty(t, updated.Items)

	_, err = svc.RemoveItem(context.Background(), cart.ID, nil, "P1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetCart_NotFound(t *testing.T) {
	svc, _ := newTestCartService(t)
	_, err := svc.GetCart(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

// --- CheckoutAvailability ---

func TestCheckoutAvailability(t *testing.T) {
	tests := []struct {
		name      string
		balance   int64
		err       error
		available bool
		reason    string
	}{
		{"enough funds", 100000, nil, true, ""},
		{"insufficient funds", 100, nil, false, "insufficient funds"},
		{"payment down", 0, apperrors.ServiceUnavailable("down"), false, "payment service unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, gw := newTestCartService(t)
			cart := createTestCart(t, svc)
			gw.On("Balance", mock.Anything).Return(tt.balance, tt.err)

			av, err := svc.CheckoutAvailability(context.Background(), cart.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.available, av.Available)
			assert.Equal(t, tt.reason, av.Reason)
			assert.Equal(t, int64(2500), av.Total)
			gw.AssertExpectations(t)
		})
	}
}

func TestCheckoutAvailability_EmptyCartSkipsPayment(t *testing.T) {
	svc, gw := newTestCartService(t)
	cart, err := svc.CreateCart(context.Background(), CreateCartInput{})
	require.NoError(t, err)

	av, err := svc.CheckoutAvailability(context.Background(), cart.ID)
	require.NoError(t, err)
	assert.False(t, av.Available)
	gw.AssertNotCalled(t, "Balance", mock.Anything)
}
