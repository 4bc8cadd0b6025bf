package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/event"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository"
)

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxQuantityPerItem is the maximum quantity allowed for a single cart item.
	MaxQuantityPerItem = 100
	// MaxItemsPerCart is the maximum number of distinct items allowed in a cart.
	MaxItemsPerCart = 50
	// MaxUnitPrice is the maximum unit price in minor units (100,000.00).
	MaxUnitPrice = 100_000_00
)

// DefaultCurrency is used when a cart is created without one.
const DefaultCurrency = "USD"

// ItemInput describes a cart line supplied by a caller.
type ItemInput struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	Name      string `json:"name" validate:"required,max=255"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
}

// CreateCartInput holds the parameters for creating a cart.
type CreateCartInput struct {
	ID       string      `json:"id" validate:"omitempty,max=128"`
	Currency string      `json:"currency" validate:"omitempty,len=3,alpha"`
	Items    []ItemInput `json:"items" validate:"omitempty,dive"`
}

// Availability reports whether the payment account can cover a cart. It is
// advisory only; checkout does not consult it.
type Availability struct {
	CartID    string `json:"cart_id"`
	Total     int64  `json:"total"`
	Balance   int64  `json:"balance"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// CartService implements the business logic for cart operations. Every
// write is a compare-and-swap against the version the caller last saw.
type CartService struct {
	store    repository.CartStore
	payments PaymentGateway
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
}

// NewCartService creates a new cart service.
func NewCartService(store repository.CartStore, payments PaymentGateway, producer *event.Producer, logger *slog.Logger) *CartService {
	return &CartService{
		store:    store,
		payments: payments,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateCart stores a new OPEN cart at version 1.
func (s *CartService) CreateCart(ctx context.Context, input CreateCartInput) (*domain.Cart, error) {
	if len(input.Items) > MaxItemsPerCart {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
	}

	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}

	now := s.now()
	cart := &domain.Cart{
		ID:        id,
		Items:     []domain.CartItem{},
		Currency:  currency,
		Status:    domain.CartOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, in := range input.Items {
		if err := addItem(cart, in); err != nil {
			return nil, err
		}
	}

	if err := s.store.Create(ctx, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	if err := s.producer.PublishCartCreated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.created event",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart created",
		slog.String("cart_id", cart.ID),
		slog.Int("items", len(cart.Items)),
	)
	return cart, nil
}

// GetCart retrieves a cart by ID.
func (s *CartService) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	if cartID == "" {
		return nil, apperrors.InvalidInput("cart id is required")
	}
	return s.store.Get(ctx, cartID)
}

// AddItem adds a line, merging quantity when the product is already in the cart.
// A nil expectedVersion writes against the version read just before.
func (s *CartService) AddItem(ctx context.Context, cartID string, expectedVersion *int64, input ItemInput) (*domain.Cart, error) {
	if err := validateItem(input); err != nil {
		return nil, err
	}

	cart, err := s.update(ctx, cartID, expectedVersion, func(c *domain.Cart) error {
		return addItem(c, input)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("cart_id", cartID),
		slog.String("product_id", input.ProductID),
		slog.Int("quantity", input.Quantity),
		slog.Int64("version", cart.Version),
	)
	return cart, nil
}

// UpdateItemQuantity sets the quantity of a line. Zero removes it.
func (s *CartService) UpdateItemQuantity(ctx context.Context, cartID string, expectedVersion *int64, productID string, quantity int) (*domain.Cart, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if quantity < 0 {
		return nil, apperrors.InvalidInput("quantity must not be negative")
	}
	if quantity > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}

	cart, err := s.update(ctx, cartID, expectedVersion, func(c *domain.Cart) error {
		i := c.FindItemIndex(productID)
		if i < 0 {
			return apperrors.NotFound("cart item", productID)
		}
		if quantity == 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
		c.Items[i].Quantity = quantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("cart_id", cartID),
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
		slog.Int64("version", cart.Version),
	)
	return cart, nil
}

// RemoveItem removes a line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, cartID string, expectedVersion *int64, productID string) (*domain.Cart, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	cart, err := s.update(ctx, cartID, expectedVersion, func(c *domain.Cart) error {
		i := c.FindItemIndex(productID)
		if i < 0 {
			return apperrors.NotFound("cart item", productID)
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("cart_id", cartID),
		slog.String("product_id", productID),
		slog.Int64("version", cart.Version),
	)
	return cart, nil
}

// CheckoutAvailability compares the payment balance with the cart total.
// An unreachable payment service reports unavailable rather than failing.
func (s *CartService) CheckoutAvailability(ctx context.Context, cartID string) (*Availability, error) {
	cart, err := s.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	av := &Availability{CartID: cart.ID, Total: cart.TotalAmount()}
	switch {
	case !cart.IsOpen():
		av.Reason = "cart is not open"
		return av, nil
	case len(cart.Items) == 0:
		av.Reason = "cart is empty"
		return av, nil
	}

	balance, err := s.payments.Balance(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "payment balance unavailable",
			slog.String("cart_id", cartID),
			slog.String("error", err.Error()),
		)
		av.Reason = "payment service unavailable"
		return av, nil
	}

	av.Balance = balance
	av.Available = balance >= av.Total
	if !av.Available {
		av.Reason = "insufficient funds"
	}
	return av, nil
}

// update runs mutate under CAS and maps a stale version to VERSION_CONFLICT.
func (s *CartService) update(ctx context.Context, cartID string, expectedVersion *int64, mutate func(*domain.Cart) error) (*domain.Cart, error) {
	if cartID == "" {
		return nil, apperrors.InvalidInput("cart id is required")
	}

	var expected int64
	if expectedVersion != nil {
		expected = *expectedVersion
	} else {
		current, err := s.store.Get(ctx, cartID)
		if err != nil {
			return nil, err
		}
		expected = current.Version
	}

	cart, err := s.store.CompareAndSwap(ctx, cartID, expected, func(c *domain.Cart) error {
		if !c.IsOpen() {
			return apperrors.Conflict(fmt.Sprintf("cart is %s and can no longer be edited", c.Status))
		}
		return mutate(c)
	})
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, apperrors.VersionConflict("cart", cartID, expected)
		}
		return nil, err
	}
	return cart, nil
}

func validateItem(in ItemInput) error {
	if in.ProductID == "" {
		return apperrors.InvalidInput("product id is required")
	}
	if in.Quantity <= 0 {
		return apperrors.InvalidInput("quantity must be greater than 0")
	}
	if in.Quantity > MaxQuantityPerItem {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}
	if in.UnitPrice < 0 {
		return apperrors.InvalidInput("unit price must not be negative")
	}
	if in.UnitPrice > MaxUnitPrice {
		return apperrors.InvalidInput(fmt.Sprintf("unit price must not exceed %d", MaxUnitPrice))
	}
	return nil
}

func addItem(c *domain.Cart, in ItemInput) error {
	if err := validateItem(in); err != nil {
		return err
	}

	if i := c.FindItemIndex(in.ProductID); i >= 0 {
		qty := c.Items[i].Quantity + in.Quantity
		if qty > MaxQuantityPerItem {
			return apperrors.InvalidInput(fmt.Sprintf("combined quantity must not exceed %d", MaxQuantityPerItem))
		}
		c.Items[i].Quantity = qty
		c.Items[i].UnitPrice = in.UnitPrice
		c.Items[i].Name = in.Name
		return nil
	}

	if len(c.Items) >= MaxItemsPerCart {
		return apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
	}
	c.Items = append(c.Items, domain.CartItem{
		ProductID: in.ProductID,
		Name:      in.Name,
		Quantity:  in.Quantity,
		UnitPrice: in.UnitPrice,
	})
	return nil
}
