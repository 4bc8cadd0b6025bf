package service

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository"
)

// MaxOrdersPerPage caps a page of the order listing.
const MaxOrdersPerPage = 100

// OrderService reads the order snapshots written when checkouts settle.
type OrderService struct {
	repo   repository.OrderStore
	logger *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(repo repository.OrderStore, logger *slog.Logger) *OrderService {
	return &OrderService{repo: repo, logger: logger}
}

// GetOrder retrieves an order with its lines.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return order, nil
}

// ListOrders returns a filtered, paginated list of orders. The filter is
// normalised in place so callers can echo the page they got.
func (s *OrderService) ListOrders(ctx context.Context, filter *repository.OrderFilter) ([]domain.Order, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = repository.DefaultOrdersPerPage
	}
	if filter.PerPage > MaxOrdersPerPage {
		filter.PerPage = MaxOrdersPerPage
	}

	orders, total, err := s.repo.List(ctx, *filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}
