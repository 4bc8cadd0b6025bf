package repository

import (
	"context"

	"github.com/utafrali/CommerceCheckout/services/payment/internal/domain"
)

// PaymentRepository defines the interface for payment persistence operations.
type PaymentRepository interface {
	// Create inserts a new payment. A duplicate reference fails with
	// apperrors.ErrAlreadyExists.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByReference retrieves a payment by the caller's idempotency reference.
	GetByReference(ctx context.Context, reference string) (*domain.Payment, error)

	// UpdateStatus moves a payment from one status to another. It fails with
	// domain.ErrStatusChanged when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to domain.Status) (*domain.Payment, error)
}
