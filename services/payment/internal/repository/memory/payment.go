// Package memory is an in-process payment store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/payment/internal/domain"
)

// PaymentRepository keeps payments in maps guarded by a mutex. Returned
// payments are copies.
type PaymentRepository struct {
	mu          sync.Mutex
	byID        map[string]*domain.Payment
	byReference map[string]string
	now         func() time.Time
}

// NewPaymentRepository creates an empty store.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		byID:        make(map[string]*domain.Payment),
		byReference: make(map[string]string),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a payment unless its reference is taken.
func (r *PaymentRepository) Create(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byReference[p.Reference]; ok {
		return apperrors.AlreadyExists("payment", "reference", p.Reference)
	}
	cp := *p
	r.byID[p.ID] = &cp
	r.byReference[p.Reference] = p.ID
	return nil
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("payment", id)
	}
	cp := *p
	return &cp, nil
}

// GetByReference retrieves a payment by its idempotency reference.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	r.mu.Lock()
	id, ok := r.byReference[reference]
	r.mu.Unlock()
	if !ok {
		return nil, apperrors.NotFound("payment", reference)
	}
	return r.GetByID(ctx, id)
}

// UpdateStatus moves a payment from one status to another.
func (r *PaymentRepository) UpdateStatus(_ context.Context, id string, from, to domain.Status) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok || p.Status != from {
		return nil, fmt.Errorf("payment %s %s -> %s: %w", id, from, to, domain.ErrStatusChanged)
	}
	p.Status = to
	p.UpdatedAt = r.now()
	cp := *p
	return &cp, nil
}
