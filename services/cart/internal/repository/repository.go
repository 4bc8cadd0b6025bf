package repository

import (
	"context"
	"time"

	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
)

// CartStore is the only writer of cart state. Every write is a
// compare-and-swap on the cart version.
type CartStore interface {
	// Get returns the cart or a NotFound error.
	Get(ctx context.Context, cartID string) (*domain.Cart, error)

	// Create stores a new cart at version 1. A duplicate ID is AlreadyExists.
	Create(ctx context.Context, cart *domain.Cart) error

	// CompareAndSwap applies mutate to the stored cart if its version still
	// equals expectedVersion, bumps the version and returns the new cart.
	// A stale version yields domain.ErrVersionConflict.
	CompareAndSwap(ctx context.Context, cartID string, expectedVersion int64, mutate func(*domain.Cart) error) (*domain.Cart, error)
}

// BeginResult tells the caller of BeginOrFetch what it got back.
type BeginResult int

const (
	// Created means a fresh PENDING attempt was inserted for this key.
	Created BeginResult = iota
	// Existing means an attempt for the same cart and key already exists.
	Existing
	// Busy means a different key owns the cart's active attempt. The returned
	// attempt is that active one.
	Busy
)

func (r BeginResult) String() string {
	switch r {
	case Created:
		return "created"
	case Existing:
		return "existing"
	case Busy:
		return "busy"
	}
	return "unknown"
}

// BeginOption adjusts the attempt BeginOrFetch inserts. It has no effect
// when an attempt for the key already exists.
type BeginOption func(*domain.Attempt)

// WithAttachment records that the request carried attachment bytes. Those
// bytes are never persisted, so a resumer must not re-run such an attempt
// from PENDING.
func WithAttachment() BeginOption {
	return func(a *domain.Attempt) { a.AttachmentRequired = true }
}

// NewPendingAttempt builds the row BeginOrFetch inserts.
func NewPendingAttempt(id, cartID, key string, now time.Time, opts ...BeginOption) *domain.Attempt {
	a := domain.NewAttempt(id, cartID, key, now)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ledger records checkout attempts keyed by (cart, idempotency key) and
// guarantees at most one active attempt per cart.
type Ledger interface {
	BeginOrFetch(ctx context.Context, cartID, key string, now time.Time, opts ...BeginOption) (*domain.Attempt, BeginResult, error)

	// Transition moves the attempt from its state in from to next and writes
	// patch. It fails with domain.ErrStaleState when the stored state or
	// revision differs from from's, so of two drivers holding the same copy
	// only one can write, self-transitions included. A forbidden move fails
	// with domain.ErrInvalidTransition.
	Transition(ctx context.Context, from *domain.Attempt, next domain.AttemptState, patch domain.AttemptPatch) (*domain.Attempt, error)

	// Claim bumps the revision and updated_at of an active attempt without
	// moving it, under the same guard as Transition. A resumer claims before
	// re-driving, which takes the attempt out of ListResumable until it goes
	// stale again and makes a second claimer fail with domain.ErrStaleState.
	Claim(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error)

	Get(ctx context.Context, attemptID string) (*domain.Attempt, error)
	GetByKey(ctx context.Context, cartID, key string) (*domain.Attempt, error)

	// ListResumable returns active attempts not updated since staleBefore,
	// oldest first.
	ListResumable(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.Attempt, error)

	// PurgeTerminal deletes terminal attempts last updated before the cutoff.
	PurgeTerminal(ctx context.Context, before time.Time) (int64, error)
}

// OrderFilter selects orders for listing. Page is 1-based.
type OrderFilter struct {
	CartID  *string
	Page    int
	PerPage int
}

// DefaultOrdersPerPage applies when a filter leaves PerPage unset.
const DefaultOrdersPerPage = 20

// Window converts the page into a limit and offset.
func (f OrderFilter) Window() (limit, offset int) {
	limit = f.PerPage
	if limit <= 0 {
		limit = DefaultOrdersPerPage
	}
	if f.Page > 1 {
		offset = (f.Page - 1) * limit
	}
	return limit, offset
}

// OrderStore keeps the snapshot written when a checkout settles.
type OrderStore interface {
	// Create stores an order. An order already stored under the same ID
	// fails with apperrors.ErrAlreadyExists.
	Create(ctx context.Context, order *domain.Order) error

	// Get returns the order with its lines, or a NotFound error.
	Get(ctx context.Context, id string) (*domain.Order, error)

	// List returns matching orders newest first, without lines, and the
	// total number of matches.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)
}
