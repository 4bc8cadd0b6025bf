package domain

import (
	"fmt"
	"time"
)

// AttemptState is a checkout attempt's position in the saga.
type AttemptState string

const (
	StatePending      AttemptState = "PENDING"
	StateAuthorizing  AttemptState = "AUTHORIZING"
	StateAuthorized   AttemptState = "AUTHORIZED"
	StateCapturing    AttemptState = "CAPTURING"
	StateSettled      AttemptState = "SETTLED"
	StateCompensating AttemptState = "COMPENSATING"
	StateFailed       AttemptState = "FAILED"
	StateRejected     AttemptState = "REJECTED"
)

// Cause explains why an attempt ended in REJECTED or FAILED, or why a
// settled attempt needs reconciliation.
type Cause string

const (
	CauseEmptyCart          Cause = "EMPTY_CART"
	CauseStaleCartVersion   Cause = "STALE_CART_VERSION"
	CauseCartNotFound       Cause = "CART_NOT_FOUND"
	CauseCartNotOpen        Cause = "CART_NOT_OPEN"
	CauseAttachmentFailure  Cause = "ATTACHMENT_FAILURE"
	CauseDuplicateInFlight  Cause = "DUPLICATE_IN_FLIGHT"
	CausePaymentDeclined    Cause = "PAYMENT_DECLINED"
	CausePaymentUnavailable Cause = "PAYMENT_UNAVAILABLE"
	CauseCaptureFailed      Cause = "CAPTURE_FAILED"
	CauseCartWriteFailed    Cause = "CART_WRITE_FAILED"
)

var transitions = map[AttemptState][]AttemptState{
	StatePending:      {StateAuthorizing, StateRejected, StateCompensating},
	StateAuthorizing:  {StateAuthorizing, StateAuthorized, StateCompensating},
	StateAuthorized:   {StateCapturing, StateCompensating},
	StateCapturing:    {StateCapturing, StateSettled, StateCompensating},
	StateCompensating: {StateCompensating, StateFailed},
}

// CanTransition reports whether the state table allows from -> to.
// Terminal states allow nothing.
func CanTransition(from, to AttemptState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s absorbs all further transitions.
func (s AttemptState) IsTerminal() bool {
	return s == StateSettled || s == StateFailed || s == StateRejected
}

// Valid reports whether s is a known state.
func (s AttemptState) Valid() bool {
	switch s {
	case StatePending, StateAuthorizing, StateAuthorized, StateCapturing,
		StateSettled, StateCompensating, StateFailed, StateRejected:
		return true
	}
	return false
}

// ActiveStates lists the non-terminal states.
func ActiveStates() []AttemptState {
	return []AttemptState{StatePending, StateAuthorizing, StateAuthorized, StateCapturing, StateCompensating}
}

// Attempt is one execution of the checkout saga for a (cart, idempotency key) pair.
// CartVersion is the cart version written by the checkout lock and
// ItemsFingerprint the priced lines seen under it. Revision counts writes to
// the record and guards every ledger update.
type Attempt struct {
	ID                  string       `json:"id"`
	CartID              string       `json:"cart_id"`
	IdempotencyKey      string       `json:"idempotency_key"`
	State               AttemptState `json:"state"`
	Cause               *Cause       `json:"cause,omitempty"`
	CartVersion         int64        `json:"cart_version"`
	ItemsFingerprint    string       `json:"items_fingerprint,omitempty"`
	Amount              int64        `json:"amount"`
	Currency            string       `json:"currency"`
	PaymentRef          *string      `json:"payment_ref,omitempty"`
	AttachmentRef       *string      `json:"attachment_ref,omitempty"`
	AttachmentRequired  bool         `json:"attachment_required"`
	Captured            bool         `json:"captured"`
	Voided              bool         `json:"voided"`
	NeedsReconciliation bool         `json:"needs_reconciliation"`
	RetryCount          int          `json:"retry_count"`
	LastError           string       `json:"last_error,omitempty"`
	Revision            int64        `json:"revision"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// NewAttempt returns a PENDING attempt.
func NewAttempt(id, cartID, key string, now time.Time) *Attempt {
	return &Attempt{
		ID:             id,
		CartID:         cartID,
		IdempotencyKey: key,
		State:          StatePending,
		Revision:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CauseOrEmpty returns the cause as a string, or "" when unset.
func (a *Attempt) CauseOrEmpty() Cause {
	if a.Cause == nil {
		return ""
	}
	return *a.Cause
}

// AttemptPatch carries the fields a transition writes alongside the new
// state. Nil fields are left unchanged.
type AttemptPatch struct {
	Cause               *Cause
	CartVersion         *int64
	ItemsFingerprint    *string
	Amount              *int64
	Currency            *string
	PaymentRef          *string
	AttachmentRef       *string
	AttachmentRequired  *bool
	Captured            *bool
	Voided              *bool
	NeedsReconciliation *bool
	LastError           *string
	IncrementRetry      bool
}

// Apply returns a copy of a moved to next with the patch written, or
// ErrInvalidTransition when the state table forbids the move.
func (a *Attempt) Apply(next AttemptState, p AttemptPatch, now time.Time) (*Attempt, error) {
	if !CanTransition(a.State, next) {
		return nil, fmt.Errorf("%s -> %s: %w", a.State, next, ErrInvalidTransition)
	}

	cp := *a
	cp.State = next
	cp.Revision++
	cp.UpdatedAt = now
	if p.Cause != nil {
		cp.Cause = p.Cause
	}
	if p.CartVersion != nil {
		cp.CartVersion = *p.CartVersion
	}
	if p.ItemsFingerprint != nil {
		cp.ItemsFingerprint = *p.ItemsFingerprint
	}
	if p.Amount != nil {
		cp.Amount = *p.Amount
	}
	if p.Currency != nil {
		cp.Currency = *p.Currency
	}
	if p.PaymentRef != nil {
		cp.PaymentRef = p.PaymentRef
	}
	if p.AttachmentRef != nil {
		cp.AttachmentRef = p.AttachmentRef
	}
	if p.AttachmentRequired != nil {
		cp.AttachmentRequired = *p.AttachmentRequired
	}
	if p.Captured != nil {
		cp.Captured = *p.Captured
	}
	if p.Voided != nil {
		cp.Voided = *p.Voided
	}
	if p.NeedsReconciliation != nil {
		cp.NeedsReconciliation = *p.NeedsReconciliation
	}
	if p.LastError != nil {
		cp.LastError = *p.LastError
	}
	if p.IncrementRetry {
		cp.RetryCount++
	}
	return &cp, nil
}

// Touch returns a copy of a with the revision bumped and the state kept.
// Drivers use it to claim an attempt before re-driving it.
func (a *Attempt) Touch(now time.Time) *Attempt {
	cp := *a
	cp.Revision++
	cp.UpdatedAt = now
	return &cp
}

// Ptr returns a pointer to v. Used to fill AttemptPatch fields.
func Ptr[T any](v T) *T {
	return &v
}
