package domain

import (
	"errors"
	"time"
)

// Status is a payment's position in the authorize/capture/void lifecycle.
type Status string

// Payment status constants.
const (
	StatusAuthorized Status = "AUTHORIZED"
	StatusCaptured   Status = "CAPTURED"
	StatusVoided     Status = "VOIDED"
	StatusDeclined   Status = "DECLINED"
)

// DeclineInsufficientFunds is the decline reason when the hold exceeds the balance.
const DeclineInsufficientFunds = "insufficient_funds"

// ErrStatusChanged is returned by a conditional update whose expected status
// no longer matches the stored row.
var ErrStatusChanged = errors.New("payment status changed concurrently")

// Payment is one authorization and whatever became of it. Reference is the
// caller's idempotency reference and is unique.
type Payment struct {
	ID            string    `json:"id"`
	Reference     string    `json:"reference"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        Status    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	ProviderName  string    `json:"provider_name"`
	ProviderRef   string    `json:"provider_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ValidStatuses returns all valid payment statuses.
func ValidStatuses() []Status {
	return []Status{StatusAuthorized, StatusCaptured, StatusVoided, StatusDeclined}
}

// IsValidStatus checks whether s is a known payment status.
func IsValidStatus(s Status) bool {
	for _, v := range ValidStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// IsHeld reports whether funds are still reserved and may be captured or voided.
func (p *Payment) IsHeld() bool {
	return p.Status == StatusAuthorized
}

// CanMoveTo reports whether the lifecycle allows the payment to enter next.
// Only a held authorization moves, and only to CAPTURED or VOIDED.
func (p *Payment) CanMoveTo(next Status) bool {
	return p.IsHeld() && (next == StatusCaptured || next == StatusVoided)
}
