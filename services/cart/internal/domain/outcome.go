package domain

// Class groups terminal outcomes for callers and for HTTP status mapping.
type Class string

const (
	ClassSettled              Class = "settled"
	ClassRejected             Class = "rejected"
	ClassDeclined             Class = "declined"
	ClassUnavailable          Class = "unavailable"
	ClassReconciliationNeeded Class = "reconciliation_needed"
	ClassFailed               Class = "failed"
	ClassInProgress           Class = "in_progress"
)

// OutcomeClass classifies an attempt. A reconciliation flag wins over the
// state because the caller must not treat it as a clean result.
func OutcomeClass(a *Attempt) Class {
	if a.NeedsReconciliation {
		return ClassReconciliationNeeded
	}
	switch a.State {
	case StateSettled:
		return ClassSettled
	case StateRejected:
		return ClassRejected
	case StateFailed:
		switch a.CauseOrEmpty() {
		case CausePaymentDeclined:
			return ClassDeclined
		case CausePaymentUnavailable:
			return ClassUnavailable
		}
		return ClassFailed
	}
	return ClassInProgress
}

// CheckoutOutcome is what a caller receives for a checkout request. Replays
// of the same idempotency key return an identical value.
type CheckoutOutcome struct {
	AttemptID           string       `json:"attempt_id"`
	CartID              string       `json:"cart_id"`
	State               AttemptState `json:"state"`
	Class               Class        `json:"class"`
	Cause               *Cause       `json:"cause,omitempty"`
	PaymentRef          *string      `json:"payment_ref,omitempty"`
	AttachmentRef       *string      `json:"attachment_ref,omitempty"`
	NeedsReconciliation bool         `json:"needs_reconciliation"`
	RetryCount          int          `json:"retry_count"`
}

// NewOutcome projects an attempt onto the caller-facing outcome.
func NewOutcome(a *Attempt) *CheckoutOutcome {
	return &CheckoutOutcome{
		AttemptID:           a.ID,
		CartID:              a.CartID,
		State:               a.State,
		Class:               OutcomeClass(a),
		Cause:               a.Cause,
		PaymentRef:          a.PaymentRef,
		AttachmentRef:       a.AttachmentRef,
		NeedsReconciliation: a.NeedsReconciliation,
		RetryCount:          a.RetryCount,
	}
}

// Rejection builds an outcome for a request that never got its own attempt
// row, such as a duplicate in flight.
func Rejection(cartID string, cause Cause) *CheckoutOutcome {
	return &CheckoutOutcome{
		CartID: cartID,
		State:  StateRejected,
		Class:  ClassRejected,
		Cause:  Ptr(cause),
	}
}
