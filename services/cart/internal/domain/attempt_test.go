package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStates = []AttemptState{
	StatePending, StateAuthorizing, StateAuthorized, StateCapturing,
	StateSettled, StateCompensating, StateFailed, StateRejected,
}

// ============================================================================
// State table
// ============================================================================

func TestCanTransition_Table(t *testing.T) {
	allowed := map[AttemptState][]AttemptState{
		StatePending:      {StateAuthorizing, StateRejected, StateCompensating},
		StateAuthorizing:  {StateAuthorizing, StateAuthorized, StateCompensating},
		StateAuthorized:   {StateCapturing, StateCompensating},
		StateCapturing:    {StateCapturing, StateSettled, StateCompensating},
		StateCompensating: {StateCompensating, StateFailed},
	}

	for _, from := range allStates {
		for _, to := range allStates {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesAbsorb(t *testing.T) {
	for _, from := range []AttemptState{StateSettled, StateFailed, StateRejected} {
		assert.True(t, from.IsTerminal())
		for _, to := range allStates {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	for _, s := range ActiveStates() {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestStateValid(t *testing.T) {
	for _, s := range allStates {
		assert.True(t, s.Valid())
	}
	assert.False(t, AttemptState("SHIPPED").Valid())
}

// ============================================================================
// Apply
// ============================================================================

func TestApply_WritesPatchAndKeepsOriginal(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAttempt("a-1", "c-1", "k-1", now)

	later := now.Add(time.Second)
	next, err := a.Apply(StateAuthorizing, AttemptPatch{
		CartVersion:      Ptr(int64(4)),
		Amount:           Ptr(int64(2500)),
		Currency:         Ptr("USD"),
		ItemsFingerprint: Ptr("f1"),
	}, later)
	require.NoError(t, err)

	assert.Equal(t, StateAuthorizing, next.State)
	assert.Equal(t, int64(4), next.CartVersion)
	assert.Equal(t, "f1", next.ItemsFingerprint)
	assert.Equal(t, int64(2), next.Revision)
	assert.Equal(t, int64(1), a.Revision)
	assert.Equal(t, int64(2500), next.Amount)
	assert.Equal(t, "USD", next.Currency)
	assert.Equal(t, later, next.UpdatedAt)
	assert.Equal(t, StatePending, a.State)
	assert.Equal(t, now, a.UpdatedAt)
}

func TestApply_RetryBookkeeping(t *testing.T) {
	a := &Attempt{State: StateAuthorizing}
	next, err := a.Apply(StateAuthorizing, AttemptPatch{IncrementRetry: true, LastError: Ptr("timeout")}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, next.RetryCount)
	assert.Equal(t, "timeout", next.LastError)
}

func TestTouch_BumpsRevisionOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &Attempt{State: StateCapturing, Revision: 5, UpdatedAt: now}

	claimed := a.Touch(now.Add(time.Minute))
	assert.Equal(t, StateCapturing, claimed.State)
	assert.Equal(t, int64(6), claimed.Revision)
	assert.Equal(t, now.Add(time.Minute), claimed.UpdatedAt)
	assert.Equal(t, int64(5), a.Revision)
}

func TestApply_RejectsForbiddenMove(t *testing.T) {
	a := &Attempt{State: StateSettled}
	_, err := a.Apply(StateCompensating, AttemptPatch{}, time.Now())
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

// ============================================================================
// Outcome classification
// ============================================================================

func TestOutcomeClass(t *testing.T) {
	tests := []struct {
		name    string
		attempt Attempt
		want    Class
	}{
		{"settled", Attempt{State: StateSettled}, ClassSettled},
		{"settled needing reconciliation", Attempt{State: StateSettled, NeedsReconciliation: true, Cause: Ptr(CauseCartWriteFailed)}, ClassReconciliationNeeded},
		{"rejected", Attempt{State: StateRejected, Cause: Ptr(CauseEmptyCart)}, ClassRejected},
		{"declined", Attempt{State: StateFailed, Cause: Ptr(CausePaymentDeclined)}, ClassDeclined},
		{"unavailable", Attempt{State: StateFailed, Cause: Ptr(CausePaymentUnavailable)}, ClassUnavailable},
		{"capture failed", Attempt{State: StateFailed, Cause: Ptr(CauseCaptureFailed)}, ClassFailed},
		{"void exhausted", Attempt{State: StateFailed, Cause: Ptr(CauseCaptureFailed), NeedsReconciliation: true}, ClassReconciliationNeeded},
		{"active", Attempt{State: StateCapturing}, ClassInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeClass(&tt.attempt))
		})
	}
}

func TestNewOutcome(t *testing.T) {
	a := &Attempt{
		ID: "a-1", CartID: "c-1", State: StateFailed,
		Cause: Ptr(CauseCaptureFailed), PaymentRef: Ptr("A1"), Voided: true, RetryCount: 2,
	}
	o := NewOutcome(a)
	assert.Equal(t, "a-1", o.AttemptID)
	assert.Equal(t, ClassFailed, o.Class)
	assert.Equal(t, "A1", *o.PaymentRef)
	assert.Equal(t, 2, o.RetryCount)
}

func TestRejection(t *testing.T) {
	o := Rejection("c-1", CauseDuplicateInFlight)
	assert.Equal(t, StateRejected, o.State)
	assert.Equal(t, ClassRejected, o.Class)
	assert.Equal(t, CauseDuplicateInFlight, *o.Cause)
	assert.Empty(t, o.AttemptID)
}
