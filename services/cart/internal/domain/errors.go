package domain

import "errors"

var (
	// ErrVersionConflict is returned by a cart CAS whose expected version is stale.
	ErrVersionConflict = errors.New("cart version conflict")

	// ErrStaleState is returned by a ledger transition whose expected state
	// no longer matches the stored one.
	ErrStaleState = errors.New("attempt state changed concurrently")

	// ErrInvalidTransition is returned when the state table forbids a move.
	ErrInvalidTransition = errors.New("invalid attempt state transition")

	// ErrCartBusy is returned when another attempt is already active on a cart.
	ErrCartBusy = errors.New("cart has an active checkout attempt")
)
