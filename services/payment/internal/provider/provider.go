package provider

import (
	"context"
	"errors"
)

// ErrInsufficientFunds is returned by Hold when the balance cannot cover the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// HoldInput holds the parameters for reserving funds.
type HoldInput struct {
	Reference string
	Amount    int64
	Currency  string
}

// HoldResult holds the provider's identifier for a reservation.
type HoldResult struct {
	ProviderRef string
}

// Provider defines the interface for the account that backs authorizations.
type Provider interface {
	// Name returns the provider name (e.g., "wallet").
	Name() string

	// Hold reserves funds. It fails with ErrInsufficientFunds when the
	// balance is too low.
	Hold(ctx context.Context, input *HoldInput) (*HoldResult, error)

	// Settle turns a hold into a final debit.
	Settle(ctx context.Context, providerRef string) error

	// Release returns held funds to the balance.
	Release(ctx context.Context, providerRef string, amount int64) error

	// Balance returns the funds available for new holds.
	Balance(ctx context.Context) (int64, error)

	// Deposit adds funds and returns the new balance.
	Deposit(ctx context.Context, amount int64) (int64, error)
}
