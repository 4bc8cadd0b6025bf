package wallet

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/utafrali/CommerceCheckout/services/payment/internal/provider"
)

// DefaultBalance is the opening balance in minor units.
const DefaultBalance int64 = 100000

// Provider is an in-process account. Holds debit the balance with a
// compare-and-swap loop so concurrent authorizations never overdraw it.
// It is intended for development and testing purposes.
type Provider struct {
	balance atomic.Int64
}

// NewProvider creates a wallet holding the opening balance.
func NewProvider(opening int64) *Provider {
	p := &Provider{}
	p.balance.Store(opening)
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "wallet"
}

// Hold debits amount if the balance covers it.
func (p *Provider) Hold(_ context.Context, input *provider.HoldInput) (*provider.HoldResult, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("hold amount must be positive, got %d", input.Amount)
	}
	for {
		current := p.balance.Load()
		if current < input.Amount {
			return nil, provider.ErrInsufficientFunds
		}
		if p.balance.CompareAndSwap(current, current-input.Amount) {
			return &provider.HoldResult{ProviderRef: "wallet_hold_" + uuid.New().String()}, nil
		}
	}
}

// Settle is a no-op: the hold already debited the balance.
func (p *Provider) Settle(context.Context, string) error {
	return nil
}

// Release credits the held amount back.
func (p *Provider) Release(_ context.Context, _ string, amount int64) error {
	p.balance.Add(amount)
	return nil
}

// Balance returns the current balance.
func (p *Provider) Balance(context.Context) (int64, error) {
	return p.balance.Load(), nil
}

// Deposit credits amount and returns the new balance.
func (p *Provider) Deposit(_ context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	return p.balance.Add(amount), nil
}
