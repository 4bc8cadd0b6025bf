package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository"
)

// Resumer periodically re-drives checkout attempts that stopped making
// progress, for example because the process handling them crashed.
type Resumer struct {
	checkout   *CheckoutService
	ledger     repository.Ledger
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

// NewResumer creates a resumer. Attempts not updated for staleAfter are
// picked up every interval, at most batchSize per tick.
func NewResumer(checkout *CheckoutService, ledger repository.Ledger, logger *slog.Logger, interval, staleAfter time.Duration, batchSize int) *Resumer {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Resumer{
		checkout:   checkout,
		ledger:     ledger,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run resumes stale attempts until ctx is cancelled.
func (r *Resumer) Run(ctx context.Context) error {
	r.logger.Info("checkout resumer started",
		slog.Duration("interval", r.interval),
		slog.Duration("stale_after", r.staleAfter),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "checkout resume pass failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			r.logger.Info("checkout resumer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce resumes one batch and returns how many attempts reached a terminal state.
func (r *Resumer) RunOnce(ctx context.Context) (int, error) {
	attempts, err := r.ledger.ListResumable(ctx, r.now().Add(-r.staleAfter), r.batchSize)
	if err != nil {
		return 0, err
	}

	finished := 0
	for _, a := range attempts {
		if ctx.Err() != nil {
			return finished, ctx.Err()
		}

		// Claiming bumps the revision, so of two resumers that listed the
		// same attempt only one gets to drive it.
		claimed, err := r.ledger.Claim(ctx, a)
		if err != nil {
			if !errors.Is(err, domain.ErrStaleState) {
				r.logger.ErrorContext(ctx, "failed to claim checkout attempt",
					slog.String("attempt_id", a.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		out, err := r.checkout.Resume(ctx, claimed)
		if err != nil {
			if errors.Is(err, domain.ErrStaleState) {
				// Another driver moved it first.
				continue
			}
			r.logger.ErrorContext(ctx, "failed to resume checkout attempt",
				slog.String("attempt_id", a.ID),
				slog.String("state", string(a.State)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if out.State.IsTerminal() {
			finished++
		}
	}
	return finished, nil
}
