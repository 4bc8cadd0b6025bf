package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository"
)

// RetentionSweeper deletes terminal attempts older than the retention
// window. An idempotency key replayed after that is treated as new.
type RetentionSweeper struct {
	ledger    repository.Ledger
	logger    *slog.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewRetentionSweeper creates a retention sweeper.
func NewRetentionSweeper(ledger repository.Ledger, logger *slog.Logger, retention, interval time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		ledger:    ledger,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *RetentionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "checkout retention sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce purges terminal attempts last updated before now minus retention.
func (s *RetentionSweeper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.ledger.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		attemptsPurged.Add(float64(n))
		s.logger.InfoContext(ctx, "purged terminal checkout attempts",
			slog.Int64("count", n),
			slog.Time("cutoff", cutoff),
		)
	}
	return n, nil
}
