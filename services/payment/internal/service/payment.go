package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/payment/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/payment/internal/event"
	"github.com/utafrali/CommerceCheckout/services/payment/internal/provider"
	"github.com/utafrali/CommerceCheckout/services/payment/internal/repository"
)

// PaymentService implements the business logic for payment operations.
// Authorize is idempotent on the caller's reference; Capture and Void are
// idempotent on the payment ID.
type PaymentService struct {
	repo     repository.PaymentRepository
	provider provider.Provider
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
}

// NewPaymentService creates a new payment service.
func NewPaymentService(
	repo repository.PaymentRepository,
	prov provider.Provider,
	producer *event.Producer,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		repo:     repo,
		provider: prov,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AuthorizeInput holds the parameters for placing a hold.
type AuthorizeInput struct {
	Reference string `json:"reference" validate:"required,max=255"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Currency  string `json:"currency" validate:"required,len=3,alpha"`
}

// DepositInput holds the parameters for crediting the account.
type DepositInput struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// Authorize places a hold for the amount. created is false when the
// reference was seen before and the stored payment is returned instead.
func (s *PaymentService) Authorize(ctx context.Context, input *AuthorizeInput) (_ *domain.Payment, created bool, _ error) {
	if input.Reference == "" {
		return nil, false, apperrors.InvalidInput("reference is required")
	}
	if input.Amount <= 0 {
		return nil, false, apperrors.InvalidInput("amount must be greater than zero")
	}
	if len(input.Currency) != 3 {
		return nil, false, apperrors.InvalidInput("currency must be a 3-letter ISO code")
	}
	currency := strings.ToUpper(input.Currency)

	existing, err := s.repo.GetByReference(ctx, input.Reference)
	switch {
	case err == nil:
		p, err := s.replay(existing, input.Amount, currency)
		return p, false, err
	case !apperrors.IsNotFound(err):
		return nil, false, fmt.Errorf("get payment by reference: %w", err)
	}

	now := s.now()
	payment := &domain.Payment{
		ID:           uuid.New().String(),
		Reference:    input.Reference,
		Amount:       input.Amount,
		Currency:     currency,
		ProviderName: s.provider.Name(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	hold, err := s.provider.Hold(ctx, &provider.HoldInput{
		Reference: input.Reference,
		Amount:    input.Amount,
		Currency:  currency,
	})
	switch {
	case errors.Is(err, provider.ErrInsufficientFunds):
		payment.Status = domain.StatusDeclined
		payment.FailureReason = domain.DeclineInsufficientFunds
	case err != nil:
		return nil, false, fmt.Errorf("hold funds: %w", err)
	default:
		payment.Status = domain.StatusAuthorized
		payment.ProviderRef = hold.ProviderRef
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		if payment.IsHeld() {
			s.release(ctx, payment)
		}
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			// A concurrent request with the same reference won the insert.
			existing, getErr := s.repo.GetByReference(ctx, input.Reference)
			if getErr != nil {
				return nil, false, fmt.Errorf("get payment by reference: %w", getErr)
			}
			p, err := s.replay(existing, input.Amount, currency)
			return p, false, err
		}
		return nil, false, fmt.Errorf("create payment: %w", err)
	}

	s.publish(ctx, payment)
	s.logger.InfoContext(ctx, "payment authorization processed",
		slog.String("payment_id", payment.ID),
		slog.String("reference", payment.Reference),
		slog.String("status", string(payment.Status)),
		slog.Int64("amount", payment.Amount),
	)

	if payment.Status == domain.StatusDeclined {
		return payment, true, apperrors.PaymentDeclined(payment.FailureReason)
	}
	return payment, true, nil
}

// replay returns the stored outcome for a repeated reference. A reference
// reused for a different amount is a conflict, not a replay.
func (s *PaymentService) replay(p *domain.Payment, amount int64, currency string) (*domain.Payment, error) {
	if p.Amount != amount || p.Currency != currency {
		return nil, apperrors.Conflict(fmt.Sprintf("reference %q was used for %d %s", p.Reference, p.Amount, p.Currency))
	}
	if p.Status == domain.StatusDeclined {
		return p, apperrors.PaymentDeclined(p.FailureReason)
	}
	return p, nil
}

// Capture settles a held payment. Capturing an already captured payment
// succeeds without side effects.
func (s *PaymentService) Capture(ctx context.Context, paymentID string) (*domain.Payment, error) {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == domain.StatusCaptured {
		return payment, nil
	}
	if !payment.CanMoveTo(domain.StatusCaptured) {
		return nil, apperrors.Conflict(fmt.Sprintf("payment is %s and cannot be captured", payment.Status))
	}

	if err := s.provider.Settle(ctx, payment.ProviderRef); err != nil {
		return nil, fmt.Errorf("settle hold: %w", err)
	}

	updated, err := s.repo.UpdateStatus(ctx, payment.ID, domain.StatusAuthorized, domain.StatusCaptured)
	if err != nil {
		return s.settleRace(ctx, paymentID, domain.StatusCaptured, err)
	}

	s.publish(ctx, updated)
	s.logger.InfoContext(ctx, "payment captured",
		slog.String("payment_id", updated.ID),
		slog.Int64("amount", updated.Amount),
	)
	return updated, nil
}

// Void releases a held payment. Voiding an already voided payment succeeds
// without side effects; a captured payment cannot be voided.
func (s *PaymentService) Void(ctx context.Context, paymentID string) (*domain.Payment, error) {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == domain.StatusVoided {
		return payment, nil
	}
	if !payment.CanMoveTo(domain.StatusVoided) {
		return nil, apperrors.Conflict(fmt.Sprintf("payment is %s and cannot be voided", payment.Status))
	}

	// The status flips first so only one caller ever releases the funds.
	updated, err := s.repo.UpdateStatus(ctx, payment.ID, domain.StatusAuthorized, domain.StatusVoided)
	if err != nil {
		return s.settleRace(ctx, paymentID, domain.StatusVoided, err)
	}
	s.release(ctx, updated)

	s.publish(ctx, updated)
	s.logger.InfoContext(ctx, "payment voided",
		slog.String("payment_id", updated.ID),
		slog.Int64("amount", updated.Amount),
	)
	return updated, nil
}

// settleRace resolves a lost conditional update: if the concurrent writer
// reached the same status the call is a replay, otherwise it conflicts.
func (s *PaymentService) settleRace(ctx context.Context, paymentID string, want domain.Status, updateErr error) (*domain.Payment, error) {
	if !errors.Is(updateErr, domain.ErrStatusChanged) {
		return nil, fmt.Errorf("update payment status: %w", updateErr)
	}
	current, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if current.Status == want {
		return current, nil
	}
	return nil, apperrors.Conflict(fmt.Sprintf("payment is %s", current.Status))
}

// GetPayment retrieves a payment by ID.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.repo.GetByID(ctx, paymentID)
}

// GetPaymentByReference retrieves the payment placed for a caller reference.
// Callers whose authorize timed out use it to find a hold they never saw.
func (s *PaymentService) GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	if reference == "" {
		return nil, apperrors.InvalidInput("reference is required")
	}
	return s.repo.GetByReference(ctx, reference)
}

// Balance returns the funds available for new authorizations.
func (s *PaymentService) Balance(ctx context.Context) (int64, error) {
	return s.provider.Balance(ctx)
}

// Deposit credits the account and returns the new balance.
func (s *PaymentService) Deposit(ctx context.Context, input *DepositInput) (int64, error) {
	if input.Amount <= 0 {
		return 0, apperrors.InvalidInput("amount must be greater than zero")
	}
	balance, err := s.provider.Deposit(ctx, input.Amount)
	if err != nil {
		return 0, fmt.Errorf("deposit: %w", err)
	}
	s.logger.InfoContext(ctx, "account credited",
		slog.Int64("amount", input.Amount),
		slog.Int64("balance", balance),
	)
	return balance, nil
}

func (s *PaymentService) release(ctx context.Context, p *domain.Payment) {
	if err := s.provider.Release(ctx, p.ProviderRef, p.Amount); err != nil {
		s.logger.ErrorContext(ctx, "failed to release hold",
			slog.String("payment_id", p.ID),
			slog.String("provider_ref", p.ProviderRef),
			slog.Int64("amount", p.Amount),
			slog.Bool("reconciliation", true),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PaymentService) publish(ctx context.Context, p *domain.Payment) {
	if err := s.producer.PublishStatus(ctx, p); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish payment event",
			slog.String("payment_id", p.ID),
			slog.String("status", string(p.Status)),
			slog.String("error", err.Error()),
		)
	}
}
