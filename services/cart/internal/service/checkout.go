package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/pkg/logger"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/event"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository"
	paymentclient "github.com/utafrali/CommerceCheckout/services/payment/client"
)

// MaxIdempotencyKeyLength bounds the Idempotency-Key header.
const MaxIdempotencyKeyLength = 255

// CheckoutConfig tunes the orchestrator.
type CheckoutConfig struct {
	Retry            RetryPolicy
	PaymentTimeout   time.Duration
	MediaTimeout     time.Duration
	CartWriteTimeout time.Duration

	// InFlightWait is how long a duplicate request waits for the original
	// attempt to finish before it is rejected as in flight.
	InFlightWait time.Duration
	InFlightPoll time.Duration
}

// DefaultCheckoutConfig returns the orchestrator defaults.
func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		Retry:            DefaultRetryPolicy(),
		PaymentTimeout:   5 * time.Second,
		MediaTimeout:     10 * time.Second,
		CartWriteTimeout: 2 * time.Second,
		InFlightWait:     3 * time.Second,
		InFlightPoll:     100 * time.Millisecond,
	}
}

// Attachment is an optional file submitted with a checkout.
type Attachment struct {
	Data []byte
	Name string
}

// CheckoutRequest is the normalized input of a checkout, independent of how
// it arrived over HTTP.
type CheckoutRequest struct {
	CartID          string
	IdempotencyKey  string
	Attachment      *Attachment
	ExpectedVersion *int64
}

// CheckoutService runs the checkout saga: pre-flight, authorize, capture,
// cart write and compensation. Every step is persisted in the ledger before
// the next external call, so a crashed attempt can be resumed.
//
// Pre-flight locks the cart to the attempt (CHECKOUT_IN_PROGRESS) and pins a
// fingerprint of its priced lines. The lock is released when the attempt
// fails and turned into SETTLED when it succeeds.
type CheckoutService struct {
	carts    repository.CartStore
	ledger   repository.Ledger
	orders   repository.OrderStore
	payments PaymentGateway
	media    AttachmentStore
	producer *event.Producer
	logger   *slog.Logger
	cfg      CheckoutConfig

	inflight sync.WaitGroup

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// errCartDiverged marks a cart that no longer matches what was paid for.
var errCartDiverged = errors.New("cart diverged from the captured payment")

// NewCheckoutService creates the checkout orchestrator.
func NewCheckoutService(
	carts repository.CartStore,
	ledger repository.Ledger,
	orders repository.OrderStore,
	payments PaymentGateway,
	media AttachmentStore,
	producer *event.Producer,
	logger *slog.Logger,
	cfg CheckoutConfig,
) *CheckoutService {
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.InFlightPoll <= 0 {
		cfg.InFlightPoll = 100 * time.Millisecond
	}
	return &CheckoutService{
		carts:    carts,
		ledger:   ledger,
		orders:   orders,
		payments: payments,
		media:    media,
		producer: producer,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepContext,
	}
}

// Checkout runs or replays the checkout identified by (CartID, IdempotencyKey).
// The returned outcome is terminal unless the attempt is still being driven
// by another caller when the in-flight wait runs out.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*domain.CheckoutOutcome, error) {
	if err := validateCheckoutRequest(req); err != nil {
		return nil, err
	}
	ctx = logger.WithIdempotencyKey(ctx, req.IdempotencyKey)

	var opts []repository.BeginOption
	if req.Attachment != nil {
		opts = append(opts, repository.WithAttachment())
	}

	a, res, err := s.ledger.BeginOrFetch(ctx, req.CartID, req.IdempotencyKey, s.now(), opts...)
	if err != nil {
		if errors.Is(err, domain.ErrCartBusy) {
			return s.rejectInFlight(req.CartID), nil
		}
		return nil, fmt.Errorf("begin checkout attempt: %w", err)
	}

	switch res {
	case repository.Busy:
		s.logger.InfoContext(ctx, "checkout rejected, another attempt is active on the cart",
			slog.String("cart_id", req.CartID),
			slog.String("active_attempt_id", a.ID),
		)
		return s.rejectInFlight(req.CartID), nil
	case repository.Existing:
		if a.State.IsTerminal() {
			return domain.NewOutcome(a), nil
		}
		return s.awaitInFlight(ctx, a)
	}

	s.logger.InfoContext(ctx, "checkout attempt started",
		slog.String("attempt_id", a.ID),
		slog.String("cart_id", a.CartID),
	)

	// The saga must not be abandoned halfway when the client goes away.
	final, err := s.driveTracked(context.WithoutCancel(ctx), a, req.Attachment, req.ExpectedVersion)
	if err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			return s.awaitInFlight(ctx, final)
		}
		return nil, err
	}
	return domain.NewOutcome(final), nil
}

// Resume re-drives a non-terminal attempt from its persisted state. A PENDING
// attempt that carried an attachment cannot be re-run and is rejected.
func (s *CheckoutService) Resume(ctx context.Context, a *domain.Attempt) (*domain.CheckoutOutcome, error) {
	if a.State.IsTerminal() {
		return domain.NewOutcome(a), nil
	}
	s.logger.InfoContext(ctx, "resuming checkout attempt",
		slog.String("attempt_id", a.ID),
		slog.String("state", string(a.State)),
		slog.Int("retry_count", a.RetryCount),
	)
	attemptsResumed.Inc()

	final, err := s.driveTracked(ctx, a, nil, nil)
	if err != nil {
		return nil, err
	}
	return domain.NewOutcome(final), nil
}

// Wait blocks until every drive started by Checkout or Resume has returned,
// or ctx is done. Callers stop accepting new checkouts first.
func (s *CheckoutService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight checkouts: %w", ctx.Err())
	}
}

// GetOutcome returns the stored outcome for a cart and idempotency key.
func (s *CheckoutService) GetOutcome(ctx context.Context, cartID, key string) (*domain.CheckoutOutcome, error) {
	a, err := s.ledger.GetByKey(ctx, cartID, key)
	if err != nil {
		return nil, err
	}
	return domain.NewOutcome(a), nil
}

// GetAttempt returns the full attempt record.
func (s *CheckoutService) GetAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	return s.ledger.Get(ctx, attemptID)
}

func validateCheckoutRequest(req CheckoutRequest) error {
	if req.CartID == "" {
		return apperrors.InvalidInput("cart id is required")
	}
	if req.IdempotencyKey == "" {
		return apperrors.InvalidInput("idempotency key is required")
	}
	if len(req.IdempotencyKey) > MaxIdempotencyKeyLength {
		return apperrors.InvalidInput(fmt.Sprintf("idempotency key must not exceed %d characters", MaxIdempotencyKeyLength))
	}
	if req.Attachment != nil && len(req.Attachment.Data) == 0 {
		return apperrors.InvalidInput("attachment must not be empty")
	}
	return nil
}

func (s *CheckoutService) rejectInFlight(cartID string) *domain.CheckoutOutcome {
	checkoutOutcomes.WithLabelValues(string(domain.StateRejected), string(domain.CauseDuplicateInFlight)).Inc()
	return domain.Rejection(cartID, domain.CauseDuplicateInFlight)
}

// awaitInFlight polls the ledger until the attempt is terminal or the
// in-flight wait runs out.
func (s *CheckoutService) awaitInFlight(ctx context.Context, a *domain.Attempt) (*domain.CheckoutOutcome, error) {
	polls := int(s.cfg.InFlightWait / s.cfg.InFlightPoll)
	for i := 0; ; i++ {
		current, err := s.ledger.Get(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("poll checkout attempt: %w", err)
		}
		if current.State.IsTerminal() {
			return domain.NewOutcome(current), nil
		}
		if i >= polls {
			s.logger.InfoContext(ctx, "checkout still in flight for key",
				slog.String("attempt_id", a.ID),
				slog.String("state", string(current.State)),
			)
			return s.rejectInFlight(a.CartID), nil
		}
		if err := s.sleep(ctx, s.cfg.InFlightPoll); err != nil {
			return nil, err
		}
	}
}

func (s *CheckoutService) driveTracked(ctx context.Context, a *domain.Attempt, att *Attachment, expectedVersion *int64) (*domain.Attempt, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()
	return s.drive(ctx, a, att, expectedVersion)
}

// drive advances an attempt from whatever state it is in until it is terminal.
func (s *CheckoutService) drive(ctx context.Context, a *domain.Attempt, att *Attachment, expectedVersion *int64) (*domain.Attempt, error) {
	var err error

	if a.State == domain.StatePending {
		if a, err = s.preflight(ctx, a, att, expectedVersion); err != nil {
			return a, err
		}
	}
	if a.State == domain.StateAuthorizing {
		if a, err = s.authorize(ctx, a); err != nil {
			return a, err
		}
	}
	if a.State == domain.StateAuthorized || a.State == domain.StateCapturing {
		if a, err = s.capture(ctx, a); err != nil {
			return a, err
		}
	}
	if a.State == domain.StateCompensating {
		if a, err = s.compensate(ctx, a); err != nil {
			return a, err
		}
	}

	s.finish(ctx, a)
	return a, nil
}

func (s *CheckoutService) move(ctx context.Context, a *domain.Attempt, next domain.AttemptState, patch domain.AttemptPatch) (*domain.Attempt, error) {
	updated, err := s.ledger.Transition(ctx, a, next, patch)
	if err != nil {
		return a, fmt.Errorf("transition attempt %s %s -> %s: %w", a.ID, a.State, next, err)
	}
	s.logger.DebugContext(ctx, "checkout attempt transitioned",
		slog.String("attempt_id", a.ID),
		slog.String("from", string(a.State)),
		slog.String("to", string(next)),
		slog.Int64("revision", updated.Revision),
	)
	return updated, nil
}

func (s *CheckoutService) reject(ctx context.Context, a *domain.Attempt, cause domain.Cause, reason string) (*domain.Attempt, error) {
	s.logger.InfoContext(ctx, "checkout rejected",
		slog.String("attempt_id", a.ID),
		slog.String("cause", string(cause)),
		slog.String("reason", reason),
	)
	return s.move(ctx, a, domain.StateRejected, domain.AttemptPatch{
		Cause:     domain.Ptr(cause),
		LastError: domain.Ptr(reason),
	})
}

func (s *CheckoutService) readCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.CartWriteTimeout)
	defer cancel()
	return s.carts.Get(rctx, cartID)
}

// pin records the locked cart version together with the line fingerprint
// and total the payment is taken for.
func pin(cart *domain.Cart) domain.AttemptPatch {
	return domain.AttemptPatch{
		CartVersion:      domain.Ptr(cart.Version),
		ItemsFingerprint: domain.Ptr(cart.Fingerprint()),
		Amount:           domain.Ptr(cart.TotalAmount()),
		Currency:         domain.Ptr(cart.Currency),
	}
}

// preflight validates the cart, locks it to the attempt, stores the
// attachment and pins the amount.
func (s *CheckoutService) preflight(ctx context.Context, a *domain.Attempt, att *Attachment, expectedVersion *int64) (*domain.Attempt, error) {
	cart, err := s.readCart(ctx, a.CartID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return s.reject(ctx, a, domain.CauseCartNotFound, "cart not found")
		}
		return a, fmt.Errorf("read cart for checkout: %w", err)
	}

	// An earlier drive locked the cart and stopped before recording it.
	if cart.LockedBy(a.ID) {
		if a.AttachmentRequired {
			if err := s.releaseCart(ctx, a); err != nil {
				return a, err
			}
			return s.reject(ctx, a, domain.CauseAttachmentFailure, "attachment was not persisted before the attempt stalled")
		}
		return s.move(ctx, a, domain.StateAuthorizing, pin(cart))
	}

	switch {
	case !cart.IsOpen():
		return s.reject(ctx, a, domain.CauseCartNotOpen, fmt.Sprintf("cart status is %s", cart.Status))
	case len(cart.Items) == 0:
		return s.reject(ctx, a, domain.CauseEmptyCart, "cart has no items")
	case expectedVersion != nil && *expectedVersion != cart.Version:
		return s.reject(ctx, a, domain.CauseStaleCartVersion,
			fmt.Sprintf("cart is at version %d, expected %d", cart.Version, *expectedVersion))
	case a.AttachmentRequired && att == nil:
		return s.reject(ctx, a, domain.CauseAttachmentFailure, "attachment was not persisted before the attempt stalled")
	}

	locked, err := s.lockCart(ctx, a, cart.Version)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrVersionConflict):
			return s.reject(ctx, a, domain.CauseStaleCartVersion, "cart changed while checkout was starting")
		case apperrors.IsNotFound(err):
			return s.reject(ctx, a, domain.CauseCartNotFound, "cart not found")
		case errors.Is(err, apperrors.ErrConflict):
			return s.reject(ctx, a, domain.CauseCartNotOpen, err.Error())
		}
		return a, fmt.Errorf("lock cart for checkout: %w", err)
	}
	patch := pin(locked)

	if att != nil {
		mctx, cancel := context.WithTimeout(ctx, s.cfg.MediaTimeout)
		ref, err := s.media.Store(mctx, att.Data, att.Name)
		cancel()
		if err != nil {
			if rerr := s.releaseCart(ctx, a); rerr != nil {
				return a, rerr
			}
			return s.reject(ctx, a, domain.CauseAttachmentFailure, err.Error())
		}
		patch.AttachmentRef = domain.Ptr(ref.ID)
	}

	return s.move(ctx, a, domain.StateAuthorizing, patch)
}

// lockCart moves an OPEN cart to CHECKOUT_IN_PROGRESS on behalf of the
// attempt. Cart edits are refused until the lock is released or settled.
func (s *CheckoutService) lockCart(ctx context.Context, a *domain.Attempt, version int64) (*domain.Cart, error) {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.CartWriteTimeout)
	defer cancel()

	locked, err := s.carts.CompareAndSwap(wctx, a.CartID, version, func(c *domain.Cart) error {
		if !c.IsOpen() {
			return apperrors.Conflict(fmt.Sprintf("cart status is %s", c.Status))
		}
		c.Status = domain.CartCheckoutInProgress
		c.CheckoutAttemptID = domain.Ptr(a.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "cart locked for checkout",
		slog.String("attempt_id", a.ID),
		slog.String("cart_id", a.CartID),
		slog.Int64("version", locked.Version),
	)
	return locked, nil
}

// releaseCart reopens a cart locked by the attempt. A cart held by nobody,
// or by someone else, is left as it is.
func (s *CheckoutService) releaseCart(ctx context.Context, a *domain.Attempt) error {
	retry := s.cfg.Retry.start()
	for {
		err := s.tryRelease(ctx, a)
		if err == nil {
			return nil
		}
		if !retry.record() {
			return fmt.Errorf("release cart %s: %w", a.CartID, err)
		}

		delay := retry.next()
		s.logger.InfoContext(ctx, "retrying cart release",
			slog.String("attempt_id", a.ID),
			slog.Duration("delay", delay),
			slog.String("reason", err.Error()),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (s *CheckoutService) tryRelease(ctx context.Context, a *domain.Attempt) error {
	cart, err := s.readCart(ctx, a.CartID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !cart.LockedBy(a.ID) {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, s.cfg.CartWriteTimeout)
	defer cancel()
	_, err = s.carts.CompareAndSwap(wctx, a.CartID, cart.Version, func(c *domain.Cart) error {
		c.Status = domain.CartOpen
		c.CheckoutAttemptID = nil
		return nil
	})
	return err
}

func (s *CheckoutService) authorize(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	retry := s.cfg.Retry.start()
	for {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
		res := s.payments.Authorize(pctx, paymentclient.AuthorizeRequest{
			Amount:    a.Amount,
			Currency:  a.Currency,
			Reference: a.ID,
		})
		cancel()

		switch res.Status {
		case paymentclient.Authorized:
			return s.move(ctx, a, domain.StateAuthorized, domain.AttemptPatch{PaymentRef: domain.Ptr(res.Ref)})
		case paymentclient.Declined:
			return s.move(ctx, a, domain.StateCompensating, domain.AttemptPatch{
				Cause:     domain.Ptr(domain.CausePaymentDeclined),
				LastError: domain.Ptr(res.Reason),
			})
		}

		// The hold may exist even though no answer arrived; compensation
		// looks it up by reference.
		if !retry.record() {
			return s.move(ctx, a, domain.StateCompensating, domain.AttemptPatch{
				Cause:     domain.Ptr(domain.CausePaymentUnavailable),
				LastError: domain.Ptr(res.Reason),
			})
		}

		var err error
		if a, err = s.retryStep(ctx, a, "authorize", res.Reason, retry); err != nil {
			return a, err
		}
	}
}

func (s *CheckoutService) capture(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	var err error
	if a.PaymentRef == nil {
		return s.move(ctx, a, domain.StateCompensating, domain.AttemptPatch{
			Cause:     domain.Ptr(domain.CauseCaptureFailed),
			LastError: domain.Ptr("authorized attempt has no payment reference"),
		})
	}
	if a.State == domain.StateAuthorized {
		if a, err = s.move(ctx, a, domain.StateCapturing, domain.AttemptPatch{}); err != nil {
			return a, err
		}
	}

	if !a.Captured {
		retry := s.cfg.Retry.start()
	capture:
		for {
			pctx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
			res := s.payments.Capture(pctx, *a.PaymentRef)
			cancel()

			switch res.Status {
			case paymentclient.Captured:
				if a, err = s.move(ctx, a, domain.StateCapturing, domain.AttemptPatch{Captured: domain.Ptr(true)}); err != nil {
					return a, err
				}
				break capture
			case paymentclient.CaptureFailed:
				return s.move(ctx, a, domain.StateCompensating, domain.AttemptPatch{
					Cause:     domain.Ptr(domain.CauseCaptureFailed),
					LastError: domain.Ptr(res.Reason),
				})
			}

			if !retry.record() {
				return s.move(ctx, a, domain.StateCompensating, domain.AttemptPatch{
					Cause:     domain.Ptr(domain.CausePaymentUnavailable),
					LastError: domain.Ptr(res.Reason),
				})
			}
			if a, err = s.retryStep(ctx, a, "capture", res.Reason, retry); err != nil {
				return a, err
			}
		}
	}

	return s.writeCart(ctx, a)
}

// cartDivergence explains why a cart no longer matches the captured payment,
// or returns "" when it still does.
func cartDivergence(a *domain.Attempt, c *domain.Cart) string {
	switch {
	case !c.LockedBy(a.ID):
		return fmt.Sprintf("cart is %s and no longer held by this checkout", c.Status)
	case a.ItemsFingerprint != "" && c.Fingerprint() != a.ItemsFingerprint:
		return "cart lines changed after the amount was pinned"
	case c.TotalAmount() != a.Amount:
		return fmt.Sprintf("cart total %d differs from captured %d", c.TotalAmount(), a.Amount)
	}
	return ""
}

// writeCart marks the locked cart settled. Payment is never re-run from
// here: a cart that cannot be written, or that no longer matches what was
// captured, ends as SETTLED with the reconciliation flag.
func (s *CheckoutService) writeCart(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	expected := a.CartVersion
	retry := s.cfg.Retry.start()

	for {
		wctx, cancel := context.WithTimeout(ctx, s.cfg.CartWriteTimeout)
		settled, err := s.carts.CompareAndSwap(wctx, a.CartID, expected, func(c *domain.Cart) error {
			if reason := cartDivergence(a, c); reason != "" {
				return fmt.Errorf("%s: %w", reason, errCartDiverged)
			}
			c.Status = domain.CartSettled
			if a.AttachmentRef != nil {
				c.AttachmentRef = domain.Ptr(*a.AttachmentRef)
			}
			return nil
		})
		cancel()
		if err == nil {
			return s.settle(ctx, a, settled)
		}
		if errors.Is(err, errCartDiverged) {
			return s.settleForReconciliation(ctx, a, err.Error())
		}

		if errors.Is(err, domain.ErrVersionConflict) {
			s.logger.WarnContext(ctx, "cart version moved after payment capture",
				slog.String("attempt_id", a.ID),
				slog.String("cart_id", a.CartID),
				slog.Int64("expected_version", expected),
			)

			fresh, gerr := s.readCart(ctx, a.CartID)
			if gerr != nil {
				err = fmt.Errorf("re-read cart: %w", gerr)
			} else if fresh.SettledBy(a.ID) {
				// An earlier drive of this attempt already wrote the cart.
				return s.settle(ctx, a, fresh)
			} else if reason := cartDivergence(a, fresh); reason != "" {
				return s.settleForReconciliation(ctx, a, reason)
			} else {
				expected = fresh.Version
			}
		}

		if !retry.record() {
			return s.settleForReconciliation(ctx, a, err.Error())
		}
		if a, err = s.retryStep(ctx, a, "cart_write", err.Error(), retry); err != nil {
			return a, err
		}
	}
}

// settle records the order snapshot and then the terminal state. The order
// ID is the attempt ID, so a snapshot left by an earlier drive is reused.
func (s *CheckoutService) settle(ctx context.Context, a *domain.Attempt, cart *domain.Cart) (*domain.Attempt, error) {
	order := domain.NewOrder(a, cart, s.now())
	retry := s.cfg.Retry.start()

	for {
		octx, cancel := context.WithTimeout(ctx, s.cfg.CartWriteTimeout)
		err := s.orders.Create(octx, order)
		cancel()
		if err == nil || errors.Is(err, apperrors.ErrAlreadyExists) {
			break
		}

		if !retry.record() {
			return a, fmt.Errorf("record order for attempt %s: %w", a.ID, err)
		}
		if a, err = s.retryStep(ctx, a, "order_write", err.Error(), retry); err != nil {
			return a, err
		}
	}

	s.logger.InfoContext(ctx, "order recorded",
		slog.String("order_id", order.ID),
		slog.String("cart_id", order.CartID),
		slog.Int64("total_amount", order.TotalAmount),
	)
	return s.move(ctx, a, domain.StateSettled, domain.AttemptPatch{})
}

// settleForReconciliation ends a captured attempt whose cart could not be
// settled. The cart keeps its lock so nobody edits it before an operator
// looks at it, and no order is recorded.
func (s *CheckoutService) settleForReconciliation(ctx context.Context, a *domain.Attempt, reason string) (*domain.Attempt, error) {
	s.logger.WarnContext(ctx, "captured payment does not match the cart",
		slog.String("attempt_id", a.ID),
		slog.String("cart_id", a.CartID),
		slog.String("reason", reason),
		slog.Bool("reconciliation", true),
	)
	return s.move(ctx, a, domain.StateSettled, domain.AttemptPatch{
		Cause:               domain.Ptr(domain.CauseCartWriteFailed),
		NeedsReconciliation: domain.Ptr(true),
		LastError:           domain.Ptr(reason),
	})
}

// compensate reopens the cart, voids the authorization if there is one and
// fails the attempt with the cause recorded when it entered COMPENSATING.
func (s *CheckoutService) compensate(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	if err := s.releaseCart(ctx, a); err != nil {
		return a, err
	}

	if a.PaymentRef == nil && a.CauseOrEmpty() == domain.CausePaymentUnavailable {
		var err error
		if a, err = s.findHold(ctx, a); err != nil || a.State.IsTerminal() {
			return a, err
		}
	}
	if a.PaymentRef == nil {
		return s.move(ctx, a, domain.StateFailed, domain.AttemptPatch{})
	}

	retry := s.cfg.Retry.start()
	for {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
		res := s.payments.Void(pctx, *a.PaymentRef)
		cancel()

		switch res.Status {
		case paymentclient.Voided:
			return s.move(ctx, a, domain.StateFailed, domain.AttemptPatch{Voided: domain.Ptr(true)})
		case paymentclient.VoidRejected:
			return s.failForReconciliation(ctx, a, res.Reason)
		}

		if !retry.record() {
			return s.failForReconciliation(ctx, a, res.Reason)
		}
		var err error
		if a, err = s.retryStep(ctx, a, "void", res.Reason, retry); err != nil {
			return a, err
		}
	}
}

// findHold asks the payment service whether an authorize whose answer was
// lost left a hold under the attempt ID. A live hold is recorded on the
// attempt so it can be voided. When the question cannot be answered the
// attempt fails with the reconciliation flag.
func (s *CheckoutService) findHold(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	retry := s.cfg.Retry.start()
	for {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
		res := s.payments.Lookup(pctx, a.ID)
		cancel()

		switch res.Status {
		case paymentclient.NotFound:
			return a, nil
		case paymentclient.Found:
			switch res.Payment.Status {
			case paymentStatusAuthorized:
				s.logger.InfoContext(ctx, "found authorization left by an unanswered authorize",
					slog.String("attempt_id", a.ID),
					slog.String("payment_ref", res.Payment.ID),
				)
				return s.move(ctx, a, domain.StateCompensating, domain.AttemptPatch{PaymentRef: domain.Ptr(res.Payment.ID)})
			case paymentStatusCaptured:
				return s.failForReconciliation(ctx, a,
					fmt.Sprintf("payment %s is captured but the checkout never authorized it", res.Payment.ID))
			}
			return a, nil
		}

		if !retry.record() {
			return s.failForReconciliation(ctx, a, "authorization state unknown: "+res.Reason)
		}
		var err error
		if a, err = s.retryStep(ctx, a, "lookup", res.Reason, retry); err != nil {
			return a, err
		}
	}
}

// Payment states reported by a lookup.
const (
	paymentStatusAuthorized = "AUTHORIZED"
	paymentStatusCaptured   = "CAPTURED"
)

func (s *CheckoutService) failForReconciliation(ctx context.Context, a *domain.Attempt, reason string) (*domain.Attempt, error) {
	ref := a.ID
	if a.PaymentRef != nil {
		ref = *a.PaymentRef
	}
	s.logger.WarnContext(ctx, "payment needs manual reconciliation",
		slog.String("attempt_id", a.ID),
		slog.String("payment_ref", ref),
		slog.String("reason", reason),
		slog.Bool("reconciliation", true),
	)
	return s.move(ctx, a, domain.StateFailed, domain.AttemptPatch{
		NeedsReconciliation: domain.Ptr(true),
		LastError:           domain.Ptr(reason),
	})
}

// retryStep persists a retry as a self-transition, then waits out the backoff.
func (s *CheckoutService) retryStep(ctx context.Context, a *domain.Attempt, step, reason string, retry *stepRetry) (*domain.Attempt, error) {
	a, err := s.move(ctx, a, a.State, domain.AttemptPatch{
		IncrementRetry: true,
		LastError:      domain.Ptr(reason),
	})
	if err != nil {
		return a, err
	}
	paymentRetries.WithLabelValues(step).Inc()

	delay := retry.next()
	s.logger.InfoContext(ctx, "retrying checkout step",
		slog.String("attempt_id", a.ID),
		slog.String("step", step),
		slog.Int("retry_count", a.RetryCount),
		slog.Duration("delay", delay),
		slog.String("reason", reason),
	)
	if err := s.sleep(ctx, delay); err != nil {
		return a, err
	}
	return a, nil
}

// finish records metrics and publishes the terminal event.
func (s *CheckoutService) finish(ctx context.Context, a *domain.Attempt) {
	if !a.State.IsTerminal() {
		return
	}
	checkoutOutcomes.WithLabelValues(string(a.State), string(a.CauseOrEmpty())).Inc()
	if a.NeedsReconciliation {
		reconciliationNeeded.Inc()
	}

	s.logger.InfoContext(ctx, "checkout attempt finished",
		slog.String("attempt_id", a.ID),
		slog.String("cart_id", a.CartID),
		slog.String("state", string(a.State)),
		slog.String("cause", string(a.CauseOrEmpty())),
		slog.Bool("needs_reconciliation", a.NeedsReconciliation),
		slog.Int("retry_count", a.RetryCount),
	)

	if err := s.producer.PublishCheckoutOutcome(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout outcome",
			slog.String("attempt_id", a.ID),
			slog.String("error", err.Error()),
		)
	}
}
