package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/CommerceCheckout/pkg/database"
	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository"
)

const attemptColumns = `id, cart_id, idempotency_key, state, cause, cart_version, items_fingerprint, amount, currency,
	payment_ref, attachment_ref, attachment_required, captured, voided, needs_reconciliation,
	retry_count, last_error, revision, created_at, updated_at`

const terminalStates = `('SETTLED', 'FAILED', 'REJECTED')`

// beginRetries bounds the insert/lookup loop when the active attempt that
// blocked an insert finishes before it can be read back.
const beginRetries = 3

// Ledger implements repository.Ledger on PostgreSQL. The partial unique
// index on cart_id over active states enforces one active attempt per cart.
type Ledger struct {
	db  database.DBTX
	now func() time.Time
}

// NewLedger creates a PostgreSQL-backed idempotency ledger.
func NewLedger(db database.DBTX) *Ledger {
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// BeginOrFetch inserts a PENDING attempt or returns whichever row blocked it.
func (l *Ledger) BeginOrFetch(ctx context.Context, cartID, key string, now time.Time, opts ...repository.BeginOption) (_ *domain.Attempt, _ repository.BeginResult, err error) {
	query := `
		INSERT INTO checkout_attempts (id, cart_id, idempotency_key, state, attachment_required, created_at, updated_at)
		VALUES ($1, $2, $3, 'PENDING', $4, $5, $5)
		ON CONFLICT DO NOTHING
		RETURNING ` + attemptColumns

	ctx, end := database.TraceQuery(ctx, "BeginAttempt", query)
	defer func() { end(err) }()

	for i := 0; i < beginRetries; i++ {
		row := repository.NewPendingAttempt(uuid.New().String(), cartID, key, now, opts...)
		a, err := scanAttempt(l.db.QueryRow(ctx, query, row.ID, cartID, key, row.AttachmentRequired, now))
		if err == nil {
			return a, repository.Created, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, fmt.Errorf("insert checkout attempt: %w", err)
		}

		existing, err := l.GetByKey(ctx, cartID, key)
		if err == nil {
			return existing, repository.Existing, nil
		}
		if !apperrors.IsNotFound(err) {
			return nil, 0, err
		}

		active, err := l.activeForCart(ctx, cartID)
		if err == nil {
			return active, repository.Busy, nil
		}
		if !apperrors.IsNotFound(err) {
			return nil, 0, err
		}
	}
	return nil, 0, fmt.Errorf("begin attempt for cart %s: %w", cartID, domain.ErrCartBusy)
}

func (l *Ledger) activeForCart(ctx context.Context, cartID string) (*domain.Attempt, error) {
	query := `SELECT ` + attemptColumns + `
		FROM checkout_attempts
		WHERE cart_id = $1 AND state NOT IN ` + terminalStates

	a, err := scanAttempt(l.db.QueryRow(ctx, query, cartID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("active attempt for cart", cartID)
		}
		return nil, fmt.Errorf("get active attempt: %w", err)
	}
	return a, nil
}

// Transition performs a conditional update keyed on the state and revision
// of from. Every successful write bumps the revision, so two drivers holding
// the same copy cannot both apply a self-transition.
func (l *Ledger) Transition(ctx context.Context, from *domain.Attempt, next domain.AttemptState, p domain.AttemptPatch) (_ *domain.Attempt, err error) {
	if !domain.CanTransition(from.State, next) {
		return nil, fmt.Errorf("%s -> %s: %w", from.State, next, domain.ErrInvalidTransition)
	}

	query := `
		UPDATE checkout_attempts SET
			state = $4,
			cause = COALESCE($5, cause),
			cart_version = COALESCE($6, cart_version),
			items_fingerprint = COALESCE($7, items_fingerprint),
			amount = COALESCE($8, amount),
			currency = COALESCE($9, currency),
			payment_ref = COALESCE($10, payment_ref),
			attachment_ref = COALESCE($11, attachment_ref),
			attachment_required = COALESCE($12, attachment_required),
			captured = COALESCE($13, captured),
			voided = COALESCE($14, voided),
			needs_reconciliation = COALESCE($15, needs_reconciliation),
			last_error = COALESCE($16, last_error),
			retry_count = retry_count + $17,
			revision = revision + 1,
			updated_at = $18
		WHERE id = $1 AND state = $2 AND revision = $3
		RETURNING ` + attemptColumns

	ctx, end := database.TraceQuery(ctx, "TransitionAttempt", query)
	defer func() { end(err) }()

	retryDelta := 0
	if p.IncrementRetry {
		retryDelta = 1
	}

	a, err := scanAttempt(l.db.QueryRow(ctx, query,
		from.ID, string(from.State), from.Revision, string(next),
		causeParam(p.Cause), p.CartVersion, p.ItemsFingerprint, p.Amount, p.Currency,
		p.PaymentRef, p.AttachmentRef, p.AttachmentRequired,
		p.Captured, p.Voided, p.NeedsReconciliation, p.LastError,
		retryDelta, l.now(),
	))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update checkout attempt: %w", err)
	}
	return nil, l.staleError(ctx, from)
}

// Claim bumps the revision of an active attempt so that any other holder of
// the same copy loses its next write. It is the resumer's lease.
func (l *Ledger) Claim(ctx context.Context, a *domain.Attempt) (_ *domain.Attempt, err error) {
	query := `
		UPDATE checkout_attempts SET
			revision = revision + 1,
			updated_at = $3
		WHERE id = $1 AND revision = $2 AND state NOT IN ` + terminalStates + `
		RETURNING ` + attemptColumns

	ctx, end := database.TraceQuery(ctx, "ClaimAttempt", query)
	defer func() { end(err) }()

	claimed, err := scanAttempt(l.db.QueryRow(ctx, query, a.ID, a.Revision, l.now()))
	if err == nil {
		return claimed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim checkout attempt: %w", err)
	}
	return nil, l.staleError(ctx, a)
}

func (l *Ledger) staleError(ctx context.Context, from *domain.Attempt) error {
	var (
		current  string
		revision int64
	)
	err := l.db.QueryRow(ctx, `SELECT state, revision FROM checkout_attempts WHERE id = $1`, from.ID).Scan(&current, &revision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("checkout attempt", from.ID)
		}
		return fmt.Errorf("get attempt state: %w", err)
	}
	return fmt.Errorf("attempt %s is %s at revision %d, expected %s at revision %d: %w",
		from.ID, current, revision, from.State, from.Revision, domain.ErrStaleState)
}

// Get retrieves an attempt by ID.
func (l *Ledger) Get(ctx context.Context, attemptID string) (_ *domain.Attempt, err error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetAttempt", query)
	defer func() { end(err) }()

	a, err := scanAttempt(l.db.QueryRow(ctx, query, attemptID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("checkout attempt", attemptID)
		}
		return nil, fmt.Errorf("get checkout attempt: %w", err)
	}
	return a, nil
}

// GetByKey retrieves the attempt recorded for a cart and idempotency key.
func (l *Ledger) GetByKey(ctx context.Context, cartID, key string) (_ *domain.Attempt, err error) {
	query := `SELECT ` + attemptColumns + `
		FROM checkout_attempts
		WHERE cart_id = $1 AND idempotency_key = $2`

	ctx, end := database.TraceQuery(ctx, "GetAttemptByKey", query)
	defer func() { end(err) }()

	a, err := scanAttempt(l.db.QueryRow(ctx, query, cartID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("checkout attempt", cartID+"/"+key)
		}
		return nil, fmt.Errorf("get checkout attempt by key: %w", err)
	}
	return a, nil
}

// ListResumable returns stale active attempts, oldest first.
func (l *Ledger) ListResumable(ctx context.Context, staleBefore time.Time, limit int) (_ []*domain.Attempt, err error) {
	query := `SELECT ` + attemptColumns + `
		FROM checkout_attempts
		WHERE state NOT IN ` + terminalStates + ` AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`

	ctx, end := database.TraceQuery(ctx, "ListResumableAttempts", query)
	defer func() { end(err) }()

	rows, err := l.db.Query(ctx, query, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list resumable attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// PurgeTerminal deletes terminal attempts older than the cutoff.
func (l *Ledger) PurgeTerminal(ctx context.Context, before time.Time) (_ int64, err error) {
	query := `DELETE FROM checkout_attempts WHERE state IN ` + terminalStates + ` AND updated_at < $1`

	ctx, end := database.TraceQuery(ctx, "PurgeTerminalAttempts", query)
	defer func() { end(err) }()

	tag, err := l.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("purge terminal attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func causeParam(c *domain.Cause) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

func scanAttempt(row pgx.Row) (*domain.Attempt, error) {
	var (
		a     domain.Attempt
		state string
		cause *string
	)
	err := row.Scan(
		&a.ID, &a.CartID, &a.IdempotencyKey, &state, &cause,
		&a.CartVersion, &a.ItemsFingerprint, &a.Amount, &a.Currency,
		&a.PaymentRef, &a.AttachmentRef, &a.AttachmentRequired,
		&a.Captured, &a.Voided, &a.NeedsReconciliation,
		&a.RetryCount, &a.LastError, &a.Revision, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.State = domain.AttemptState(state)
	if cause != nil {
		c := domain.Cause(*cause)
		a.Cause = &c
	}
	return &a, nil
}
