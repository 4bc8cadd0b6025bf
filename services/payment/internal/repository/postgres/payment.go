package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/CommerceCheckout/pkg/database"
	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/payment/internal/domain"
)

const paymentColumns = `id, reference, amount, currency, status, failure_reason, provider_name, provider_ref, created_at, updated_at`

// PaymentRepository implements repository.PaymentRepository using PostgreSQL.
type PaymentRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewPaymentRepository creates a new PostgreSQL-backed payment repository.
func NewPaymentRepository(db database.DBTX) *PaymentRepository {
	return &PaymentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new payment into the database.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) (err error) {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ctx, end := database.TraceQuery(ctx, "CreatePayment", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		p.ID,
		p.Reference,
		p.Amount,
		p.Currency,
		string(p.Status),
		p.FailureReason,
		p.ProviderName,
		p.ProviderRef,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("payment", "reference", p.Reference)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (_ *domain.Payment, err error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetPayment", query)
	defer func() { end(err) }()

	p, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment", id)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// GetByReference retrieves a payment by its idempotency reference.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (_ *domain.Payment, err error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`

	ctx, end := database.TraceQuery(ctx, "GetPaymentByReference", query)
	defer func() { end(err) }()

	p, err := scanPayment(r.db.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment", reference)
		}
		return nil, fmt.Errorf("get payment by reference: %w", err)
	}
	return p, nil
}

// UpdateStatus is a conditional update keyed on the current status.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, from, to domain.Status) (_ *domain.Payment, err error) {
	query := `
		UPDATE payments SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + paymentColumns

	ctx, end := database.TraceQuery(ctx, "UpdatePaymentStatus", query)
	defer func() { end(err) }()

	p, err := scanPayment(r.db.QueryRow(ctx, query, id, string(from), string(to), r.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment %s %s -> %s: %w", id, from, to, domain.ErrStatusChanged)
		}
		return nil, fmt.Errorf("update payment status: %w", err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p      domain.Payment
		status string
	)
	if err := row.Scan(
		&p.ID,
		&p.Reference,
		&p.Amount,
		&p.Currency,
		&status,
		&p.FailureReason,
		&p.ProviderName,
		&p.ProviderRef,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)
	return &p, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
