package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/CommerceCheckout/pkg/database"
	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository"
)

// OrderStore implements repository.OrderStore on PostgreSQL.
type OrderStore struct {
	db database.DBTX
}

// NewOrderStore creates a PostgreSQL-backed order store.
func NewOrderStore(db database.DBTX) *OrderStore {
	return &OrderStore{db: db}
}

// Create inserts the order and its lines in one transaction.
func (s *OrderStore) Create(ctx context.Context, o *domain.Order) (err error) {
	query := `
		INSERT INTO orders (id, cart_id, payment_ref, attachment_ref, total_amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "CreateOrder", query)
	defer func() { end(err) }()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, query,
		o.ID, o.CartID, o.PaymentRef, o.AttachmentRef, o.TotalAmount, o.Currency, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.AlreadyExists("order", "id", o.ID)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, line_no, product_id, name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, itemQuery, o.ID, i+1, it.ProductID, it.Name, it.UnitPrice, it.Quantity); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Get retrieves an order with its lines in a single round trip.
func (s *OrderStore) Get(ctx context.Context, id string) (_ *domain.Order, err error) {
	query := `
		SELECT o.id, o.cart_id, o.payment_ref, o.attachment_ref, o.total_amount, o.currency, o.created_at,
			COALESCE(
				JSONB_AGG(
					JSONB_BUILD_OBJECT(
						'product_id', i.product_id,
						'name', i.name,
						'unit_price', i.unit_price,
						'quantity', i.quantity
					) ORDER BY i.line_no
				) FILTER (WHERE i.order_id IS NOT NULL),
				'[]'::jsonb
			) AS items
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
		WHERE o.id = $1
		GROUP BY o.id`

	ctx, end := database.TraceQuery(ctx, "GetOrder", query)
	defer func() { end(err) }()

	var (
		o         domain.Order
		itemsJSON []byte
	)
	err = s.db.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.CartID, &o.PaymentRef, &o.AttachmentRef, &o.TotalAmount, &o.Currency, &o.CreatedAt,
		&itemsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	o.Items = []domain.OrderItem{}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	}
	return &o, nil
}

// List returns order headers, newest first, with the total match count.
// Lines are left empty; Get loads them.
func (s *OrderStore) List(ctx context.Context, filter repository.OrderFilter) (_ []domain.Order, _ int, err error) {
	limit, offset := filter.Window()
	query := `
		SELECT id, cart_id, payment_ref, attachment_ref, total_amount, currency, created_at,
			count(*) OVER() AS total_count
		FROM orders
		WHERE ($1::text IS NULL OR cart_id = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	ctx, end := database.TraceQuery(ctx, "ListOrders", query)
	defer func() { end(err) }()

	rows, err := s.db.Query(ctx, query, filter.CartID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		total  int
		orders = make([]domain.Order, 0)
	)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID, &o.CartID, &o.PaymentRef, &o.AttachmentRef, &o.TotalAmount, &o.Currency, &o.CreatedAt,
			&total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		o.Items = []domain.OrderItem{}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, total, nil
}
