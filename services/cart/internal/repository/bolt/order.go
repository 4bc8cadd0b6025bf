package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	bolt "github.com/boltdb/bolt"

	"github.com/utafrali/CommerceCheckout/pkg/database"
	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository"
)

// OrderStore implements repository.OrderStore in the ledger's bolt file.
// Orders are stored whole, keyed by ID.
type OrderStore struct {
	db *bolt.DB
}

// Create stores the order unless its ID is already taken.
func (s *OrderStore) Create(ctx context.Context, o *domain.Order) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, end := database.TraceCommand(ctx, "bolt", "orders.create")
	defer func() { end(err) }()

	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", o.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ordersBucket)
		if b.Get([]byte(o.ID)) != nil {
			return apperrors.AlreadyExists("order", "id", o.ID)
		}
		return b.Put([]byte(o.ID), data)
	})
}

// Get retrieves an order by ID.
func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var o domain.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(ordersBucket).Get([]byte(id))
		if v == nil {
			return apperrors.NotFound("order", id)
		}
		return json.Unmarshal(v, &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// List scans the bucket, newest first. Lines are dropped from the page to
// match the PostgreSQL store.
func (s *OrderStore) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var all []domain.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(ordersBucket).ForEach(func(_, v []byte) error {
			var o domain.Order
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			if filter.CartID != nil && o.CartID != *filter.CartID {
				return nil
			}
			o.Items = []domain.OrderItem{}
			all = append(all, o)
			return nil
		})
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	limit, offset := filter.Window()
	page := make([]domain.Order, 0, limit)
	if offset < len(all) {
		page = append(page, all[offset:min(offset+limit, len(all))]...)
	}
	return page, len(all), nil
}
