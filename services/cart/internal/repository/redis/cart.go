package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/CommerceCheckout/pkg/database"
	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
)

const keyPrefix = "cart:"

// CartStore implements repository.CartStore on Redis. Compare-and-swap runs
// inside WATCH/MULTI so a concurrent writer aborts the transaction.
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewCartStore creates a Redis-backed cart store. A zero ttl keeps carts forever.
func NewCartStore(client *redis.Client, ttl time.Duration) *CartStore {
	return &CartStore{
		client: client,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func cartKey(id string) string {
	return keyPrefix + id
}

// Get retrieves a cart by ID.
func (s *CartStore) Get(ctx context.Context, cartID string) (_ *domain.Cart, err error) {
	ctx, end := database.TraceCommand(ctx, "redis", "cart.get")
	defer func() { end(err) }()

	data, err := s.client.Get(ctx, cartKey(cartID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", cartID)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}
	return decodeCart(data)
}

// Create stores a new cart at version 1.
func (s *CartStore) Create(ctx context.Context, cart *domain.Cart) (err error) {
	ctx, end := database.TraceCommand(ctx, "redis", "cart.create")
	defer func() { end(err) }()

	cart.Version = 1
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	ok, err := s.client.SetNX(ctx, cartKey(cart.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx cart: %w", err)
	}
	if !ok {
		return apperrors.AlreadyExists("cart", "id", cart.ID)
	}
	return nil
}

// CompareAndSwap applies mutate when the stored version equals expectedVersion.
func (s *CartStore) CompareAndSwap(ctx context.Context, cartID string, expectedVersion int64, mutate func(*domain.Cart) error) (_ *domain.Cart, err error) {
	ctx, end := database.TraceCommand(ctx, "redis", "cart.cas")
	defer func() { end(err) }()

	key := cartKey(cartID)
	var updated *domain.Cart

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperrors.NotFound("cart", cartID)
			}
			return fmt.Errorf("redis get cart: %w", err)
		}

		current, err := decodeCart(data)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("cart %s at version %d, expected %d: %w",
				cartID, current.Version, expectedVersion, domain.ErrVersionConflict)
		}

		next := current.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.Version = current.Version + 1
		next.UpdatedAt = s.now()

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("cart %s modified during write: %w", cartID, domain.ErrVersionConflict)
		}
		return nil, err
	}
	return updated, nil
}

func decodeCart(data []byte) (*domain.Cart, error) {
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &cart, nil
}
