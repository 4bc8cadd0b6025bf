// Package bolt provides an embedded idempotency ledger for single-node
// deployments and local development.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/utafrali/CommerceCheckout/pkg/database"
	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/repository"
)

var (
	attemptsBucket    = []byte("attempts")
	attemptKeysBucket = []byte("attempt_keys")
	activeCartsBucket = []byte("active_carts")
	ordersBucket      = []byte("orders")
)

// Ledger implements repository.Ledger on BoltDB. Every write runs in a
// single Update transaction, and bolt serialises writers, so the
// active_carts bucket is an exact one-active-attempt-per-cart index.
type Ledger struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the ledger file at path.
func Open(path string) (*Ledger, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt ledger: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{attemptsBucket, attemptKeysBucket, activeCartsBucket, ordersBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger buckets: %w", err)
	}

	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the file lock.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Ping reports whether the database file is still usable.
func (l *Ledger) Ping(context.Context) error {
	return l.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(attemptsBucket) == nil {
			return fmt.Errorf("bolt ledger: attempts bucket missing")
		}
		return nil
	})
}

func pairKey(cartID, key string) []byte {
	return []byte(cartID + "\x00" + key)
}

// BeginOrFetch inserts a PENDING attempt unless the key or the cart is taken.
func (l *Ledger) BeginOrFetch(ctx context.Context, cartID, key string, now time.Time, opts ...repository.BeginOption) (_ *domain.Attempt, _ repository.BeginResult, err error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	_, end := database.TraceCommand(ctx, "bolt", "ledger.begin")
	defer func() { end(err) }()

	var (
		result  *domain.Attempt
		outcome repository.BeginResult
	)
	err = l.db.Update(func(tx *bolt.Tx) error {
		attempts := tx.Bucket(attemptsBucket)
		keys := tx.Bucket(attemptKeysBucket)
		active := tx.Bucket(activeCartsBucket)

		if id := keys.Get(pairKey(cartID, key)); id != nil {
			a, err := getAttempt(attempts, string(id))
			if err != nil {
				return err
			}
			result, outcome = a, repository.Existing
			return nil
		}

		if id := active.Get([]byte(cartID)); id != nil {
			a, err := getAttempt(attempts, string(id))
			if err != nil {
				return err
			}
			result, outcome = a, repository.Busy
			return nil
		}

		a := repository.NewPendingAttempt(uuid.New().String(), cartID, key, now, opts...)
		if err := putAttempt(attempts, a); err != nil {
			return err
		}
		if err := keys.Put(pairKey(cartID, key), []byte(a.ID)); err != nil {
			return err
		}
		if err := active.Put([]byte(cartID), []byte(a.ID)); err != nil {
			return err
		}
		result, outcome = a, repository.Created
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("begin attempt: %w", err)
	}
	return result, outcome, nil
}

// Transition applies the patch when the stored state and revision still
// match from.
func (l *Ledger) Transition(ctx context.Context, from *domain.Attempt, next domain.AttemptState, p domain.AttemptPatch) (_ *domain.Attempt, err error) {
	if !domain.CanTransition(from.State, next) {
		return nil, fmt.Errorf("%s -> %s: %w", from.State, next, domain.ErrInvalidTransition)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, end := database.TraceCommand(ctx, "bolt", "ledger.transition")
	defer func() { end(err) }()

	var updated *domain.Attempt
	err = l.db.Update(func(tx *bolt.Tx) error {
		attempts := tx.Bucket(attemptsBucket)
		current, err := getAttempt(attempts, from.ID)
		if err != nil {
			return err
		}
		if err := checkFresh(current, from); err != nil {
			return err
		}

		updated, err = current.Apply(next, p, l.now())
		if err != nil {
			return err
		}
		if err := putAttempt(attempts, updated); err != nil {
			return err
		}
		if next.IsTerminal() {
			return tx.Bucket(activeCartsBucket).Delete([]byte(updated.CartID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Claim bumps the revision of an active attempt, leaving its state alone.
func (l *Ledger) Claim(ctx context.Context, a *domain.Attempt) (_ *domain.Attempt, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, end := database.TraceCommand(ctx, "bolt", "ledger.claim")
	defer func() { end(err) }()

	var claimed *domain.Attempt
	err = l.db.Update(func(tx *bolt.Tx) error {
		attempts := tx.Bucket(attemptsBucket)
		current, err := getAttempt(attempts, a.ID)
		if err != nil {
			return err
		}
		if current.State.IsTerminal() {
			return fmt.Errorf("attempt %s is %s: %w", a.ID, current.State, domain.ErrStaleState)
		}
		if err := checkFresh(current, a); err != nil {
			return err
		}
		claimed = current.Touch(l.now())
		return putAttempt(attempts, claimed)
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func checkFresh(current, held *domain.Attempt) error {
	if current.State != held.State || current.Revision != held.Revision {
		return fmt.Errorf("attempt %s is %s at revision %d, expected %s at revision %d: %w",
			held.ID, current.State, current.Revision, held.State, held.Revision, domain.ErrStaleState)
	}
	return nil
}

// Orders returns an order store sharing the ledger's database file.
func (l *Ledger) Orders() *OrderStore {
	return &OrderStore{db: l.db}
}

// Get retrieves an attempt by ID.
func (l *Ledger) Get(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var a *domain.Attempt
	err := l.db.View(func(tx *bolt.Tx) error {
		var err error
		a, err = getAttempt(tx.Bucket(attemptsBucket), attemptID)
		return err
	})
	return a, err
}

// GetByKey retrieves the attempt recorded for a cart and idempotency key.
func (l *Ledger) GetByKey(ctx context.Context, cartID, key string) (*domain.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var a *domain.Attempt
	err := l.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(attemptKeysBucket).Get(pairKey(cartID, key))
		if id == nil {
			return apperrors.NotFound("checkout attempt", cartID+"/"+key)
		}
		var err error
		a, err = getAttempt(tx.Bucket(attemptsBucket), string(id))
		return err
	})
	return a, err
}

// ListResumable walks the active_carts index, so the scan is bounded by the
// number of in-flight attempts rather than the history.
func (l *Ledger) ListResumable(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*domain.Attempt
	err := l.db.View(func(tx *bolt.Tx) error {
		attempts := tx.Bucket(attemptsBucket)
		return tx.Bucket(activeCartsBucket).ForEach(func(_, id []byte) error {
			a, err := getAttempt(attempts, string(id))
			if err != nil {
				return err
			}
			if a.UpdatedAt.Before(staleBefore) {
				out = append(out, a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list resumable attempts: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PurgeTerminal deletes terminal attempts older than the cutoff together
// with their key index entries.
func (l *Ledger) PurgeTerminal(ctx context.Context, before time.Time) (_ int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, end := database.TraceCommand(ctx, "bolt", "ledger.purge")
	defer func() { end(err) }()

	var purged int64
	err = l.db.Update(func(tx *bolt.Tx) error {
		attempts := tx.Bucket(attemptsBucket)
		keys := tx.Bucket(attemptKeysBucket)

		var doomed []*domain.Attempt
		err := attempts.ForEach(func(_, v []byte) error {
			var a domain.Attempt
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.State.IsTerminal() && a.UpdatedAt.Before(before) {
				doomed = append(doomed, &a)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, a := range doomed {
			if err := attempts.Delete([]byte(a.ID)); err != nil {
				return err
			}
			if err := keys.Delete(pairKey(a.CartID, a.IdempotencyKey)); err != nil {
				return err
			}
		}
		purged = int64(len(doomed))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge terminal attempts: %w", err)
	}
	return purged, nil
}

func getAttempt(b *bolt.Bucket, id string) (*domain.Attempt, error) {
	v := b.Get([]byte(id))
	if v == nil {
		return nil, apperrors.NotFound("checkout attempt", id)
	}
	var a domain.Attempt
	if err := json.Unmarshal(v, &a); err != nil {
		return nil, fmt.Errorf("decode attempt %s: %w", id, err)
	}
	return &a, nil
}

func putAttempt(b *bolt.Bucket, a *domain.Attempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attempt %s: %w", a.ID, err)
	}
	return b.Put([]byte(a.ID), data)
}
