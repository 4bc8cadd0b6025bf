// Package memory is an in-process media metadata store for development and tests.
package memory

import (
	"context"
	"sync"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/media/internal/domain"
)

// MediaRepository keeps records in maps guarded by a read-write mutex.
type MediaRepository struct {
	mu    sync.RWMutex
	byID  map[string]domain.Media
	byKey map[string]string
}

// NewMediaRepository creates an empty store.
func NewMediaRepository() *MediaRepository {
	return &MediaRepository{
		byID:  make(map[string]domain.Media),
		byKey: make(map[string]string),
	}
}

// Create inserts a record unless its key is taken.
func (r *MediaRepository) Create(_ context.Context, m *domain.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[m.Key]; ok {
		return apperrors.AlreadyExists("media", "key", m.Key)
	}
	r.byID[m.ID] = *m
	r.byKey[m.Key] = m.ID
	return nil
}

// GetByID retrieves a record by ID.
func (r *MediaRepository) GetByID(_ context.Context, id string) (*domain.Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("media", id)
	}
	return &m, nil
}

// GetByKey retrieves a record by object key.
func (r *MediaRepository) GetByKey(ctx context.Context, key string) (*domain.Media, error) {
	r.mu.RLock()
	id, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("media", key)
	}
	return r.GetByID(ctx, id)
}
