package repository

import (
	"context"

	"github.com/utafrali/CommerceCheckout/services/media/internal/domain"
)

// MediaRepository persists media metadata. Records are never updated.
type MediaRepository interface {
	// Create inserts a record. It returns ErrAlreadyExists when the key is taken.
	Create(ctx context.Context, media *domain.Media) error

	// GetByID retrieves a record by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Media, error)

	// GetByKey retrieves a record by its object key.
	GetByKey(ctx context.Context, key string) (*domain.Media, error)
}
