package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/CommerceCheckout/pkg/database"
	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/media/internal/domain"
)

const mediaColumns = `id, namespace, owner, object_key, file_name, content_type, size, checksum, created_at`

// MediaRepository implements repository.MediaRepository using PostgreSQL.
type MediaRepository struct {
	db database.DBTX
}

// NewMediaRepository creates a new PostgreSQL-backed media repository.
func NewMediaRepository(db database.DBTX) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create inserts a new media record.
func (r *MediaRepository) Create(ctx context.Context, m *domain.Media) (err error) {
	query := `
		INSERT INTO media (` + mediaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	ctx, end := database.TraceQuery(ctx, "CreateMedia", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		m.ID,
		m.Namespace,
		m.Owner,
		m.Key,
		m.FileName,
		m.ContentType,
		m.Size,
		m.Checksum,
		m.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.AlreadyExists("media", "key", m.Key)
		}
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// GetByID retrieves a media record by its ID.
func (r *MediaRepository) GetByID(ctx context.Context, id string) (_ *domain.Media, err error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetMedia", query)
	defer func() { end(err) }()

	m, err := scanMedia(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("media", id)
		}
		return nil, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

// GetByKey retrieves a media record by its object key.
func (r *MediaRepository) GetByKey(ctx context.Context, key string) (_ *domain.Media, err error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE object_key = $1`

	ctx, end := database.TraceQuery(ctx, "GetMediaByKey", query)
	defer func() { end(err) }()

	m, err := scanMedia(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("media", key)
		}
		return nil, fmt.Errorf("get media by key: %w", err)
	}
	return m, nil
}

func scanMedia(row pgx.Row) (*domain.Media, error) {
	var m domain.Media
	if err := row.Scan(
		&m.ID,
		&m.Namespace,
		&m.Owner,
		&m.Key,
		&m.FileName,
		&m.ContentType,
		&m.Size,
		&m.Checksum,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}
