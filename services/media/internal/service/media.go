package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/media/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/media/internal/event"
	"github.com/utafrali/CommerceCheckout/services/media/internal/repository"
	"github.com/utafrali/CommerceCheckout/services/media/internal/storage"
)

// MediaService stores content-addressed objects and their metadata.
type MediaService struct {
	repo     repository.MediaRepository
	storage  storage.Storage
	producer *event.Producer
	limits   Limits
	logger   *slog.Logger
	now      func() time.Time
}

// NewMediaService creates a new media service.
func NewMediaService(
	repo repository.MediaRepository,
	store storage.Storage,
	producer *event.Producer,
	limits Limits,
	logger *slog.Logger,
) *MediaService {
	return &MediaService{
		repo:     repo,
		storage:  store,
		producer: producer,
		limits:   limits,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StoreInput holds one upload.
type StoreInput struct {
	Namespace string
	Owner     string
	FileName  string
	Data      []byte
}

// Store persists the bytes under <namespace>/<owner>/<sha256><ext>. The
// same bytes for the same owner always yield the same record; created is
// false when the record already existed.
func (s *MediaService) Store(ctx context.Context, input *StoreInput) (_ *domain.Media, created bool, _ error) {
	if !domain.IsValidSegment(input.Namespace) {
		return nil, false, apperrors.InvalidInput("namespace must be 1-64 letters, digits, '-' or '_'")
	}
	if !domain.IsValidSegment(input.Owner) {
		return nil, false, apperrors.InvalidInput("owner must be 1-64 letters, digits, '-' or '_'")
	}
	size := int64(len(input.Data))
	if err := s.limits.ValidateSize(size); err != nil {
		return nil, false, err
	}

	contentType, ext := Sniff(input.Data)
	if err := s.limits.ValidateContentType(contentType); err != nil {
		return nil, false, err
	}

	sum := sha256.Sum256(input.Data)
	checksum := hex.EncodeToString(sum[:])
	key := path.Join(input.Namespace, input.Owner, checksum+ext)

	existing, err := s.repo.GetByKey(ctx, key)
	switch {
	case err == nil:
		return s.withURL(existing), false, nil
	case !apperrors.IsNotFound(err):
		return nil, false, fmt.Errorf("get media by key: %w", err)
	}

	if err := s.storage.Put(ctx, &storage.PutInput{
		Key:         key,
		ContentType: contentType,
		Size:        size,
		Data:        bytes.NewReader(input.Data),
	}); err != nil {
		return nil, false, fmt.Errorf("put object: %w", err)
	}

	media := &domain.Media{
		ID:          uuid.New().String(),
		Namespace:   input.Namespace,
		Owner:       input.Owner,
		Key:         key,
		FileName:    baseName(input.FileName),
		ContentType: contentType,
		Size:        size,
		Checksum:    checksum,
		CreatedAt:   s.now(),
	}

	// The object stays in place when the insert fails: the key is content
	// addressed and a retry reuses it.
	if err := s.repo.Create(ctx, media); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			winner, getErr := s.repo.GetByKey(ctx, key)
			if getErr != nil {
				return nil, false, fmt.Errorf("get media by key: %w", getErr)
			}
			return s.withURL(winner), false, nil
		}
		return nil, false, fmt.Errorf("create media record: %w", err)
	}

	if err := s.producer.PublishMediaStored(ctx, media); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish media.stored event",
			slog.String("media_id", media.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "media stored",
		slog.String("media_id", media.ID),
		slog.String("key", media.Key),
		slog.String("content_type", media.ContentType),
		slog.Int64("size", media.Size),
	)
	return s.withURL(media), true, nil
}

// GetMedia retrieves a media record by its ID.
func (s *MediaService) GetMedia(ctx context.Context, id string) (*domain.Media, error) {
	media, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withURL(media), nil
}

// OpenContent returns the record and a reader over its bytes. The caller
// closes the reader.
func (s *MediaService) OpenContent(ctx context.Context, id string) (*domain.Media, io.ReadCloser, error) {
	media, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Get(ctx, media.Key)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			s.logger.ErrorContext(ctx, "media record without object",
				slog.String("media_id", media.ID),
				slog.String("key", media.Key),
			)
			return nil, nil, apperrors.NotFound("media content", id)
		}
		return nil, nil, fmt.Errorf("open object: %w", err)
	}
	return media, rc, nil
}

func (s *MediaService) withURL(m *domain.Media) *domain.Media {
	m.URL = s.storage.URL(m.Key)
	return m
}

// baseName keeps only the last element of a client-supplied file name.
func baseName(name string) string {
	if name == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}
