package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/services/media/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/media/internal/event"
	memrepo "github.com/utafrali/CommerceCheckout/services/media/internal/repository/memory"
	"github.com/utafrali/CommerceCheckout/services/media/internal/storage"
	memstorage "github.com/utafrali/CommerceCheckout/services/media/internal/storage/memory"
)

// --- Mocks ---

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Create(ctx context.Context, media *domain.Media) error {
	return m.Called(ctx, media).Error(0)
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*domain.Media, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Media), args.Error(1)
}

func (m *mockRepository) GetByKey(ctx context.Context, key string) (*domain.Media, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Media), args.Error(1)
}

type failingStorage struct {
	storage.Storage
	err error
}

func (f failingStorage) Put(context.Context, *storage.PutInput) error { return f.err }

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testLimits = Limits{MaxFileSize: 1 << 10, AllowedContentTypes: domain.DefaultAllowedContentTypes}

func newTestService() (*MediaService, *memstorage.Storage) {
	store := memstorage.New("http://cdn.local")
	logger := newTestLogger()
	return NewMediaService(memrepo.NewMediaRepository(), store, event.NewProducer(nil, logger), testLimits, logger), store
}

func input(data []byte) *StoreInput {
	return &StoreInput{Namespace: "checkout", Owner: "attachments", FileName: "receipt.png", Data: data}
}

// --- Store ---

func TestStore_ContentAddressed(t *testing.T) {
	svc, store := newTestService()

	m, created, err := svc.Store(context.Background(), input(pngBytes))
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, "image/png", m.ContentType)
	assert.Len(t, m.Checksum, 64)
	assert.Equal(t, "checkout/attachments/"+m.Checksum+".png", m.Key)
	assert.Equal(t, int64(len(pngBytes)), m.Size)
	assert.Equal(t, "http://cdn.local/"+m.Key, m.URL)
	assert.Equal(t, 1, store.Len())
}

func TestStore_SameBytesSameReference(t *testing.T) {
	svc, store := newTestService()

	first, _, err := svc.Store(context.Background(), input(pngBytes))
	require.NoError(t, err)
	second, created, err := svc.Store(context.Background(), &StoreInput{
		Namespace: "checkout", Owner: "attachments", FileName: "other-name.bin", Data: pngBytes,
	})
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, 1, store.Len())
}

func TestStore_OwnersAreSeparate(t *testing.T) {
	svc, _ := newTestService()

	a, _, err := svc.Store(context.Background(), input(pngBytes))
	require.NoError(t, err)
	b, _, err := svc.Store(context.Background(), &StoreInput{Namespace: "checkout", Owner: "other", Data: pngBytes})
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
	assert.Equal(t, a.Checksum, b.Checksum)
}

func TestStore_IgnoresDeclaredName(t *testing.T) {
	svc, _ := newTestService()

	m, _, err := svc.Store(context.Background(), &StoreInput{
		Namespace: "checkout", Owner: "attachments", FileName: `C:\fake\photo.png`, Data: pdfBytes,
	})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", m.ContentType)
	assert.Equal(t, "photo.png", m.FileName)
	assert.True(t, strings.HasSuffix(m.Key, ".pdf"))
}

func TestStore_Rejections(t *testing.T) {
	svc, store := newTestService()

	tests := []struct {
		name string
		in   *StoreInput
		want error
	}{
		{"empty", input(nil), apperrors.ErrInvalidInput},
		{"too large", input(make([]byte, 2<<10)), apperrors.ErrTooLarge},
		{"not allowed", input(binBytes), apperrors.ErrInvalidInput},
		{"bad namespace", &StoreInput{Namespace: "../x", Owner: "o", Data: pngBytes}, apperrors.ErrInvalidInput},
		{"bad owner", &StoreInput{Namespace: "n", Owner: "", Data: pngBytes}, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Store(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, store.Len())
}

func TestStore_StorageFailure(t *testing.T) {
	logger := newTestLogger()
	svc := NewMediaService(memrepo.NewMediaRepository(), failingStorage{err: errors.New("bucket unreachable")},
		event.NewProducer(nil, logger), testLimits, logger)

	_, _, err := svc.Store(context.Background(), input(pngBytes))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
}

func TestStore_LostInsertRaceReturnsWinner(t *testing.T) {
	repo := &mockRepository{}
	logger := newTestLogger()
	svc := NewMediaService(repo, memstorage.New(""), event.NewProducer(nil, logger), testLimits, logger)

	winner := &domain.Media{ID: "winner", Key: "k"}
	repo.On("GetByKey", mock.Anything, mock.Anything).Return(nil, apperrors.NotFound("media", "k")).Once()
	repo.On("Create", mock.Anything, mock.Anything).Return(apperrors.AlreadyExists("media", "key", "k"))
	repo.On("GetByKey", mock.Anything, mock.Anything).Return(winner, nil).Once()

	m, created, err := svc.Store(context.Background(), input(pngBytes))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "winner", m.ID)
	repo.AssertExpectations(t)
}

func TestStore_RepositoryError(t *testing.T) {
	repo := &mockRepository{}
	logger := newTestLogger()
	svc := NewMediaService(repo, memstorage.New(""), event.NewProducer(nil, logger), testLimits, logger)

	repo.On("GetByKey", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, _, err := svc.Store(context.Background(), input(pngBytes))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get media by key")
}

// --- Read ---

func TestGetMediaAndContent(t *testing.T) {
	svc, _ := newTestService()
	m, _, err := svc.Store(context.Background(), input(pngBytes))
	require.NoError(t, err)

	got, err := svc.GetMedia(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Key, got.Key)
	assert.NotEmpty(t, got.URL)

	meta, rc, err := svc.OpenContent(context.Background(), m.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
	assert.Equal(t, "image/png", meta.ContentType)
}

func TestGetMedia_NotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.GetMedia(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
	_, _, err = svc.OpenContent(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestOpenContent_MissingObject(t *testing.T) {
	repo := memrepo.NewMediaRepository()
	logger := newTestLogger()
	svc := NewMediaService(repo, memstorage.New(""), event.NewProducer(nil, logger), testLimits, logger)
	require.NoError(t, repo.Create(context.Background(), &domain.Media{ID: "m1", Key: "gone"}))

	_, _, err := svc.OpenContent(context.Background(), "m1")
	assert.True(t, apperrors.IsNotFound(err))
}
