// Package minio implements storage.Storage on an S3-compatible object store.
package minio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/utafrali/CommerceCheckout/pkg/database"
	"github.com/utafrali/CommerceCheckout/services/media/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/media/internal/storage"
)

// Config holds the object store connection settings.
type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	Secure       bool
	CreateBucket bool
	// PublicBaseURL prefixes object URLs. Empty disables URLs.
	PublicBaseURL string
}

// Storage stores objects in a single bucket.
type Storage struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// New connects to the object store and optionally creates the bucket.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &Storage{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}

	if cfg.CreateBucket {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
			}
			logger.Info("created bucket", slog.String("bucket", cfg.Bucket))
		}
	}
	return s, nil
}

// Put uploads the object unless the key already exists. Keys are content
// addressed, so a concurrent writer of the same key writes identical bytes.
func (s *Storage) Put(ctx context.Context, input *storage.PutInput) (err error) {
	exists, err := s.Exists(ctx, input.Key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	ctx, end := database.TraceCommand(ctx, "s3", "PutObject")
	defer func() { end(err) }()

	_, err = s.client.PutObject(ctx, s.bucket, input.Key, input.Data, input.Size, minio.PutObjectOptions{
		ContentType: input.ContentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", input.Key, err)
	}
	return nil
}

// Exists stats the object.
func (s *Storage) Exists(ctx context.Context, key string) (_ bool, err error) {
	ctx, end := database.TraceCommand(ctx, "s3", "StatObject")
	defer func() { end(err) }()

	_, err = s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	return true, nil
}

// Get opens the object. The stat round trip surfaces a missing key before
// the caller starts writing a response.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, domain.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return obj, nil
}

// URL returns <base>/<bucket>/<key>.
func (s *Storage) URL(key string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "/" + s.bucket + "/" + key
}

// Ping checks that the bucket is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

var _ storage.Storage = (*Storage)(nil)
