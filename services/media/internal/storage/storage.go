// Package storage defines the object store behind the media service. Objects
// are written once and never replaced.
package storage

import (
	"context"
	"io"
)

// Storage stores and serves object bytes.
type Storage interface {
	// Put writes the object. Writing a key that already exists is a no-op.
	Put(ctx context.Context, input *PutInput) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Get opens the object for reading. It returns domain.ErrObjectNotFound
	// for a missing key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// URL returns the public URL for key, or "" when none is configured.
	URL(key string) string
}

// PutInput holds the parameters for writing an object.
type PutInput struct {
	Key         string
	ContentType string
	Size        int64
	Data        io.Reader
}
