package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/utafrali/CommerceCheckout/services/media/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/media/internal/storage"
)

type object struct {
	contentType string
	data        []byte
}

// Storage implements storage.Storage in process memory. It is meant for
// tests and local development.
type Storage struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
}

// New creates an in-memory storage. baseURL may be empty.
func New(baseURL string) *Storage {
	return &Storage{
		objects: make(map[string]object),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Put stores the bytes unless the key is already present.
func (s *Storage) Put(_ context.Context, input *storage.PutInput) error {
	data, err := io.ReadAll(input.Data)
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[input.Key]; ok {
		return nil
	}
	s.objects[input.Key] = object{contentType: input.ContentType, data: data}
	return nil
}

// Exists reports whether key is stored.
func (s *Storage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[key]
	return ok, nil
}

// Get returns a reader over a copy of the stored bytes.
func (s *Storage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// URL joins the base URL and the key.
func (s *Storage) URL(key string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "/" + key
}

// Len returns the number of stored objects.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
