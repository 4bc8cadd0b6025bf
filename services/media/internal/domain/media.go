package domain

import (
	"errors"
	"regexp"
	"time"
)

// ContentTypeUnknown is assigned to bytes that match no known signature.
const ContentTypeUnknown = "application/octet-stream"

// DefaultMaxFileSize is the default upload limit in bytes (10 MiB).
const DefaultMaxFileSize int64 = 10 << 20

// DefaultAllowedContentTypes is the allowlist used when none is configured.
var DefaultAllowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
}

// ErrObjectNotFound is returned by object storage for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// segmentPattern restricts namespace and owner to safe key segments.
var segmentPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Media is a stored, immutable object. Key is derived from the namespace,
// the owner and the SHA-256 of the bytes, so identical uploads share it.
type Media struct {
	ID          string    `json:"id"`
	Namespace   string    `json:"namespace"`
	Owner       string    `json:"owner"`
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsValidSegment reports whether s may appear as a namespace or owner.
func IsValidSegment(s string) bool {
	return segmentPattern.MatchString(s)
}
