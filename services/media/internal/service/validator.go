package service

import (
	"fmt"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
)

// Limits bounds what the service accepts.
type Limits struct {
	MaxFileSize int64
	// AllowedContentTypes is matched against the sniffed type. Empty allows
	// every type.
	AllowedContentTypes []string
}

// ValidateSize rejects empty uploads and uploads above MaxFileSize.
func (l Limits) ValidateSize(size int64) error {
	if size <= 0 {
		return apperrors.InvalidInput("file is empty")
	}
	if l.MaxFileSize > 0 && size > l.MaxFileSize {
		return apperrors.TooLarge(fmt.Sprintf("file size %d exceeds limit of %d bytes", size, l.MaxFileSize))
	}
	return nil
}

// ValidateContentType rejects types outside the allowlist.
func (l Limits) ValidateContentType(contentType string) error {
	if len(l.AllowedContentTypes) == 0 {
		return nil
	}
	for _, allowed := range l.AllowedContentTypes {
		if NormalizeContentType(allowed) == contentType {
			return nil
		}
	}
	return apperrors.InvalidInput(fmt.Sprintf("content type %q is not allowed", contentType))
}
