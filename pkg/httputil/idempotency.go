package httputil

import (
	"net/http"
	"strings"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
)

// IdempotencyKeyHeader carries the caller-supplied idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 255

// IdempotencyKey returns the trimmed Idempotency-Key header. A missing,
// oversized or non-printable key is an InvalidInput error.
func IdempotencyKey(r *http.Request) (string, error) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		return "", apperrors.InvalidInput(IdempotencyKeyHeader + " header is required")
	}
	if len(key) > maxIdempotencyKeyLen {
		return "", apperrors.InvalidInput(IdempotencyKeyHeader + " header must be at most 255 characters")
	}
	for _, c := range key {
		if c < 0x21 || c > 0x7e {
			return "", apperrors.InvalidInput(IdempotencyKeyHeader + " header must be printable ASCII")
		}
	}
	return key, nil
}
