package http

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
)

// etag renders a cart version as a strong entity tag.
func etag(version int64) string {
	return strconv.Quote(strconv.FormatInt(version, 10))
}

// expectedVersion resolves the version a write is conditioned on. If-Match
// wins over the body; neither present means nil.
func expectedVersion(r *http.Request, body *int64) (*int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return body, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return nil, apperrors.InvalidInput("If-Match must carry a cart version")
	}
	return &v, nil
}
