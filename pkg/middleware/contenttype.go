package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/utafrali/CommerceCheckout/pkg/httputil"
)

// RequireContentType rejects requests that carry a body with a media type
// outside allowed. Parameters such as charset or boundary are ignored. A
// request without a Content-Type header passes so bodiless POSTs work.
func RequireContentType(allowed ...string) func(http.Handler) http.Handler {
	want := strings.Join(allowed, " or ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if carriesBody(r) {
				if ct := r.Header.Get("Content-Type"); ct != "" && !mediaTypeIn(ct, allowed) {
					httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
						Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be " + want},
					})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeJSON is RequireContentType for JSON APIs.
var ContentTypeJSON = RequireContentType("application/json")

func carriesBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return r.ContentLength > 0
}

func mediaTypeIn(header string, allowed []string) bool {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		if mt == a {
			return true
		}
	}
	return false
}
