package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/CommerceCheckout/pkg/httputil"
	"github.com/utafrali/CommerceCheckout/pkg/logger"
)

// RequestLogger builds a request-scoped logger carrying correlation_id,
// idempotency_key, trace_id and span_id, and stores it in the context for
// logger.FromContext.
//
// Mount it after RequestLogging and Tracing so both IDs are already present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Only tag well-formed keys; validation errors surface in the handler.
			if key, err := httputil.IdempotencyKey(r); err == nil {
				ctx = logger.WithIdempotencyKey(ctx, key)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
