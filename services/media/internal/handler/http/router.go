package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/CommerceCheckout/pkg/health"
	"github.com/utafrali/CommerceCheckout/pkg/middleware"
	"github.com/utafrali/CommerceCheckout/services/media/internal/service"
)

// NewRouter creates a chi router with all media service routes registered.
func NewRouter(
	mediaService *service.MediaService,
	healthHandler *health.Handler,
	maxFileSize int64,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("media"))
	r.Use(middleware.Tracing("media"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	mediaHandler := NewMediaHandler(mediaService, maxFileSize, logger)

	// No update or delete routes: stored objects are immutable.
	r.Route("/api/v1/media", func(r chi.Router) {
		r.With(middleware.RequireContentType("multipart/form-data")).Post("/", mediaHandler.Store)
		r.Get("/{id}", mediaHandler.GetMedia)
		r.Get("/{id}/content", mediaHandler.GetContent)
	})

	return r
}
