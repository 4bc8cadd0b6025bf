package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/CommerceCheckout/pkg/health"
	"github.com/utafrali/CommerceCheckout/pkg/middleware"
	"github.com/utafrali/CommerceCheckout/services/payment/internal/service"
)

// NewRouter creates a chi router with all payment service routes registered.
func NewRouter(
	paymentService *service.PaymentService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("payment"))
	r.Use(middleware.Tracing("payment"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	paymentHandler := NewPaymentHandler(paymentService, logger)

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Post("/authorize", paymentHandler.Authorize)
		r.Get("/balance", paymentHandler.Balance)
		r.Post("/deposit", paymentHandler.Deposit)
		r.Get("/by-reference/{reference}", paymentHandler.GetPaymentByReference)
		r.Get("/{id}", paymentHandler.GetPayment)
		r.Post("/{id}/capture", paymentHandler.Capture)
		r.Post("/{id}/void", paymentHandler.Void)
	})

	return r
}
