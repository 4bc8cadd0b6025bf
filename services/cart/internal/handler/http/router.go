package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/CommerceCheckout/pkg/health"
	"github.com/utafrali/CommerceCheckout/pkg/middleware"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/service"
)

// RouterConfig carries the pieces of the router that vary per deployment.
type RouterConfig struct {
	// MaxAttachmentBytes bounds checkout attachments.
	MaxAttachmentBytes int64
	// CheckoutLimiter guards checkout ingress. Nil disables it.
	CheckoutLimiter func(http.Handler) http.Handler
	CORS            middleware.CORSConfig
}

// NewRouter creates a chi router with all cart service routes registered.
func NewRouter(
	cartService *service.CartService,
	checkoutService *service.CheckoutService,
	orderService *service.OrderService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("cart"))
	r.Use(middleware.Tracing("cart"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	cartHandler := NewCartHandler(cartService, logger)
	checkoutHandler := NewCheckoutHandler(checkoutService, logger, cfg.MaxAttachmentBytes)
	orderHandler := NewOrderHandler(orderService, logger)

	limiter := cfg.CheckoutLimiter
	if limiter == nil {
		limiter = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api/v1/carts", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)

			r.Post("/", cartHandler.CreateCart)
			r.Get("/{id}", cartHandler.GetCart)
			r.Post("/{id}/items", cartHandler.AddItem)
			r.Put("/{id}/items/{productId}", cartHandler.UpdateItemQuantity)
			r.Delete("/{id}/items/{productId}", cartHandler.RemoveItem)
		})

		r.Get("/{id}/checkout/availability", cartHandler.CheckoutAvailability)
		r.With(limiter, middleware.RequireContentType("application/json", "multipart/form-data")).
			Post("/{id}/checkout", checkoutHandler.Checkout)
		r.Get("/{id}/checkout/{key}", checkoutHandler.GetOutcome)
	})

	r.Get("/api/v1/checkout/attempts/{attemptId}", checkoutHandler.GetAttempt)

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/", orderHandler.ListOrders)
		r.Get("/{id}", orderHandler.GetOrder)
	})

	return r
}
