package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/CommerceCheckout/pkg/httputil"
	"github.com/utafrali/CommerceCheckout/pkg/validator"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/service"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
type AddItemRequest struct {
	service.ItemInput
	Version *int64 `json:"version" validate:"omitempty,gte=1"`
}

// UpdateQuantityRequest is the JSON request body for updating an item's quantity.
type UpdateQuantityRequest struct {
	Quantity int    `json:"quantity" validate:"gte=0,lte=100"`
	Version  *int64 `json:"version" validate:"omitempty,gte=1"`
}

// --- Handlers ---

// CreateCart handles POST /api/v1/carts.
func (h *CartHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCartInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.service.CreateCart(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writeCart(w, http.StatusCreated, cart)
}

// GetCart handles GET /api/v1/carts/{id}.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.GetCart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

// AddItem handles POST /api/v1/carts/{id}/items.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	version, err := expectedVersion(r, req.Version)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	cart, err := h.service.AddItem(r.Context(), chi.URLParam(r, "id"), version, req.ItemInput)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

// UpdateItemQuantity handles PUT /api/v1/carts/{id}/items/{productId}.
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	version, err := expectedVersion(r, req.Version)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	cart, err := h.service.UpdateItemQuantity(r.Context(), chi.URLParam(r, "id"), version, chi.URLParam(r, "productId"), req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

// RemoveItem handles DELETE /api/v1/carts/{id}/items/{productId}.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	version, err := expectedVersion(r, nil)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	cart, err := h.service.RemoveItem(r.Context(), chi.URLParam(r, "id"), version, chi.URLParam(r, "productId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

// CheckoutAvailability handles GET /api/v1/carts/{id}/checkout/availability.
func (h *CartHandler) CheckoutAvailability(w http.ResponseWriter, r *http.Request) {
	av, err := h.service.CheckoutAvailability(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, av)
}

func writeCart(w http.ResponseWriter, status int, cart *domain.Cart) {
	w.Header().Set("ETag", etag(cart.Version))
	httputil.WriteData(w, status, cart)
}
