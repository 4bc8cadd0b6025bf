package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/CommerceCheckout/pkg/httputil"
	"github.com/utafrali/CommerceCheckout/pkg/validator"
	"github.com/utafrali/CommerceCheckout/services/payment/internal/service"
)

// PaymentHandler handles HTTP requests for payment endpoints.
type PaymentHandler struct {
	service *service.PaymentService
	logger  *slog.Logger
}

// NewPaymentHandler creates a new payment HTTP handler.
func NewPaymentHandler(svc *service.PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: svc,
		logger:  logger,
	}
}

// BalanceResponse is the body of the balance endpoints.
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// --- Handlers ---

// Authorize handles POST /api/v1/payments/authorize.
// A new hold answers 201, a replayed reference 200, a decline 402.
func (h *PaymentHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req service.AuthorizeInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	payment, created, err := h.service.Authorize(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteData(w, status, payment)
}

// GetPayment handles GET /api/v1/payments/{id}.
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, payment)
}

// GetPaymentByReference handles GET /api/v1/payments/by-reference/{reference}.
func (h *PaymentHandler) GetPaymentByReference(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.GetPaymentByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, payment)
}

// Capture handles POST /api/v1/payments/{id}/capture.
func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.Capture(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, payment)
}

// Void handles POST /api/v1/payments/{id}/void.
func (h *PaymentHandler) Void(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.Void(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, payment)
}

// Balance handles GET /api/v1/payments/balance.
func (h *PaymentHandler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.Balance(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, BalanceResponse{Balance: balance})
}

// Deposit handles POST /api/v1/payments/deposit.
func (h *PaymentHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req service.DepositInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	balance, err := h.service.Deposit(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, BalanceResponse{Balance: balance})
}
