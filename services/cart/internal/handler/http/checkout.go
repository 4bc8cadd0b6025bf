package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/pkg/httputil"
	"github.com/utafrali/CommerceCheckout/pkg/logger"
	"github.com/utafrali/CommerceCheckout/pkg/validator"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/domain"
	"github.com/utafrali/CommerceCheckout/services/cart/internal/service"
)

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	service       *service.CheckoutService
	logger        *slog.Logger
	maxAttachment int64
}

// NewCheckoutHandler creates a new checkout HTTP handler. maxAttachment
// bounds the decoded attachment size.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger, maxAttachment int64) *CheckoutHandler {
	return &CheckoutHandler{
		service:       svc,
		logger:        logger,
		maxAttachment: maxAttachment,
	}
}

// --- Request DTOs ---

// CheckoutRequest is the JSON body of POST /api/v1/carts/{id}/checkout.
// The body is optional.
type CheckoutRequest struct {
	ExpectedVersion *int64             `json:"expected_version" validate:"omitempty,gte=1"`
	Attachment      *AttachmentPayload `json:"attachment" validate:"omitempty"`
}

// AttachmentPayload carries a base64-encoded file inside a JSON checkout.
type AttachmentPayload struct {
	Name string `json:"name" validate:"max=255"`
	Data string `json:"data" validate:"required,base64"`
}

// --- Handlers ---

// Checkout handles POST /api/v1/carts/{id}/checkout. The body is JSON or
// multipart/form-data with an "attachment" file part.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	key, err := httputil.IdempotencyKey(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	ctx := logger.WithIdempotencyKey(r.Context(), key)
	r = r.WithContext(ctx)

	req := service.CheckoutRequest{CartID: chi.URLParam(r, "id"), IdempotencyKey: key}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var bodyVersion *int64
	if mediaType == "multipart/form-data" {
		bodyVersion, req.Attachment, err = h.parseMultipart(w, r)
	} else {
		bodyVersion, req.Attachment, err = h.parseJSON(w, r)
	}
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		httputil.WriteValidationError(w, err)
		return
	}

	if req.ExpectedVersion, err = expectedVersion(r, bodyVersion); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	out, err := h.service.Checkout(ctx, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, OutcomeStatus(out.Class), out)
}

// GetOutcome handles GET /api/v1/carts/{id}/checkout/{key}.
func (h *CheckoutHandler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.GetOutcome(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "key"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, out)
}

// GetAttempt handles GET /api/v1/checkout/attempts/{attemptId}.
func (h *CheckoutHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "attemptId"))
	if !ok {
		return
	}
	a, err := h.service.GetAttempt(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, a)
}

// OutcomeStatus maps an outcome class to the response status. The body
// always carries the outcome, including for non-2xx statuses.
func OutcomeStatus(c domain.Class) int {
	switch c {
	case domain.ClassSettled:
		return http.StatusOK
	case domain.ClassRejected:
		return http.StatusConflict
	case domain.ClassDeclined:
		return http.StatusPaymentRequired
	case domain.ClassUnavailable:
		return http.StatusServiceUnavailable
	case domain.ClassReconciliationNeeded, domain.ClassInProgress:
		return http.StatusAccepted
	default:
		return http.StatusUnprocessableEntity
	}
}

func (h *CheckoutHandler) parseJSON(w http.ResponseWriter, r *http.Request) (*int64, *service.Attachment, error) {
	// base64 inflates by 4/3; leave room for the envelope.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxAttachment*4/3+(64<<10))

	var body CheckoutRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("decode request body: %w", err)
	}
	if err := validator.Validate(&body); err != nil {
		return nil, nil, err
	}
	if body.Attachment == nil {
		return body.ExpectedVersion, nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(body.Attachment.Data)
	if err != nil {
		return nil, nil, apperrors.InvalidInput("attachment data must be base64")
	}
	if int64(len(data)) > h.maxAttachment {
		return nil, nil, apperrors.TooLarge(fmt.Sprintf("attachment exceeds %d bytes", h.maxAttachment))
	}
	return body.ExpectedVersion, &service.Attachment{Data: data, Name: body.Attachment.Name}, nil
}

func (h *CheckoutHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (*int64, *service.Attachment, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxAttachment+(1<<20))
	if err := r.ParseMultipartForm(h.maxAttachment); err != nil {
		return nil, nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	var version *int64
	if v := r.FormValue("expected_version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return nil, nil, apperrors.InvalidInput("expected_version must be a positive integer")
		}
		version = &n
	}

	file, header, err := r.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) {
		return version, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read attachment: %w", err)
	}
	defer file.Close()

	if header.Size > h.maxAttachment {
		return nil, nil, apperrors.TooLarge(fmt.Sprintf("attachment exceeds %d bytes", h.maxAttachment))
	}
	data, err := io.ReadAll(io.LimitReader(file, h.maxAttachment+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read attachment: %w", err)
	}
	return version, &service.Attachment{Data: data, Name: header.Filename}, nil
}
