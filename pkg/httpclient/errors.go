package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/sony/gobreaker/v2"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
)

// DownstreamErrorResponse mirrors the httputil error envelope so structured
// errors from sibling services can be decoded.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// translates it into an AppError that preserves the downstream code.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := "", string(body)
	var downstream DownstreamErrorResponse
	if json.Unmarshal(body, &downstream) == nil && downstream.Error != nil {
		code, message = downstream.Error.Code, downstream.Error.Message
	}
	return mapDownstreamError(resp.StatusCode, code, message, serviceName)
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualified := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return &apperrors.AppError{Code: "NOT_FOUND", Message: qualified, Status: status, Err: apperrors.ErrNotFound}
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusRequestEntityTooLarge:
		return apperrors.TooLarge(qualified)
	case status == http.StatusConflict:
		return &apperrors.AppError{Code: orDefault(code, "CONFLICT"), Message: qualified, Status: status, Err: apperrors.ErrConflict}
	case status == http.StatusPaymentRequired, status == http.StatusUnprocessableEntity:
		return &apperrors.AppError{Code: orDefault(code, "PAYMENT_DECLINED"), Message: qualified, Status: status, Err: apperrors.ErrPaymentDeclined}
	case status == http.StatusTooManyRequests, status >= 500:
		return &apperrors.AppError{Code: orDefault(code, "SERVICE_UNAVAILABLE"), Message: qualified, Status: http.StatusServiceUnavailable, Err: apperrors.ErrServiceUnavail}
	default:
		return &apperrors.AppError{Code: orDefault(code, "DOWNSTREAM_ERROR"), Message: qualified, Status: status}
	}
}

func orDefault(code, def string) string {
	if code == "" {
		return def
	}
	return code
}

// IsTransient reports whether err from a Doer means the remote side could not
// be reached or did not answer in time. Such failures are safe to retry with
// the same idempotency reference.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, ErrServerError) ||
		errors.Is(err, apperrors.ErrServiceUnavail) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
