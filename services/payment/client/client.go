// Package client is the typed HTTP client for the payment service. It never
// retries: every call returns exactly one result and the caller owns the
// retry policy. Timeouts, connection errors, 429 and 5xx map to a transient
// result.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/utafrali/CommerceCheckout/pkg/httpclient"
)

// Config holds the client settings.
type Config struct {
	BaseURL string
	// Timeout bounds each call. Zero means 5s.
	Timeout time.Duration
}

// AuthorizeRequest asks the payment service to place a hold. Reference is
// the caller's idempotency reference: repeating it returns the original
// authorization instead of creating a new one.
type AuthorizeRequest struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

// Payment mirrors the payment service's payment representation.
type Payment struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type envelope[T any] struct {
	Data  T `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the payment service.
type Client struct {
	doer    httpclient.Doer
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a payment client. doer is usually a non-retrying
// httpclient.Client behind a CircuitBreakerClient.
func New(cfg Config, doer httpclient.Doer, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{doer: doer, baseURL: cfg.BaseURL, timeout: timeout, logger: logger}
}

// Authorize places a hold for the amount.
func (c *Client) Authorize(ctx context.Context, req AuthorizeRequest) AuthorizeResult {
	resp, err := c.call(ctx, http.MethodPost, "/api/v1/payments/authorize", req)
	if err != nil {
		return AuthorizeResult{Status: AuthorizeTransient, Reason: err.Error()}
	}
	defer drain(resp)

	switch {
	case isSuccess(resp.StatusCode):
		var body envelope[Payment]
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Data.ID == "" {
			// The hold may exist; retrying with the same reference is safe.
			return AuthorizeResult{Status: AuthorizeTransient, Reason: "undecodable authorize response"}
		}
		return AuthorizeResult{Status: Authorized, Ref: body.Data.ID}
	case isTransientStatus(resp.StatusCode):
		return AuthorizeResult{Status: AuthorizeTransient, Reason: statusReason(resp)}
	default:
		return AuthorizeResult{Status: Declined, Reason: errorCode(resp, "declined")}
	}
}

// Capture settles a previously authorized payment.
func (c *Client) Capture(ctx context.Context, ref string) CaptureResult {
	resp, err := c.call(ctx, http.MethodPost, "/api/v1/payments/"+url.PathEscape(ref)+"/capture", nil)
	if err != nil {
		return CaptureResult{Status: CaptureTransient, Reason: err.Error()}
	}
	defer drain(resp)

	switch {
	case isSuccess(resp.StatusCode):
		return CaptureResult{Status: Captured}
	case isTransientStatus(resp.StatusCode):
		return CaptureResult{Status: CaptureTransient, Reason: statusReason(resp)}
	default:
		return CaptureResult{Status: CaptureFailed, Reason: errorCode(resp, "capture_failed")}
	}
}

// Void releases an authorization.
func (c *Client) Void(ctx context.Context, ref string) VoidResult {
	resp, err := c.call(ctx, http.MethodPost, "/api/v1/payments/"+url.PathEscape(ref)+"/void", nil)
	if err != nil {
		return VoidResult{Status: VoidTransient, Reason: err.Error()}
	}
	defer drain(resp)

	switch {
	case isSuccess(resp.StatusCode):
		return VoidResult{Status: Voided}
	case isTransientStatus(resp.StatusCode):
		return VoidResult{Status: VoidTransient, Reason: statusReason(resp)}
	default:
		return VoidResult{Status: VoidRejected, Reason: errorCode(resp, "void_rejected")}
	}
}

// Lookup resolves an authorize reference to the payment it created, if any.
// A 404 is definitive: no hold exists for the reference.
func (c *Client) Lookup(ctx context.Context, reference string) LookupResult {
	resp, err := c.call(ctx, http.MethodGet, "/api/v1/payments/by-reference/"+url.PathEscape(reference), nil)
	if err != nil {
		return LookupResult{Status: LookupTransient, Reason: err.Error()}
	}
	defer drain(resp)

	switch {
	case isSuccess(resp.StatusCode):
		var body envelope[Payment]
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Data.ID == "" {
			return LookupResult{Status: LookupTransient, Reason: "undecodable lookup response"}
		}
		return LookupResult{Status: Found, Payment: body.Data}
	case resp.StatusCode == http.StatusNotFound:
		return LookupResult{Status: NotFound}
	default:
		return LookupResult{Status: LookupTransient, Reason: statusReason(resp)}
	}
}

// Balance returns the account balance in minor units.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	resp, err := c.call(ctx, http.MethodGet, "/api/v1/payments/balance", nil)
	if err != nil {
		return 0, fmt.Errorf("payment balance: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		return 0, httpclient.ParseResponseError(resp, "payment-service")
	}
	defer drain(resp)

	var body envelope[struct {
		Balance int64 `json:"balance"`
	}]
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	return body.Data.Balance, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		cancel()
		c.logger.WarnContext(ctx, "payment call failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Bool("transient", httpclient.IsTransient(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the per-call timeout once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func statusReason(resp *http.Response) string {
	return fmt.Sprintf("payment service returned %d", resp.StatusCode)
}

// errorCode extracts "CODE: message" from the response envelope.
func errorCode(resp *http.Response, fallback string) string {
	var body envelope[json.RawMessage]
	err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	if err != nil || body.Error == nil || body.Error.Code == "" {
		return fallback
	}
	if body.Error.Message == "" {
		return body.Error.Code
	}
	return body.Error.Code + ": " + body.Error.Message
}
