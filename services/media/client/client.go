// Package client is the typed HTTP client for the media service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/pkg/httpclient"
)

// ErrStorageFailure wraps every failed Store call. The media service either
// rejected the bytes or could not be reached in time.
var ErrStorageFailure = errors.New("media storage failure")

// MediaReference identifies a stored object. It never changes once issued.
type MediaReference struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
}

// Config holds the client settings. Namespace and Owner scope every object
// stored through this client.
type Config struct {
	BaseURL   string
	Namespace string
	Owner     string
	Timeout   time.Duration
}

// Client calls the media service.
type Client struct {
	doer   httpclient.Doer
	cfg    Config
	logger *slog.Logger
}

// New creates a media client.
func New(cfg Config, doer httpclient.Doer, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{doer: doer, cfg: cfg, logger: logger}
}

// Store uploads data once. There is no retry; any failure, including a
// timeout, is returned wrapped in ErrStorageFailure.
func (c *Client) Store(ctx context.Context, data []byte, declaredName string) (*MediaReference, error) {
	ref, err := c.store(ctx, data, declaredName)
	if err != nil {
		c.logger.WarnContext(ctx, "media store failed",
			slog.String("declared_name", declaredName),
			slog.Int("size", len(data)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return ref, nil
}

func (c *Client) store(ctx context.Context, data []byte, declaredName string) (*MediaReference, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, contentType, err := encodeUpload(data, declaredName, c.cfg.Namespace, c.cfg.Owner)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/media", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, httpclient.ParseResponseError(resp, "media-service")
	}
	defer resp.Body.Close()

	var envelope struct {
		Data MediaReference `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode media reference: %w", err)
	}
	if envelope.Data.ID == "" || envelope.Data.Key == "" {
		return nil, apperrors.Internal(errors.New("media service returned an empty reference"))
	}
	return &envelope.Data, nil
}

func encodeUpload(data []byte, name, namespace, owner string) (*bytes.Buffer, string, error) {
	if name == "" {
		name = "attachment"
	}
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if err := mw.WriteField("namespace", namespace); err != nil {
		return nil, "", fmt.Errorf("write namespace: %w", err)
	}
	if err := mw.WriteField("owner", owner); err != nil {
		return nil, "", fmt.Errorf("write owner: %w", err)
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}
