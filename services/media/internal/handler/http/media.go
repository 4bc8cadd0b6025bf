package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/CommerceCheckout/pkg/errors"
	"github.com/utafrali/CommerceCheckout/pkg/httputil"
	"github.com/utafrali/CommerceCheckout/services/media/internal/service"
)

// MediaHandler handles HTTP requests for media endpoints.
type MediaHandler struct {
	service     *service.MediaService
	maxFileSize int64
	logger      *slog.Logger
}

// NewMediaHandler creates a new media HTTP handler. maxFileSize bounds the
// request body; the service applies the exact limit.
func NewMediaHandler(svc *service.MediaService, maxFileSize int64, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		service:     svc,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// --- Handlers ---

// Store handles POST /api/v1/media (multipart/form-data with the fields
// file, namespace and owner). A new object answers 201, identical bytes
// already stored for the owner answer 200 with the existing record.
func (h *MediaHandler) Store(w http.ResponseWriter, r *http.Request) {
	input, err := h.readUpload(w, r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	media, created, err := h.service.Store(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteData(w, status, media)
}

func (h *MediaHandler) readUpload(w http.ResponseWriter, r *http.Request) (*service.StoreInput, error) {
	// Leave room for the form fields around the file part.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+(1<<20))
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		return nil, h.bodyError(err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, apperrors.InvalidInput("file is required")
	}
	defer file.Close()

	if header.Size > h.maxFileSize {
		return nil, apperrors.TooLarge(fmt.Sprintf("file exceeds %d bytes", h.maxFileSize))
	}
	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return &service.StoreInput{
		Namespace: r.FormValue("namespace"),
		Owner:     r.FormValue("owner"),
		FileName:  header.Filename,
		Data:      data,
	}, nil
}

func (h *MediaHandler) bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.TooLarge(fmt.Sprintf("file exceeds %d bytes", h.maxFileSize))
	}
	return apperrors.InvalidInput("failed to parse multipart form: " + err.Error())
}

// GetMedia handles GET /api/v1/media/{id}.
func (h *MediaHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	media, err := h.service.GetMedia(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, media)
}

// GetContent handles GET /api/v1/media/{id}/content. The response carries
// the sniffed type and forbids the client from sniffing again.
func (h *MediaHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	media, rc, err := h.service.OpenContent(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	defer rc.Close()

	etag := `"` + media.Checksum + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", media.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(media.Size, 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if media.FileName != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", media.FileName))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "media content copy interrupted",
			slog.String("media_id", media.ID),
			slog.String("error", err.Error()),
		)
	}
}
