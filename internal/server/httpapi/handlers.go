package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dkarpov/filevault/internal/common"
	"github.com/dkarpov/filevault/internal/server/models"
	"github.com/dkarpov/filevault/internal/server/services"
)

const (
	defaultPageSize = 20

	// Slack on top of the file-size limit for multipart framing.
	multipartOverhead = 1 << 20
)

// FileGateway is the service surface the HTTP layer needs. Implemented by
// services.FileService.
type FileGateway interface {
	Upload(ctx context.Context, ownerID int64, up services.Upload) (models.FileDTO, error)
	Delete(ctx context.Context, ownerID, fileID int64) error
	DeleteAllForOwner(ctx context.Context, ownerID int64) (models.BulkDeleteResult, error)
	List(ctx context.Context, ownerID int64, q services.ListQuery) (models.FilePage, error)
	Stats(ctx context.Context, ownerID int64) (models.FileStats, error)
	StorageUsage(ctx context.Context, ownerID int64) (models.StorageUsage, error)
	DownloadURL(ctx context.Context, ownerID, fileID int64) (string, error)
}

type handlers struct {
	gw           FileGateway
	maxBodyBytes int64
}

// upload accepts one multipart file under the "file" field.
func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, common.ErrFileTooLarge)
			return
		}
		writeErrorStatus(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, common.ErrFileTooLarge)
			return
		}
		writeErrorStatus(w, http.StatusBadRequest, "reading upload body failed")
		return
	}

	dto, err := h.gw.Upload(r.Context(), ownerID, services.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		SizeBytes:   header.Size,
		Content:     content,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto)
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerIDFromContext(r.Context())

	q := services.ListQuery{
		Page:        0,
		Size:        defaultPageSize,
		ContentType: r.URL.Query().Get("contentType"),
		Search:      r.URL.Query().Get("search"),
	}
	var err error
	if raw := r.URL.Query().Get("page"); raw != "" {
		if q.Page, err = strconv.Atoi(raw); err != nil {
			writeError(w, common.ErrInvalidPagination)
			return
		}
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		if q.Size, err = strconv.Atoi(raw); err != nil {
			writeError(w, common.ErrInvalidPagination)
			return
		}
	}

	page, err := h.gw.List(r.Context(), ownerID, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gw.Stats(r.Context(), ownerIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) storageUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.gw.StorageUsage(r.Context(), ownerIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r)
	if err != nil {
		writeError(w, common.ErrNotFound)
		return
	}

	url, err := h.gw.DownloadURL(r.Context(), ownerIDFromContext(r.Context()), fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *handlers) deleteOne(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathID(r)
	if err != nil {
		writeError(w, common.ErrNotFound)
		return
	}

	if err := h.gw.Delete(r.Context(), ownerIDFromContext(r.Context()), fileID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) deleteAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.gw.DeleteAllForOwner(r.Context(), ownerIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`

	UsedBytes      int64 `json:"usedBytes,omitempty"`
	MaxBytes       int64 `json:"maxBytes,omitempty"`
	AttemptedBytes int64 `json:"attemptedBytes,omitempty"`
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps domain errors onto HTTP statuses. Quota rejections carry
// the usage numbers so clients can render an actionable message.
func writeError(w http.ResponseWriter, err error) {
	var qe *common.QuotaExceededError
	if errors.As(err, &qe) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error:          qe.Error(),
			UsedBytes:      qe.UsedBytes,
			MaxBytes:       qe.MaxBytes,
			AttemptedBytes: qe.AttemptedBytes,
		})
		return
	}

	switch {
	case errors.Is(err, common.ErrNotFound):
		writeErrorStatus(w, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrDuplicateFilename):
		writeErrorStatus(w, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrFileTooLarge), errors.Is(err, common.ErrQuotaExceeded):
		writeErrorStatus(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, common.ErrEmptyFile),
		errors.Is(err, common.ErrInvalidFilename),
		errors.Is(err, common.ErrUnsupportedContentType),
		errors.Is(err, common.ErrInvalidPagination):
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrStorageUnavailable):
		writeErrorStatus(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeErrorStatus(w, http.StatusInternalServerError, "internal error")
	}
}
