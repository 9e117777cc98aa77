package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkarpov/filevault/internal/common"
	"github.com/dkarpov/filevault/internal/logging"
	"github.com/dkarpov/filevault/internal/server/auth"
	"github.com/dkarpov/filevault/internal/server/models"
	"github.com/dkarpov/filevault/internal/server/services"
)

var testSecret = []byte("test-secret")

func newDiscardSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway implements FileGateway with per-method function hooks.
type fakeGateway struct {
	uploadFn    func(ctx context.Context, ownerID int64, up services.Upload) (models.FileDTO, error)
	deleteFn    func(ctx context.Context, ownerID, fileID int64) error
	deleteAllFn func(ctx context.Context, ownerID int64) (models.BulkDeleteResult, error)
	listFn      func(ctx context.Context, ownerID int64, q services.ListQuery) (models.FilePage, error)
	statsFn     func(ctx context.Context, ownerID int64) (models.FileStats, error)
	usageFn     func(ctx context.Context, ownerID int64) (models.StorageUsage, error)
	downloadFn  func(ctx context.Context, ownerID, fileID int64) (string, error)
}

func (g *fakeGateway) Upload(ctx context.Context, ownerID int64, up services.Upload) (models.FileDTO, error) {
	return g.uploadFn(ctx, ownerID, up)
}

func (g *fakeGateway) Delete(ctx context.Context, ownerID, fileID int64) error {
	return g.deleteFn(ctx, ownerID, fileID)
}

func (g *fakeGateway) DeleteAllForOwner(ctx context.Context, ownerID int64) (models.BulkDeleteResult, error) {
	return g.deleteAllFn(ctx, ownerID)
}

func (g *fakeGateway) List(ctx context.Context, ownerID int64, q services.ListQuery) (models.FilePage, error) {
	return g.listFn(ctx, ownerID, q)
}

func (g *fakeGateway) Stats(ctx context.Context, ownerID int64) (models.FileStats, error) {
	return g.statsFn(ctx, ownerID)
}

func (g *fakeGateway) StorageUsage(ctx context.Context, ownerID int64) (models.StorageUsage, error) {
	return g.usageFn(ctx, ownerID)
}

func (g *fakeGateway) DownloadURL(ctx context.Context, ownerID, fileID int64) (string, error) {
	return g.downloadFn(ctx, ownerID, fileID)
}

func newTestHandler(t *testing.T, gw FileGateway) http.Handler {
	t.Helper()
	log := logging.NewSlogLogger(newDiscardSlog())
	return NewServer(":0", gw, testSecret, 10<<20, log).httpServer.Handler
}

func authedRequest(t *testing.T, method, target string, body io.Reader) *http.Request {
	t.Helper()
	tok, err := auth.GenerateToken(7, testSecret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func multipartBody(t *testing.T, filename, contentType string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)}
	hdr["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAuth_MissingAndMalformedTokens(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})

	for _, tc := range []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not.a.jwt"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/files/stats", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestHealthzAndMetrics_OpenWithoutToken(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestUpload_Created(t *testing.T) {
	var gotOwner int64
	var gotUpload services.Upload
	gw := &fakeGateway{
		uploadFn: func(_ context.Context, ownerID int64, up services.Upload) (models.FileDTO, error) {
			gotOwner = ownerID
			gotUpload = up
			return models.FileDTO{ID: 42, Filename: up.Filename, SizeBytes: int64(len(up.Content)), ContentType: up.ContentType}, nil
		},
	}
	h := newTestHandler(t, gw)

	body, contentType := multipartBody(t, "report.pdf", "application/pdf", []byte("hello"))
	req := authedRequest(t, http.MethodPost, "/api/files/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(7), gotOwner)
	assert.Equal(t, "report.pdf", gotUpload.Filename)
	assert.Equal(t, "application/pdf", gotUpload.ContentType)
	assert.Equal(t, []byte("hello"), gotUpload.Content)

	var dto models.FileDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, int64(42), dto.ID)
}

func TestUpload_MissingFileField(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	req := authedRequest(t, http.MethodPost, "/api/files/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_QuotaExceededCarriesNumbers(t *testing.T) {
	gw := &fakeGateway{
		uploadFn: func(context.Context, int64, services.Upload) (models.FileDTO, error) {
			return models.FileDTO{}, &common.QuotaExceededError{UsedBytes: 75, MaxBytes: 100, AttemptedBytes: 35}
		},
	}
	h := newTestHandler(t, gw)

	body, contentType := multipartBody(t, "big.pdf", "application/pdf", []byte("x"))
	req := authedRequest(t, http.MethodPost, "/api/files/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(75), resp.UsedBytes)
	assert.Equal(t, int64(100), resp.MaxBytes)
	assert.Equal(t, int64(35), resp.AttemptedBytes)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.ErrNotFound, http.StatusNotFound},
		{common.ErrDuplicateFilename, http.StatusConflict},
		{common.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{common.ErrEmptyFile, http.StatusBadRequest},
		{common.ErrUnsupportedContentType, http.StatusBadRequest},
		{common.ErrInvalidPagination, http.StatusBadRequest},
		{common.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		gw := &fakeGateway{
			statsFn: func(context.Context, int64) (models.FileStats, error) {
				return models.FileStats{}, tt.err
			},
		}
		h := newTestHandler(t, gw)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/files/stats", nil))
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}

func TestList_PassesQueryParams(t *testing.T) {
	var gotQuery services.ListQuery
	gw := &fakeGateway{
		listFn: func(_ context.Context, _ int64, q services.ListQuery) (models.FilePage, error) {
			gotQuery = q
			return models.FilePage{Files: []models.FileDTO{}, Page: q.Page, Size: q.Size}, nil
		},
	}
	h := newTestHandler(t, gw)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/files/?page=2&size=5&contentType=image/*&search=cat", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, gotQuery.Page)
	assert.Equal(t, 5, gotQuery.Size)
	assert.Equal(t, "image/*", gotQuery.ContentType)
	assert.Equal(t, "cat", gotQuery.Search)
}

func TestList_DefaultsAndBadParams(t *testing.T) {
	var gotQuery services.ListQuery
	gw := &fakeGateway{
		listFn: func(_ context.Context, _ int64, q services.ListQuery) (models.FilePage, error) {
			gotQuery = q
			return models.FilePage{}, nil
		},
	}
	h := newTestHandler(t, gw)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/files/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, gotQuery.Page)
	assert.Equal(t, defaultPageSize, gotQuery.Size)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/files/?page=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownload_ReturnsURL(t *testing.T) {
	gw := &fakeGateway{
		downloadFn: func(_ context.Context, ownerID, fileID int64) (string, error) {
			return fmt.Sprintf("https://signed.example/%d/%d", ownerID, fileID), nil
		},
	}
	h := newTestHandler(t, gw)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/files/42/download", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://signed.example/7/42", resp["url"])
}

func TestDelete_NoContent(t *testing.T) {
	var gotFileID int64
	gw := &fakeGateway{
		deleteFn: func(_ context.Context, _, fileID int64) error {
			gotFileID = fileID
			return nil
		},
	}
	h := newTestHandler(t, gw)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodDelete, "/api/files/13", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(13), gotFileID)
}

func TestDelete_NonNumericID(t *testing.T) {
	h := newTestHandler(t, &fakeGateway{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodDelete, "/api/files/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAll_ReturnsTallies(t *testing.T) {
	gw := &fakeGateway{
		deleteAllFn: func(context.Context, int64) (models.BulkDeleteResult, error) {
			return models.BulkDeleteResult{DBDeleted: 3, ObjectsDeleted: 2, ObjectFailures: 1}, nil
		},
	}
	h := newTestHandler(t, gw)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodDelete, "/api/files/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.BulkDeleteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.DBDeleted)
	assert.Equal(t, 2, resp.ObjectsDeleted)
	assert.Equal(t, 1, resp.ObjectFailures)
}

func TestStorageUsage_OK(t *testing.T) {
	gw := &fakeGateway{
		usageFn: func(context.Context, int64) (models.StorageUsage, error) {
			return models.StorageUsage{UsedBytes: 50, MaxBytes: 200, Percentage: 25}, nil
		},
	}
	h := newTestHandler(t, gw)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/files/storage/usage", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.StorageUsage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(50), resp.UsedBytes)
	assert.InDelta(t, 25.0, resp.Percentage, 0.001)
}
