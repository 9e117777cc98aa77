// Package services holds the business logic of the storage gateway: the
// upload/delete orchestration and the quota admission engine.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dkarpov/filevault/internal/common"
	"github.com/dkarpov/filevault/internal/dbx"
	"github.com/dkarpov/filevault/internal/filex"
	"github.com/dkarpov/filevault/internal/logging"
	"github.com/dkarpov/filevault/internal/mimex"
	"github.com/dkarpov/filevault/internal/server/models"
	"github.com/dkarpov/filevault/internal/server/repositories/files"
	"github.com/dkarpov/filevault/internal/server/repositories/repomanager"
)

const (
	defaultContentType = "application/octet-stream"
	maxPageSize        = 100
	statsCacheSize     = 4096

	// Budget for compensating object-store calls that must run even after
	// the caller's context is gone.
	cleanupTimeout = 30 * time.Second
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_uploads_total",
		Help: "Upload attempts by outcome.",
	}, []string{"status"})

	deletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filevault_deletes_total",
		Help: "Successful metadata deletions.",
	})

	orphanedObjectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filevault_orphaned_objects_total",
		Help: "Objects left behind in storage after a failed best-effort delete.",
	})
)

// ObjectStore is the remote blob backend as the gateway sees it. All
// operations are idempotent at the key level.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Upload is one inbound upload request, already stripped of any transport
// detail.
type Upload struct {
	Filename    string
	ContentType string
	// SizeBytes is the declared size; the stored record uses the actual
	// payload length.
	SizeBytes int64
	Content   []byte
}

// ListQuery bounds a listing request. ContentType and Search are mutually
// exclusive filters; Search wins when both are set.
type ListQuery struct {
	Page        int
	Size        int
	ContentType string
	Search      string
}

// FileService orchestrates uploads, deletions, listings and download links.
//
// Atomicity policy: on upload the metadata row is written first, inside the
// same transaction that holds the quota lock; the object bytes go second. A
// failed object write aborts the transaction, so a metadata row never
// outlives its bytes. On delete the metadata row goes first and object
// removal is best effort — an orphaned object is unreachable and harmless,
// a dangling metadata row is not.
type FileService struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	store     ObjectStore
	quota     *QuotaService
	validator *mimex.Validator

	maxFileSizeBytes int64
	presignExpiry    time.Duration

	// statsCache is display-only, mirroring the usage cache in QuotaService.
	statsCache *expirable.LRU[int64, models.FileStats]

	logger logging.Logger
}

// NewFileService wires the gateway. statsTTL bounds how stale the display
// stats may get.
func NewFileService(
	db *sql.DB,
	rm repomanager.RepositoryManager,
	store ObjectStore,
	quota *QuotaService,
	validator *mimex.Validator,
	maxFileSizeBytes int64,
	presignExpiry time.Duration,
	statsTTL time.Duration,
	logger logging.Logger,
) (*FileService, error) {
	if maxFileSizeBytes <= 0 {
		return nil, fmt.Errorf("max file size must be positive, got %d", maxFileSizeBytes)
	}
	return &FileService{
		db:               db,
		rm:               rm,
		store:            store,
		quota:            quota,
		validator:        validator,
		maxFileSizeBytes: maxFileSizeBytes,
		presignExpiry:    presignExpiry,
		statsCache:       expirable.NewLRU[int64, models.FileStats](statsCacheSize, nil, statsTTL),
		logger:           logger.With("component", "gateway"),
	}, nil
}

// Upload validates, admits against quota and persists one file. See the
// FileService doc for the ordering contract.
func (s *FileService) Upload(ctx context.Context, ownerID int64, up Upload) (models.FileDTO, error) {
	if up.SizeBytes > s.maxFileSizeBytes || int64(len(up.Content)) > s.maxFileSizeBytes {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return models.FileDTO{}, fmt.Errorf("%w: limit %d bytes", common.ErrFileTooLarge, s.maxFileSizeBytes)
	}
	if len(up.Content) == 0 {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return models.FileDTO{}, common.ErrEmptyFile
	}
	size := int64(len(up.Content))

	contentType := strings.TrimSpace(up.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	if err := s.validator.Validate(contentType); err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return models.FileDTO{}, err
	}

	rawName := up.Filename
	if strings.TrimSpace(rawName) == "" {
		rawName = fmt.Sprintf("file_%d", time.Now().UnixMilli())
	}
	filename, err := filex.Sanitize(rawName)
	if err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return models.FileDTO{}, err
	}

	var created *models.File
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Files(tx)

		// Advisory duplicate check; the unique index is the backstop when
		// two identical names race past it.
		exists, err := repo.ExistsByOwnerAndFilename(ctx, ownerID, filename)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", common.ErrDuplicateFilename, filename)
		}

		// Locks every file row of the owner until this transaction ends.
		if err := s.quota.CheckWithLock(ctx, repo, ownerID, size); err != nil {
			return err
		}

		key := objectKey(ownerID, filename)

		created, err = repo.Create(ctx, &models.File{
			OwnerID:     ownerID,
			Filename:    filename,
			ObjectKey:   key,
			SizeBytes:   size,
			ContentType: contentType,
		})
		if err != nil {
			return err
		}

		// Object write goes last. Returning its error aborts the metadata
		// transaction, so the row never outlives the bytes. The backend has
		// no transaction to join; a partially written object is compensated
		// below and, at worst, becomes a reclaimable orphan.
		if err := s.store.Put(ctx, key, up.Content, contentType); err != nil {
			s.logger.Error(ctx, "object write failed, aborting upload",
				"owner_id", ownerID, "key", key, "error", err.Error())
			s.compensateObject(ctx, key)
			return err
		}
		return nil
	})
	if err != nil {
		status := "failed"
		if isCallerError(err) {
			status = "rejected"
		}
		uploadsTotal.WithLabelValues(status).Inc()
		return models.FileDTO{}, err
	}

	s.invalidateDisplayCaches(ownerID)
	uploadsTotal.WithLabelValues("accepted").Inc()
	s.logger.Info(ctx, "file uploaded",
		"owner_id", ownerID, "file_id", created.ID, "filename", filename, "size", size)
	return created.DTO(), nil
}

// Delete removes one file. Success is defined by the metadata row being
// gone; object-store failures afterwards are logged, counted and swallowed.
func (s *FileService) Delete(ctx context.Context, ownerID, fileID int64) error {
	repo := s.rm.Files(s.db)

	file, err := repo.GetByIDAndOwner(ctx, fileID, ownerID)
	if err != nil {
		return err
	}

	if err := repo.DeleteByIDAndOwner(ctx, fileID, ownerID); err != nil {
		return err
	}
	deletesTotal.Inc()
	s.invalidateDisplayCaches(ownerID)

	s.deleteObjects(ctx, file)
	s.logger.Info(ctx, "file deleted", "owner_id", ownerID, "file_id", fileID, "filename", file.Filename)
	return nil
}

// DeleteAllForOwner tears down every file of an owner (account deletion).
// Metadata rows go first; object deletions are best effort and partial
// failures do not stop the remaining work.
func (s *FileService) DeleteAllForOwner(ctx context.Context, ownerID int64) (models.BulkDeleteResult, error) {
	repo := s.rm.Files(s.db)

	all, err := repo.ListAllByOwner(ctx, ownerID)
	if err != nil {
		return models.BulkDeleteResult{}, err
	}

	var result models.BulkDeleteResult
	for _, file := range all {
		if err := repo.DeleteByIDAndOwner(ctx, file.ID, ownerID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				// Raced with a single delete; nothing left to clean up.
				continue
			}
			s.invalidateDisplayCaches(ownerID)
			s.logger.Error(ctx, "account teardown aborted on metadata delete",
				"owner_id", ownerID, "file_id", file.ID, "error", err.Error())
			return result, fmt.Errorf("deleting file %d: %w", file.ID, err)
		}
		result.DBDeleted++
		deletesTotal.Inc()

		if s.deleteObjects(ctx, file) {
			result.ObjectsDeleted++
		} else {
			result.ObjectFailures++
		}
	}

	s.invalidateDisplayCaches(ownerID)
	s.logger.Info(ctx, "account files deleted",
		"owner_id", ownerID, "db_deleted", result.DBDeleted,
		"objects_deleted", result.ObjectsDeleted, "object_failures", result.ObjectFailures)
	return result, nil
}

// List returns one page of the owner's files, dispatching on the optional
// filters.
func (s *FileService) List(ctx context.Context, ownerID int64, q ListQuery) (models.FilePage, error) {
	if q.Page < 0 || q.Size <= 0 || q.Size > maxPageSize {
		return models.FilePage{}, fmt.Errorf("%w: page=%d size=%d", common.ErrInvalidPagination, q.Page, q.Size)
	}

	repo := s.rm.Files(s.db)
	params := files.ListParams{Page: q.Page, Size: q.Size}

	var (
		result []*models.File
		total  int64
		err    error
	)
	switch {
	case strings.TrimSpace(q.Search) != "":
		result, total, err = repo.SearchByFilename(ctx, ownerID, strings.TrimSpace(q.Search), params)
	case strings.TrimSpace(q.ContentType) != "":
		result, total, err = repo.ListByOwnerAndContentType(ctx, ownerID, strings.TrimSpace(q.ContentType), params)
	default:
		result, total, err = repo.ListByOwner(ctx, ownerID, params)
	}
	if err != nil {
		return models.FilePage{}, err
	}

	page := models.FilePage{
		Files:      make([]models.FileDTO, 0, len(result)),
		TotalCount: total,
		Page:       q.Page,
		Size:       q.Size,
	}
	for _, f := range result {
		page.Files = append(page.Files, f.DTO())
	}
	return page, nil
}

// Stats returns file count and aggregate size for display, cached briefly.
func (s *FileService) Stats(ctx context.Context, ownerID int64) (models.FileStats, error) {
	if stats, ok := s.statsCache.Get(ownerID); ok {
		return stats, nil
	}

	repo := s.rm.Files(s.db)
	count, err := repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return models.FileStats{}, err
	}
	size, err := repo.TotalSizeByOwner(ctx, ownerID)
	if err != nil {
		return models.FileStats{}, err
	}

	stats := models.FileStats{FileCount: count, TotalSizeBytes: size}
	s.statsCache.Add(ownerID, stats)
	return stats, nil
}

// StorageUsage reports quota consumption for display.
func (s *FileService) StorageUsage(ctx context.Context, ownerID int64) (models.StorageUsage, error) {
	return s.quota.UsageInfo(ctx, ownerID)
}

// DownloadURL returns a presigned, time-limited download link for the file.
func (s *FileService) DownloadURL(ctx context.Context, ownerID, fileID int64) (string, error) {
	repo := s.rm.Files(s.db)

	file, err := repo.GetByIDAndOwner(ctx, fileID, ownerID)
	if err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, file.ObjectKey, s.presignExpiry)
}

// deleteObjects best-effort removes the primary object and the thumbnail.
// Runs detached from the caller's context: the user-visible delete already
// happened, and cancellation must not stop the cleanup. Reports whether all
// removals succeeded.
func (s *FileService) deleteObjects(ctx context.Context, file *models.File) bool {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	ok := true
	keys := []string{file.ObjectKey}
	if file.ThumbnailObjectKey != "" {
		keys = append(keys, file.ThumbnailObjectKey)
	}
	for _, key := range keys {
		if err := s.store.Delete(cleanupCtx, key); err != nil {
			orphanedObjectsTotal.Inc()
			s.logger.Warn(cleanupCtx, "object delete failed, leaving orphan",
				"key", key, "error", err.Error())
			ok = false
		}
	}
	return ok
}

// compensateObject removes a possibly-written object after a failed upload,
// detached from caller cancellation.
func (s *FileService) compensateObject(ctx context.Context, key string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.store.Delete(cleanupCtx, key); err != nil {
		orphanedObjectsTotal.Inc()
		s.logger.Warn(cleanupCtx, "upload compensation failed, leaving orphan",
			"key", key, "error", err.Error())
	}
}

func (s *FileService) invalidateDisplayCaches(ownerID int64) {
	s.quota.InvalidateUsage(ownerID)
	s.statsCache.Remove(ownerID)
}

// objectKey derives the storage key; the uuid component makes it globally
// unique regardless of filename reuse.
func objectKey(ownerID int64, filename string) string {
	return fmt.Sprintf("users/%d/files/%s-%s", ownerID, uuid.New(), filename)
}

// isCallerError separates deterministic rejections from infrastructure
// failures for metrics.
func isCallerError(err error) bool {
	for _, target := range []error{
		common.ErrDuplicateFilename,
		common.ErrQuotaExceeded,
		common.ErrFileTooLarge,
		common.ErrEmptyFile,
		common.ErrInvalidFilename,
		common.ErrUnsupportedContentType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
