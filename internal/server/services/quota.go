package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dkarpov/filevault/internal/common"
	"github.com/dkarpov/filevault/internal/logging"
	"github.com/dkarpov/filevault/internal/server/models"
	"github.com/dkarpov/filevault/internal/server/repositories/files"
	"github.com/dkarpov/filevault/internal/server/repositories/repomanager"
)

const usageCacheSize = 4096

var (
	quotaRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filevault_quota_rejections_total",
		Help: "Uploads rejected by the quota admission check.",
	})
	usageCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filevault_usage_cache_hits_total",
		Help: "Storage usage lookups served from the display cache.",
	})
	usageCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filevault_usage_cache_misses_total",
		Help: "Storage usage lookups that went to the database.",
	})
)

// QuotaService admits or rejects prospective uploads against the per-owner
// aggregate size limit. Admission always goes through a locked read inside
// the caller's transaction; the unlocked reads are display-only.
type QuotaService struct {
	db            *sql.DB
	rm            repomanager.RepositoryManager
	maxTotalBytes int64
	// cache serves UsageInfo only. Never consulted for admission.
	cache  *expirable.LRU[int64, models.StorageUsage]
	logger logging.Logger
}

// NewQuotaService validates the configured limit at startup: a zero or
// negative maximum is a configuration error, not something to divide by at
// request time.
func NewQuotaService(db *sql.DB, rm repomanager.RepositoryManager, maxTotalBytes int64, cacheTTL time.Duration, logger logging.Logger) (*QuotaService, error) {
	if maxTotalBytes <= 0 {
		return nil, fmt.Errorf("max total size must be positive, got %d", maxTotalBytes)
	}
	return &QuotaService{
		db:            db,
		rm:            rm,
		maxTotalBytes: maxTotalBytes,
		cache:         expirable.NewLRU[int64, models.StorageUsage](usageCacheSize, nil, cacheTTL),
		logger:        logger.With("component", "quota"),
	}, nil
}

// MaxTotalBytes returns the configured per-owner limit.
func (s *QuotaService) MaxTotalBytes() int64 {
	return s.maxTotalBytes
}

// CheckWithLock is the admission check. repo must be bound to an open
// transaction: the locked aggregate read write-locks every file row of the
// owner, and the caller inserts the new row before that transaction commits,
// so two racing uploads from the same owner serialize on the lock and the
// second one observes the first one's committed size.
func (s *QuotaService) CheckWithLock(ctx context.Context, repo files.Repository, ownerID, sizeBytes int64) error {
	used, err := repo.TotalSizeByOwnerLocked(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("locked usage read: %w", err)
	}

	if used+sizeBytes > s.maxTotalBytes {
		quotaRejectionsTotal.Inc()
		s.logger.Warn(ctx, "storage quota exceeded",
			"owner_id", ownerID, "used", used, "attempted", sizeBytes, "max", s.maxTotalBytes)
		return &common.QuotaExceededError{
			UsedBytes:      used,
			MaxBytes:       s.maxTotalBytes,
			AttemptedBytes: sizeBytes,
		}
	}
	return nil
}

// Usage returns the owner's current aggregate size without locking.
// Display and telemetry only.
func (s *QuotaService) Usage(ctx context.Context, ownerID int64) (int64, error) {
	return s.rm.Files(s.db).TotalSizeByOwner(ctx, ownerID)
}

// UsageInfo returns used/max/percentage for display, served from a short-TTL
// cache. Callers mutate through InvalidateUsage on upload and delete.
func (s *QuotaService) UsageInfo(ctx context.Context, ownerID int64) (models.StorageUsage, error) {
	if usage, ok := s.cache.Get(ownerID); ok {
		usageCacheHitsTotal.Inc()
		return usage, nil
	}
	usageCacheMissesTotal.Inc()

	used, err := s.Usage(ctx, ownerID)
	if err != nil {
		return models.StorageUsage{}, err
	}

	usage := models.StorageUsage{
		UsedBytes:  used,
		MaxBytes:   s.maxTotalBytes,
		Percentage: float64(used) / float64(s.maxTotalBytes) * 100,
	}
	s.cache.Add(ownerID, usage)
	return usage, nil
}

// InvalidateUsage drops the cached display entry after a mutation.
func (s *QuotaService) InvalidateUsage(ownerID int64) {
	s.cache.Remove(ownerID)
}
