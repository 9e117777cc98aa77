// Package files implements the metadata store for uploaded files.
package files

import (
	"context"

	"github.com/dkarpov/filevault/internal/server/models"
)

// ListParams bounds a paginated listing. Page is zero-based.
type ListParams struct {
	Page int
	Size int
}

// Offset returns the row offset for the page.
func (p ListParams) Offset() int {
	return p.Page * p.Size
}

// Repository is the persistence contract for file metadata. Implementations
// are bound to a dbx.DBTX, so the same code serves both plain reads and the
// lock-holding upload transaction.
type Repository interface {
	// Create inserts a new row and returns it with the server-assigned id
	// and timestamps. Returns common.ErrDuplicateFilename when the
	// (owner_id, filename) uniqueness constraint fires.
	Create(ctx context.Context, file *models.File) (*models.File, error)

	// GetByIDAndOwner returns common.ErrNotFound for a missing id or an
	// ownership mismatch; the two cases are indistinguishable on purpose.
	GetByIDAndOwner(ctx context.Context, id, ownerID int64) (*models.File, error)

	// ListByOwner returns one page of the owner's files, newest first,
	// plus the total count.
	ListByOwner(ctx context.Context, ownerID int64, p ListParams) ([]*models.File, int64, error)

	// ListByOwnerAndContentType filters by a content-type pattern where '*'
	// is a wildcard (e.g. "image/*").
	ListByOwnerAndContentType(ctx context.Context, ownerID int64, contentType string, p ListParams) ([]*models.File, int64, error)

	// SearchByFilename matches a case-insensitive filename substring.
	SearchByFilename(ctx context.Context, ownerID int64, query string, p ListParams) ([]*models.File, int64, error)

	// ListAllByOwner returns every file of the owner (account teardown).
	ListAllByOwner(ctx context.Context, ownerID int64) ([]*models.File, error)

	CountByOwner(ctx context.Context, ownerID int64) (int64, error)

	// TotalSizeByOwner is the unlocked aggregate, display only.
	TotalSizeByOwner(ctx context.Context, ownerID int64) (int64, error)

	// TotalSizeByOwnerLocked write-locks every row of the owner (stable
	// order, FOR UPDATE) and returns the sum of their sizes. Must run
	// inside a transaction; the lock is held until that transaction ends.
	TotalSizeByOwnerLocked(ctx context.Context, ownerID int64) (int64, error)

	// ExistsByOwnerAndFilename is the advisory pre-insert duplicate check.
	ExistsByOwnerAndFilename(ctx context.Context, ownerID int64, filename string) (bool, error)

	// DeleteByIDAndOwner removes the row; common.ErrNotFound when nothing
	// matched.
	DeleteByIDAndOwner(ctx context.Context, id, ownerID int64) error
}
