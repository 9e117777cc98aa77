package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dkarpov/filevault/internal/common"
	"github.com/dkarpov/filevault/internal/dbx"
	"github.com/dkarpov/filevault/internal/server/models"
)

// One column list for every SELECT.
const fileColumns = `id, owner_id, filename, object_key, size_bytes, content_type, thumbnail_object_key, created_at, updated_at`

const uniqueViolation = "23505"

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) (*models.File, error) {
	query := `
		INSERT INTO user_files (owner_id, filename, object_key, size_bytes, content_type, thumbnail_object_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id, created_at, updated_at;
	`
	created := *file
	err := r.db.QueryRowContext(ctx, query,
		file.OwnerID, file.Filename, file.ObjectKey, file.SizeBytes, file.ContentType, file.ThumbnailObjectKey).
		Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "user_files_owner_filename_idx" {
			return nil, common.ErrDuplicateFilename
		}
		return nil, fmt.Errorf("failed to insert file: %w", err)
	}
	return &created, nil
}

func (r *PostgresRepository) GetByIDAndOwner(ctx context.Context, id, ownerID int64) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM user_files WHERE id=$1 AND owner_id=$2`

	file, err := scanFile(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return file, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64, p ListParams) ([]*models.File, int64, error) {
	query := `SELECT ` + fileColumns + ` FROM user_files
		WHERE owner_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	result, err := r.queryFiles(ctx, query, ownerID, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}

	total, err := r.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *PostgresRepository) ListByOwnerAndContentType(ctx context.Context, ownerID int64, contentType string, p ListParams) ([]*models.File, int64, error) {
	// Only '*' is a wildcard in the caller-facing pattern.
	pattern := strings.ReplaceAll(contentType, "*", "%")

	query := `SELECT ` + fileColumns + ` FROM user_files
		WHERE owner_id=$1 AND content_type LIKE $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	result, err := r.queryFiles(ctx, query, ownerID, pattern, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM user_files WHERE owner_id=$1 AND content_type LIKE $2`
	if err := r.db.QueryRowContext(ctx, countQuery, ownerID, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}
	return result, total, nil
}

func (r *PostgresRepository) SearchByFilename(ctx context.Context, ownerID int64, search string, p ListParams) ([]*models.File, int64, error) {
	pattern := "%" + search + "%"

	query := `SELECT ` + fileColumns + ` FROM user_files
		WHERE owner_id=$1 AND filename ILIKE $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	result, err := r.queryFiles(ctx, query, ownerID, pattern, p.Size, p.Offset())
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM user_files WHERE owner_id=$1 AND filename ILIKE $2`
	if err := r.db.QueryRowContext(ctx, countQuery, ownerID, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}
	return result, total, nil
}

func (r *PostgresRepository) ListAllByOwner(ctx context.Context, ownerID int64) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM user_files WHERE owner_id=$1 ORDER BY created_at DESC, id DESC`
	return r.queryFiles(ctx, query, ownerID)
}

func (r *PostgresRepository) CountByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM user_files WHERE owner_id=$1`
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) TotalSizeByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(size_bytes), 0) FROM user_files WHERE owner_id=$1`
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum file sizes: %w", err)
	}
	return total, nil
}

// TotalSizeByOwnerLocked locks the owner's rows and sums sizes client-side:
// Postgres rejects FOR UPDATE combined with aggregates, so the locking read
// returns rows. ORDER BY id keeps the lock order stable across concurrent
// callers to avoid deadlocks.
func (r *PostgresRepository) TotalSizeByOwnerLocked(ctx context.Context, ownerID int64) (int64, error) {
	query := `SELECT id, size_bytes FROM user_files WHERE owner_id=$1 ORDER BY id FOR UPDATE`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock file rows: %w", err)
	}
	defer rows.Close()

	var total int64
	for rows.Next() {
		var id, size int64
		if err := rows.Scan(&id, &size); err != nil {
			return 0, err
		}
		total += size
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *PostgresRepository) ExistsByOwnerAndFilename(ctx context.Context, ownerID int64, filename string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM user_files WHERE owner_id=$1 AND filename=$2)`
	if err := r.db.QueryRowContext(ctx, query, ownerID, filename).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check filename: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) DeleteByIDAndOwner(ctx context.Context, id, ownerID int64) error {
	query := `DELETE FROM user_files WHERE id=$1 AND owner_id=$2`

	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) queryFiles(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		var item models.File
		var thumbnail sql.NullString
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Filename, &item.ObjectKey,
			&item.SizeBytes, &item.ContentType, &thumbnail, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.ThumbnailObjectKey = thumbnail.String
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanFile(row *sql.Row) (*models.File, error) {
	var item models.File
	var thumbnail sql.NullString
	if err := row.Scan(&item.ID, &item.OwnerID, &item.Filename, &item.ObjectKey,
		&item.SizeBytes, &item.ContentType, &thumbnail, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.ThumbnailObjectKey = thumbnail.String
	return &item, nil
}
