// Package common defines shared sentinel errors used across the storage
// gateway layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Validation errors, rejected before any store is touched.
	ErrEmptyFile              = errors.New("file is empty")
	ErrFileTooLarge           = errors.New("file exceeds maximum size")
	ErrInvalidFilename        = errors.New("invalid filename")
	ErrUnsupportedContentType = errors.New("content type is not allowed")
	ErrDuplicateFilename      = errors.New("filename already exists")
	ErrInvalidPagination      = errors.New("invalid pagination parameters")

	// ErrQuotaExceeded is the class matched via errors.Is; the concrete
	// error carrying usage numbers is QuotaExceededError.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrStorageUnavailable is returned when the object store keeps failing
	// after the retry budget is exhausted.
	ErrStorageUnavailable = errors.New("object storage unavailable")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// QuotaExceededError reports a rejected upload together with the numbers the
// caller needs to render an actionable message.
type QuotaExceededError struct {
	UsedBytes      int64
	MaxBytes       int64
	AttemptedBytes int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded: used %d of %d bytes, attempted %d bytes",
		e.UsedBytes, e.MaxBytes, e.AttemptedBytes)
}

// Is makes errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
