// Package models holds the persisted entities and response shapes of the
// storage gateway.
package models

import "time"

// File is the metadata row for one uploaded object. The relational store is
// the system of record for existence: if a row exists, the file exists, even
// while the object-store copy is still in flight or has been orphaned.
type File struct {
	ID       int64
	OwnerID  int64
	Filename string
	// ObjectKey addresses the blob in the object store:
	// users/{ownerID}/files/{uuid}-{filename}. Globally unique by the uuid
	// component, never exposed to callers.
	ObjectKey   string
	SizeBytes   int64
	ContentType string
	// ThumbnailObjectKey points at an optional derived asset; empty when the
	// file has no thumbnail.
	ThumbnailObjectKey string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FileDTO is the outbound shape per file. It deliberately excludes the
// object key and every other storage-backend detail.
type FileDTO struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DTO converts a File to its outbound representation.
func (f *File) DTO() FileDTO {
	return FileDTO{
		ID:          f.ID,
		Filename:    f.Filename,
		SizeBytes:   f.SizeBytes,
		ContentType: f.ContentType,
		CreatedAt:   f.CreatedAt,
	}
}

// FilePage is one page of a listing plus the total match count.
type FilePage struct {
	Files      []FileDTO `json:"files"`
	TotalCount int64     `json:"totalCount"`
	Page       int       `json:"page"`
	Size       int       `json:"size"`
}

// FileStats summarizes an owner's files for display.
type FileStats struct {
	FileCount      int64 `json:"fileCount"`
	TotalSizeBytes int64 `json:"totalSizeBytes"`
}

// StorageUsage reports quota consumption for display only; admission
// decisions always go through the locked check instead.
type StorageUsage struct {
	UsedBytes  int64   `json:"usedBytes"`
	MaxBytes   int64   `json:"maxBytes"`
	Percentage float64 `json:"percentage"`
}

// BulkDeleteResult tallies an account teardown for observability.
type BulkDeleteResult struct {
	DBDeleted      int `json:"dbDeleted"`
	ObjectsDeleted int `json:"objectsDeleted"`
	ObjectFailures int `json:"objectFailures"`
}
