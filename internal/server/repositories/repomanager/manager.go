package repomanager

import (
	"context"
	"database/sql"

	"github.com/dkarpov/filevault/internal/dbx"
	"github.com/dkarpov/filevault/internal/server/repositories/files"
)

// RepositoryManager vends repositories bound to a DBTX, so services can bind
// the same repository code to the pool or to an open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
}
