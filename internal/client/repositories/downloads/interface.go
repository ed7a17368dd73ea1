// Package downloads stores the server-initiated changes the download engine
// is applying: planned file downloads and deletions, their conflict state and
// where materialized files were written.
package downloads

import (
	"context"

	"github.com/dmitrijs2005/syncserver/internal/client/models"
)

type Repository interface {
	// Insert adds op, replacing any earlier download of the same uuid.
	Insert(ctx context.Context, op *models.DownloadOperation) error
	List(ctx context.Context) ([]*models.DownloadOperation, error)
	HasPending(ctx context.Context) (bool, error)
	SetConflict(ctx context.Context, id int64, state models.ConflictState) error
	MarkMaterialized(ctx context.Context, id int64, localPath string) error
	Delete(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
}
