// Package operations is the durable operation queue of the client: queued
// uploads and deletions move preparing -> committed -> uploading and are
// removed once the server confirmed them.
package operations

import (
	"context"

	"github.com/dmitrijs2005/syncserver/internal/client/models"
)

type Repository interface {
	// Insert stores op and fills op.ID.
	Insert(ctx context.Context, op *models.PendingOperation) error

	// ListByStage returns operations of a stage in batch, then insertion order.
	ListByStage(ctx context.Context, stage models.OperationStage) ([]*models.PendingOperation, error)

	// ListForUUID returns every queued operation for uuid regardless of stage.
	ListForUUID(ctx context.Context, uuid string) ([]*models.PendingOperation, error)

	// DeletePreparingUploads drops not yet committed uploads of uuid.
	DeletePreparingUploads(ctx context.Context, uuid string) (int64, error)

	// Commit moves all preparing operations into a new committed batch.
	Commit(ctx context.Context) (int64, error)

	// PromoteNextBatch moves the oldest committed batch to the uploading stage.
	PromoteNextBatch(ctx context.Context) (int64, error)

	SetTarget(ctx context.Context, id int64, version int64, undelete bool) error
	MarkTransferred(ctx context.Context, id int64) error

	// MarkUndelete flags every queued upload of uuid as an undelete.
	MarkUndelete(ctx context.Context, uuid string) error

	// DeleteForUUID removes queued operations of uuid that are not uploading.
	DeleteForUUID(ctx context.Context, uuid string, kind models.OperationKind) (int64, error)

	Delete(ctx context.Context, id int64) error
	DeleteByStage(ctx context.Context, stage models.OperationStage) error
	Clear(ctx context.Context) error
}
