package files

import (
	"context"

	"github.com/dmitrijs2005/syncserver/internal/client/models"
)

// Repository stores FileRecord rows keyed by uuid.
type Repository interface {
	// Get returns common.ErrorNotFound when the uuid is unknown.
	Get(ctx context.Context, uuid string) (*models.FileRecord, error)

	// FindByRemoteName returns a non-deleted record holding name.
	FindByRemoteName(ctx context.Context, name string) (*models.FileRecord, error)

	Upsert(ctx context.Context, rec *models.FileRecord) error
	List(ctx context.Context) ([]*models.FileRecord, error)
	Delete(ctx context.Context, uuid string) error
	Clear(ctx context.Context) error
}
