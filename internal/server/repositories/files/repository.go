// Package files stores the per-account file index of the sync server.
package files

import (
	"context"

	"github.com/dmitrijs2005/syncserver/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the file is unknown.
	Get(ctx context.Context, accountID, uuid string) (*models.File, error)
	List(ctx context.Context, accountID string) ([]*models.File, error)
	Upsert(ctx context.Context, file *models.File) error
	// FindActiveByName returns the non-deleted file holding name.
	FindActiveByName(ctx context.Context, accountID, name string) (*models.File, error)
}
