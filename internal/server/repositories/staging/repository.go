// Package staging keeps what a device transferred under its lock until
// FinishUploads applies it, plus files prepared for inbound transfer.
package staging

import (
	"context"

	"github.com/dmitrijs2005/syncserver/internal/server/models"
)

type Repository interface {
	// Put stores c, replacing an earlier change of the same uuid and kind.
	Put(ctx context.Context, c *models.StagedChange) error
	List(ctx context.Context, accountID, deviceID string) ([]*models.StagedChange, error)
	// Get returns common.ErrNotStaged when nothing is staged.
	Get(ctx context.Context, accountID, deviceID, uuid string, kind models.StagedKind) (*models.StagedChange, error)
	DeleteAll(ctx context.Context, accountID, deviceID string) error
}
