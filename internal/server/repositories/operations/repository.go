// Package operations tracks asynchronous server operations by id.
package operations

import (
	"context"

	"github.com/dmitrijs2005/syncserver/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, op *models.Operation) error
	// Get and Delete return common.ErrOperationNotFound for unknown ids.
	Get(ctx context.Context, accountID, id string) (*models.Operation, error)
	Delete(ctx context.Context, accountID, id string) error
	DeleteForDevice(ctx context.Context, accountID, deviceID string) error
}
