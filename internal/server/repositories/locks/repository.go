// Package locks stores the per-account sync lock.
package locks

import (
	"context"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when nobody holds the lock.
	Get(ctx context.Context, accountID string) (*models.Lock, error)
	// Put takes or refreshes the lock of lock.AccountID.
	Put(ctx context.Context, lock *models.Lock) error
	Delete(ctx context.Context, accountID string) error
	ListExpired(ctx context.Context, now time.Time) ([]*models.Lock, error)
}
