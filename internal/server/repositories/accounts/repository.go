// Package accounts keeps the per-account file index version.
package accounts

import "context"

type Repository interface {
	// IndexVersion is 0 for an account that never finished an upload.
	IndexVersion(ctx context.Context, accountID string) (int64, error)
	IncrementIndexVersion(ctx context.Context, accountID string) (int64, error)
}
