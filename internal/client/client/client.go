package client

import (
	"context"

	"github.com/dmitrijs2005/syncserver/internal/client/models"
)

// Client is the server-facing side of the sync engine. Every mutating call
// requires the account lock to be held by this device.
type Client interface {
	Close() error
	Ping(ctx context.Context) error

	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error

	GetFileIndex(ctx context.Context) (*models.FileIndex, error)
	UploadFile(ctx context.Context, req *models.UploadRequest) error
	DeleteFiles(ctx context.Context, files []models.DeleteRequest) error

	// FinishUploads commits everything staged under the lock. The expected
	// index version must match the server's current one.
	FinishUploads(ctx context.Context, expectedIndexVersion int64) (string, error)
	CheckOperationStatus(ctx context.Context, operationID string) (*models.OperationStatus, error)
	RemoveOperationID(ctx context.Context, operationID string) error

	SetupInboundTransfer(ctx context.Context, uuids []string) (int, error)
	DownloadFile(ctx context.Context, uuid string) (*models.ServerFile, []byte, error)

	// Cleanup drops server-side staging of this device and releases its lock.
	Cleanup(ctx context.Context) error
}
