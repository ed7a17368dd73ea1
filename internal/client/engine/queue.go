package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncserver/internal/client/client"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/cryptox"
	"github.com/dmitrijs2005/syncserver/internal/logging"
	"github.com/spf13/afero"
)

// OperationQueue records host intents durably. Nothing reaches the server
// until Commit moves the preparing operations into a batch.
type OperationQueue struct {
	repos *client.Repositories
	fs    afero.Fs
	log   logging.Logger
}

func getRecord(ctx context.Context, tx *client.Repositories, uuid string) (*models.FileRecord, error) {
	rec, err := tx.Files.Get(ctx, uuid)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return rec, err
}

// EnqueueUpload queues an upload of path (or data for SourceData). An earlier
// uncommitted upload of the same uuid is replaced.
func (q *OperationQueue) EnqueueUpload(ctx context.Context, source models.PayloadSource, path string, data []byte,
	attrs models.SyncAttributes) error {
	if attrs.UUID == "" || attrs.RemoteFileName == "" {
		return ErrInvalidAttributes
	}

	content := data
	if source != models.SourceData {
		b, err := afero.ReadFile(q.fs, path)
		if err != nil {
			return fmt.Errorf("read upload source: %w", err)
		}
		content = b
	}

	op := &models.PendingOperation{
		Kind:       models.OperationUpload,
		Source:     source,
		Path:       path,
		Attributes: attrs,
	}
	op.Attributes.SizeBytes = int64(len(content))
	if source == models.SourceData {
		op.Data = data
	}

	return q.repos.WithTx(ctx, func(ctx context.Context, tx *client.Repositories) error {
		rec, err := getRecord(ctx, tx, attrs.UUID)
		if err != nil {
			return err
		}
		if rec != nil && rec.IsDeleted() {
			return ErrAlreadyDeleted
		}
		if rec != nil && rec.RemoteFileName != attrs.RemoteFileName {
			return fmt.Errorf("%w: %s is already named %q", ErrConflictingAttributes, attrs.UUID, rec.RemoteFileName)
		}

		other, err := tx.Files.FindByRemoteName(ctx, attrs.RemoteFileName)
		switch {
		case errors.Is(err, common.ErrorNotFound):
		case err != nil:
			return err
		case other.UUID != attrs.UUID:
			return fmt.Errorf("%w: %q belongs to %s", ErrConflictingAttributes, attrs.RemoteFileName, other.UUID)
		}

		if _, err := tx.Operations.DeletePreparingUploads(ctx, attrs.UUID); err != nil {
			return err
		}
		if err := tx.Operations.Insert(ctx, op); err != nil {
			return err
		}

		if rec == nil {
			rec = &models.FileRecord{SyncAttributes: models.SyncAttributes{UUID: attrs.UUID}}
		}
		rec.RemoteFileName = attrs.RemoteFileName
		rec.MimeType = attrs.MimeType
		rec.AppMetaData = attrs.AppMetaData
		rec.SizeBytes = op.Attributes.SizeBytes
		rec.Checksum = cryptox.Checksum(content)
		rec.UpdatedAt = models.Now()
		return tx.Files.Upsert(ctx, rec)
	})
}

// EnqueueDelete queues a deletion. A deletion of a file that never reached
// the server simply cancels its queued upload.
func (q *OperationQueue) EnqueueDelete(ctx context.Context, uuid string) error {
	return q.repos.WithTx(ctx, func(ctx context.Context, tx *client.Repositories) error {
		rec, err := getRecord(ctx, tx, uuid)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrUnknownFile
		}
		if rec.IsDeleted() {
			return ErrAlreadyDeleted
		}

		cancelled, err := tx.Operations.DeletePreparingUploads(ctx, uuid)
		if err != nil {
			return err
		}

		if rec.Version == nil {
			left, err := tx.Operations.ListForUUID(ctx, uuid)
			if err != nil {
				return err
			}
			if len(left) == 0 {
				q.log.Debug(ctx, "delete cancels unsent upload", "uuid", uuid, "cancelled", cancelled)
				return tx.Files.Delete(ctx, uuid)
			}
		}

		op := &models.PendingOperation{
			Kind:       models.OperationDelete,
			Attributes: rec.SyncAttributes,
		}
		if err := tx.Operations.Insert(ctx, op); err != nil {
			return err
		}

		rec.Deleted = models.DeletedPending
		rec.UpdatedAt = models.Now()
		return tx.Files.Upsert(ctx, rec)
	})
}

// Commit seals the preparing operations into a batch and returns its size.
func (q *OperationQueue) Commit(ctx context.Context) (int64, error) {
	n, err := q.repos.Operations.Commit(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.log.Info(ctx, "operations committed", "count", n)
	}
	return n, nil
}

// flush drops every queued and in-flight operation. Records that never
// reached the server go away, pending deletions are undone.
func (q *OperationQueue) flush(ctx context.Context, tx *client.Repositories) error {
	if err := tx.Operations.Clear(ctx); err != nil {
		return err
	}
	if err := tx.Downloads.Clear(ctx); err != nil {
		return err
	}

	recs, err := tx.Files.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		switch {
		case rec.Version == nil:
			if err := tx.Files.Delete(ctx, rec.UUID); err != nil {
				return err
			}
		case rec.Deleted == models.DeletedPending:
			rec.Deleted = models.NotDeleted
			if err := tx.Files.Upsert(ctx, rec); err != nil {
				return err
			}
		}
	}
	return nil
}
