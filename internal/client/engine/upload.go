package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncserver/internal/client/client"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dmitrijs2005/syncserver/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/cryptox"
	"github.com/dmitrijs2005/syncserver/internal/filex"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"
)

// uploadEngine drives the batch in the uploading stage through
// lock -> index check -> transfer -> finishUploads -> completion.
// Every step re-derives its position from the queue, the metadata flags
// and the server index, so running it again after a failure is safe.
type uploadEngine struct {
	*deps
}

func (u *uploadEngine) run(ctx context.Context) error {
	ops, err := u.repos.Operations.ListByStage(ctx, models.StageUploading)
	if err != nil || len(ops) == 0 {
		return err
	}

	opID, err := metadata.GetString(ctx, u.repos.Metadata, keyOutboundOperation)
	if err != nil {
		return err
	}
	if opID != "" {
		return u.awaitCompletion(ctx, opID, ops)
	}

	if err := u.lock.Ensure(ctx); err != nil {
		return err
	}
	if err := u.faults.check(FaultAfterLock, 0); err != nil {
		return err
	}

	idx, err := u.remote.GetFileIndex(ctx)
	if err != nil {
		return err
	}

	finishing, err := metadata.GetBool(ctx, u.repos.Metadata, keyFinishing)
	if err != nil {
		return err
	}
	if finishing && appliedOnServer(idx, ops) {
		// The operation id never reached us, so the server keeps its record
		// until this device's next Cleanup.
		u.log.Info(ctx, "outbound batch already applied on server", "operations", len(ops))
		return u.complete(ctx, ops)
	}

	if err := u.checkIndex(ctx, idx, ops); err != nil {
		return err
	}
	if err := u.faults.check(FaultAfterIndexCheck, 0); err != nil {
		return err
	}

	if err := u.transfer(ctx, idx, ops); err != nil {
		return err
	}
	return u.finish(ctx, idx, ops)
}

var errOperationPending = errors.New("outbound operation still running")

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflictWithServerState, fmt.Sprintf(format, args...))
}

// checkIndex validates the batch against the server index and assigns the
// version every operation will produce.
func (u *uploadEngine) checkIndex(ctx context.Context, idx *models.FileIndex, ops []*models.PendingOperation) error {
	srv := idx.ByUUID()
	names := make(map[string]string, len(idx.Files))
	for _, f := range idx.Files {
		if !f.Deleted {
			names[f.RemoteFileName] = f.UUID
		}
	}

	return u.repos.WithTx(ctx, func(ctx context.Context, tx *client.Repositories) error {
		for _, op := range ops {
			if op.Kind == models.OperationUpload {
				name := op.Attributes.RemoteFileName
				if owner, ok := names[name]; ok && owner != op.UUID {
					return fmt.Errorf("%w: %w: upload of %s: remote file name %q belongs to %s",
						ErrConflictWithServerState, ErrConflictingAttributes, op.UUID, name, owner)
				}
			}
			rec, err := getRecord(ctx, tx, op.UUID)
			if err != nil {
				return err
			}
			var local *int64
			if rec != nil {
				local = rec.Version
			}
			f, onServer := srv[op.UUID]

			var (
				target   int64
				undelete bool
			)
			switch op.Kind {
			case models.OperationDelete:
				switch {
				case !onServer:
					return conflictf("delete of %s: file is not on the server", op.UUID)
				case f.Deleted:
					return conflictf("delete of %s: file already deleted on the server", op.UUID)
				case local == nil || *local != f.Version:
					return conflictf("delete of %s: local version differs from server version %d", op.UUID, f.Version)
				}
				target = f.Version

			case models.OperationUpload:
				switch {
				case !onServer && local == nil:
					target = 0
				case !onServer:
					return conflictf("upload of %s: file is missing on the server", op.UUID)
				case local == nil || *local != f.Version:
					return conflictf("upload of %s: local version differs from server version %d", op.UUID, f.Version)
				case f.Deleted && !op.Undelete:
					return conflictf("upload of %s: file deleted on the server", op.UUID)
				default:
					target = f.Version + 1
					undelete = f.Deleted
				}
			}

			if err := tx.Operations.SetTarget(ctx, op.ID, target, undelete); err != nil {
				return err
			}
			op.TargetVersion = models.Int64(target)
			op.Undelete = undelete
		}
		return nil
	})
}

// appliedOnServer reports whether a batch whose finishUploads was sent is
// already reflected in the index.
func appliedOnServer(idx *models.FileIndex, ops []*models.PendingOperation) bool {
	srv := idx.ByUUID()
	for _, op := range ops {
		f, ok := srv[op.UUID]
		if !ok || op.TargetVersion == nil {
			return false
		}
		switch op.Kind {
		case models.OperationUpload:
			if f.Deleted || f.Version != *op.TargetVersion {
				return false
			}
		case models.OperationDelete:
			if !f.Deleted {
				return false
			}
		}
	}
	return true
}

func (u *uploadEngine) payload(op *models.PendingOperation) ([]byte, error) {
	if op.Source == models.SourceData {
		return op.Data, nil
	}
	data, err := afero.ReadFile(u.fs, op.Path)
	if err != nil {
		return nil, fmt.Errorf("read upload source of %s: %w", op.UUID, err)
	}
	return data, nil
}

// transfer stages uploads one by one and deletions in one call. Files the
// server already staged for this device are not sent again.
func (u *uploadEngine) transfer(ctx context.Context, idx *models.FileIndex, ops []*models.PendingOperation) error {
	stagedUploads := toSet(idx.StagedUploads)
	stagedDeletions := toSet(idx.StagedDeletions)

	var (
		deletions []models.DeleteRequest
		deleteOps []*models.PendingOperation
		n         int
	)

	for _, op := range ops {
		if op.Kind == models.OperationDelete {
			if !stagedDeletions[op.UUID] {
				deletions = append(deletions, models.DeleteRequest{UUID: op.UUID, Version: *op.TargetVersion})
			}
			deleteOps = append(deleteOps, op)
			continue
		}

		if !stagedUploads[op.UUID] {
			data, err := u.payload(op)
			if err != nil {
				return err
			}
			req := &models.UploadRequest{
				Attributes: op.Attributes,
				Version:    *op.TargetVersion,
				Undelete:   op.Undelete,
				Checksum:   cryptox.Checksum(data),
				Data:       data,
			}
			if err := u.remote.UploadFile(ctx, req); err != nil {
				return err
			}
			u.log.Debug(ctx, "file transferred", "uuid", op.UUID, "version", req.Version)
		}

		n++
		if !op.Transferred {
			if err := u.repos.Operations.MarkTransferred(ctx, op.ID); err != nil {
				return err
			}
			op.Transferred = true
			u.notify.event(SingleUploadComplete{UUID: op.UUID})
		}
		if err := u.faults.check(FaultAfterFileTransfer, n); err != nil {
			return err
		}
	}

	if len(deletions) > 0 {
		if err := u.remote.DeleteFiles(ctx, deletions); err != nil {
			return err
		}
	}
	for _, op := range deleteOps {
		if op.Transferred {
			continue
		}
		if err := u.repos.Operations.MarkTransferred(ctx, op.ID); err != nil {
			return err
		}
		op.Transferred = true
	}
	return nil
}

func (u *uploadEngine) finish(ctx context.Context, idx *models.FileIndex, ops []*models.PendingOperation) error {
	if err := u.faults.check(FaultBeforeFinishUploads, 0); err != nil {
		return err
	}
	if err := metadata.SetBool(ctx, u.repos.Metadata, keyFinishing, true); err != nil {
		return err
	}

	opID, err := u.remote.FinishUploads(ctx, idx.IndexVersion)
	if errors.Is(err, common.ErrVersionConflict) {
		return conflictf("file index changed since version %d", idx.IndexVersion)
	}
	if err != nil {
		return err
	}
	if err := metadata.SetString(ctx, u.repos.Metadata, keyOutboundOperation, opID); err != nil {
		return err
	}
	u.log.Info(ctx, "finish uploads sent", "operation", opID, "index_version", idx.IndexVersion)

	if err := u.faults.check(FaultAfterFinishUploads, 0); err != nil {
		return err
	}
	return u.awaitCompletion(ctx, opID, ops)
}

// awaitCompletion polls the outbound operation until the server reports a
// final status.
func (u *uploadEngine) awaitCompletion(ctx context.Context, opID string, ops []*models.PendingOperation) error {
	st, err := retry.DoValue(ctx, retry.NewConstant(u.cfg.StatusPollInterval),
		func(ctx context.Context) (*models.OperationStatus, error) {
			st, err := u.remote.CheckOperationStatus(ctx, opID)
			if err != nil {
				return nil, err
			}
			if !st.Code.Finished() {
				return nil, retry.RetryableError(errOperationPending)
			}
			return st, nil
		})
	if errors.Is(err, common.ErrOperationNotFound) {
		// Already removed before a crash; the index tells the rest.
		if err := u.repos.Metadata.Delete(ctx, keyOutboundOperation); err != nil {
			return err
		}
		return u.run(ctx)
	}
	if err != nil {
		return err
	}

	if st.Code.Failed() {
		if err := u.remote.RemoveOperationID(ctx, opID); err != nil && !errors.Is(err, common.ErrOperationNotFound) {
			u.log.Warn(ctx, "failed to remove operation id", "operation", opID, "error", err)
		}
		if err := u.clearMarkers(ctx, u.repos); err != nil {
			return err
		}
		return fmt.Errorf("%w: outbound operation %s failed with status %d: %s", client.ErrServer, opID, st.Code, st.Error)
	}

	if err := u.remote.RemoveOperationID(ctx, opID); err != nil && !errors.Is(err, common.ErrOperationNotFound) {
		return err
	}
	return u.complete(ctx, ops)
}

func (u *uploadEngine) clearMarkers(ctx context.Context, repos *client.Repositories) error {
	return repos.Metadata.Delete(ctx, keyOutboundOperation, keyFinishing)
}

// complete applies a confirmed batch to the local records and reports it.
func (u *uploadEngine) complete(ctx context.Context, ops []*models.PendingOperation) error {
	var deleted []string

	err := u.repos.WithTx(ctx, func(ctx context.Context, tx *client.Repositories) error {
		deleted = deleted[:0]
		for _, op := range ops {
			if op.TargetVersion == nil {
				return fmt.Errorf("operation %d of %s has no target version", op.ID, op.UUID)
			}

			rec, err := getRecord(ctx, tx, op.UUID)
			if err != nil {
				return err
			}
			if rec == nil {
				rec = &models.FileRecord{SyncAttributes: op.Attributes}
			}

			switch op.Kind {
			case models.OperationUpload:
				rec.Version = models.Int64(*op.TargetVersion)
				if rec.Deleted == models.DeletedConfirmed {
					rec.Deleted = models.NotDeleted
				}
			case models.OperationDelete:
				rec.Deleted = models.DeletedConfirmed
				deleted = append(deleted, op.UUID)
			}
			rec.UpdatedAt = models.Now()

			if err := tx.Files.Upsert(ctx, rec); err != nil {
				return err
			}
			if err := tx.Operations.Delete(ctx, op.ID); err != nil {
				return err
			}
		}
		return u.clearMarkers(ctx, tx)
	})
	if err != nil {
		return err
	}

	for _, op := range ops {
		if op.Kind == models.OperationUpload && op.Source == models.SourceTemporary {
			if err := filex.RemoveIfExists(u.fs, op.Path); err != nil {
				u.log.Warn(ctx, "failed to remove temporary upload source", "path", op.Path, "error", err)
			}
		}
	}
	u.lock.released(ctx)

	u.log.Info(ctx, "outbound batch complete", "operations", len(ops), "deletions", len(deleted))
	if len(deleted) > 0 {
		u.notify.event(DeletionsSent{UUIDs: deleted})
	}
	u.notify.event(FrameworkUploadMetaDataUpdated{})
	u.notify.event(AllUploadsComplete{NumberOperations: len(ops)})
	return nil
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
