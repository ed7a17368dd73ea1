package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/syncserver/internal/client/client"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dmitrijs2005/syncserver/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/cryptox"
	"github.com/dmitrijs2005/syncserver/internal/filex"
)

// downloadEngine applies server-side changes: it plans them from the index,
// asks the host about conflicts, pulls changed files, materializes them and
// waits for the host to acknowledge before forgetting the plan.
type downloadEngine struct {
	*deps
}

// plan diffs the server index against the local records and persists the
// resulting download operations. Operations left from an earlier plan are
// replaced unless their file is already materialized. It returns how many
// operations the new plan added.
func (d *downloadEngine) plan(ctx context.Context, idx *models.FileIndex) (int, error) {
	planned := 0

	err := d.repos.WithTx(ctx, func(ctx context.Context, tx *client.Repositories) error {
		planned = 0
		existing, err := tx.Downloads.List(ctx)
		if err != nil {
			return err
		}
		materialized := make(map[string]bool, len(existing))
		for _, op := range existing {
			if op.Stage == models.DownloadMaterialized {
				materialized[op.UUID] = true
				continue
			}
			if err := tx.Downloads.Delete(ctx, op.ID); err != nil {
				return err
			}
		}

		for _, f := range idx.Files {
			if materialized[f.UUID] {
				continue
			}
			rec, err := getRecord(ctx, tx, f.UUID)
			if err != nil {
				return err
			}
			ops, err := tx.Operations.ListForUUID(ctx, f.UUID)
			if err != nil {
				return err
			}
			var hasUpload, hasDelete, undelete bool
			for _, op := range ops {
				switch op.Kind {
				case models.OperationUpload:
					hasUpload = true
					undelete = undelete || op.Undelete
				case models.OperationDelete:
					hasDelete = true
				}
			}

			op := &models.DownloadOperation{Server: f}
			if f.Deleted {
				// undelete: the host already chose to keep its upload
				if rec == nil || rec.Deleted == models.DeletedConfirmed || undelete {
					continue
				}
				op.Kind = models.DownloadDeletion
				if hasUpload {
					op.Conflict = models.ConflictPending
					op.ConflictingOperation = models.OperationUpload
				}
			} else {
				if rec != nil && rec.Version != nil && f.Version <= *rec.Version {
					continue
				}
				op.Kind = models.DownloadFile
				switch {
				case hasDelete:
					op.Conflict = models.ConflictPending
					op.ConflictingOperation = models.OperationDelete
				case hasUpload:
					op.Conflict = models.ConflictPending
					op.ConflictingOperation = models.OperationUpload
				}
			}

			if err := tx.Downloads.Insert(ctx, op); err != nil {
				return err
			}
			planned++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if planned > 0 {
		d.log.Info(ctx, "downloads planned", "count", planned, "index_version", idx.IndexVersion)
	}
	return planned, nil
}

// replan fetches the index and plans again over what is not materialized.
func (d *downloadEngine) replan(ctx context.Context) error {
	idx, err := d.remote.GetFileIndex(ctx)
	if err != nil {
		return err
	}
	_, err = d.plan(ctx, idx)
	return err
}

// stalePlan reports errors meaning the server moved on since the plan was
// made: a planned file is gone or its inbound staging was dropped.
func stalePlan(err error) bool {
	return errors.Is(err, common.ErrFileDeleted) || errors.Is(err, common.ErrNotStaged)
}

// run applies the persisted plan. When the lock has to be taken again (after
// a relaunch or a lost lock) the plan is checked against the index first.
func (d *downloadEngine) run(ctx context.Context) error {
	relock := !d.lock.held
	if err := d.lock.Ensure(ctx); err != nil {
		return err
	}
	if relock {
		if err := d.replan(ctx); err != nil {
			return err
		}
	}

	err := d.apply(ctx)
	if stalePlan(err) {
		d.log.Info(ctx, "download plan is stale, planning again", "error", err)
		if err := d.replan(ctx); err != nil {
			return err
		}
		err = d.apply(ctx)
	}
	return err
}

func (d *downloadEngine) apply(ctx context.Context) error {
	ops, err := d.repos.Downloads.List(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return d.repos.Metadata.Delete(ctx, keyInboundReported)
	}

	if err := d.resolveConflicts(ctx, ops); err != nil {
		return err
	}
	if ops, err = d.repos.Downloads.List(ctx); err != nil {
		return err
	}

	var deletions, files []*models.DownloadOperation
	for _, op := range ops {
		if op.Kind == models.DownloadDeletion {
			deletions = append(deletions, op)
		} else {
			files = append(files, op)
		}
	}

	if err := d.transfer(ctx, files); err != nil {
		return err
	}
	if err := d.faults.check(FaultBeforeAcknowledge, 0); err != nil {
		return err
	}

	if len(deletions) > 0 {
		if err := d.acknowledgeDeletions(ctx, deletions); err != nil {
			return err
		}
	}
	if len(files) > 0 {
		if err := d.acknowledgeFiles(ctx, files); err != nil {
			return err
		}
	}

	if err := d.repos.Metadata.Delete(ctx, keyInboundReported); err != nil {
		return err
	}
	d.notify.event(DownloadsFinished{NumberOperations: len(deletions) + len(files)})
	return nil
}

// resolveConflicts hands pending conflicts to the host, deletions first, and
// applies the decisions.
func (d *downloadEngine) resolveConflicts(ctx context.Context, ops []*models.DownloadOperation) error {
	var deletionConflicts, fileConflicts []*Conflict
	byID := make(map[int64]*models.DownloadOperation, len(ops))

	for _, op := range ops {
		byID[op.ID] = op
		if op.Conflict != models.ConflictPending {
			continue
		}
		if op.Kind == models.DownloadDeletion {
			deletionConflicts = append(deletionConflicts, newConflict(op))
		} else {
			fileConflicts = append(fileConflicts, newConflict(op))
		}
	}

	if len(deletionConflicts) > 0 {
		d.notify.post(func(dl Delegate) { dl.SyncServerShouldResolveDeletionConflicts(deletionConflicts) })
		if err := d.applyResolutions(ctx, deletionConflicts, byID); err != nil {
			return err
		}
	}
	if len(fileConflicts) > 0 {
		d.notify.post(func(dl Delegate) { dl.SyncServerShouldResolveDownloadConflicts(fileConflicts) })
		if err := d.applyResolutions(ctx, fileConflicts, byID); err != nil {
			return err
		}
	}
	return nil
}

func (d *downloadEngine) applyResolutions(ctx context.Context, conflicts []*Conflict, byID map[int64]*models.DownloadOperation) error {
	if err := awaitResolutions(ctx, conflicts); err != nil {
		return err
	}

	return d.repos.WithTx(ctx, func(ctx context.Context, tx *client.Repositories) error {
		for _, c := range conflicts {
			op := byID[c.downloadID]
			rec, err := getRecord(ctx, tx, op.UUID)
			if err != nil {
				return err
			}
			if rec == nil {
				rec = &models.FileRecord{SyncAttributes: op.Server.Attributes()}
				rec.Deleted = models.NotDeleted
			}
			d.log.Info(ctx, "conflict resolved", "uuid", op.UUID, "kind", op.Kind,
				"local", c.LocalOperation, "resolution", c.Resolution())

			switch c.Resolution() {
			case ResolutionDelete:
				for _, kind := range []models.OperationKind{models.OperationUpload, models.OperationDelete} {
					if _, err := tx.Operations.DeleteForUUID(ctx, op.UUID, kind); err != nil {
						return err
					}
				}
				if rec.Deleted == models.DeletedPending {
					rec.Deleted = models.NotDeleted
				}
				if err := tx.Downloads.SetConflict(ctx, op.ID, c.Resolution().state()); err != nil {
					return err
				}

			case ResolutionKeep:
				if op.Kind == models.DownloadDeletion {
					if err := tx.Operations.MarkUndelete(ctx, op.UUID); err != nil {
						return err
					}
				}
				if err := tx.Downloads.Delete(ctx, op.ID); err != nil {
					return err
				}
				// the queued operations now target the server version
				rec.Version = models.Int64(op.Server.Version)
			}

			rec.UpdatedAt = models.Now()
			if err := tx.Files.Upsert(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// transfer pulls every planned file and writes it under the download
// directory. Files materialized before a crash are not fetched again.
func (d *downloadEngine) transfer(ctx context.Context, files []*models.DownloadOperation) error {
	var planned []*models.DownloadOperation
	for _, op := range files {
		if op.Stage == models.DownloadPlanned {
			planned = append(planned, op)
		}
	}
	if len(planned) == 0 {
		return nil
	}

	uuids := make([]string, 0, len(planned))
	for _, op := range planned {
		uuids = append(uuids, op.UUID)
	}

	n, err := d.remote.SetupInboundTransfer(ctx, uuids)
	if err != nil {
		return err
	}
	if err := d.faults.check(FaultAfterInboundTransfer, 0); err != nil {
		return err
	}

	reported, err := metadata.GetBool(ctx, d.repos.Metadata, keyInboundReported)
	if err != nil {
		return err
	}
	if !reported {
		if err := metadata.SetBool(ctx, d.repos.Metadata, keyInboundReported, true); err != nil {
			return err
		}
		d.notify.event(InboundTransferComplete{NumberOperations: n})
	}

	for i, op := range planned {
		file, data, err := d.remote.DownloadFile(ctx, op.UUID)
		if err != nil {
			return err
		}
		if sum := cryptox.Checksum(data); file.Checksum != "" && sum != file.Checksum {
			return fmt.Errorf("%w: %s", common.ErrChecksumMismatch, op.UUID)
		}

		path := filepath.Join(d.cfg.DownloadDir, op.UUID)
		if err := filex.WriteFileAtomic(d.fs, path, data); err != nil {
			return err
		}
		if err := d.repos.Downloads.MarkMaterialized(ctx, op.ID, path); err != nil {
			return err
		}
		op.Stage = models.DownloadMaterialized
		op.LocalPath = path

		d.log.Debug(ctx, "file materialized", "uuid", op.UUID, "path", path)
		d.notify.event(SingleDownloadComplete{Download: Download{Path: path, Attributes: op.Server.Attributes()}})

		if err := d.faults.check(FaultAfterFileMaterialized, i+1); err != nil {
			return err
		}
	}
	return nil
}

func (d *downloadEngine) acknowledgeDeletions(ctx context.Context, ops []*models.DownloadOperation) error {
	attrs := make([]models.SyncAttributes, 0, len(ops))
	for _, op := range ops {
		attrs = append(attrs, op.Server.Attributes())
	}

	ackFn, acked := ack()
	d.notify.post(func(dl Delegate) { dl.SyncServerShouldDoDeletions(attrs, ackFn) })
	if err := waitAck(ctx, acked); err != nil {
		return err
	}

	return d.repos.WithTx(ctx, func(ctx context.Context, tx *client.Repositories) error {
		for _, op := range ops {
			rec, err := getRecord(ctx, tx, op.UUID)
			if err != nil {
				return err
			}
			if rec == nil {
				rec = &models.FileRecord{SyncAttributes: op.Server.Attributes()}
			}
			rec.Deleted = models.DeletedConfirmed
			rec.Version = models.Int64(op.Server.Version)
			rec.UpdatedAt = models.Now()

			if err := tx.Files.Upsert(ctx, rec); err != nil {
				return err
			}
			if _, err := tx.Operations.DeleteForUUID(ctx, op.UUID, models.OperationDelete); err != nil {
				return err
			}
			if err := tx.Downloads.Delete(ctx, op.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *downloadEngine) acknowledgeFiles(ctx context.Context, ops []*models.DownloadOperation) error {
	downloads := make([]Download, 0, len(ops))
	for _, op := range ops {
		downloads = append(downloads, Download{Path: op.LocalPath, Attributes: op.Server.Attributes()})
	}

	ackFn, acked := ack()
	d.notify.post(func(dl Delegate) { dl.SyncServerShouldSaveDownloads(downloads, ackFn) })
	if err := waitAck(ctx, acked); err != nil {
		return err
	}

	return d.repos.WithTx(ctx, func(ctx context.Context, tx *client.Repositories) error {
		for _, op := range ops {
			rec := &models.FileRecord{
				SyncAttributes: op.Server.Attributes(),
				Checksum:       op.Server.Checksum,
				LocalPath:      op.LocalPath,
				UpdatedAt:      models.Now(),
			}
			if err := tx.Files.Upsert(ctx, rec); err != nil {
				return err
			}
			if err := tx.Downloads.Delete(ctx, op.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func waitAck(ctx context.Context, acked <-chan struct{}) error {
	select {
	case <-acked:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
