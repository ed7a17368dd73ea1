package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/cryptox"
	"github.com/dmitrijs2005/syncserver/internal/logging"
	"github.com/dmitrijs2005/syncserver/internal/server/blobstore"
	"github.com/dmitrijs2005/syncserver/internal/server/models"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Caller identifies who is calling: the account from the access token and
// the device from request metadata.
type Caller struct {
	AccountID string
	DeviceID  string
}

type FileIndex struct {
	Files        []*models.File
	IndexVersion int64
	// StagedUploads and StagedDeletions are the caller's pending transfers.
	StagedUploads   []string
	StagedDeletions []string
}

type UploadRequest struct {
	UUID           string
	RemoteFileName string
	MimeType       string
	AppMetaData    map[string]string
	Version        int64
	Undelete       bool
	Checksum       string
	Data           []byte
}

type DeleteRequest struct {
	UUID    string
	Version int64
}

// SyncService is the server side of the sync protocol. Every mutating call
// requires the caller's device to hold the account lock; staged changes
// become visible only through FinishUploads.
type SyncService struct {
	repos       repomanager.Manager
	blobs       blobstore.Store
	lockTimeout time.Duration
	log         logging.Logger
	now         func() time.Time
}

func NewSyncService(repos repomanager.Manager, blobs blobstore.Store, lockTimeout time.Duration,
	log logging.Logger) *SyncService {
	return &SyncService{
		repos:       repos,
		blobs:       blobs,
		lockTimeout: lockTimeout,
		log:         log.With("module", "sync_service"),
		now:         time.Now,
	}
}

// Ping reports whether the index is reachable for the caller's account.
func (s *SyncService) Ping(ctx context.Context, c Caller) error {
	_, err := s.repos.Repos().Accounts.IndexVersion(ctx, c.AccountID)
	return err
}

func (s *SyncService) validCaller(c Caller) error {
	if c.AccountID == "" || c.DeviceID == "" {
		return fmt.Errorf("%w: account and device are required", common.ErrIncorrectRequest)
	}
	return nil
}

// Lock takes the account lock for the caller's device. Taking it again from
// the same device only extends it. A lock left expired by another device is
// taken over and that device's staging is dropped.
func (s *SyncService) Lock(ctx context.Context, c Caller) error {
	if err := s.validCaller(c); err != nil {
		return err
	}

	var orphaned []string
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		now := s.now()
		l, err := r.Locks.Get(ctx, c.AccountID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
		case err != nil:
			return err
		case l.DeviceID == c.DeviceID:
		case !l.Expired(now):
			return common.ErrLockAlreadyHeld
		default:
			s.log.Info(ctx, "taking over expired lock", "account", c.AccountID, "previous_device", l.DeviceID)
			if orphaned, err = s.dropStaging(ctx, r, c.AccountID, l.DeviceID); err != nil {
				return err
			}
		}
		return r.Locks.Put(ctx, &models.Lock{AccountID: c.AccountID, DeviceID: c.DeviceID, ExpiresAt: now.Add(s.lockTimeout)})
	})
	if err != nil {
		return err
	}

	s.deleteBlobs(ctx, orphaned)
	s.log.Debug(ctx, "lock acquired", "account", c.AccountID, "device", c.DeviceID)
	return nil
}

// Unlock releases the lock and drops whatever the caller staged.
func (s *SyncService) Unlock(ctx context.Context, c Caller) error {
	var orphaned []string
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := s.requireLock(ctx, r, c); err != nil {
			return err
		}
		var err error
		if orphaned, err = s.dropStaging(ctx, r, c.AccountID, c.DeviceID); err != nil {
			return err
		}
		return r.Locks.Delete(ctx, c.AccountID)
	})
	if err != nil {
		return err
	}

	s.deleteBlobs(ctx, orphaned)
	s.log.Debug(ctx, "lock released", "account", c.AccountID, "device", c.DeviceID)
	return nil
}

// requireLock checks that the caller holds an unexpired lock and extends it.
func (s *SyncService) requireLock(ctx context.Context, r *repomanager.Repositories, c Caller) error {
	l, err := r.Locks.Get(ctx, c.AccountID)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrLockNotHeld
	}
	if err != nil {
		return err
	}

	now := s.now()
	if l.DeviceID != c.DeviceID || l.Expired(now) {
		return common.ErrLockNotHeld
	}
	l.ExpiresAt = now.Add(s.lockTimeout)
	return r.Locks.Put(ctx, l)
}

// dropStaging removes the staging of a device and returns the blob keys of
// uploads that will never be applied.
func (s *SyncService) dropStaging(ctx context.Context, r *repomanager.Repositories, accountID, deviceID string) ([]string, error) {
	staged, err := r.Staging.List(ctx, accountID, deviceID)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, c := range staged {
		if c.Kind == models.StagedUpload {
			keys = append(keys, c.StorageKey)
		}
	}
	return keys, r.Staging.DeleteAll(ctx, accountID, deviceID)
}

func (s *SyncService) deleteBlobs(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := s.blobs.Delete(ctx, k); err != nil {
			s.log.Warn(ctx, "failed to delete blob", "key", k, "error", err)
		}
	}
}

// GetFileIndex returns the account index. Staged uuids are reported only to
// the lock holder.
func (s *SyncService) GetFileIndex(ctx context.Context, c Caller) (*FileIndex, error) {
	if err := s.validCaller(c); err != nil {
		return nil, err
	}
	r := s.repos.Repos()

	files, err := r.Files.List(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}
	v, err := r.Accounts.IndexVersion(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}
	idx := &FileIndex{Files: files, IndexVersion: v}

	l, err := r.Locks.Get(ctx, c.AccountID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	if err == nil && l.DeviceID == c.DeviceID && !l.Expired(s.now()) {
		staged, err := r.Staging.List(ctx, c.AccountID, c.DeviceID)
		if err != nil {
			return nil, err
		}
		for _, sc := range staged {
			switch sc.Kind {
			case models.StagedUpload:
				idx.StagedUploads = append(idx.StagedUploads, sc.UUID)
			case models.StagedDeletion:
				idx.StagedDeletions = append(idx.StagedDeletions, sc.UUID)
			}
		}
	}
	return idx, nil
}

func storageKey(accountID, fileUUID string, version int64) string {
	return fmt.Sprintf("%s/%s/%d-%s", accountID, fileUUID, version, uuid.NewString())
}

// checkUpload validates an upload against the current index entry.
func checkUpload(f *models.File, req *UploadRequest) error {
	switch {
	case f == nil && req.Version != 0:
		return fmt.Errorf("%w: new file %s must have version 0", common.ErrVersionConflict, req.UUID)
	case f == nil:
		return nil
	case f.Deleted && !req.Undelete:
		return fmt.Errorf("%w: %s", common.ErrFileDeleted, req.UUID)
	case req.Version != f.Version+1:
		return fmt.Errorf("%w: %s is at version %d", common.ErrVersionConflict, req.UUID, f.Version)
	}
	return nil
}

// UploadFile stores the content and stages the new version of a file.
func (s *SyncService) UploadFile(ctx context.Context, c Caller, req *UploadRequest) error {
	if req.UUID == "" || req.RemoteFileName == "" {
		return fmt.Errorf("%w: uuid and remote file name are required", common.ErrIncorrectRequest)
	}
	if req.Checksum != "" && cryptox.Checksum(req.Data) != req.Checksum {
		return fmt.Errorf("%w: upload of %s", common.ErrChecksumMismatch, req.UUID)
	}

	key := storageKey(c.AccountID, req.UUID, req.Version)
	if err := s.blobs.Put(ctx, key, req.Data); err != nil {
		return fmt.Errorf("store blob: %w", err)
	}

	var replaced string
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := s.requireLock(ctx, r, c); err != nil {
			return err
		}

		f, err := r.Files.Get(ctx, c.AccountID, req.UUID)
		if errors.Is(err, common.ErrorNotFound) {
			f, err = nil, nil
		}
		if err != nil {
			return err
		}
		if err := checkUpload(f, req); err != nil {
			return err
		}

		other, err := r.Files.FindActiveByName(ctx, c.AccountID, req.RemoteFileName)
		switch {
		case errors.Is(err, common.ErrorNotFound):
		case err != nil:
			return err
		case other.UUID != req.UUID:
			return fmt.Errorf("%w: %q", common.ErrConflictingName, req.RemoteFileName)
		}

		prev, err := r.Staging.Get(ctx, c.AccountID, c.DeviceID, req.UUID, models.StagedUpload)
		if err == nil {
			replaced = prev.StorageKey
		} else if !errors.Is(err, common.ErrNotStaged) {
			return err
		}

		return r.Staging.Put(ctx, &models.StagedChange{
			AccountID:      c.AccountID,
			DeviceID:       c.DeviceID,
			UUID:           req.UUID,
			Kind:           models.StagedUpload,
			RemoteFileName: req.RemoteFileName,
			MimeType:       req.MimeType,
			AppMetaData:    req.AppMetaData,
			Version:        req.Version,
			Undelete:       req.Undelete,
			SizeBytes:      int64(len(req.Data)),
			Checksum:       cryptox.Checksum(req.Data),
			StorageKey:     key,
		})
	})
	if err != nil {
		s.deleteBlobs(ctx, []string{key})
		return err
	}

	if replaced != "" {
		s.deleteBlobs(ctx, []string{replaced})
	}
	s.log.Debug(ctx, "upload staged", "account", c.AccountID, "uuid", req.UUID, "version", req.Version)
	return nil
}

// DeleteFiles stages deletions. Each file must be live at the given version.
func (s *SyncService) DeleteFiles(ctx context.Context, c Caller, reqs []DeleteRequest) error {
	return s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := s.requireLock(ctx, r, c); err != nil {
			return err
		}

		for _, d := range reqs {
			f, err := r.Files.Get(ctx, c.AccountID, d.UUID)
			if errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("%w: delete of unknown file %s", common.ErrIncorrectRequest, d.UUID)
			}
			if err != nil {
				return err
			}
			if f.Deleted {
				return fmt.Errorf("%w: %s", common.ErrFileDeleted, d.UUID)
			}
			if f.Version != d.Version {
				return fmt.Errorf("%w: %s is at version %d", common.ErrVersionConflict, d.UUID, f.Version)
			}

			err = r.Staging.Put(ctx, &models.StagedChange{
				AccountID: c.AccountID,
				DeviceID:  c.DeviceID,
				UUID:      d.UUID,
				Kind:      models.StagedDeletion,
				Version:   d.Version,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// FinishUploads applies everything the caller staged as one change of the
// index and releases the lock. It fails with common.ErrVersionConflict when
// the index moved past expectedIndexVersion. Failures while applying are
// reported through the returned operation.
func (s *SyncService) FinishUploads(ctx context.Context, c Caller, expectedIndexVersion int64) (string, error) {
	op := &models.Operation{
		ID:        uuid.NewString(),
		AccountID: c.AccountID,
		DeviceID:  c.DeviceID,
		Status:    common.OperationStatusSuccessfulCompletion,
		CreatedAt: s.now(),
	}

	var superseded []string
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := s.requireLock(ctx, r, c); err != nil {
			return err
		}
		cur, err := r.Accounts.IndexVersion(ctx, c.AccountID)
		if err != nil {
			return err
		}
		if cur != expectedIndexVersion {
			return fmt.Errorf("%w: index is at version %d, expected %d", common.ErrVersionConflict, cur, expectedIndexVersion)
		}

		staged, err := r.Staging.List(ctx, c.AccountID, c.DeviceID)
		if err != nil {
			return err
		}
		if superseded, err = s.apply(ctx, r, staged); err != nil {
			return err
		}
		for _, sc := range staged {
			if sc.Kind != models.StagedDownload {
				op.Count++
			}
		}
		if op.Count > 0 {
			if _, err := r.Accounts.IncrementIndexVersion(ctx, c.AccountID); err != nil {
				return err
			}
		}

		if err := r.Staging.DeleteAll(ctx, c.AccountID, c.DeviceID); err != nil {
			return err
		}
		// блокировка снимается вместе с применением изменений
		if err := r.Locks.Delete(ctx, c.AccountID); err != nil {
			return err
		}
		return r.Operations.Create(ctx, op)
	})

	var applyErr *applyError
	if errors.As(err, &applyErr) {
		s.log.Warn(ctx, "finish uploads failed", "account", c.AccountID, "error", applyErr.err)
		op.Status = common.OperationStatusFailedAfterTransfer
		op.Count = 0
		op.Error = applyErr.err.Error()
		if err := s.repos.Repos().Operations.Create(ctx, op); err != nil {
			return "", err
		}
		return op.ID, nil
	}
	if err != nil {
		return "", err
	}

	s.deleteBlobs(ctx, superseded)
	s.log.Info(ctx, "uploads finished", "account", c.AccountID, "device", c.DeviceID, "operations", op.Count)
	return op.ID, nil
}

type applyError struct {
	err error
}

func (e *applyError) Error() string { return e.err.Error() }
func (e *applyError) Unwrap() error { return e.err }

// apply writes staged uploads and deletions to the index and returns the
// blob keys the new versions replaced.
func (s *SyncService) apply(ctx context.Context, r *repomanager.Repositories, staged []*models.StagedChange) ([]string, error) {
	var superseded []string
	now := s.now().UTC()

	for _, sc := range staged {
		if sc.Kind == models.StagedDownload {
			continue
		}

		f, err := r.Files.Get(ctx, sc.AccountID, sc.UUID)
		if errors.Is(err, common.ErrorNotFound) {
			f, err = nil, nil
		}
		if err != nil {
			return nil, err
		}

		switch sc.Kind {
		case models.StagedUpload:
			if err := checkUpload(f, &UploadRequest{UUID: sc.UUID, Version: sc.Version, Undelete: sc.Undelete}); err != nil {
				return nil, &applyError{err: err}
			}
			other, err := r.Files.FindActiveByName(ctx, sc.AccountID, sc.RemoteFileName)
			if err == nil && other.UUID != sc.UUID {
				return nil, &applyError{err: fmt.Errorf("%w: %q", common.ErrConflictingName, sc.RemoteFileName)}
			}
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return nil, err
			}
			if f != nil && f.StorageKey != "" {
				superseded = append(superseded, f.StorageKey)
			}

			err = r.Files.Upsert(ctx, &models.File{
				AccountID:      sc.AccountID,
				UUID:           sc.UUID,
				RemoteFileName: sc.RemoteFileName,
				MimeType:       sc.MimeType,
				AppMetaData:    sc.AppMetaData,
				Version:        sc.Version,
				SizeBytes:      sc.SizeBytes,
				Checksum:       sc.Checksum,
				StorageKey:     sc.StorageKey,
				UpdatedAt:      now,
			})
			if err != nil {
				return nil, err
			}

		case models.StagedDeletion:
			if f == nil || f.Deleted || f.Version != sc.Version {
				return nil, &applyError{err: fmt.Errorf("%w: deletion of %s", common.ErrVersionConflict, sc.UUID)}
			}
			f.Deleted = true
			f.UpdatedAt = now
			if err := r.Files.Upsert(ctx, f); err != nil {
				return nil, err
			}
		}
	}
	return superseded, nil
}

func (s *SyncService) CheckOperationStatus(ctx context.Context, c Caller, id string) (*models.Operation, error) {
	return s.repos.Repos().Operations.Get(ctx, c.AccountID, id)
}

func (s *SyncService) RemoveOperationID(ctx context.Context, c Caller, id string) error {
	return s.repos.Repos().Operations.Delete(ctx, c.AccountID, id)
}

// SetupInboundTransfer prepares live files for download by the caller and
// returns how many were prepared.
func (s *SyncService) SetupInboundTransfer(ctx context.Context, c Caller, uuids []string) (int, error) {
	n := 0
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		n = 0
		if err := s.requireLock(ctx, r, c); err != nil {
			return err
		}
		for _, id := range uuids {
			f, err := r.Files.Get(ctx, c.AccountID, id)
			if errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("%w: download of unknown file %s", common.ErrIncorrectRequest, id)
			}
			if err != nil {
				return err
			}
			if f.Deleted {
				return fmt.Errorf("%w: %s", common.ErrFileDeleted, id)
			}

			err = r.Staging.Put(ctx, &models.StagedChange{
				AccountID:  c.AccountID,
				DeviceID:   c.DeviceID,
				UUID:       id,
				Kind:       models.StagedDownload,
				Version:    f.Version,
				SizeBytes:  f.SizeBytes,
				Checksum:   f.Checksum,
				StorageKey: f.StorageKey,
			})
			if err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// DownloadFile returns a file prepared by SetupInboundTransfer, as it was
// when it was prepared.
func (s *SyncService) DownloadFile(ctx context.Context, c Caller, fileUUID string) (*models.File, []byte, error) {
	var (
		f  *models.File
		sc *models.StagedChange
	)
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := s.requireLock(ctx, r, c); err != nil {
			return err
		}
		var err error
		if sc, err = r.Staging.Get(ctx, c.AccountID, c.DeviceID, fileUUID, models.StagedDownload); err != nil {
			return err
		}
		f, err = r.Files.Get(ctx, c.AccountID, fileUUID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	data, err := s.blobs.Get(ctx, sc.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("load blob of %s: %w", fileUUID, err)
	}
	if sc.Checksum != "" && cryptox.Checksum(data) != sc.Checksum {
		return nil, nil, fmt.Errorf("%w: stored blob of %s", common.ErrChecksumMismatch, fileUUID)
	}

	out := *f
	out.Version = sc.Version
	out.SizeBytes = sc.SizeBytes
	out.Checksum = sc.Checksum
	return &out, data, nil
}

// Cleanup forgets everything the caller left behind: staging, operation ids
// and its lock. It succeeds when there is nothing to clean.
func (s *SyncService) Cleanup(ctx context.Context, c Caller) error {
	var orphaned []string
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		if orphaned, err = s.dropStaging(ctx, r, c.AccountID, c.DeviceID); err != nil {
			return err
		}
		if err := r.Operations.DeleteForDevice(ctx, c.AccountID, c.DeviceID); err != nil {
			return err
		}

		l, err := r.Locks.Get(ctx, c.AccountID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			return nil
		case err != nil:
			return err
		case l.DeviceID == c.DeviceID:
			return r.Locks.Delete(ctx, c.AccountID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.deleteBlobs(ctx, orphaned)
	s.log.Info(ctx, "device state cleaned up", "account", c.AccountID, "device", c.DeviceID)
	return nil
}

// ReapExpiredLocks releases expired locks together with their staging.
func (s *SyncService) ReapExpiredLocks(ctx context.Context) (int, error) {
	expired, err := s.repos.Repos().Locks.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	n := 0
	for _, l := range expired {
		var orphaned []string
		err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
			cur, err := r.Locks.Get(ctx, l.AccountID)
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			// могли продлить после выборки
			if cur.DeviceID != l.DeviceID || !cur.Expired(s.now()) {
				return nil
			}
			if orphaned, err = s.dropStaging(ctx, r, l.AccountID, l.DeviceID); err != nil {
				return err
			}
			n++
			return r.Locks.Delete(ctx, l.AccountID)
		})
		if err != nil {
			return n, err
		}
		s.deleteBlobs(ctx, orphaned)
		s.log.Info(ctx, "expired lock released", "account", l.AccountID, "device", l.DeviceID)
	}
	return n, nil
}
