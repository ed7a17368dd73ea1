package engine

import (
	"context"

	"github.com/dmitrijs2005/syncserver/internal/client/client"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
)

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// UploadImmutableFile queues an upload of a host-owned file. The file is read
// again at transfer time and must not change until the upload completes.
func (s *Session) UploadImmutableFile(ctx context.Context, path string, attrs models.SyncAttributes) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.queue.EnqueueUpload(ctx, models.SourceImmutable, path, nil, attrs)
}

// UploadTemporaryFile queues an upload of a file the session removes once the
// server confirmed it.
func (s *Session) UploadTemporaryFile(ctx context.Context, path string, attrs models.SyncAttributes) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.queue.EnqueueUpload(ctx, models.SourceTemporary, path, nil, attrs)
}

func (s *Session) UploadData(ctx context.Context, data []byte, attrs models.SyncAttributes) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.queue.EnqueueUpload(ctx, models.SourceData, "", data, attrs)
}

func (s *Session) DeleteFile(ctx context.Context, uuid string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.queue.EnqueueDelete(ctx, uuid)
}

// Commit seals queued operations into a batch and schedules a sync pass.
// With nothing queued it only reports NoFilesToUpload.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	n, err := s.queue.Commit(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		s.notify.event(NoFilesToUpload{})
		return nil
	}
	s.trigger()
	return nil
}

// NextSyncOperation schedules a sync pass: finish in-flight work, then look
// for server changes and committed batches.
func (s *Session) NextSyncOperation() {
	s.trigger()
}

// ResetFromError leaves an error mode by dropping local pipeline state. The
// reset runs asynchronously; its end is reported as a change to ModeIdle.
// allowDebugReset permits a reset outside error modes.
func (s *Session) ResetFromError(allowDebugReset bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.resetting:
		return ErrResetAlreadyInProgress
	case !s.mode.IsError() && !allowDebugReset:
		return ErrNotInErrorMode
	}
	s.resetting = true

	select {
	case s.resetCh <- struct{}{}:
	default:
	}
	return nil
}

// LocalFileStatus returns what the session knows about uuid, or nil when it
// knows nothing.
func (s *Session) LocalFileStatus(ctx context.Context, uuid string) (*models.SyncAttributes, error) {
	rec, err := getRecord(ctx, s.repos, uuid)
	if err != nil || rec == nil {
		return nil, err
	}
	attrs := rec.SyncAttributes
	return &attrs, nil
}

// LocalFiles lists every file the session has a record for.
func (s *Session) LocalFiles(ctx context.Context) ([]models.SyncAttributes, error) {
	recs, err := s.repos.Files.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.SyncAttributes, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.SyncAttributes)
	}
	return out, nil
}

type ResetType int

const (
	// ResetDeleteMetaData forgets the local record, so the next pass
	// downloads the file again.
	ResetDeleteMetaData ResetType = iota
	// ResetUndelete clears the local deletion flag.
	ResetUndelete
	// ResetDecrementVersion steps the local version back by one.
	ResetDecrementVersion
)

// ResetMetaData rewrites local records for debugging and tests. An empty uuid
// applies to every record.
func (s *Session) ResetMetaData(ctx context.Context, uuid string, rt ResetType) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.repos.WithTx(ctx, func(ctx context.Context, tx *client.Repositories) error {
		var recs []*models.FileRecord
		if uuid == "" {
			all, err := tx.Files.List(ctx)
			if err != nil {
				return err
			}
			recs = all
		} else {
			rec, err := getRecord(ctx, tx, uuid)
			if err != nil {
				return err
			}
			if rec == nil {
				return ErrUnknownFile
			}
			recs = append(recs, rec)
		}

		for _, rec := range recs {
			switch rt {
			case ResetDeleteMetaData:
				if err := tx.Files.Delete(ctx, rec.UUID); err != nil {
					return err
				}
				continue
			case ResetUndelete:
				rec.Deleted = models.NotDeleted
			case ResetDecrementVersion:
				switch {
				case rec.Version == nil:
				case *rec.Version == 0:
					rec.Version = nil
				default:
					rec.Version = models.Int64(*rec.Version - 1)
				}
			}
			rec.UpdatedAt = models.Now()
			if err := tx.Files.Upsert(ctx, rec); err != nil {
				return err
			}
		}
		s.log.Info(ctx, "local metadata reset", "uuid", uuid, "type", rt, "records", len(recs))
		return nil
	})
}
