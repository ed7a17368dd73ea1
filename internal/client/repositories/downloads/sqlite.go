package downloads

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, op *models.DownloadOperation) error {
	meta, err := models.EncodeAppMetaData(op.Server.AppMetaData)
	if err != nil {
		return fmt.Errorf("failed to encode app metadata: %w", err)
	}
	if op.Stage == "" {
		op.Stage = models.DownloadPlanned
	}
	op.UUID = op.Server.UUID

	query := `insert into downloads (kind, uuid, remote_file_name, mime_type, app_meta_data, deleted, version,
			last_modified, size_bytes, checksum, stage, local_path, conflict, conflicting_operation)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		on conflict(uuid) do update set kind = excluded.kind,
			remote_file_name = excluded.remote_file_name,
			mime_type = excluded.mime_type,
			app_meta_data = excluded.app_meta_data,
			deleted = excluded.deleted,
			version = excluded.version,
			last_modified = excluded.last_modified,
			size_bytes = excluded.size_bytes,
			checksum = excluded.checksum,
			stage = excluded.stage,
			local_path = excluded.local_path,
			conflict = excluded.conflict,
			conflicting_operation = excluded.conflicting_operation
		returning id`

	err = r.db.QueryRowContext(ctx, query, op.Kind, op.UUID, op.Server.RemoteFileName, op.Server.MimeType, meta,
		op.Server.Deleted, op.Server.Version, op.Server.LastModified.Unix(), op.Server.SizeBytes,
		op.Server.Checksum, op.Stage, op.LocalPath, op.Conflict, op.ConflictingOperation).Scan(&op.ID)
	if err != nil {
		return fmt.Errorf("failed to insert download: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.DownloadOperation, error) {
	query := `select id, kind, uuid, remote_file_name, mime_type, app_meta_data, deleted, version,
			last_modified, size_bytes, checksum, stage, local_path, conflict, conflicting_operation
		from downloads order by id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error selecting downloads: %w", err)
	}
	defer rows.Close()

	var result []*models.DownloadOperation
	for rows.Next() {
		var (
			op           models.DownloadOperation
			meta         string
			lastModified int64
		)
		err := rows.Scan(&op.ID, &op.Kind, &op.UUID, &op.Server.RemoteFileName, &op.Server.MimeType, &meta,
			&op.Server.Deleted, &op.Server.Version, &lastModified, &op.Server.SizeBytes, &op.Server.Checksum,
			&op.Stage, &op.LocalPath, &op.Conflict, &op.ConflictingOperation)
		if err != nil {
			return nil, err
		}

		op.Server.UUID = op.UUID
		op.Server.LastModified = time.Unix(lastModified, 0).UTC()
		if op.Server.AppMetaData, err = models.DecodeAppMetaData(meta); err != nil {
			return nil, fmt.Errorf("bad app metadata for download %d: %w", op.ID, err)
		}
		result = append(result, &op)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) HasPending(ctx context.Context) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `select count(*) from downloads`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count downloads: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) SetConflict(ctx context.Context, id int64, state models.ConflictState) error {
	res, err := r.db.ExecContext(ctx, `update downloads set conflict=? where id=?`, state, id)
	if err != nil {
		return fmt.Errorf("failed to set conflict state: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

func (r *SQLiteRepository) MarkMaterialized(ctx context.Context, id int64, localPath string) error {
	res, err := r.db.ExecContext(ctx, `update downloads set stage=?, local_path=? where id=?`,
		models.DownloadMaterialized, localPath, id)
	if err != nil {
		return fmt.Errorf("failed to mark download materialized: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `delete from downloads where id=?`, id); err != nil {
		return fmt.Errorf("failed to delete download %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `delete from downloads`); err != nil {
		return fmt.Errorf("failed to clear downloads: %w", err)
	}
	return nil
}
