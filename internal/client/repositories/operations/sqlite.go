package operations

import (
	"context"
	"database/sql"
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

const selectColumns = `id, batch_id, stage, kind, uuid, source, path, data, remote_file_name, mime_type,
	app_meta_data, size_bytes, undelete, target_version, transferred, created_at`

func (r *SQLiteRepository) Insert(ctx context.Context, op *models.PendingOperation) error {
	meta, err := models.EncodeAppMetaData(op.Attributes.AppMetaData)
	if err != nil {
		return fmt.Errorf("failed to encode app metadata: %w", err)
	}
	if op.Stage == "" {
		op.Stage = models.StagePreparing
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	op.UUID = op.Attributes.UUID

	query := `insert into operations (batch_id, stage, kind, uuid, source, path, data, remote_file_name,
			mime_type, app_meta_data, size_bytes, undelete, target_version, transferred, created_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, op.BatchID, op.Stage, op.Kind, op.UUID, op.Source, op.Path, op.Data,
		op.Attributes.RemoteFileName, op.Attributes.MimeType, meta, op.Attributes.SizeBytes, op.Undelete, nullVersion(op.TargetVersion),
		op.Transferred, op.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}

	op.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get operation id: %w", err)
	}
	return nil
}

func nullVersion(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.PendingOperation, error) {
	rows, err := r.db.QueryContext(ctx, `select `+selectColumns+` from operations where `+where+
		` order by batch_id, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("error selecting operations: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingOperation
	for rows.Next() {
		var (
			op        models.PendingOperation
			meta      string
			target    sql.NullInt64
			createdAt int64
		)
		err := rows.Scan(&op.ID, &op.BatchID, &op.Stage, &op.Kind, &op.UUID, &op.Source, &op.Path, &op.Data,
			&op.Attributes.RemoteFileName, &op.Attributes.MimeType, &meta, &op.Attributes.SizeBytes, &op.Undelete, &target,
			&op.Transferred, &createdAt)
		if err != nil {
			return nil, err
		}

		op.Attributes.UUID = op.UUID
		if op.Attributes.AppMetaData, err = models.DecodeAppMetaData(meta); err != nil {
			return nil, fmt.Errorf("bad app metadata for operation %d: %w", op.ID, err)
		}
		if target.Valid {
			op.TargetVersion = models.Int64(target.Int64)
		}
		op.CreatedAt = time.Unix(createdAt, 0).UTC()
		result = append(result, &op)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) ListByStage(ctx context.Context, stage models.OperationStage) ([]*models.PendingOperation, error) {
	return r.query(ctx, `stage=?`, stage)
}

func (r *SQLiteRepository) ListForUUID(ctx context.Context, uuid string) ([]*models.PendingOperation, error) {
	return r.query(ctx, `uuid=?`, uuid)
}

func (r *SQLiteRepository) DeletePreparingUploads(ctx context.Context, uuid string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from operations where uuid=? and stage=? and kind=?`,
		uuid, models.StagePreparing, models.OperationUpload)
	if err != nil {
		return 0, fmt.Errorf("failed to delete preparing uploads: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) Commit(ctx context.Context) (int64, error) {
	var batch int64
	err := r.db.QueryRowContext(ctx, `select coalesce(max(batch_id), 0) + 1 from operations`).Scan(&batch)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate batch id: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `update operations set stage=?, batch_id=? where stage=?`,
		models.StageCommitted, batch, models.StagePreparing)
	if err != nil {
		return 0, fmt.Errorf("failed to commit operations: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) PromoteNextBatch(ctx context.Context) (int64, error) {
	query := `update operations set stage=?
		where stage=? and batch_id = (select min(batch_id) from operations where stage=?)`
	res, err := r.db.ExecContext(ctx, query, models.StageUploading, models.StageCommitted, models.StageCommitted)
	if err != nil {
		return 0, fmt.Errorf("failed to promote batch: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) SetTarget(ctx context.Context, id int64, version int64, undelete bool) error {
	res, err := r.db.ExecContext(ctx, `update operations set target_version=?, undelete=? where id=?`,
		version, undelete, id)
	if err != nil {
		return fmt.Errorf("failed to set target version: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

func (r *SQLiteRepository) MarkTransferred(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `update operations set transferred=1 where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark operation transferred: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrorNotFound)
}

func (r *SQLiteRepository) MarkUndelete(ctx context.Context, uuid string) error {
	_, err := r.db.ExecContext(ctx, `update operations set undelete=1 where uuid=? and kind=?`,
		uuid, models.OperationUpload)
	if err != nil {
		return fmt.Errorf("failed to mark undelete: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteForUUID(ctx context.Context, uuid string, kind models.OperationKind) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from operations where uuid=? and kind=? and stage<>?`,
		uuid, kind, models.StageUploading)
	if err != nil {
		return 0, fmt.Errorf("failed to delete operations of %s: %w", uuid, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `delete from operations where id=?`, id); err != nil {
		return fmt.Errorf("failed to delete operation %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByStage(ctx context.Context, stage models.OperationStage) error {
	if _, err := r.db.ExecContext(ctx, `delete from operations where stage=?`, stage); err != nil {
		return fmt.Errorf("failed to delete %s operations: %w", stage, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `delete from operations`); err != nil {
		return fmt.Errorf("failed to clear operations: %w", err)
	}
	return nil
}
