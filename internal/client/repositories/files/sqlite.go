package files

import (
	"context"
	"database/sql"
	"errors"
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

const selectColumns = `uuid, remote_file_name, mime_type, app_meta_data, deleted_state, version,
	size_bytes, checksum, local_path, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.FileRecord, error) {
	var (
		rec       models.FileRecord
		meta      string
		version   sql.NullInt64
		updatedAt int64
	)
	err := s.Scan(&rec.UUID, &rec.RemoteFileName, &rec.MimeType, &meta, &rec.Deleted, &version,
		&rec.SizeBytes, &rec.Checksum, &rec.LocalPath, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.AppMetaData, err = models.DecodeAppMetaData(meta)
	if err != nil {
		return nil, fmt.Errorf("bad app metadata for %s: %w", rec.UUID, err)
	}
	if version.Valid {
		rec.Version = models.Int64(version.Int64)
	}
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rec, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, uuid string) (*models.FileRecord, error) {
	row := r.db.QueryRowContext(ctx, `select `+selectColumns+` from files where uuid=?`, uuid)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", uuid, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) FindByRemoteName(ctx context.Context, name string) (*models.FileRecord, error) {
	row := r.db.QueryRowContext(ctx, `select `+selectColumns+` from files
		where remote_file_name=? and deleted_state=? order by uuid limit 1`, name, models.NotDeleted)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file by name: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.FileRecord) error {
	meta, err := models.EncodeAppMetaData(rec.AppMetaData)
	if err != nil {
		return fmt.Errorf("failed to encode app metadata: %w", err)
	}

	var version sql.NullInt64
	if rec.Version != nil {
		version = sql.NullInt64{Int64: *rec.Version, Valid: true}
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	query := `insert into files (uuid, remote_file_name, mime_type, app_meta_data, deleted_state, version,
			size_bytes, checksum, local_path, updated_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		on conflict(uuid) do update set remote_file_name = excluded.remote_file_name,
			mime_type = excluded.mime_type,
			app_meta_data = excluded.app_meta_data,
			deleted_state = excluded.deleted_state,
			version = excluded.version,
			size_bytes = excluded.size_bytes,
			checksum = excluded.checksum,
			local_path = excluded.local_path,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query, rec.UUID, rec.RemoteFileName, rec.MimeType, meta, rec.Deleted, version,
		rec.SizeBytes, rec.Checksum, rec.LocalPath, rec.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, `select `+selectColumns+` from files order by remote_file_name, uuid`)
	if err != nil {
		return nil, fmt.Errorf("error selecting files: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, uuid string) error {
	_, err := r.db.ExecContext(ctx, `delete from files where uuid=?`, uuid)
	if err != nil {
		return fmt.Errorf("failed to delete file %s: %w", uuid, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `delete from files`); err != nil {
		return fmt.Errorf("failed to clear files: %w", err)
	}
	return nil
}
