package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/dbx"
	"github.com/dmitrijs2005/syncserver/internal/server/models"
)

// PostgresRepository implements file index storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `account_id, uuid, remote_file_name, mime_type, app_meta_data, deleted, version,
	size_bytes, checksum, storage_key, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var (
		f    models.File
		meta string
	)
	err := s.Scan(&f.AccountID, &f.UUID, &f.RemoteFileName, &f.MimeType, &meta, &f.Deleted, &f.Version,
		&f.SizeBytes, &f.Checksum, &f.StorageKey, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if f.AppMetaData, err = models.DecodeMetaData(meta); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID, uuid string) (*models.File, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE account_id = $1 AND uuid = $2`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, accountID, uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) FindActiveByName(ctx context.Context, accountID, name string) (*models.File, error) {
	query := `SELECT ` + selectColumns + ` FROM files
		WHERE account_id = $1 AND remote_file_name = $2 AND NOT deleted`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, accountID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

// List returns the whole index of an account ordered by uuid.
func (r *PostgresRepository) List(ctx context.Context, accountID string) ([]*models.File, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE account_id = $1 ORDER BY uuid`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Upsert inserts or replaces the file keyed by (account_id, uuid).
func (r *PostgresRepository) Upsert(ctx context.Context, f *models.File) error {
	meta, err := models.EncodeMetaData(f.AppMetaData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO files (account_id, uuid, remote_file_name, mime_type, app_meta_data, deleted, version,
			size_bytes, checksum, storage_key, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (account_id, uuid)
		DO UPDATE SET
			remote_file_name = EXCLUDED.remote_file_name,
			mime_type = EXCLUDED.mime_type,
			app_meta_data = EXCLUDED.app_meta_data,
			deleted = EXCLUDED.deleted,
			version = EXCLUDED.version,
			size_bytes = EXCLUDED.size_bytes,
			checksum = EXCLUDED.checksum,
			storage_key = EXCLUDED.storage_key,
			updated_at = EXCLUDED.updated_at`

	res, err := r.db.ExecContext(ctx, query, f.AccountID, f.UUID, f.RemoteFileName, f.MimeType, meta, f.Deleted,
		f.Version, f.SizeBytes, f.Checksum, f.StorageKey, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectRows(res, 1, nil)
}
