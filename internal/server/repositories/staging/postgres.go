package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/dbx"
	"github.com/dmitrijs2005/syncserver/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `account_id, device_id, uuid, kind, remote_file_name, mime_type, app_meta_data, version,
	undelete, size_bytes, checksum, storage_key`

type scanner interface {
	Scan(dest ...any) error
}

func scanChange(s scanner) (*models.StagedChange, error) {
	var (
		c    models.StagedChange
		meta string
	)
	err := s.Scan(&c.AccountID, &c.DeviceID, &c.UUID, &c.Kind, &c.RemoteFileName, &c.MimeType, &meta,
		&c.Version, &c.Undelete, &c.SizeBytes, &c.Checksum, &c.StorageKey)
	if err != nil {
		return nil, err
	}
	if c.AppMetaData, err = models.DecodeMetaData(meta); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) Put(ctx context.Context, c *models.StagedChange) error {
	meta, err := models.EncodeMetaData(c.AppMetaData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO staging (account_id, device_id, uuid, kind, remote_file_name, mime_type, app_meta_data,
			version, undelete, size_bytes, checksum, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account_id, device_id, uuid, kind)
		DO UPDATE SET
			remote_file_name = EXCLUDED.remote_file_name,
			mime_type = EXCLUDED.mime_type,
			app_meta_data = EXCLUDED.app_meta_data,
			version = EXCLUDED.version,
			undelete = EXCLUDED.undelete,
			size_bytes = EXCLUDED.size_bytes,
			checksum = EXCLUDED.checksum,
			storage_key = EXCLUDED.storage_key`

	_, err = r.db.ExecContext(ctx, query, c.AccountID, c.DeviceID, c.UUID, c.Kind, c.RemoteFileName, c.MimeType,
		meta, c.Version, c.Undelete, c.SizeBytes, c.Checksum, c.StorageKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, accountID, deviceID string) ([]*models.StagedChange, error) {
	query := `SELECT ` + selectColumns + ` FROM staging
		WHERE account_id = $1 AND device_id = $2 ORDER BY kind, uuid`

	rows, err := r.db.QueryContext(ctx, query, accountID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to select staging: %w", err)
	}
	defer rows.Close()

	var result []*models.StagedChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID, deviceID, uuid string,
	kind models.StagedKind) (*models.StagedChange, error) {
	query := `SELECT ` + selectColumns + ` FROM staging
		WHERE account_id = $1 AND device_id = $2 AND uuid = $3 AND kind = $4`

	c, err := scanChange(r.db.QueryRowContext(ctx, query, accountID, deviceID, uuid, kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotStaged
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select staged change: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context, accountID, deviceID string) error {
	query := `DELETE FROM staging WHERE account_id = $1 AND device_id = $2`
	if _, err := r.db.ExecContext(ctx, query, accountID, deviceID); err != nil {
		return fmt.Errorf("failed to delete staging: %w", err)
	}
	return nil
}
