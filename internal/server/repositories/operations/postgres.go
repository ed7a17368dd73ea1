package operations

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

func (r *PostgresRepository) Create(ctx context.Context, op *models.Operation) error {
	query := `INSERT INTO operations (id, account_id, device_id, status, count, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query, op.ID, op.AccountID, op.DeviceID, op.Status, op.Count, op.Error, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID, id string) (*models.Operation, error) {
	query := `SELECT id, account_id, device_id, status, count, error, created_at FROM operations
		WHERE account_id = $1 AND id = $2`

	op := &models.Operation{}
	err := r.db.QueryRowContext(ctx, query, accountID, id).
		Scan(&op.ID, &op.AccountID, &op.DeviceID, &op.Status, &op.Count, &op.Error, &op.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select operation: %w", err)
	}
	return op, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, accountID, id string) error {
	query := `DELETE FROM operations WHERE account_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, accountID, id)
	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrOperationNotFound)
}

func (r *PostgresRepository) DeleteForDevice(ctx context.Context, accountID, deviceID string) error {
	query := `DELETE FROM operations WHERE account_id = $1 AND device_id = $2`
	if _, err := r.db.ExecContext(ctx, query, accountID, deviceID); err != nil {
		return fmt.Errorf("failed to delete operations: %w", err)
	}
	return nil
}
