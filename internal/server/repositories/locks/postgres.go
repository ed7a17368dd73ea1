package locks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Get(ctx context.Context, accountID string) (*models.Lock, error) {
	query := `SELECT account_id, device_id, expires_at FROM locks WHERE account_id = $1`

	l := &models.Lock{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&l.AccountID, &l.DeviceID, &l.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select lock: %w", err)
	}
	return l, nil
}

func (r *PostgresRepository) Put(ctx context.Context, l *models.Lock) error {
	query := `
		INSERT INTO locks (account_id, device_id, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (account_id)
		DO UPDATE SET device_id = EXCLUDED.device_id, expires_at = EXCLUDED.expires_at`

	if _, err := r.db.ExecContext(ctx, query, l.AccountID, l.DeviceID, l.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, accountID string) error {
	query := `DELETE FROM locks WHERE account_id = $1`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.Lock, error) {
	query := `SELECT account_id, device_id, expires_at FROM locks WHERE expires_at <= $1 ORDER BY account_id`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select locks: %w", err)
	}
	defer rows.Close()

	var result []*models.Lock
	for rows.Next() {
		l := &models.Lock{}
		if err := rows.Scan(&l.AccountID, &l.DeviceID, &l.ExpiresAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
