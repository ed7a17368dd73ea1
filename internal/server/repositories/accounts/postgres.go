package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncserver/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) IndexVersion(ctx context.Context, accountID string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `SELECT index_version FROM accounts WHERE id = $1`, accountID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to select index version: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) IncrementIndexVersion(ctx context.Context, accountID string) (int64, error) {
	query := `
		INSERT INTO accounts (id, index_version) VALUES ($1, 1)
		ON CONFLICT (id) DO UPDATE SET index_version = accounts.index_version + 1
		RETURNING index_version`

	var v int64
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&v); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}
