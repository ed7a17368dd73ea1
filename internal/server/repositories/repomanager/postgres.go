// Package repomanager provides the RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/syncserver/internal/dbx"
	"github.com/dmitrijs2005/syncserver/internal/server/migrations"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/files"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/locks"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/operations"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/staging"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresManager vends PostgreSQL-backed repositories.
type PostgresManager struct {
	db *sql.DB
}

func NewPostgresManager(db *sql.DB) *PostgresManager {
	return &PostgresManager{db: db}
}

// OpenPostgres connects to dsn through pgx and applies the migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m := NewPostgresManager(db)
	if err := m.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return m, nil
}

func bind(db dbx.DBTX) *Repositories {
	return &Repositories{
		Files:      files.NewPostgresRepository(db),
		Locks:      locks.NewPostgresRepository(db),
		Staging:    staging.NewPostgresRepository(db),
		Operations: operations.NewPostgresRepository(db),
		Accounts:   accounts.NewPostgresRepository(db),
	}
}

func (m *PostgresManager) Repos() *Repositories {
	return bind(m.db)
}

func (m *PostgresManager) WithTx(ctx context.Context, fn func(ctx context.Context, r *Repositories) error) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, bind(tx))
	})
}

func (m *PostgresManager) Close() error {
	return m.db.Close()
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them.
func (m *PostgresManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, m.db, ".")
}
