package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/syncserver/internal/client/migrations"
	"github.com/dmitrijs2005/syncserver/internal/client/repositories/downloads"
	"github.com/dmitrijs2005/syncserver/internal/client/repositories/files"
	"github.com/dmitrijs2005/syncserver/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/syncserver/internal/client/repositories/operations"
	"github.com/dmitrijs2005/syncserver/internal/dbx"

	_ "modernc.org/sqlite"
)

// Repositories groups the client stores. A set returned by NewRepositories
// owns DB; the set handed to a WithTx callback is bound to the transaction
// and has a nil DB.
type Repositories struct {
	DB         *sql.DB
	Metadata   metadata.Repository
	Files      files.Repository
	Operations operations.Repository
	Downloads  downloads.Repository
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := migrations.Up(ctx, db); err != nil {
		return fmt.Errorf("failed to migrate client database: %w", err)
	}
	return nil
}

// InitDatabase opens the SQLite database at dsn and applies migrations.
// SQLite allows a single writer, so the pool is limited to one connection.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func bind(db dbx.DBTX) *Repositories {
	return &Repositories{
		Metadata:   metadata.NewSQLiteRepository(db),
		Files:      files.NewSQLiteRepository(db),
		Operations: operations.NewSQLiteRepository(db),
		Downloads:  downloads.NewSQLiteRepository(db),
	}
}

func NewRepositories(db *sql.DB) *Repositories {
	r := bind(db)
	r.DB = db
	return r
}

// WithTx runs fn with repositories bound to one transaction. fn must not use
// the outer set: with a single connection that would block forever.
func (r *Repositories) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Repositories) error) error {
	return dbx.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, bind(tx))
	})
}

func (r *Repositories) Close() error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}
