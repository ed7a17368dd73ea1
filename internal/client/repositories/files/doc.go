// Package files persists the local file-status records of the sync engine:
// one row per uuid holding the last known SyncAttributes, the content checksum
// and, for downloaded files, where the bytes were materialized.
//
// The SQLite implementation works over dbx.DBTX so the engine can run it
// inside the same transaction as queue updates:
//
//	repo := files.NewSQLiteRepository(tx)
//	rec, err := repo.Get(ctx, uuid)
//	if errors.Is(err, common.ErrorNotFound) { ... }
package files
