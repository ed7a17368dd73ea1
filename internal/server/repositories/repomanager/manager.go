package repomanager

import (
	"context"

	"github.com/dmitrijs2005/syncserver/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/files"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/locks"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/operations"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/staging"
)

// Repositories is one consistent set of server stores, either bound to the
// database or to a running transaction.
type Repositories struct {
	Files      files.Repository
	Locks      locks.Repository
	Staging    staging.Repository
	Operations operations.Repository
	Accounts   accounts.Repository
}

// Manager vends repositories and runs transactions over them.
type Manager interface {
	Repos() *Repositories
	// WithTx runs fn with repositories bound to one transaction; it commits
	// when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, r *Repositories) error) error
	Close() error
}
