package engine

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/syncserver/internal/client/client"
	"github.com/dmitrijs2005/syncserver/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/logging"
)

// serverLock coordinates the per-account server lock. held mirrors what this
// session believes; the server stays the authority, so Release always asks it.
type serverLock struct {
	remote client.Client
	meta   metadata.Repository
	log    logging.Logger
	held   bool
}

// Ensure acquires the lock unless this pass already holds it. A lock held by
// another device is reported as common.ErrLockAlreadyHeld.
func (l *serverLock) Ensure(ctx context.Context) error {
	if l.held {
		return nil
	}
	if err := l.remote.Lock(ctx); err != nil {
		return err
	}
	l.held = true
	l.persist(ctx, true)
	l.log.Debug(ctx, "server lock acquired")
	return nil
}

// Release unlocks on the server. A lock that is already gone (auto-released
// after finishUploads, expired, or released before a crash) is not an error.
func (l *serverLock) Release(ctx context.Context) error {
	err := l.remote.Unlock(ctx)
	if err != nil && !errors.Is(err, common.ErrLockNotHeld) {
		return err
	}
	l.held = false
	l.persist(ctx, false)
	l.log.Debug(ctx, "server lock released")
	return nil
}

// released records that the server dropped the lock on its own.
func (l *serverLock) released(ctx context.Context) {
	l.held = false
	l.persist(ctx, false)
}

func (l *serverLock) forget() {
	l.held = false
}

func (l *serverLock) persist(ctx context.Context, held bool) {
	if err := metadata.SetBool(ctx, l.meta, keyLockHeld, held); err != nil {
		l.log.Warn(ctx, "failed to persist lock flag", "error", err)
	}
}
