// Package server wires the sync server: configuration, index and blob
// storage, the gRPC endpoint and the expired lock reaper.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/logging"
	"github.com/dmitrijs2005/syncserver/internal/server/blobstore"
	"github.com/dmitrijs2005/syncserver/internal/server/config"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/memory"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/syncserver/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/syncserver/internal/server/grpc"
)

const blobKeySalt = "syncserver/blobstore"

type App struct {
	config      *config.Config
	logger      logging.Logger
	repos       repomanager.Manager
	syncService *services.SyncService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, slog.LevelInfo)

	repos, err := openRepositories(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	blobs, err := openBlobStore(ctx, c)
	if err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	ss := services.NewSyncService(repos, blobs, c.LockTimeout, logger)

	return &App{config: c, logger: logger, repos: repos, syncService: ss}, nil
}

func openRepositories(ctx context.Context, c *config.Config) (repomanager.Manager, error) {
	if c.DatabaseDSN == "" {
		return memory.NewManager(), nil
	}
	return repomanager.OpenPostgres(ctx, c.DatabaseDSN)
}

// openBlobStore builds the store chain: compression over encryption over
// the backend, so content is compressed before it is sealed.
func openBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	var store blobstore.Store
	if c.S3Bucket == "" {
		store = blobstore.NewMemoryStore()
	} else {
		s3, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			return nil, err
		}
		store = s3
	}

	if c.BlobPassphrase != "" {
		store = blobstore.NewEncrypted(store, c.BlobPassphrase, blobKeySalt)
	}
	if c.CompressBlobs {
		z, err := blobstore.NewCompressed(store)
		if err != nil {
			return nil, err
		}
		store = z
	}
	return store, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// reapLocks releases expired locks until ctx is done.
func (app *App) reapLocks(ctx context.Context) error {
	if app.config.LockReapInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(app.config.LockReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := app.syncService.ReapExpiredLocks(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Error(ctx, "lock reaper failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired locks released", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.syncService, app.config.SecretKey)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error { return app.reapLocks(gctx) })

	err := g.Wait()
	if cerr := app.repos.Close(); cerr != nil {
		app.logger.Error(ctx, "closing repositories", "error", cerr)
	}
	return err
}
