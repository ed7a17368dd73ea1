package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/syncserver/internal/client/client"
	"github.com/dmitrijs2005/syncserver/internal/client/config"
	"github.com/dmitrijs2005/syncserver/internal/client/engine"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dmitrijs2005/syncserver/internal/logging"
	"github.com/spf13/afero"
)

// syncSession is the part of engine.Session the commands drive.
type syncSession interface {
	Start(ctx context.Context) error
	Close() error
	UploadImmutableFile(ctx context.Context, path string, attrs models.SyncAttributes) error
	UploadTemporaryFile(ctx context.Context, path string, attrs models.SyncAttributes) error
	UploadData(ctx context.Context, data []byte, attrs models.SyncAttributes) error
	DeleteFile(ctx context.Context, uuid string) error
	Commit(ctx context.Context) error
	NextSyncOperation()
	ResetFromError(allowDebugReset bool) error
	LocalFileStatus(ctx context.Context, uuid string) (*models.SyncAttributes, error)
	LocalFiles(ctx context.Context) ([]models.SyncAttributes, error)
	ResetMetaData(ctx context.Context, uuid string, rt engine.ResetType) error
	Mode() engine.Mode
	LastError() error
}

type App struct {
	config   *config.Config
	session  syncSession
	delegate *consoleDelegate
	reader   *bufio.Reader
	out      io.Writer
	closers  []func() error
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn
	}
	return l
}

// deviceID falls back to the host name so a fresh install needs no setup.
func deviceID(c *config.Config) (string, error) {
	if c.DeviceID != "" {
		return c.DeviceID, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("no device id configured: %w", err)
	}
	return host, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if c.AccessToken == "" {
		return nil, errors.New("access token is required (-t or access_token)")
	}
	device, err := deviceID(c)
	if err != nil {
		return nil, err
	}

	log := logging.New(os.Stderr, parseLevel(c.LogLevel)).With("device", device)
	out := &lockedWriter{w: os.Stdout}

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Error(ctx, "error initializing database", "path", c.DatabasePath, "error", err)
		return nil, err
	}

	remote, err := client.NewGRPCClient(c.ServerEndpointAddr, c.AccessToken, device)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	delegate := newConsoleDelegate(out, c.ConflictPolicy)
	session := engine.NewSession(client.NewRepositories(db), remote, afero.NewOsFs(), delegate, engine.Config{
		DownloadDir:         c.DownloadDir,
		MaxAttempts:         c.MaxAttempts,
		RetryBaseDelay:      c.RetryBaseDelay,
		StatusPollInterval:  c.StatusPollInterval,
		OnlineCheckInterval: c.OnlineCheckInterval,
	}, engine.WithLogger(log))

	return &App{
		config:   c,
		session:  session,
		delegate: delegate,
		reader:   bufio.NewReader(os.Stdin),
		out:      out,
		closers:  []func() error{session.Close, remote.Close, db.Close},
	}, nil
}

// Run starts the session and blocks in the REPL until the user exits.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.session.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Sync client (type 'help' for commands)")
	runREPL(ctx, a, a.prompt, a.reader, a.out)
	return nil
}

func (a *App) close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func (a *App) prompt() string {
	return a.session.Mode().String()
}
