package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/client/client"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dmitrijs2005/syncserver/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/logging"
	"github.com/spf13/afero"
)

// Metadata keys holding the pipeline position between runs.
const (
	keyMode              = "sync.mode"
	keyLastError         = "sync.last_error"
	keyLockHeld          = "sync.lock_held"
	keyOutboundOperation = "upload.operation_id"
	keyFinishing         = "upload.finishing"
	keyInboundReported   = "download.inbound_reported"
)

// values of keyLastError
const (
	originClient = "client"
	originServer = "server"
)

type Config struct {
	// DownloadDir receives materialized downloads, one file per uuid.
	DownloadDir string
	// MaxAttempts bounds how many times a failing step is driven before
	// the session gives up and enters an error mode.
	MaxAttempts         int
	RetryBaseDelay      time.Duration
	StatusPollInterval  time.Duration
	OnlineCheckInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DownloadDir == "" {
		c.DownloadDir = "downloads"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.StatusPollInterval <= 0 {
		c.StatusPollInterval = 500 * time.Millisecond
	}
	if c.OnlineCheckInterval <= 0 {
		c.OnlineCheckInterval = 5 * time.Second
	}
	return c
}

// deps is what every part of the pipeline shares.
type deps struct {
	repos  *client.Repositories
	remote client.Client
	fs     afero.Fs
	lock   *serverLock
	faults *Faults
	notify *notifier
	cfg    Config
	log    logging.Logger
}

type Option func(*Session)

// WithFaults arms fault injection, used by crash-recovery tests.
func WithFaults(f *Faults) Option {
	return func(s *Session) { s.faults = f }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session is the sync state machine of one account on one device. It owns
// the worker goroutine that sequences the upload and download engines.
type Session struct {
	*deps

	queue     *OperationQueue
	uploads   *uploadEngine
	downloads *downloadEngine

	mu        sync.Mutex
	mode      Mode
	lastErr   error
	resetting bool
	started   bool
	closed    bool

	kick    chan struct{}
	resetCh chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSession wires a session over the local database and the server client.
// Delegate calls start flowing immediately; the worker starts with Start.
func NewSession(repos *client.Repositories, remote client.Client, fsys afero.Fs, delegate Delegate,
	cfg Config, opts ...Option) *Session {
	d := &deps{
		repos:  repos,
		remote: remote,
		fs:     fsys,
		cfg:    cfg.withDefaults(),
		log:    logging.NewNop(),
	}
	s := &Session{
		deps:    d,
		kick:    make(chan struct{}, 1),
		resetCh: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}

	s.log = s.log.With("module", "engine")
	s.lock = &serverLock{remote: remote, meta: repos.Metadata, log: s.log}
	s.notify = newNotifier(delegate)
	s.queue = &OperationQueue{repos: repos, fs: fsys, log: s.log}
	s.uploads = &uploadEngine{deps: d}
	s.downloads = &downloadEngine{deps: d}

	go s.notify.run()
	return s
}

// Start restores the persisted mode and launches the worker. A session that
// stopped mid-pass resumes it right away.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if state, err := s.repos.Metadata.Snapshot(ctx); err == nil && len(state) > 0 {
		s.log.Debug(ctx, "persisted sync state", "state", state)
	}

	v, err := metadata.GetInt64(ctx, s.repos.Metadata, keyMode)
	if err != nil {
		return fmt.Errorf("load sync mode: %w", err)
	}
	held, err := metadata.GetBool(ctx, s.repos.Metadata, keyLockHeld)
	if err != nil {
		return fmt.Errorf("load lock flag: %w", err)
	}

	switch m := Mode(v); {
	case m.IsError(), m == ModeNetworkNotConnected:
		s.mu.Lock()
		s.mode = m
		s.mu.Unlock()
		s.notify.mode(m, nil)
		s.log.Info(ctx, "restored mode", "mode", m)

	case m == ModeResettingFromError:
		s.mu.Lock()
		s.mode = ModeInternalError
		s.resetting = true
		s.mu.Unlock()
		s.resetCh <- struct{}{}
		s.log.Info(ctx, "resuming interrupted reset")

	case m == ModeSynchronizing:
		s.log.Info(ctx, "resuming interrupted sync pass", "lock_held", held)
		s.notify.event(Recovery{Step: "relaunch"})
		s.trigger()
	}

	wctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(wctx)
	return nil
}

// Close stops the worker, waits for it and flushes pending delegate calls.
// The local database and the client stay open; they belong to the caller.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.notify.close()
	return nil
}

func (s *Session) trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()

	online := time.NewTicker(s.cfg.OnlineCheckInterval)
	defer online.Stop()

	for {
		var crashed bool
		select {
		case <-ctx.Done():
			return
		case <-s.resetCh:
			s.reset(ctx)
		case <-s.kick:
			crashed = s.process(ctx)
		case <-online.C:
			if s.Mode() != ModeNetworkNotConnected {
				continue
			}
			if err := s.remote.Ping(ctx); err != nil {
				s.log.Debug(ctx, "server still unreachable", "error", err)
				continue
			}
			s.notify.event(Recovery{Step: "network"})
			crashed = s.process(ctx)
		}
		if crashed {
			return
		}
	}
}

// process runs one sync pass. It reports true when a simulated crash stopped
// the worker.
func (s *Session) process(ctx context.Context) bool {
	m := s.Mode()
	if m.IsError() || m == ModeResettingFromError {
		s.log.Debug(ctx, "sync pass skipped", "mode", m)
		return false
	}

	s.setMode(ctx, ModeSynchronizing, nil)
	err := s.drive(ctx)
	switch {
	case err == nil:
		s.setMode(ctx, ModeIdle, nil)
	case errors.Is(err, ErrSimulatedCrash):
		s.log.Warn(ctx, "worker stopped", "error", err)
		return true
	case ctx.Err() != nil:
	default:
		s.fail(ctx, err)
	}
	return false
}

// phaseError tags an error with the engine that produced it.
type phaseError struct {
	phase string
	err   error
}

func (e *phaseError) Error() string { return e.phase + ": " + e.err.Error() }
func (e *phaseError) Unwrap() error { return e.err }

// drive finishes in-flight downloads first, then the uploading batch, then
// looks for new server changes once, and only then starts the next batch.
func (s *Session) drive(ctx context.Context) error {
	err := s.passes(ctx)
	if errors.Is(err, common.ErrLockAlreadyHeld) {
		s.log.Info(ctx, "server lock held by another device")
		s.notify.event(LockAlreadyHeld{})
		return nil
	}
	return err
}

func (s *Session) passes(ctx context.Context) error {
	checked := false
	for {
		pending, err := s.repos.Downloads.HasPending(ctx)
		if err != nil {
			return err
		}
		if pending {
			if err := s.retry(ctx, "download", s.downloads.run); err != nil {
				return &phaseError{phase: "download", err: err}
			}
			continue
		}

		uploading, err := s.repos.Operations.ListByStage(ctx, models.StageUploading)
		if err != nil {
			return err
		}
		if len(uploading) > 0 {
			if err := s.retry(ctx, "upload", s.uploads.run); err != nil {
				return &phaseError{phase: "upload", err: err}
			}
			continue
		}

		if !checked {
			checked = true
			var planned int
			err := s.retry(ctx, "check-downloads", func(ctx context.Context) error {
				var err error
				planned, err = s.checkForDownloads(ctx)
				return err
			})
			if err != nil {
				return &phaseError{phase: "download", err: err}
			}
			if planned == 0 {
				s.notify.event(NoFilesToDownload{})
			}
			continue
		}

		promoted, err := s.repos.Operations.PromoteNextBatch(ctx)
		if err != nil {
			return err
		}
		if promoted > 0 {
			s.log.Debug(ctx, "batch promoted", "operations", promoted)
			continue
		}

		return s.lock.Release(ctx)
	}
}

func (s *Session) checkForDownloads(ctx context.Context) (int, error) {
	if err := s.lock.Ensure(ctx); err != nil {
		return 0, err
	}
	if err := s.faults.check(FaultAfterLock, 0); err != nil {
		return 0, err
	}
	idx, err := s.remote.GetFileIndex(ctx)
	if err != nil {
		return 0, err
	}
	return s.downloads.plan(ctx, idx)
}

// fail maps a pass error to the mode the session settles in.
func (s *Session) fail(ctx context.Context, err error) {
	mode, origin := ModeInternalError, originServer

	var pe *phaseError
	switch {
	case errors.Is(err, client.ErrUnavailable):
		mode = ModeNetworkNotConnected
	case errors.Is(err, ErrConflictWithServerState), errors.Is(err, common.ErrConflictingName):
		mode, origin = ModeNonRecoverableError, originClient
	case errors.As(err, &pe) && pe.phase == "download":
		mode = ModeNonRecoverableError
	}

	s.log.Error(ctx, "sync pass failed", "mode", mode, "error", err)
	if mode.IsError() {
		if perr := metadata.SetString(ctx, s.repos.Metadata, keyLastError, origin); perr != nil {
			s.log.Warn(ctx, "failed to persist error origin", "error", perr)
		}
	}
	s.setMode(ctx, mode, err)
}

// reset clears local pipeline state and server staging so that the next
// pass starts from what the server holds.
func (s *Session) reset(ctx context.Context) {
	s.setMode(ctx, ModeResettingFromError, nil)

	origin, err := metadata.GetString(ctx, s.repos.Metadata, keyLastError)
	if err == nil {
		if origin == originClient {
			if uerr := s.lock.Release(ctx); uerr != nil {
				s.log.Warn(ctx, "unlock during reset failed", "error", uerr)
			}
		} else {
			err = s.retry(ctx, "cleanup", s.remote.Cleanup)
		}
	}
	if err == nil {
		err = s.repos.WithTx(ctx, func(ctx context.Context, tx *client.Repositories) error {
			if err := s.queue.flush(ctx, tx); err != nil {
				return err
			}
			return tx.Metadata.Delete(ctx, keyOutboundOperation, keyFinishing, keyInboundReported, keyLockHeld, keyLastError)
		})
	}

	s.mu.Lock()
	s.resetting = false
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error(ctx, "reset failed", "error", err)
		s.setMode(ctx, ModeInternalError, err)
		return
	}

	s.lock.forget()
	s.log.Info(ctx, "reset from error complete")
	s.setMode(ctx, ModeIdle, nil)
}

func (s *Session) setMode(ctx context.Context, m Mode, err error) {
	s.mu.Lock()
	changed := s.mode != m || err != nil
	s.mode = m
	s.lastErr = err
	s.mu.Unlock()

	if perr := metadata.SetInt64(ctx, s.repos.Metadata, keyMode, int64(m)); perr != nil && ctx.Err() == nil {
		s.log.Warn(ctx, "failed to persist mode", "error", perr)
	}
	if changed {
		s.notify.mode(m, err)
	}
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// LastError returns the error that moved the session into its current mode.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
