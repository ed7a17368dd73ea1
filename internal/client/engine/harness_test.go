package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/client/client"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dmitrijs2005/syncserver/internal/logging"
	"github.com/dmitrijs2005/syncserver/internal/server/blobstore"
	servermodels "github.com/dmitrijs2005/syncserver/internal/server/models"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/memory"
	"github.com/dmitrijs2005/syncserver/internal/server/services"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// --- in-process server ---

// inProcessRemote serves client.Client straight from a SyncService, the way
// the gRPC pair would, and counts calls per method.
type inProcessRemote struct {
	svc    *services.SyncService
	caller services.Caller

	// down makes every call fail like a lost connection.
	down atomic.Bool
	// cleanupGate, when set, holds Cleanup until it is closed.
	cleanupGate chan struct{}

	mu    sync.Mutex
	calls map[string]int
}

func (r *inProcessRemote) enter(method string) error {
	r.mu.Lock()
	r.calls[method]++
	r.mu.Unlock()
	if r.down.Load() {
		return client.ErrUnavailable
	}
	return nil
}

func (r *inProcessRemote) count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func toServerFile(f *servermodels.File) models.ServerFile {
	return models.ServerFile{
		UUID:           f.UUID,
		RemoteFileName: f.RemoteFileName,
		MimeType:       f.MimeType,
		AppMetaData:    f.AppMetaData,
		Deleted:        f.Deleted,
		Version:        f.Version,
		LastModified:   f.UpdatedAt,
		SizeBytes:      f.SizeBytes,
		Checksum:       f.Checksum,
	}
}

func (r *inProcessRemote) Close() error { return nil }

func (r *inProcessRemote) Ping(ctx context.Context) error {
	if err := r.enter("Ping"); err != nil {
		return err
	}
	return r.svc.Ping(ctx, r.caller)
}

func (r *inProcessRemote) Lock(ctx context.Context) error {
	if err := r.enter("Lock"); err != nil {
		return err
	}
	return r.svc.Lock(ctx, r.caller)
}

func (r *inProcessRemote) Unlock(ctx context.Context) error {
	if err := r.enter("Unlock"); err != nil {
		return err
	}
	return r.svc.Unlock(ctx, r.caller)
}

func (r *inProcessRemote) GetFileIndex(ctx context.Context) (*models.FileIndex, error) {
	if err := r.enter("GetFileIndex"); err != nil {
		return nil, err
	}
	idx, err := r.svc.GetFileIndex(ctx, r.caller)
	if err != nil {
		return nil, err
	}
	out := &models.FileIndex{
		IndexVersion:    idx.IndexVersion,
		StagedUploads:   idx.StagedUploads,
		StagedDeletions: idx.StagedDeletions,
	}
	for _, f := range idx.Files {
		out.Files = append(out.Files, toServerFile(f))
	}
	return out, nil
}

func (r *inProcessRemote) UploadFile(ctx context.Context, req *models.UploadRequest) error {
	if err := r.enter("UploadFile"); err != nil {
		return err
	}
	return r.svc.UploadFile(ctx, r.caller, &services.UploadRequest{
		UUID:           req.Attributes.UUID,
		RemoteFileName: req.Attributes.RemoteFileName,
		MimeType:       req.Attributes.MimeType,
		AppMetaData:    req.Attributes.AppMetaData,
		Version:        req.Version,
		Undelete:       req.Undelete,
		Checksum:       req.Checksum,
		Data:           req.Data,
	})
}

func (r *inProcessRemote) DeleteFiles(ctx context.Context, files []models.DeleteRequest) error {
	if err := r.enter("DeleteFiles"); err != nil {
		return err
	}
	reqs := make([]services.DeleteRequest, 0, len(files))
	for _, f := range files {
		reqs = append(reqs, services.DeleteRequest{UUID: f.UUID, Version: f.Version})
	}
	return r.svc.DeleteFiles(ctx, r.caller, reqs)
}

func (r *inProcessRemote) FinishUploads(ctx context.Context, expectedIndexVersion int64) (string, error) {
	if err := r.enter("FinishUploads"); err != nil {
		return "", err
	}
	return r.svc.FinishUploads(ctx, r.caller, expectedIndexVersion)
}

func (r *inProcessRemote) CheckOperationStatus(ctx context.Context, id string) (*models.OperationStatus, error) {
	if err := r.enter("CheckOperationStatus"); err != nil {
		return nil, err
	}
	op, err := r.svc.CheckOperationStatus(ctx, r.caller, id)
	if err != nil {
		return nil, err
	}
	return &models.OperationStatus{Code: models.OperationStatusCode(op.Status), Count: op.Count, Error: op.Error}, nil
}

func (r *inProcessRemote) RemoveOperationID(ctx context.Context, id string) error {
	if err := r.enter("RemoveOperationID"); err != nil {
		return err
	}
	return r.svc.RemoveOperationID(ctx, r.caller, id)
}

func (r *inProcessRemote) SetupInboundTransfer(ctx context.Context, uuids []string) (int, error) {
	if err := r.enter("SetupInboundTransfer"); err != nil {
		return 0, err
	}
	return r.svc.SetupInboundTransfer(ctx, r.caller, uuids)
}

func (r *inProcessRemote) DownloadFile(ctx context.Context, uuid string) (*models.ServerFile, []byte, error) {
	if err := r.enter("DownloadFile"); err != nil {
		return nil, nil, err
	}
	f, data, err := r.svc.DownloadFile(ctx, r.caller, uuid)
	if err != nil {
		return nil, nil, err
	}
	sf := toServerFile(f)
	return &sf, data, nil
}

func (r *inProcessRemote) Cleanup(ctx context.Context) error {
	if err := r.enter("Cleanup"); err != nil {
		return err
	}
	if r.cleanupGate != nil {
		select {
		case <-r.cleanupGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.svc.Cleanup(ctx, r.caller)
}

// --- recording delegate ---

type recorder struct {
	mu     sync.Mutex
	events []Event
	modes  []Mode
	errs   []error

	saved     []Download
	deletions []models.SyncAttributes
	conflicts []*Conflict

	// resolve decides every conflict; nil keeps the local operation.
	resolve func(c *Conflict) Resolution
}

func (r *recorder) SyncServerModeChange(mode Mode, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, mode)
	r.errs = append(r.errs, err)
}

func (r *recorder) SyncServerEventOccurred(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) SyncServerShouldSaveDownloads(downloads []Download, ack func()) {
	r.mu.Lock()
	r.saved = append(r.saved, downloads...)
	r.mu.Unlock()
	ack()
}

func (r *recorder) SyncServerShouldDoDeletions(deletions []models.SyncAttributes, ack func()) {
	r.mu.Lock()
	r.deletions = append(r.deletions, deletions...)
	r.mu.Unlock()
	ack()
}

func (r *recorder) decide(conflicts []*Conflict) {
	r.mu.Lock()
	r.conflicts = append(r.conflicts, conflicts...)
	resolve := r.resolve
	r.mu.Unlock()

	for _, c := range conflicts {
		res := ResolutionKeep
		if resolve != nil {
			res = resolve(c)
		}
		_ = c.Resolve(res)
	}
}

func (r *recorder) SyncServerShouldResolveDownloadConflicts(conflicts []*Conflict) {
	r.decide(conflicts)
}

func (r *recorder) SyncServerShouldResolveDeletionConflicts(conflicts []*Conflict) {
	r.decide(conflicts)
}

// eventLog renders the events in delivery order.
func (r *recorder) eventLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.String())
	}
	return out
}

func (r *recorder) hasEvent(s string) bool {
	for _, e := range r.eventLog() {
		if e == s {
			return true
		}
	}
	return false
}

func (r *recorder) countMode(m Mode) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.modes {
		if x == m {
			n++
		}
	}
	return n
}

func (r *recorder) lastMode() (Mode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.modes) == 0 {
		return ModeIdle, nil
	}
	return r.modes[len(r.modes)-1], r.errs[len(r.errs)-1]
}

func (r *recorder) savedDownloads() []Download {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Download(nil), r.saved...)
}

func (r *recorder) seenConflicts() []*Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Conflict(nil), r.conflicts...)
}

func (r *recorder) reportedDeletions() []models.SyncAttributes {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SyncAttributes(nil), r.deletions...)
}

// --- world and devices ---

const testAccount = "account-1"

type world struct {
	svc   *services.SyncService
	blobs *blobstore.MemoryStore
}

func newWorld(t *testing.T) *world {
	t.Helper()
	blobs := blobstore.NewMemoryStore()
	return &world{
		svc:   services.NewSyncService(memory.NewManager(), blobs, time.Minute, logging.NewNop()),
		blobs: blobs,
	}
}

func (w *world) caller(deviceID string) services.Caller {
	return services.Caller{AccountID: testAccount, DeviceID: deviceID}
}

type device struct {
	id      string
	repos   *client.Repositories
	remote  *inProcessRemote
	fs      afero.Fs
	faults  *Faults
	rec     *recorder
	session *Session

	// transport, when set, replaces remote for the next start.
	transport client.Client
}

func testConfig() Config {
	return Config{
		DownloadDir:         "downloads",
		MaxAttempts:         3,
		RetryBaseDelay:      time.Millisecond,
		StatusPollInterval:  time.Millisecond,
		OnlineCheckInterval: 20 * time.Millisecond,
	}
}

// device opens a fresh local database for deviceID and starts a session.
func (w *world) device(t *testing.T, deviceID string) *device {
	t.Helper()
	ctx := context.Background()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := client.InitDatabase(ctx, fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, deviceID))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d := &device{
		id:    deviceID,
		repos: client.NewRepositories(db),
		remote: &inProcessRemote{
			svc:    w.svc,
			caller: w.caller(deviceID),
			calls:  map[string]int{},
		},
		fs:     afero.NewMemMapFs(),
		faults: NewFaults(),
	}
	d.start(t)
	return d
}

func (d *device) start(t *testing.T) {
	t.Helper()
	var remote client.Client = d.remote
	if d.transport != nil {
		remote = d.transport
	}
	d.rec = &recorder{}
	d.session = NewSession(d.repos, remote, d.fs, d.rec, testConfig(), WithFaults(d.faults))
	require.NoError(t, d.session.Start(context.Background()))
	s := d.session
	t.Cleanup(func() { _ = s.Close() })
}

// restart replaces the session with a new one over the same database, as a
// relaunched process would.
func (d *device) restart(t *testing.T) {
	t.Helper()
	require.NoError(t, d.session.Close())
	d.start(t)
}

// settle triggers a pass and waits until the recorder sees it end.
func (d *device) settle(t *testing.T, trigger func()) Mode {
	t.Helper()
	before := d.rec.countMode(ModeIdle)
	errorsBefore := d.rec.countMode(ModeInternalError) + d.rec.countMode(ModeNonRecoverableError) +
		d.rec.countMode(ModeNetworkNotConnected)
	trigger()

	require.Eventually(t, func() bool {
		after := d.rec.countMode(ModeInternalError) + d.rec.countMode(ModeNonRecoverableError) +
			d.rec.countMode(ModeNetworkNotConnected)
		return d.rec.countMode(ModeIdle) > before || after > errorsBefore
	}, 5*time.Second, 5*time.Millisecond, "sync pass did not finish; events: %v", d.rec.eventLog())

	m, _ := d.rec.lastMode()
	return m
}

func (d *device) sync(t *testing.T) {
	t.Helper()
	m := d.settle(t, d.session.NextSyncOperation)
	require.Equal(t, ModeIdle, m, "events: %v", d.rec.eventLog())
}

func (d *device) commit(t *testing.T) {
	t.Helper()
	m := d.settle(t, func() { require.NoError(t, d.session.Commit(context.Background())) })
	require.Equal(t, ModeIdle, m, "events: %v", d.rec.eventLog())
}

func (d *device) put(t *testing.T, uuid, name, content string) {
	t.Helper()
	err := d.session.UploadData(context.Background(), []byte(content), models.SyncAttributes{
		UUID:           uuid,
		RemoteFileName: name,
		MimeType:       "text/plain",
	})
	require.NoError(t, err)
}

func (d *device) status(t *testing.T, uuid string) *models.SyncAttributes {
	t.Helper()
	attrs, err := d.session.LocalFileStatus(context.Background(), uuid)
	require.NoError(t, err)
	return attrs
}

func (w *world) index(t *testing.T) *services.FileIndex {
	t.Helper()
	idx, err := w.svc.GetFileIndex(context.Background(), w.caller("observer"))
	require.NoError(t, err)
	return idx
}

func (w *world) file(t *testing.T, uuid string) *servermodels.File {
	t.Helper()
	for _, f := range w.index(t).Files {
		if f.UUID == uuid {
			return f
		}
	}
	t.Fatalf("file %s not on server", uuid)
	return nil
}
