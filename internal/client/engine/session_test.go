package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/client/client"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dmitrijs2005/syncserver/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/cryptox"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_UploadThenDownloadOnOtherDevice(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	b := w.device(t, "b")

	a.put(t, "u1", "notes.txt", "hello")
	a.commit(t)

	assert.Equal(t, []string{
		"no-files-to-download",
		"single-upload-complete u1",
		"framework-upload-metadata-updated",
		"all-uploads-complete 1",
	}, a.rec.eventLog())

	st := a.status(t, "u1")
	require.NotNil(t, st)
	require.NotNil(t, st.Version)
	assert.Equal(t, int64(0), *st.Version)
	assert.Equal(t, models.NotDeleted, st.Deleted)

	b.sync(t)
	assert.Equal(t, []string{
		"inbound-transfer-complete 1",
		"single-download-complete u1",
		"downloads-finished 1",
	}, b.rec.eventLog())

	saved := b.rec.savedDownloads()
	require.Len(t, saved, 1)
	assert.Equal(t, "notes.txt", saved[0].Attributes.RemoteFileName)
	assert.Equal(t, filepath.Join("downloads", "u1"), saved[0].Path)

	data, err := afero.ReadFile(b.fs, saved[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	st = b.status(t, "u1")
	require.NotNil(t, st)
	assert.Equal(t, int64(0), *st.Version)

	// nothing new the second time
	b.sync(t)
	assert.True(t, b.rec.hasEvent("no-files-to-download"))
	assert.Equal(t, 1, b.remote.count("DownloadFile"))
}

func TestSession_RepeatedUploadBeforeCommitIsSentOnce(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")

	a.put(t, "u1", "a.txt", "first")
	a.put(t, "u1", "a.txt", "second")

	ops, err := a.repos.Operations.ListForUUID(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, ops, 1)

	a.commit(t)
	assert.True(t, a.rec.hasEvent("all-uploads-complete 1"))
	assert.Equal(t, 1, a.remote.count("UploadFile"))

	f := w.file(t, "u1")
	assert.Equal(t, int64(0), f.Version)
	assert.Equal(t, cryptox.Checksum([]byte("second")), f.Checksum)
	assert.Equal(t, int64(1), w.index(t).IndexVersion)

	a.put(t, "u1", "a.txt", "third")
	a.commit(t)
	assert.Equal(t, int64(1), w.file(t, "u1").Version)
	assert.Equal(t, int64(1), *a.status(t, "u1").Version)
}

func TestSession_DeleteCancelsUnsentUpload(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	ctx := context.Background()

	a.put(t, "u1", "a.txt", "x")
	require.NoError(t, a.session.DeleteFile(ctx, "u1"))
	assert.Nil(t, a.status(t, "u1"))

	require.NoError(t, a.session.Commit(ctx))
	require.Eventually(t, func() bool { return a.rec.hasEvent("no-files-to-upload") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, a.remote.count("UploadFile"))
}

func TestSession_DeleteAfterDelete(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	b := w.device(t, "b")
	ctx := context.Background()

	a.put(t, "u1", "a.txt", "x")
	a.commit(t)
	b.sync(t)

	require.NoError(t, a.session.DeleteFile(ctx, "u1"))
	assert.ErrorIs(t, a.session.DeleteFile(ctx, "u1"), ErrAlreadyDeleted)
	assert.Equal(t, models.DeletedPending, a.status(t, "u1").Deleted)

	a.commit(t)
	assert.True(t, a.rec.hasEvent("deletions-sent [u1]"))
	assert.Equal(t, models.DeletedConfirmed, a.status(t, "u1").Deleted)
	assert.True(t, w.file(t, "u1").Deleted)

	assert.ErrorIs(t, a.session.DeleteFile(ctx, "u1"), ErrAlreadyDeleted)
	err := a.session.UploadData(ctx, []byte("y"), models.SyncAttributes{UUID: "u1", RemoteFileName: "a.txt"})
	assert.ErrorIs(t, err, ErrAlreadyDeleted)

	// the other device learns about the deletion
	b.sync(t)
	deletions := b.rec.reportedDeletions()
	require.Len(t, deletions, 1)
	assert.Equal(t, "u1", deletions[0].UUID)
	assert.Equal(t, models.DeletedConfirmed, b.status(t, "u1").Deleted)
	assert.True(t, b.rec.hasEvent("downloads-finished 1"))

	// and only once
	b.sync(t)
	assert.Len(t, b.rec.reportedDeletions(), 1)
}

func TestSession_BatchCountsUploadsAndDeletions(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	ctx := context.Background()

	a.put(t, "u1", "one.txt", "1")
	a.put(t, "u2", "two.txt", "2")
	a.commit(t)
	assert.True(t, a.rec.hasEvent("all-uploads-complete 2"))

	a.put(t, "u3", "three.txt", "3")
	require.NoError(t, a.session.DeleteFile(ctx, "u1"))
	require.NoError(t, a.session.DeleteFile(ctx, "u2"))
	a.commit(t)

	assert.True(t, a.rec.hasEvent("all-uploads-complete 3"))
	assert.True(t, a.rec.hasEvent("deletions-sent [u1 u2]"))
	assert.Equal(t, int64(2), w.index(t).IndexVersion)
}

func TestSession_ResetMetaDataDownloadsAgain(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	ctx := context.Background()

	a.put(t, "u1", "a.txt", "content")
	a.commit(t)

	assert.ErrorIs(t, a.session.ResetMetaData(ctx, "nope", ResetDeleteMetaData), ErrUnknownFile)

	require.NoError(t, a.session.ResetMetaData(ctx, "u1", ResetDeleteMetaData))
	assert.Nil(t, a.status(t, "u1"))

	a.sync(t)
	assert.True(t, a.rec.hasEvent("downloads-finished 1"))
	st := a.status(t, "u1")
	require.NotNil(t, st)
	assert.Equal(t, int64(0), *st.Version)

	require.NoError(t, a.session.ResetMetaData(ctx, "", ResetDecrementVersion))
	assert.Nil(t, a.status(t, "u1").Version)

	a.sync(t)
	assert.Equal(t, 2, a.remote.count("DownloadFile"))
	assert.Equal(t, int64(0), *a.status(t, "u1").Version)
}

func TestSession_LockHeldByOtherDevice(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	ctx := context.Background()

	require.NoError(t, w.svc.Lock(ctx, w.caller("intruder")))

	a.put(t, "u1", "a.txt", "x")
	a.commit(t)
	assert.True(t, a.rec.hasEvent("lock-already-held"))
	assert.False(t, a.rec.hasEvent("all-uploads-complete 1"))
	assert.Empty(t, w.index(t).Files)

	require.NoError(t, w.svc.Unlock(ctx, w.caller("intruder")))
	a.sync(t)
	assert.True(t, a.rec.hasEvent("all-uploads-complete 1"))

	// the lock is free again after the pass
	require.NoError(t, w.svc.Lock(ctx, w.caller("intruder")))
}

func TestSession_CrashDuringTransferResumesWithoutResending(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	a.faults.Inject(FaultAfterFileTransfer, 1, FaultCrash, 1)

	a.put(t, "u1", "one.txt", "1")
	a.put(t, "u2", "two.txt", "2")
	require.NoError(t, a.session.Commit(context.Background()))

	require.Eventually(t, func() bool { return a.faults.Hits(FaultAfterFileTransfer) == 1 },
		5*time.Second, 5*time.Millisecond)
	assert.Equal(t, ModeSynchronizing, a.session.Mode())
	assert.Empty(t, w.index(t).Files, "nothing is applied before finishUploads")

	a.restart(t)
	require.Eventually(t, func() bool { return a.rec.hasEvent("all-uploads-complete 2") },
		5*time.Second, 5*time.Millisecond, "events: %v", a.rec.eventLog())

	log := a.rec.eventLog()
	assert.Equal(t, "recovery relaunch", log[0])
	assert.Contains(t, log, "single-upload-complete u2")
	assert.NotContains(t, log, "single-upload-complete u1")
	assert.Equal(t, 2, a.remote.count("UploadFile"))
	assert.Len(t, w.index(t).Files, 2)
}

func TestSession_CrashAfterFinishUploadsDoesNotResend(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	a.faults.Inject(FaultAfterFinishUploads, 0, FaultCrash, 1)

	a.put(t, "u1", "one.txt", "1")
	require.NoError(t, a.session.Commit(context.Background()))
	require.Eventually(t, func() bool { return a.faults.Hits(FaultAfterFinishUploads) == 1 },
		5*time.Second, 5*time.Millisecond)

	a.restart(t)
	require.Eventually(t, func() bool { return a.rec.hasEvent("all-uploads-complete 1") },
		5*time.Second, 5*time.Millisecond, "events: %v", a.rec.eventLog())

	assert.Equal(t, 1, a.remote.count("FinishUploads"))
	assert.Equal(t, 1, a.remote.count("UploadFile"))
	assert.Equal(t, int64(0), *a.status(t, "u1").Version)
	assert.Equal(t, int64(1), w.index(t).IndexVersion)
}

func TestSession_CrashDuringDownloadResumes(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	b := w.device(t, "b")

	a.put(t, "u1", "one.txt", "1")
	a.put(t, "u2", "two.txt", "2")
	a.commit(t)

	b.faults.Inject(FaultAfterFileMaterialized, 1, FaultCrash, 1)
	b.session.NextSyncOperation()
	require.Eventually(t, func() bool { return b.faults.Hits(FaultAfterFileMaterialized) == 1 },
		5*time.Second, 5*time.Millisecond)

	b.restart(t)
	require.Eventually(t, func() bool { return b.rec.hasEvent("downloads-finished 2") },
		5*time.Second, 5*time.Millisecond, "events: %v", b.rec.eventLog())

	assert.Equal(t, 2, b.remote.count("DownloadFile"))
	assert.NotContains(t, b.rec.eventLog(), "inbound-transfer-complete 1")
	assert.Len(t, b.rec.savedDownloads(), 2)
	assert.Equal(t, int64(0), *b.status(t, "u2").Version)
}

func TestSession_RelaunchReplansDownloads(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	b := w.device(t, "b")
	ctx := context.Background()

	a.put(t, "u1", "one.txt", "1")
	a.commit(t)

	b.faults.Inject(FaultAfterInboundTransfer, 0, FaultCrash, 1)
	b.session.NextSyncOperation()
	require.Eventually(t, func() bool { return b.faults.Hits(FaultAfterInboundTransfer) == 1 },
		5*time.Second, 5*time.Millisecond)

	// b's lock is gone while it is down and a deletes the planned file
	require.NoError(t, w.svc.Cleanup(ctx, w.caller("b")))
	require.NoError(t, a.session.DeleteFile(ctx, "u1"))
	a.commit(t)
	require.True(t, w.file(t, "u1").Deleted)

	b.restart(t)
	require.Eventually(t, func() bool {
		return b.session.Mode() == ModeIdle && b.rec.hasEvent("no-files-to-download")
	}, 5*time.Second, 5*time.Millisecond, "events: %v", b.rec.eventLog())

	assert.Equal(t, []string{"recovery relaunch", "no-files-to-download"}, b.rec.eventLog())
	assert.Equal(t, 0, b.remote.count("DownloadFile"))
	assert.Nil(t, b.status(t, "u1"))

	pending, err := b.repos.Downloads.HasPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}

// staleInbound fails the first inbound transfer as if a planned file had
// been deleted meanwhile.
type staleInbound struct {
	*inProcessRemote
	failed atomic.Bool
}

func (r *staleInbound) SetupInboundTransfer(ctx context.Context, uuids []string) (int, error) {
	if !r.failed.Swap(true) {
		return 0, fmt.Errorf("%w: %s", common.ErrFileDeleted, uuids[0])
	}
	return r.inProcessRemote.SetupInboundTransfer(ctx, uuids)
}

func TestSession_StaleDownloadPlanIsReplanned(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	b := w.device(t, "b")

	a.put(t, "u1", "one.txt", "1")
	a.commit(t)

	b.transport = &staleInbound{inProcessRemote: b.remote}
	b.restart(t)
	b.sync(t)

	assert.Equal(t, []string{
		"inbound-transfer-complete 1",
		"single-download-complete u1",
		"downloads-finished 1",
	}, b.rec.eventLog())
	assert.Equal(t, 2, b.remote.count("GetFileIndex"))
	assert.Equal(t, int64(0), *b.status(t, "u1").Version)
}

// lostFinishReply applies FinishUploads on the server once and then drops
// the reply, so the client never learns the operation id.
type lostFinishReply struct {
	*inProcessRemote
	dropped atomic.Bool
}

func (r *lostFinishReply) FinishUploads(ctx context.Context, expectedIndexVersion int64) (string, error) {
	id, err := r.inProcessRemote.FinishUploads(ctx, expectedIndexVersion)
	if err != nil || r.dropped.Swap(true) {
		return id, err
	}
	return "", client.ErrUnavailable
}

func TestSession_FinishAppliedButReplyLost(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	a.transport = &lostFinishReply{inProcessRemote: a.remote}
	a.restart(t)

	a.put(t, "u1", "one.txt", "1")
	a.commit(t)

	assert.Equal(t, []string{
		"no-files-to-download",
		"single-upload-complete u1",
		"recovery upload",
		"framework-upload-metadata-updated",
		"all-uploads-complete 1",
	}, a.rec.eventLog())
	assert.Equal(t, 1, a.remote.count("FinishUploads"))
	assert.Equal(t, 1, a.remote.count("UploadFile"))
	assert.Equal(t, ModeIdle, a.session.Mode())
	assert.Equal(t, int64(0), *a.status(t, "u1").Version)
	assert.Equal(t, int64(1), w.index(t).IndexVersion)
}

func TestSession_NameTakenByDownloadedFile(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	b := w.device(t, "b")
	ctx := context.Background()

	a.put(t, "u1", "a.txt", "from a")
	a.commit(t)

	b.put(t, "u2", "a.txt", "from b")
	m := b.settle(t, func() { require.NoError(t, b.session.Commit(ctx)) })
	require.Equal(t, ModeNonRecoverableError, m, "events: %v", b.rec.eventLog())

	err := b.session.LastError()
	assert.ErrorIs(t, err, ErrConflictingAttributes)
	assert.ErrorIs(t, err, ErrConflictWithServerState)
	assert.Equal(t, 0, b.remote.count("UploadFile"))
	assert.Len(t, b.rec.savedDownloads(), 1)

	origin, err := metadata.GetString(ctx, b.repos.Metadata, keyLastError)
	require.NoError(t, err)
	assert.Equal(t, originClient, origin)
}

func TestSession_TransientFaultIsRetried(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	a.faults.Inject(FaultAfterIndexCheck, 0, FaultTransient, 1)

	a.put(t, "u1", "a.txt", "x")
	a.commit(t)

	assert.Equal(t, []string{
		"no-files-to-download",
		"recovery upload",
		"single-upload-complete u1",
		"framework-upload-metadata-updated",
		"all-uploads-complete 1",
	}, a.rec.eventLog())
}

func TestSession_NetworkLossAndRecovery(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")

	a.put(t, "u1", "a.txt", "x")
	a.remote.down.Store(true)

	m := a.settle(t, func() { require.NoError(t, a.session.Commit(context.Background())) })
	require.Equal(t, ModeNetworkNotConnected, m)
	_, err := a.rec.lastMode()
	assert.ErrorIs(t, err, client.ErrUnavailable)
	assert.True(t, a.rec.hasEvent("recovery check-downloads"))

	a.remote.down.Store(false)
	require.Eventually(t, func() bool {
		m, _ := a.rec.lastMode()
		return m == ModeIdle && a.rec.hasEvent("all-uploads-complete 1")
	}, 5*time.Second, 5*time.Millisecond, "events: %v", a.rec.eventLog())
	assert.True(t, a.rec.hasEvent("recovery network"))
}

// conflictSetup leaves u1 at version 1 on the server (written by b) while a
// still has version 0 and queued operations of its own.
func conflictSetup(t *testing.T) (*world, *device, *device) {
	t.Helper()
	w := newWorld(t)
	a := w.device(t, "a")
	b := w.device(t, "b")

	a.put(t, "u1", "a.txt", "v0")
	a.commit(t)
	b.sync(t)

	b.put(t, "u1", "a.txt", "v1 from b")
	b.commit(t)
	require.Equal(t, int64(1), w.file(t, "u1").Version)
	return w, a, b
}

func TestSession_DownloadConflictKeep(t *testing.T) {
	w, a, _ := conflictSetup(t)

	a.put(t, "u1", "a.txt", "v from a")
	a.commit(t)

	conflicts := a.rec.seenConflicts()
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, models.OperationUpload, c.LocalOperation)
	assert.Equal(t, int64(1), *c.Server.Version)
	assert.Equal(t, ResolutionKeep, c.Resolution())
	assert.ErrorIs(t, c.Resolve(ResolutionDelete), ErrConflictAlreadyResolved)

	f := w.file(t, "u1")
	assert.Equal(t, int64(2), f.Version)
	assert.Equal(t, cryptox.Checksum([]byte("v from a")), f.Checksum)
	assert.Equal(t, int64(2), *a.status(t, "u1").Version)
	assert.Equal(t, 0, a.remote.count("DownloadFile"))
}

func TestSession_DownloadConflictDelete(t *testing.T) {
	w, a, _ := conflictSetup(t)
	a.rec.resolve = func(*Conflict) Resolution { return ResolutionDelete }

	a.put(t, "u1", "a.txt", "v from a")
	a.commit(t)

	require.Len(t, a.rec.seenConflicts(), 1)
	assert.False(t, a.rec.hasEvent("all-uploads-complete 1"))
	assert.True(t, a.rec.hasEvent("downloads-finished 1"))

	assert.Equal(t, int64(1), w.file(t, "u1").Version)
	assert.Equal(t, int64(1), *a.status(t, "u1").Version)
	data, err := afero.ReadFile(a.fs, filepath.Join("downloads", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "v1 from b", string(data))
}

func TestSession_DeletionConflictKeepUndeletes(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	b := w.device(t, "b")
	ctx := context.Background()

	a.put(t, "u1", "a.txt", "v0")
	a.commit(t)
	b.sync(t)
	require.NoError(t, b.session.DeleteFile(ctx, "u1"))
	b.commit(t)
	require.True(t, w.file(t, "u1").Deleted)

	a.put(t, "u1", "a.txt", "revived")
	a.commit(t)

	conflicts := a.rec.seenConflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.DeletedConfirmed, conflicts[0].Server.Deleted)
	assert.Equal(t, models.OperationUpload, conflicts[0].LocalOperation)
	f := w.file(t, "u1")
	assert.False(t, f.Deleted)
	assert.Equal(t, int64(1), f.Version)
	assert.Equal(t, models.NotDeleted, a.status(t, "u1").Deleted)
	assert.Empty(t, a.rec.reportedDeletions())
}

func TestSession_DeletionConflictDeleteDropsUpload(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	b := w.device(t, "b")
	ctx := context.Background()

	a.put(t, "u1", "a.txt", "v0")
	a.commit(t)
	b.sync(t)
	require.NoError(t, b.session.DeleteFile(ctx, "u1"))
	b.commit(t)

	a.rec.resolve = func(*Conflict) Resolution { return ResolutionDelete }
	a.put(t, "u1", "a.txt", "revived")
	a.commit(t)

	assert.True(t, w.file(t, "u1").Deleted)
	assert.Equal(t, models.DeletedConfirmed, a.status(t, "u1").Deleted)
	require.Len(t, a.rec.reportedDeletions(), 1)
	assert.Equal(t, 1, a.remote.count("UploadFile"))
}

func TestSession_ResetFromError(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	ctx := context.Background()

	assert.ErrorIs(t, a.session.ResetFromError(false), ErrNotInErrorMode)

	a.faults.Inject(FaultAfterIndexCheck, 0, FaultTransient, 10)
	a.put(t, "u1", "a.txt", "x")
	m := a.settle(t, func() { require.NoError(t, a.session.Commit(ctx)) })
	require.Equal(t, ModeInternalError, m)
	assert.ErrorIs(t, a.session.LastError(), ErrRecoveryFailed)

	// still holding the server lock
	assert.ErrorIs(t, w.svc.Lock(ctx, w.caller("intruder")), common.ErrLockAlreadyHeld)

	// passes are refused in an error mode
	a.session.NextSyncOperation()

	a.remote.cleanupGate = make(chan struct{})
	require.NoError(t, a.session.ResetFromError(false))
	assert.ErrorIs(t, a.session.ResetFromError(false), ErrResetAlreadyInProgress)
	close(a.remote.cleanupGate)

	require.Eventually(t, func() bool {
		m, _ := a.rec.lastMode()
		return m == ModeIdle
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, a.remote.count("Cleanup"))
	assert.Nil(t, a.status(t, "u1"))
	require.NoError(t, w.svc.Lock(ctx, w.caller("intruder")))
	assert.Equal(t, 1, a.rec.countMode(ModeResettingFromError))
}

func TestSession_DebugResetOutsideErrorMode(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")

	a.put(t, "u1", "a.txt", "x")
	require.NoError(t, a.session.ResetFromError(true))
	require.Eventually(t, func() bool { return a.rec.countMode(ModeIdle) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Nil(t, a.status(t, "u1"))
}

func TestSession_FailModes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		mode    Mode
		origin  string
		cleanup int
	}{
		{"conflict with server state", conflictf("index moved"), ModeNonRecoverableError, originClient, 0},
		{"download phase", &phaseError{phase: "download", err: errors.New("broken")}, ModeNonRecoverableError, originServer, 1},
		{"upload phase", &phaseError{phase: "upload", err: errors.New("broken")}, ModeInternalError, originServer, 1},
		{"name taken on server", &phaseError{phase: "upload", err: fmt.Errorf("%w: %q", common.ErrConflictingName, "a.txt")},
			ModeNonRecoverableError, originClient, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t)
			a := w.device(t, "a")
			ctx := context.Background()

			a.session.fail(ctx, tt.err)
			require.Eventually(t, func() bool { return a.rec.countMode(tt.mode) == 1 }, time.Second, 5*time.Millisecond)

			origin, err := metadata.GetString(ctx, a.repos.Metadata, keyLastError)
			require.NoError(t, err)
			assert.Equal(t, tt.origin, origin)

			// a relaunch stays in the error mode
			a.restart(t)
			require.Eventually(t, func() bool { return a.rec.countMode(tt.mode) == 1 }, time.Second, 5*time.Millisecond)
			assert.Equal(t, tt.mode, a.session.Mode())

			require.NoError(t, a.session.ResetFromError(false))
			require.Eventually(t, func() bool { return a.session.Mode() == ModeIdle }, 5*time.Second, 5*time.Millisecond)
			assert.Equal(t, tt.cleanup, a.remote.count("Cleanup"))
		})
	}
}

func TestSession_NetworkFailureMode(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")

	a.session.fail(context.Background(), client.ErrUnavailable)
	require.Eventually(t, func() bool { return a.rec.countMode(ModeNetworkNotConnected) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, a.session.ResetFromError(false), ErrNotInErrorMode)

	// the online watcher brings it back
	require.Eventually(t, func() bool { return a.rec.hasEvent("recovery network") }, 5*time.Second, 5*time.Millisecond)
}

func TestSession_TemporaryFileRemovedAfterUpload(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	ctx := context.Background()

	require.NoError(t, afero.WriteFile(a.fs, "tmp/u1", []byte("temp"), 0o600))
	require.NoError(t, afero.WriteFile(a.fs, "keep/u2", []byte("kept"), 0o600))

	require.NoError(t, a.session.UploadTemporaryFile(ctx, "tmp/u1", models.SyncAttributes{UUID: "u1", RemoteFileName: "t.txt"}))
	require.NoError(t, a.session.UploadImmutableFile(ctx, "keep/u2", models.SyncAttributes{UUID: "u2", RemoteFileName: "k.txt"}))
	a.commit(t)

	ok, err := afero.Exists(a.fs, "tmp/u1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = afero.Exists(a.fs, "keep/u2")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, int64(4), w.file(t, "u1").SizeBytes)
}

func TestSession_Closed(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")
	ctx := context.Background()

	require.NoError(t, a.session.Close())
	require.NoError(t, a.session.Close())

	assert.ErrorIs(t, a.session.UploadData(ctx, []byte("x"), models.SyncAttributes{UUID: "u1", RemoteFileName: "a"}), ErrClosed)
	assert.ErrorIs(t, a.session.DeleteFile(ctx, "u1"), ErrClosed)
	assert.ErrorIs(t, a.session.Commit(ctx), ErrClosed)
	assert.ErrorIs(t, a.session.ResetFromError(true), ErrClosed)
	assert.ErrorIs(t, a.session.Start(ctx), ErrClosed)
}

func TestSession_LocalFiles(t *testing.T) {
	w := newWorld(t)
	a := w.device(t, "a")

	a.put(t, "u1", "one.txt", "1")
	a.put(t, "u2", "two.txt", "22")

	files, err := a.session.LocalFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	names := []string{files[0].RemoteFileName, files[1].RemoteFileName}
	assert.ElementsMatch(t, []string{"one.txt", "two.txt"}, names)
}
