package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/server/models"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles(t *testing.T) {
	ctx := context.Background()
	r := NewManager().Repos()

	require.NoError(t, r.Files.Upsert(ctx, &models.File{AccountID: "a", UUID: "u2", RemoteFileName: "b"}))
	require.NoError(t, r.Files.Upsert(ctx, &models.File{AccountID: "a", UUID: "u1", RemoteFileName: "a", Deleted: true}))
	require.NoError(t, r.Files.Upsert(ctx, &models.File{AccountID: "other", UUID: "u3", RemoteFileName: "b"}))

	list, err := r.Files.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].UUID)

	f, err := r.Files.FindActiveByName(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "u2", f.UUID)

	_, err = r.Files.FindActiveByName(ctx, "a", "a")
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = r.Files.Get(ctx, "a", "u3")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestWithTx_RollbackKeepsState(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if _, err := r.Accounts.IncrementIndexVersion(ctx, "a"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	v, err := m.Repos().Accounts.IndexVersion(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	err = m.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		_, err := r.Accounts.IncrementIndexVersion(ctx, "a")
		return err
	})
	require.NoError(t, err)

	v, err = m.Repos().Accounts.IndexVersion(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestLocks(t *testing.T) {
	ctx := context.Background()
	r := NewManager().Repos()
	now := time.Now()

	require.NoError(t, r.Locks.Put(ctx, &models.Lock{AccountID: "a", DeviceID: "d1", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, r.Locks.Put(ctx, &models.Lock{AccountID: "b", DeviceID: "d2", ExpiresAt: now.Add(time.Hour)}))

	expired, err := r.Locks.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "a", expired[0].AccountID)

	require.NoError(t, r.Locks.Delete(ctx, "a"))
	_, err = r.Locks.Get(ctx, "a")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestStagingAndOperations(t *testing.T) {
	ctx := context.Background()
	r := NewManager().Repos()

	require.NoError(t, r.Staging.Put(ctx, &models.StagedChange{AccountID: "a", DeviceID: "d", UUID: "u1", Kind: models.StagedUpload}))
	require.NoError(t, r.Staging.Put(ctx, &models.StagedChange{AccountID: "a", DeviceID: "d", UUID: "u1", Kind: models.StagedDeletion}))
	require.NoError(t, r.Staging.Put(ctx, &models.StagedChange{AccountID: "a", DeviceID: "x", UUID: "u2", Kind: models.StagedUpload}))

	list, err := r.Staging.List(ctx, "a", "d")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.StagedDeletion, list[0].Kind)

	_, err = r.Staging.Get(ctx, "a", "d", "u1", models.StagedDownload)
	require.ErrorIs(t, err, common.ErrNotStaged)

	require.NoError(t, r.Staging.DeleteAll(ctx, "a", "d"))
	list, err = r.Staging.List(ctx, "a", "d")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, r.Operations.Create(ctx, &models.Operation{ID: "op", AccountID: "a", DeviceID: "d"}))
	_, err = r.Operations.Get(ctx, "b", "op")
	require.ErrorIs(t, err, common.ErrOperationNotFound)
	require.NoError(t, r.Operations.Delete(ctx, "a", "op"))
	require.ErrorIs(t, r.Operations.Delete(ctx, "a", "op"), common.ErrOperationNotFound)
}
