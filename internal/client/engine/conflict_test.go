package engine

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflict_Resolve(t *testing.T) {
	c := newConflict(&models.DownloadOperation{
		ID:                   7,
		Server:               models.ServerFile{UUID: "u1", Version: 2},
		ConflictingOperation: models.OperationDelete,
	})
	assert.Equal(t, "u1", c.Server.UUID)
	assert.Equal(t, models.OperationDelete, c.LocalOperation)
	assert.Equal(t, "unresolved", c.Resolution().String())

	assert.ErrorIs(t, c.Resolve(Resolution(0)), ErrInvalidResolution)
	require.NoError(t, c.Resolve(ResolutionDelete))
	assert.ErrorIs(t, c.Resolve(ResolutionKeep), ErrConflictAlreadyResolved)
	assert.Equal(t, ResolutionDelete, c.Resolution())
	assert.Equal(t, models.ConflictDelete, c.Resolution().state())
}

func TestAwaitResolutions(t *testing.T) {
	a := newConflict(&models.DownloadOperation{ID: 1})
	b := newConflict(&models.DownloadOperation{ID: 2})

	done := make(chan error, 1)
	go func() { done <- awaitResolutions(context.Background(), []*Conflict{a, b}) }()

	require.NoError(t, b.Resolve(ResolutionKeep))
	select {
	case <-done:
		t.Fatal("returned before every conflict was resolved")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, a.Resolve(ResolutionDelete))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("not released")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, awaitResolutions(ctx, []*Conflict{newConflict(&models.DownloadOperation{})}), context.Canceled)
}
