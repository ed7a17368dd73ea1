package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dmitrijs2005/syncserver/internal/client/config"
	"github.com/dmitrijs2005/syncserver/internal/client/engine"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conflict(name string) *engine.Conflict {
	return &engine.Conflict{
		Server:         models.SyncAttributes{UUID: "u-" + name, RemoteFileName: name, Version: models.Int64(2), SizeBytes: 2048},
		LocalOperation: models.OperationUpload,
	}
}

func TestConsoleDelegate_Policy(t *testing.T) {
	tests := []struct {
		policy string
		want   engine.Resolution
	}{
		{config.ConflictKeep, engine.ResolutionKeep},
		{config.ConflictDelete, engine.ResolutionDelete},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			var out bytes.Buffer
			d := newConsoleDelegate(&out, tt.policy)

			c := conflict("a.txt")
			d.SyncServerShouldResolveDownloadConflicts([]*engine.Conflict{c})

			assert.Equal(t, tt.want, c.Resolution())
			assert.Empty(t, d.Pending())
			assert.Contains(t, out.String(), "download conflict: server has a.txt (u-a.txt, 2.0 kB) v2")
		})
	}
}

func TestConsoleDelegate_Ask(t *testing.T) {
	var out bytes.Buffer
	d := newConsoleDelegate(&out, config.ConflictAsk)

	a, b := conflict("a"), conflict("b")
	d.SyncServerShouldResolveDeletionConflicts([]*engine.Conflict{a, b})
	require.Len(t, d.Pending(), 2)
	assert.Contains(t, out.String(), "2 conflict(s) waiting")

	require.NoError(t, a.Resolve(engine.ResolutionKeep))
	pending := d.Pending()
	require.Len(t, pending, 1)
	assert.Same(t, b, pending[0])
}

func TestConsoleDelegate_Notifications(t *testing.T) {
	var out bytes.Buffer
	d := newConsoleDelegate(&out, config.ConflictAsk)

	d.SyncServerModeChange(engine.ModeIdle, nil)
	d.SyncServerModeChange(engine.ModeInternalError, errors.New("boom"))
	d.SyncServerEventOccurred(engine.AllUploadsComplete{NumberOperations: 3})

	acked := 0
	d.SyncServerShouldSaveDownloads([]engine.Download{{
		Path:       "downloads/u1",
		Attributes: models.SyncAttributes{UUID: "u1", RemoteFileName: "a.txt", SizeBytes: 10},
	}}, func() { acked++ })
	d.SyncServerShouldDoDeletions([]models.SyncAttributes{{UUID: "u2", RemoteFileName: "b.txt"}}, func() { acked++ })

	assert.Equal(t, 2, acked)
	s := out.String()
	assert.Contains(t, s, "[sync] mode idle\n")
	assert.Contains(t, s, "[sync] mode internal-error: boom\n")
	assert.Contains(t, s, "[sync] all-uploads-complete 3\n")
	assert.Contains(t, s, "downloaded a.txt (u1, 10 B) -> downloads/u1")
	assert.Contains(t, s, "deleted on server: b.txt (u2, 0 B)")
}
