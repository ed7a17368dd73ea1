package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/syncserver/internal/client/config"
	"github.com/dmitrijs2005/syncserver/internal/client/engine"
	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dustin/go-humanize"
)

// lockedWriter serializes writes from the REPL and the delegate goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// consoleDelegate prints engine notifications and settles conflicts by
// policy. With the ask policy conflicts wait in pending until the user
// resolves them.
type consoleDelegate struct {
	out    io.Writer
	policy string

	mu      sync.Mutex
	pending []*engine.Conflict
}

func newConsoleDelegate(out io.Writer, policy string) *consoleDelegate {
	return &consoleDelegate{out: out, policy: policy}
}

func describe(a models.SyncAttributes) string {
	s := fmt.Sprintf("%s (%s, %s)", a.RemoteFileName, a.UUID, humanize.Bytes(uint64(a.SizeBytes)))
	if a.Version != nil {
		s += fmt.Sprintf(" v%d", *a.Version)
	}
	return s
}

func (d *consoleDelegate) SyncServerModeChange(mode engine.Mode, err error) {
	if err != nil {
		fmt.Fprintf(d.out, "[sync] mode %s: %v\n", mode, err)
		return
	}
	fmt.Fprintf(d.out, "[sync] mode %s\n", mode)
}

func (d *consoleDelegate) SyncServerEventOccurred(ev engine.Event) {
	fmt.Fprintf(d.out, "[sync] %s\n", ev)
}

func (d *consoleDelegate) SyncServerShouldSaveDownloads(downloads []engine.Download, ack func()) {
	for _, dl := range downloads {
		fmt.Fprintf(d.out, "[sync] downloaded %s -> %s\n", describe(dl.Attributes), dl.Path)
	}
	ack()
}

func (d *consoleDelegate) SyncServerShouldDoDeletions(deletions []models.SyncAttributes, ack func()) {
	for _, a := range deletions {
		fmt.Fprintf(d.out, "[sync] deleted on server: %s\n", describe(a))
	}
	ack()
}

func (d *consoleDelegate) SyncServerShouldResolveDownloadConflicts(conflicts []*engine.Conflict) {
	d.settle("download", conflicts)
}

func (d *consoleDelegate) SyncServerShouldResolveDeletionConflicts(conflicts []*engine.Conflict) {
	d.settle("deletion", conflicts)
}

func (d *consoleDelegate) settle(kind string, conflicts []*engine.Conflict) {
	var r engine.Resolution
	switch d.policy {
	case config.ConflictKeep:
		r = engine.ResolutionKeep
	case config.ConflictDelete:
		r = engine.ResolutionDelete
	}

	for _, c := range conflicts {
		fmt.Fprintf(d.out, "[sync] %s conflict: server has %s, local %s queued\n", kind, describe(c.Server), c.LocalOperation)
		if r != 0 {
			_ = c.Resolve(r)
			fmt.Fprintf(d.out, "[sync] resolved by policy: %s\n", r)
		}
	}
	if r != 0 {
		return
	}

	d.mu.Lock()
	d.pending = append(d.pending, conflicts...)
	n := len(d.pending)
	d.mu.Unlock()
	fmt.Fprintf(d.out, "[sync] %d conflict(s) waiting, see 'conflicts' and 'resolve'\n", n)
}

// Pending returns unresolved conflicts, dropping the ones resolved meanwhile.
func (d *consoleDelegate) Pending() []*engine.Conflict {
	d.mu.Lock()
	defer d.mu.Unlock()

	left := d.pending[:0]
	for _, c := range d.pending {
		if c.Resolution() == 0 {
			left = append(left, c)
		}
	}
	d.pending = left
	return append([]*engine.Conflict(nil), left...)
}
