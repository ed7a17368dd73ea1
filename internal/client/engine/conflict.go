package engine

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/syncserver/internal/client/models"
)

// Resolution is the host decision for a Conflict.
type Resolution int

const (
	// ResolutionDelete accepts the server change and drops the local
	// operations for the file.
	ResolutionDelete Resolution = iota + 1
	// ResolutionKeep keeps the local operations; they supersede the server
	// change on the next upload.
	ResolutionKeep
)

func (r Resolution) String() string {
	switch r {
	case ResolutionDelete:
		return "delete"
	case ResolutionKeep:
		return "keep"
	default:
		return "unresolved"
	}
}

func (r Resolution) state() models.ConflictState {
	if r == ResolutionKeep {
		return models.ConflictKeep
	}
	return models.ConflictDelete
}

// Conflict is a server change colliding with a queued local operation. The
// zero value is ready to use.
type Conflict struct {
	// Server describes the incoming change.
	Server models.SyncAttributes
	// LocalOperation is the kind of the queued local operation.
	LocalOperation models.OperationKind

	downloadID int64

	mu         sync.Mutex
	resolution Resolution
	done       chan struct{}
}

func newConflict(op *models.DownloadOperation) *Conflict {
	return &Conflict{
		Server:         op.Server.Attributes(),
		LocalOperation: op.ConflictingOperation,
		downloadID:     op.ID,
	}
}

// doneCh must be called with mu held.
func (c *Conflict) doneCh() chan struct{} {
	if c.done == nil {
		c.done = make(chan struct{})
	}
	return c.done
}

// Resolve records the decision. Only the first call counts.
func (c *Conflict) Resolve(r Resolution) error {
	if r != ResolutionDelete && r != ResolutionKeep {
		return ErrInvalidResolution
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolution != 0 {
		return ErrConflictAlreadyResolved
	}
	c.resolution = r
	close(c.doneCh())
	return nil
}

func (c *Conflict) Resolution() Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolution
}

// awaitResolutions blocks until every conflict is resolved.
func awaitResolutions(ctx context.Context, conflicts []*Conflict) error {
	for _, c := range conflicts {
		c.mu.Lock()
		done := c.doneCh()
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
