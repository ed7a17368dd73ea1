package engine

import (
	"sync"

	"github.com/dmitrijs2005/syncserver/internal/client/models"
)

// Delegate is implemented by the host. All methods are called from a single
// goroutine, in the order the engine produced them, and must not block for
// long. The ack functions and Conflict.Resolve may be called later from any
// goroutine; the engine waits for them.
type Delegate interface {
	SyncServerModeChange(mode Mode, err error)
	SyncServerEventOccurred(ev Event)

	// SyncServerShouldSaveDownloads hands over materialized files. The host
	// calls ack once it has durably recorded them.
	SyncServerShouldSaveDownloads(downloads []Download, ack func())

	// SyncServerShouldDoDeletions reports files deleted on the server.
	SyncServerShouldDoDeletions(deletions []models.SyncAttributes, ack func())

	SyncServerShouldResolveDownloadConflicts(conflicts []*Conflict)
	SyncServerShouldResolveDeletionConflicts(conflicts []*Conflict)
}

// notifier delivers delegate calls in FIFO order on its own goroutine, so
// host calls such as Commit can post events without racing the engine.
type notifier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func(Delegate)
	closed bool
	done   chan struct{}
	d      Delegate
}

func newNotifier(d Delegate) *notifier {
	n := &notifier{d: d, done: make(chan struct{})}
	n.cond = sync.NewCond(&n.mu)
	return n
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		fn := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()

		fn(n.d)
	}
}

func (n *notifier) post(fn func(Delegate)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.queue = append(n.queue, fn)
	n.cond.Signal()
}

func (n *notifier) event(ev Event) {
	n.post(func(d Delegate) { d.SyncServerEventOccurred(ev) })
}

func (n *notifier) mode(m Mode, err error) {
	n.post(func(d Delegate) { d.SyncServerModeChange(m, err) })
}

// close drains what is queued and stops the goroutine.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()
	<-n.done
}

// ack returns a callback that may be invoked any number of times and the
// channel it closes on the first call.
func ack() (func(), <-chan struct{}) {
	ch := make(chan struct{})
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }, ch
}
