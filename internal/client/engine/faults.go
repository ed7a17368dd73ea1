package engine

import (
	"fmt"
	"sync"
)

// FaultPoint names a step of the sync pipeline where a failure can be injected.
type FaultPoint string

const (
	FaultAfterLock             FaultPoint = "after-lock"
	FaultAfterIndexCheck       FaultPoint = "after-index-check"
	FaultAfterFileTransfer     FaultPoint = "after-file-transfer"
	FaultBeforeFinishUploads   FaultPoint = "before-finish-uploads"
	FaultAfterFinishUploads    FaultPoint = "after-finish-uploads"
	FaultAfterInboundTransfer  FaultPoint = "after-inbound-transfer"
	FaultAfterFileMaterialized FaultPoint = "after-file-materialized"
	FaultBeforeAcknowledge     FaultPoint = "before-acknowledge"
)

type FaultKind int

const (
	// FaultTransient behaves like a lost connection: the step is retried.
	FaultTransient FaultKind = iota
	// FaultCrash stops the session on the spot, as if the process died.
	// A new Session over the same database picks the work up.
	FaultCrash
)

type faultRule struct {
	point FaultPoint
	n     int
	kind  FaultKind
	times int
}

// Faults is a set of armed failures. The zero value and a nil *Faults
// never fire.
type Faults struct {
	mu    sync.Mutex
	rules []*faultRule
	hits  map[FaultPoint]int
}

func NewFaults() *Faults {
	return &Faults{}
}

// Inject arms a fault at point. For counted points (file transfer and
// materialization) n selects the n-th file of the step, 0 matches any.
// The fault fires times times.
func (f *Faults) Inject(point FaultPoint, n int, kind FaultKind, times int) *Faults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &faultRule{point: point, n: n, kind: kind, times: times})
	return f
}

// Hits reports how many times faults fired at point.
func (f *Faults) Hits(point FaultPoint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[point]
}

func (f *Faults) check(point FaultPoint, n int) error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rules {
		if r.point != point || r.times == 0 || (r.n != 0 && r.n != n) {
			continue
		}
		r.times--
		if f.hits == nil {
			f.hits = make(map[FaultPoint]int)
		}
		f.hits[point]++

		if r.kind == FaultCrash {
			return fmt.Errorf("%w at %s", ErrSimulatedCrash, point)
		}
		return fmt.Errorf("%w at %s", ErrInjectedFault, point)
	}
	return nil
}
