// Package memory is an in-process implementation of the server repositories.
// It backs the server when no database is configured and the service tests.
// A transaction works on a copy of the state that replaces it on commit.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/server/models"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/repomanager"
)

type fileKey struct {
	account, uuid string
}

type stageKey struct {
	account, device, uuid string
	kind                  models.StagedKind
}

type state struct {
	files    map[fileKey]models.File
	locks    map[string]models.Lock
	staging  map[stageKey]models.StagedChange
	ops      map[string]models.Operation
	accounts map[string]int64
}

func newState() *state {
	return &state{
		files:    map[fileKey]models.File{},
		locks:    map[string]models.Lock{},
		staging:  map[stageKey]models.StagedChange{},
		ops:      map[string]models.Operation{},
		accounts: map[string]int64{},
	}
}

func (s *state) clone() *state {
	return &state{
		files:    maps.Clone(s.files),
		locks:    maps.Clone(s.locks),
		staging:  maps.Clone(s.staging),
		ops:      maps.Clone(s.ops),
		accounts: maps.Clone(s.accounts),
	}
}

type Manager struct {
	mu sync.Mutex
	st *state
}

func NewManager() *Manager {
	return &Manager{st: newState()}
}

// view is what repositories operate on: the live state guarded by the
// manager mutex, or a transaction copy that is already exclusive.
type view struct {
	m  *Manager
	tx *state
}

func (v view) do(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return fn(v.m.st)
}

func bind(v view) *repomanager.Repositories {
	return &repomanager.Repositories{
		Files:      filesRepo{v},
		Locks:      locksRepo{v},
		Staging:    stagingRepo{v},
		Operations: operationsRepo{v},
		Accounts:   accountsRepo{v},
	}
}

func (m *Manager) Repos() *repomanager.Repositories {
	return bind(view{m: m})
}

func (m *Manager) WithTx(ctx context.Context, fn func(ctx context.Context, r *repomanager.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.st.clone()
	if err := fn(ctx, bind(view{m: m, tx: tx})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.st = tx
	return nil
}

func (m *Manager) Close() error {
	return nil
}

type filesRepo struct{ v view }

func (r filesRepo) Get(ctx context.Context, accountID, uuid string) (*models.File, error) {
	var out *models.File
	err := r.v.do(func(st *state) error {
		f, ok := st.files[fileKey{accountID, uuid}]
		if !ok {
			return common.ErrorNotFound
		}
		out = &f
		return nil
	})
	return out, err
}

func (r filesRepo) List(ctx context.Context, accountID string) ([]*models.File, error) {
	var out []*models.File
	err := r.v.do(func(st *state) error {
		for k, f := range st.files {
			if k.account == accountID {
				out = append(out, &f)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, err
}

func (r filesRepo) Upsert(ctx context.Context, f *models.File) error {
	return r.v.do(func(st *state) error {
		c := *f
		c.AppMetaData = maps.Clone(f.AppMetaData)
		st.files[fileKey{f.AccountID, f.UUID}] = c
		return nil
	})
}

func (r filesRepo) FindActiveByName(ctx context.Context, accountID, name string) (*models.File, error) {
	var out *models.File
	err := r.v.do(func(st *state) error {
		for k, f := range st.files {
			if k.account == accountID && !f.Deleted && f.RemoteFileName == name {
				out = &f
				return nil
			}
		}
		return common.ErrorNotFound
	})
	return out, err
}

type locksRepo struct{ v view }

func (r locksRepo) Get(ctx context.Context, accountID string) (*models.Lock, error) {
	var out *models.Lock
	err := r.v.do(func(st *state) error {
		l, ok := st.locks[accountID]
		if !ok {
			return common.ErrorNotFound
		}
		out = &l
		return nil
	})
	return out, err
}

func (r locksRepo) Put(ctx context.Context, l *models.Lock) error {
	return r.v.do(func(st *state) error {
		st.locks[l.AccountID] = *l
		return nil
	})
}

func (r locksRepo) Delete(ctx context.Context, accountID string) error {
	return r.v.do(func(st *state) error {
		delete(st.locks, accountID)
		return nil
	})
}

func (r locksRepo) ListExpired(ctx context.Context, now time.Time) ([]*models.Lock, error) {
	var out []*models.Lock
	err := r.v.do(func(st *state) error {
		for _, l := range st.locks {
			if l.Expired(now) {
				out = append(out, &l)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, err
}

type stagingRepo struct{ v view }

func (r stagingRepo) Put(ctx context.Context, c *models.StagedChange) error {
	return r.v.do(func(st *state) error {
		cp := *c
		cp.AppMetaData = maps.Clone(c.AppMetaData)
		st.staging[stageKey{c.AccountID, c.DeviceID, c.UUID, c.Kind}] = cp
		return nil
	})
}

func (r stagingRepo) List(ctx context.Context, accountID, deviceID string) ([]*models.StagedChange, error) {
	var out []*models.StagedChange
	err := r.v.do(func(st *state) error {
		for k, c := range st.staging {
			if k.account == accountID && k.device == deviceID {
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].UUID < out[j].UUID
	})
	return out, err
}

func (r stagingRepo) Get(ctx context.Context, accountID, deviceID, uuid string,
	kind models.StagedKind) (*models.StagedChange, error) {
	var out *models.StagedChange
	err := r.v.do(func(st *state) error {
		c, ok := st.staging[stageKey{accountID, deviceID, uuid, kind}]
		if !ok {
			return common.ErrNotStaged
		}
		out = &c
		return nil
	})
	return out, err
}

func (r stagingRepo) DeleteAll(ctx context.Context, accountID, deviceID string) error {
	return r.v.do(func(st *state) error {
		for k := range st.staging {
			if k.account == accountID && k.device == deviceID {
				delete(st.staging, k)
			}
		}
		return nil
	})
}

type operationsRepo struct{ v view }

func (r operationsRepo) Create(ctx context.Context, op *models.Operation) error {
	return r.v.do(func(st *state) error {
		st.ops[op.ID] = *op
		return nil
	})
}

func (r operationsRepo) Get(ctx context.Context, accountID, id string) (*models.Operation, error) {
	var out *models.Operation
	err := r.v.do(func(st *state) error {
		op, ok := st.ops[id]
		if !ok || op.AccountID != accountID {
			return common.ErrOperationNotFound
		}
		out = &op
		return nil
	})
	return out, err
}

func (r operationsRepo) Delete(ctx context.Context, accountID, id string) error {
	return r.v.do(func(st *state) error {
		op, ok := st.ops[id]
		if !ok || op.AccountID != accountID {
			return common.ErrOperationNotFound
		}
		delete(st.ops, id)
		return nil
	})
}

func (r operationsRepo) DeleteForDevice(ctx context.Context, accountID, deviceID string) error {
	return r.v.do(func(st *state) error {
		for id, op := range st.ops {
			if op.AccountID == accountID && op.DeviceID == deviceID {
				delete(st.ops, id)
			}
		}
		return nil
	})
}

type accountsRepo struct{ v view }

func (r accountsRepo) IndexVersion(ctx context.Context, accountID string) (int64, error) {
	var v int64
	err := r.v.do(func(st *state) error {
		v = st.accounts[accountID]
		return nil
	})
	return v, err
}

func (r accountsRepo) IncrementIndexVersion(ctx context.Context, accountID string) (int64, error) {
	var v int64
	err := r.v.do(func(st *state) error {
		st.accounts[accountID]++
		v = st.accounts[accountID]
		return nil
	})
	return v, err
}

var _ repomanager.Manager = (*Manager)(nil)
