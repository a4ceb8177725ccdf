// Package memstore is an in-memory store.Store with copy-on-write
// transactions, savepoints and per-entity unique constraints.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/pkg/models"
)

type row struct {
	id        int64
	createdAt time.Time
	fields    map[string]any
}

type state struct {
	nextID int64
	tables map[models.EntityType][]row
}

func (s *state) clone() *state {
	out := &state{nextID: s.nextID, tables: make(map[models.EntityType][]row, len(s.tables))}
	for e, rows := range s.tables {
		cp := make([]row, len(rows))
		copy(cp, rows)
		out.tables[e] = cp
	}
	return out
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for createdAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithUniqueFields declares case-insensitive unique fields of an entity
// (per tenant), replacing the defaults for that entity.
func WithUniqueFields(e models.EntityType, fields ...string) Option {
	return func(s *Store) { s.unique[e] = fields }
}

// WithCreateHook runs before every insert; a non-nil error fails the insert.
func WithCreateHook(fn func(e models.EntityType, rec map[string]any) error) Option {
	return func(s *Store) { s.createHook = fn }
}

// WithBeginHook runs when a transaction starts; a non-nil error fails InTx.
func WithBeginHook(fn func() error) Option {
	return func(s *Store) { s.beginHook = fn }
}

// Store keeps every tenant's records in process memory.
type Store struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	data   *state
	ledger map[string]models.LedgerEntry

	unique     map[models.EntityType][]string
	now        func() time.Time
	createHook func(models.EntityType, map[string]any) error
	beginHook  func() error
}

func New(opts ...Option) *Store {
	s := &Store{
		data:   &state{nextID: 1, tables: map[models.EntityType][]row{}},
		ledger: map[string]models.LedgerEntry{},
		unique: map[models.EntityType][]string{
			models.EntityUsers: {"email"},
			models.EntityParts: {"sku"},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Repository(e models.EntityType) (store.EntityRepository, error) {
	if _, err := registry.Lookup(e); err != nil {
		return nil, err
	}
	return &repository{owner: s, entity: e, lock: &s.mu, st: func() *state { return s.data }}, nil
}

func (s *Store) Ledger() store.LedgerRepository { return &ledger{owner: s} }

func (s *Store) Close(context.Context) error { return nil }

// InTx serializes transactions; fn works on a private copy that replaces
// the committed state only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if s.beginHook != nil {
		if err := s.beginHook(); err != nil {
			return errors.Wrap(err, "begin transaction")
		}
	}

	s.mu.Lock()
	working := s.data.clone()
	s.mu.Unlock()

	t := &tx{owner: s, st: working, savepoints: map[string]*state{}}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(store.ErrTxAborted, err.Error())
	}

	s.mu.Lock()
	s.data = t.st
	s.mu.Unlock()
	return nil
}

type tx struct {
	owner      *Store
	st         *state
	savepoints map[string]*state
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

func (t *tx) Repository(e models.EntityType) (store.EntityRepository, error) {
	if _, err := registry.Lookup(e); err != nil {
		return nil, err
	}
	return &repository{owner: t.owner, entity: e, lock: noopLocker{}, st: func() *state { return t.st }}, nil
}

func (t *tx) Savepoint(_ context.Context, name string) error {
	t.savepoints[name] = t.st.clone()
	return nil
}

func (t *tx) RollbackTo(_ context.Context, name string) error {
	sp, ok := t.savepoints[name]
	if !ok {
		return fmt.Errorf("savepoint %q does not exist", name)
	}
	t.st = sp.clone()
	return nil
}

type repository struct {
	owner  *Store
	entity models.EntityType
	lock   sync.Locker
	st     func() *state
}

func (r *repository) Create(ctx context.Context, rec map[string]any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	allowed := map[string]bool{}
	for _, c := range registry.Columns(r.entity) {
		allowed[c] = true
	}
	for k := range rec {
		if !allowed[k] {
			return 0, errors.Wrapf(store.ErrUnknownField, "%s.%s", r.entity, k)
		}
	}
	tenant, ok := rec[registry.FieldTenantID].(int64)
	if !ok {
		return 0, errors.Wrap(store.ErrInvalidValue, "tenantId is required")
	}
	if r.owner.createHook != nil {
		if err := r.owner.createHook(r.entity, rec); err != nil {
			return 0, err
		}
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	st := r.st()
	for _, field := range r.owner.unique[r.entity] {
		v, ok := rec[field].(string)
		if !ok || v == "" {
			continue
		}
		for _, existing := range st.tables[r.entity] {
			if existing.fields[registry.FieldTenantID] != tenant {
				continue
			}
			if ev, ok := existing.fields[field].(string); ok && strings.EqualFold(ev, v) {
				return 0, errors.Wrapf(store.ErrUniqueViolation, "%s.%s", r.entity, field)
			}
		}
	}

	fields := make(map[string]any, len(rec))
	for k, v := range rec {
		fields[k] = v
	}
	id := st.nextID
	st.nextID++
	st.tables[r.entity] = append(st.tables[r.entity], row{id: id, createdAt: r.owner.now(), fields: fields})
	return id, nil
}

func (r *repository) FindMany(ctx context.Context, f store.Filter) ([]store.Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	var out []store.Stored
	for _, rw := range r.st().tables[r.entity] {
		if !matches(rw, f) {
			continue
		}
		out = append(out, toStored(rw, f.Fields))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (r *repository) DeleteMany(ctx context.Context, f store.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	st := r.st()
	kept := st.tables[r.entity][:0:0]
	var deleted int64
	for _, rw := range st.tables[r.entity] {
		if matches(rw, f) {
			deleted++
			continue
		}
		kept = append(kept, rw)
	}
	st.tables[r.entity] = kept
	return deleted, nil
}

func matches(rw row, f store.Filter) bool {
	if rw.fields[registry.FieldTenantID] != f.TenantID {
		return false
	}
	if !f.InWindow(rw.createdAt) {
		return false
	}
	if f.ImportID != "" && rw.fields[registry.FieldImportID] != f.ImportID {
		return false
	}
	for _, c := range f.Conditions {
		v := rw.fields[c.Field]
		if c.Field == registry.FieldID {
			v = rw.id
		}
		if !c.Matches(v) {
			return false
		}
	}
	return true
}

func toStored(rw row, only []string) store.Stored {
	fields := make(map[string]any, len(rw.fields))
	if len(only) == 0 {
		for k, v := range rw.fields {
			fields[k] = v
		}
	} else {
		for _, k := range only {
			if v, ok := rw.fields[k]; ok {
				fields[k] = v
			}
		}
	}
	return store.Stored{ID: rw.id, CreatedAt: rw.createdAt, Fields: fields}
}

type ledger struct {
	owner *Store
}

func (l *ledger) Create(_ context.Context, e *models.LedgerEntry) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if _, ok := l.owner.ledger[e.ImportID]; ok {
		return errors.Wrapf(store.ErrUniqueViolation, "ledger entry %s", e.ImportID)
	}
	l.owner.ledger[e.ImportID] = *e
	return nil
}

func (l *ledger) Update(_ context.Context, e *models.LedgerEntry) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if _, ok := l.owner.ledger[e.ImportID]; !ok {
		return errors.Wrapf(store.ErrNotFound, "ledger entry %s", e.ImportID)
	}
	l.owner.ledger[e.ImportID] = *e
	return nil
}

func (l *ledger) Get(_ context.Context, tenantID int64, importID string) (*models.LedgerEntry, error) {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	e, ok := l.owner.ledger[importID]
	if !ok || e.TenantID != tenantID {
		return nil, errors.Wrapf(store.ErrNotFound, "ledger entry %s", importID)
	}
	return &e, nil
}

func (l *ledger) List(_ context.Context, tenantID int64, limit, offset int) ([]models.LedgerEntry, error) {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range l.owner.ledger {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ImportID > out[j].ImportID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset >= len(out) {
		return []models.LedgerEntry{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
