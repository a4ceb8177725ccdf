package etl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/pkg/logger"
	"github.com/BartekS5/importer/pkg/models"
	"github.com/BartekS5/importer/pkg/utils"
)

type lookupTable struct {
	ids      map[int64]bool
	byName   map[string]int64
	byEmail  map[string]int64
	byLegacy map[string]int64
}

func newLookupTable() *lookupTable {
	return &lookupTable{
		ids:      map[int64]bool{},
		byName:   map[string]int64{},
		byEmail:  map[string]int64{},
		byLegacy: map[string]int64{},
	}
}

// add indexes a record; the first id seen for a key wins.
func (t *lookupTable) add(id int64, name, email, legacy string) {
	t.ids[id] = true
	put := func(m map[string]int64, k string) {
		if k == "" {
			return
		}
		if _, ok := m[k]; !ok {
			m[k] = id
		}
	}
	put(t.byName, strings.ToLower(strings.TrimSpace(name)))
	put(t.byEmail, strings.ToLower(strings.TrimSpace(email)))
	put(t.byLegacy, legacyKey(legacy))
}

// LookupCache holds the name/email/legacy-id tables of one import run.
// It is never shared between runs.
type LookupCache struct {
	mu     sync.RWMutex
	tables map[models.EntityType]*lookupTable
}

func NewLookupCache() *LookupCache {
	return &LookupCache{tables: map[models.EntityType]*lookupTable{}}
}

func (c *LookupCache) table(e models.EntityType) *lookupTable {
	t, ok := c.tables[e]
	if !ok {
		t = newLookupTable()
		c.tables[e] = t
	}
	return t
}

// Find resolves value against entity e by name or email, then by legacy id
// when the value is numeric.
func (c *LookupCache) Find(e models.EntityType, on models.MatchOn, value string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[e]
	if !ok {
		return 0, false
	}
	key := strings.ToLower(strings.TrimSpace(value))
	index := t.byName
	if on == models.MatchEmail {
		index = t.byEmail
	}
	if id, ok := index[key]; ok {
		return id, true
	}
	if utils.IsNumeric(key) {
		id, ok := t.byLegacy[legacyKey(key)]
		return id, ok
	}
	return 0, false
}

// Has reports whether id is a record of entity e loaded for, or created
// during, the run.
func (c *LookupCache) Has(e models.EntityType, id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[e]
	return ok && t.ids[id]
}

// Remember adds a record created during the run.
func (c *LookupCache) Remember(e models.EntityType, id int64, name, email, legacy string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table(e).add(id, name, email, legacy)
}

// legacyKey renders numeric legacy ids without a trailing ".0" so "1001"
// and "1001.0" match.
func legacyKey(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strings.ToLower(s)
}

// LoadLookups preloads, concurrently and once per run, every entity type
// referenced by a mapped lookup field or a mapped id field of spec.
func LoadLookups(ctx context.Context, st store.Store, spec models.EntitySpec, mappings []models.ColumnMapping, tenantID int64, timeout time.Duration) (*LookupCache, error) {
	cache := NewLookupCache()
	mapped := models.MappedFields(mappings)
	related := map[models.EntityType]bool{}
	for _, f := range spec.Fields {
		if _, ok := mapped[f.Key]; !ok {
			continue
		}
		if f.Lookup != nil {
			related[f.Lookup.Entity] = true
		} else if ref, ok := registry.References(spec, f.Key); ok {
			related[ref] = true
		}
	}
	if len(related) == 0 {
		return cache, nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	g, gctx := errgroup.WithContext(ctx)
	for e := range related {
		e := e
		g.Go(func() error {
			return loadTable(gctx, st, cache, e, tenantID)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cache, nil
}

func loadTable(ctx context.Context, st store.Store, cache *LookupCache, e models.EntityType, tenantID int64) error {
	repo, err := st.Repository(e)
	if err != nil {
		return err
	}
	var fields []string
	for _, c := range registry.Columns(e) {
		if c == "name" || c == "email" || c == registry.FieldLegacyID {
			fields = append(fields, c)
		}
	}
	found, err := repo.FindMany(ctx, store.Filter{TenantID: tenantID, Fields: fields})
	if err != nil {
		return errors.Wrapf(err, "preload %s lookups", e)
	}

	cache.mu.Lock()
	t := cache.table(e)
	for _, s := range found {
		t.add(s.ID, s.String("name"), s.String("email"), legacyString(s.Fields[registry.FieldLegacyID]))
	}
	cache.mu.Unlock()
	logger.Debugf("Preloaded %d %s for lookups", len(found), e)
	return nil
}

func legacyString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

// Resolver replaces lookup values with foreign keys and scopes records to a tenant.
type Resolver struct {
	spec  models.EntitySpec
	cache *LookupCache
}

func NewResolver(spec models.EntitySpec, cache *LookupCache) *Resolver {
	return &Resolver{spec: spec, cache: cache}
}

// Resolve returns a copy of rec with every lookup field replaced by its
// target id. Unresolved lookups and id fields naming no record of the
// tenant are dropped with a warning. The tenant id is set last and always
// overrides row data.
func (r *Resolver) Resolve(rowNum int, rec models.Record, tenantID int64) (models.Record, []string) {
	out := rec.Clone()
	var warnings []string
	resolved := map[string]bool{}
	for _, f := range r.spec.LookupFields() {
		target := f.Lookup.TargetField
		v, ok := out[f.Key]
		if !ok {
			continue
		}
		delete(out, f.Key)
		resolved[target] = true
		name := v.String()
		if id, found := r.cache.Find(f.Lookup.Entity, f.Lookup.MatchOn, name); found {
			out[target] = models.IDValue(id)
			continue
		}
		delete(out, target)
		warnings = append(warnings, fmt.Sprintf("Row %d: %s %q was not found; %s left empty", rowNum, f.Label, name, target))
	}

	for _, f := range r.spec.Fields {
		v, ok := out[f.Key]
		if !ok || resolved[f.Key] {
			continue
		}
		ref, ok := registry.References(r.spec, f.Key)
		if !ok {
			continue
		}
		id, isID := directID(v)
		if isID && r.cache.Has(ref, id) {
			out[f.Key] = models.IDValue(id)
			continue
		}
		delete(out, f.Key)
		warnings = append(warnings, fmt.Sprintf("Row %d: %s %s was not found; %s left empty", rowNum, f.Label, v.String(), f.Key))
	}
	out[registry.FieldTenantID] = models.IDValue(tenantID)
	return out, warnings
}

func directID(v models.Value) (int64, bool) {
	if id, ok := v.ID(); ok {
		return id, true
	}
	if n, ok := v.Number(); ok && n == float64(int64(n)) {
		return int64(n), true
	}
	return 0, false
}

// WithTenant scopes a derived record to the tenant.
func WithTenant(rec models.Record, tenantID int64) models.Record {
	out := rec.Clone()
	out[registry.FieldTenantID] = models.IDValue(tenantID)
	return out
}
