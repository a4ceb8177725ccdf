// Package store defines the transactional record store the import pipeline
// writes through. Implementations live in the memstore, mongostore and
// sqlstore sub-packages.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BartekS5/importer/pkg/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrForeignKey      = errors.New("foreign key violation")
	ErrUnknownField    = errors.New("unknown field")
	ErrInvalidValue    = errors.New("invalid value")
	ErrTxAborted       = errors.New("transaction aborted")
)

// Condition restricts Field to one of Values. FoldCase compares strings
// case-insensitively.
type Condition struct {
	Field    string
	Values   []any
	FoldCase bool
}

// Eq is a single-value Condition.
func Eq(field string, v any) Condition {
	return Condition{Field: field, Values: []any{v}}
}

// EqFold is a case-insensitive single-value Condition.
func EqFold(field, v string) Condition {
	return Condition{Field: field, Values: []any{v}, FoldCase: true}
}

// Filter selects records of one tenant. Conditions are ANDed; zero
// CreatedFrom/CreatedTo leave that bound open. Both bounds are inclusive.
type Filter struct {
	TenantID    int64
	Conditions  []Condition
	CreatedFrom time.Time
	CreatedTo   time.Time
	ImportID    string
	Fields      []string
	Limit       int
}

// Stored is a record as read back from a store.
type Stored struct {
	ID        int64
	CreatedAt time.Time
	Fields    map[string]any
}

// String returns a field as text, or "" when absent or not a string.
func (s Stored) String(field string) string {
	v, _ := s.Fields[field].(string)
	return v
}

// EntityRepository is the per-entity-type store access.
type EntityRepository interface {
	Create(ctx context.Context, rec map[string]any) (int64, error)
	FindMany(ctx context.Context, f Filter) ([]Stored, error)
	DeleteMany(ctx context.Context, f Filter) (int64, error)
}

// Tx is an open transaction. Savepoints let a failed record be undone
// without aborting the rest of its batch.
type Tx interface {
	Repository(e models.EntityType) (EntityRepository, error)
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
}

// LedgerRepository persists import ledger entries. Entries are never deleted.
type LedgerRepository interface {
	Create(ctx context.Context, e *models.LedgerEntry) error
	Update(ctx context.Context, e *models.LedgerEntry) error
	Get(ctx context.Context, tenantID int64, importID string) (*models.LedgerEntry, error)
	List(ctx context.Context, tenantID int64, limit, offset int) ([]models.LedgerEntry, error)
}

// Store is the whole persistence boundary used by the pipeline.
type Store interface {
	Repository(e models.EntityType) (EntityRepository, error)
	// InTx runs fn in one transaction; it commits when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ledger() LedgerRepository
	Close(ctx context.Context) error
}

// Matches evaluates a condition against a plain value. Stores without a
// query language (memstore) and tests share it.
func (c Condition) Matches(v any) bool {
	for _, want := range c.Values {
		if c.FoldCase {
			ws, ok1 := want.(string)
			vs, ok2 := v.(string)
			if ok1 && ok2 && strings.EqualFold(ws, vs) {
				return true
			}
			continue
		}
		if equalValues(want, v) {
			return true
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// InWindow reports whether t falls inside the filter's creation window.
func (f Filter) InWindow(t time.Time) bool {
	if !f.CreatedFrom.IsZero() && t.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && t.After(f.CreatedTo) {
		return false
	}
	return true
}
