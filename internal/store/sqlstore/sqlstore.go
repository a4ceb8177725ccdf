// Package sqlstore implements store.Store on SQL Server through
// database/sql and the go-mssqldb driver.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/pkg/models"
)

// tables is the compile-time table of entity type -> table name.
var tables = map[models.EntityType]string{
	models.EntityUsers:                "users",
	models.EntityLocations:            "locations",
	models.EntitySuppliers:            "suppliers",
	models.EntityParts:                "parts",
	models.EntityAssets:               "assets",
	models.EntityWorkOrders:           "work_orders",
	models.EntityMaintenanceTasks:     "maintenance_tasks",
	models.EntityMaintenanceSchedules: "maintenance_schedules",
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Repository(e models.EntityType) (store.EntityRepository, error) {
	return s.repository(s.db, e)
}

func (s *Store) repository(q querier, e models.EntityType) (*repository, error) {
	table, ok := tables[e]
	if !ok {
		return nil, &registry.UnknownEntityError{Entity: string(e)}
	}
	cols := map[string]bool{}
	for _, c := range registry.Columns(e) {
		cols[c] = true
	}
	return &repository{q: q, entity: e, table: table, columns: cols, now: s.now}, nil
}

func (s *Store) Ledger() store.LedgerRepository { return &ledger{db: s.db} }

func (s *Store) Close(context.Context) error { return s.db.Close() }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(ctx, &tx{store: s, tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Wrapf(err, "rollback failed: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(sqlTx.Commit(), "commit transaction")
}

type tx struct {
	store *Store
	tx    *sql.Tx
}

func (t *tx) Repository(e models.EntityType) (store.EntityRepository, error) {
	return t.store.repository(t.tx, e)
}

func (t *tx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "SAVE TRANSACTION "+quote(name))
	return errors.Wrapf(err, "savepoint %s", name)
}

func (t *tx) RollbackTo(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "ROLLBACK TRANSACTION "+quote(name)); err != nil {
		return errors.Wrapf(store.ErrTxAborted, "rollback to %s: %v", name, err)
	}
	return nil
}

// quote brackets an identifier, dropping anything but letters, digits and underscores.
func quote(ident string) string {
	var b strings.Builder
	for _, r := range ident {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return "[" + b.String() + "]"
}

type repository struct {
	q       querier
	entity  models.EntityType
	table   string
	columns map[string]bool
	now     func() time.Time
}

func (r *repository) Create(ctx context.Context, rec map[string]any) (int64, error) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		if !r.columns[k] {
			return 0, errors.Wrapf(store.ErrUnknownField, "%s.%s", r.entity, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	colNames := make([]string, 0, len(keys)+1)
	placeholders := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		colNames = append(colNames, quote(k))
		args = append(args, rec[k])
		placeholders = append(placeholders, fmt.Sprintf("@p%d", len(args)))
	}
	colNames = append(colNames, quote(registry.FieldCreatedAt))
	args = append(args, r.now().UTC())
	placeholders = append(placeholders, fmt.Sprintf("@p%d", len(args)))

	query := fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.[id] VALUES (%s)",
		quote(r.table), strings.Join(colNames, ", "), strings.Join(placeholders, ", "))

	var id int64
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, classify(err, "insert into "+r.table)
	}
	return id, nil
}

func (r *repository) FindMany(ctx context.Context, f store.Filter) ([]store.Stored, error) {
	cols := f.Fields
	if len(cols) == 0 {
		cols = make([]string, 0, len(r.columns))
		for c := range r.columns {
			cols = append(cols, c)
		}
		sort.Strings(cols)
	}
	selected := []string{quote(registry.FieldID), quote(registry.FieldCreatedAt)}
	for _, c := range cols {
		if !r.columns[c] {
			return nil, errors.Wrapf(store.ErrUnknownField, "%s.%s", r.entity, c)
		}
		selected = append(selected, quote(c))
	}

	where, args, err := r.where(f)
	if err != nil {
		return nil, err
	}
	top := ""
	if f.Limit > 0 {
		top = fmt.Sprintf("TOP (%d) ", f.Limit)
	}
	query := fmt.Sprintf("SELECT %s%s FROM %s WHERE %s ORDER BY [id]",
		top, strings.Join(selected, ", "), quote(r.table), where)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "select from "+r.table)
	}
	defer rows.Close()

	var out []store.Stored
	for rows.Next() {
		vals := make([]any, len(selected))
		ptrs := make([]any, len(selected))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrapf(err, "scan %s row", r.table)
		}
		s := store.Stored{Fields: map[string]any{}}
		s.ID, _ = vals[0].(int64)
		if t, ok := vals[1].(time.Time); ok {
			s.CreatedAt = t.UTC()
		}
		for i, c := range cols {
			v := vals[i+2]
			if v == nil {
				continue
			}
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			s.Fields[c] = v
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "iterate rows")
}

func (r *repository) DeleteMany(ctx context.Context, f store.Filter) (int64, error) {
	where, args, err := r.where(f)
	if err != nil {
		return 0, err
	}
	res, err := r.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", quote(r.table), where), args...)
	if err != nil {
		return 0, classify(err, "delete from "+r.table)
	}
	return res.RowsAffected()
}

func (r *repository) where(f store.Filter) (string, []any, error) {
	args := []any{f.TenantID}
	clauses := []string{"[tenantId] = @p1"}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("@p%d", len(args))
	}
	if !f.CreatedFrom.IsZero() {
		clauses = append(clauses, "[createdAt] >= "+next(f.CreatedFrom.UTC()))
	}
	if !f.CreatedTo.IsZero() {
		clauses = append(clauses, "[createdAt] <= "+next(f.CreatedTo.UTC()))
	}
	if f.ImportID != "" {
		clauses = append(clauses, "[importId] = "+next(f.ImportID))
	}
	for _, c := range f.Conditions {
		if c.Field != registry.FieldID && !r.columns[c.Field] {
			return "", nil, errors.Wrapf(store.ErrUnknownField, "%s.%s", r.entity, c.Field)
		}
		if len(c.Values) == 0 {
			clauses = append(clauses, "1 = 0")
			continue
		}
		col := quote(c.Field)
		ph := make([]string, len(c.Values))
		for i, v := range c.Values {
			if c.FoldCase {
				ph[i] = "LOWER(" + next(v) + ")"
			} else {
				ph[i] = next(v)
			}
		}
		if c.FoldCase {
			col = "LOWER(" + col + ")"
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")))
	}
	return strings.Join(clauses, " AND "), args, nil
}
