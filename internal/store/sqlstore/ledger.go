package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/pkg/models"
)

const ledgerColumns = `[importId], [tenantId], [userId], [entityType], [mappings], [totalRows],
[importedCount], [skippedCount], [derivedCount], [status], [errors], [duplicates], [failureMessage],
[startedAt], [completedAt], [durationMs], [canRollback], [rolledBack], [rolledBackAt], [rolledBackBy], [deletedCount]`

type ledger struct {
	db *sql.DB
}

func (l *ledger) Create(ctx context.Context, e *models.LedgerEntry) error {
	args, err := ledgerArgs(e)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, `INSERT INTO [import_ledger] (`+ledgerColumns+`)
VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9, @p10, @p11, @p12, @p13, @p14, @p15, @p16, @p17, @p18, @p19, @p20, @p21)`,
		args...)
	return classify(err, "insert ledger entry")
}

func (l *ledger) Update(ctx context.Context, e *models.LedgerEntry) error {
	args, err := ledgerArgs(e)
	if err != nil {
		return err
	}
	res, err := l.db.ExecContext(ctx, `UPDATE [import_ledger] SET
[userId] = @p3, [entityType] = @p4, [mappings] = @p5, [totalRows] = @p6, [importedCount] = @p7,
[skippedCount] = @p8, [derivedCount] = @p9, [status] = @p10, [errors] = @p11, [duplicates] = @p12,
[failureMessage] = @p13, [startedAt] = @p14, [completedAt] = @p15, [durationMs] = @p16,
[canRollback] = @p17, [rolledBack] = @p18, [rolledBackAt] = @p19, [rolledBackBy] = @p20, [deletedCount] = @p21
WHERE [importId] = @p1 AND [tenantId] = @p2`, args...)
	if err != nil {
		return classify(err, "update ledger entry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update ledger entry")
	}
	if n == 0 {
		return errors.Wrapf(store.ErrNotFound, "ledger entry %s", e.ImportID)
	}
	return nil
}

func (l *ledger) Get(ctx context.Context, tenantID int64, importID string) (*models.LedgerEntry, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM [import_ledger]
WHERE [importId] = @p1 AND [tenantId] = @p2`, importID, tenantID)
	e, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(store.ErrNotFound, "ledger entry %s", importID)
	}
	return e, err
}

func (l *ledger) List(ctx context.Context, tenantID int64, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT `+ledgerColumns+` FROM [import_ledger]
WHERE [tenantId] = @p1 ORDER BY [startedAt] DESC, [importId] DESC OFFSET @p2 ROWS FETCH NEXT @p3 ROWS ONLY`,
		tenantID, offset, limit)
	if err != nil {
		return nil, classify(err, "list ledger entries")
	}
	defer rows.Close()

	out := []models.LedgerEntry{}
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, errors.Wrap(rows.Err(), "iterate ledger rows")
}

func ledgerArgs(e *models.LedgerEntry) ([]any, error) {
	mappings, err := json.Marshal(e.Mappings)
	if err != nil {
		return nil, errors.Wrap(err, "encode mappings")
	}
	errs, err := json.Marshal(nonNil(e.Errors))
	if err != nil {
		return nil, errors.Wrap(err, "encode errors")
	}
	dups, err := json.Marshal(nonNil(e.Duplicates))
	if err != nil {
		return nil, errors.Wrap(err, "encode duplicates")
	}
	return []any{
		e.ImportID, e.TenantID, e.UserID, string(e.EntityType), string(mappings), e.TotalRows,
		e.ImportedCount, e.SkippedCount, e.DerivedCount, string(e.Status), string(errs), string(dups),
		e.FailureMessage, e.StartedAt.UTC(), nullTime(e.CompletedAt), e.DurationMs,
		e.CanRollback, e.RolledBack, nullTime(e.RolledBackAt), e.RolledBackBy, e.DeletedCount,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLedger(s scanner) (*models.LedgerEntry, error) {
	var (
		e                         models.LedgerEntry
		entity, status            string
		mappings, errs, dups      string
		completedAt, rolledBackAt sql.NullTime
	)
	err := s.Scan(&e.ImportID, &e.TenantID, &e.UserID, &entity, &mappings, &e.TotalRows,
		&e.ImportedCount, &e.SkippedCount, &e.DerivedCount, &status, &errs, &dups, &e.FailureMessage,
		&e.StartedAt, &completedAt, &e.DurationMs, &e.CanRollback, &e.RolledBack, &rolledBackAt,
		&e.RolledBackBy, &e.DeletedCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan ledger entry")
	}
	e.EntityType = models.EntityType(entity)
	e.Status = models.ImportStatus(status)
	if err := json.Unmarshal([]byte(mappings), &e.Mappings); err != nil {
		return nil, errors.Wrap(err, "decode mappings")
	}
	if err := json.Unmarshal([]byte(errs), &e.Errors); err != nil {
		return nil, errors.Wrap(err, "decode errors")
	}
	if err := json.Unmarshal([]byte(dups), &e.Duplicates); err != nil {
		return nil, errors.Wrap(err, "decode duplicates")
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		e.CompletedAt = &t
	}
	if rolledBackAt.Valid {
		t := rolledBackAt.Time.UTC()
		e.RolledBackAt = &t
	}
	e.StartedAt = e.StartedAt.UTC()
	return &e, nil
}
