package etl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/pkg/models"
)

// History paging defaults.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Ledger owns the audit entry of each run.
type Ledger struct {
	repo store.LedgerRepository
	now  func() time.Time
}

func NewLedger(repo store.LedgerRepository, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{repo: repo, now: now}
}

// Begin persists a new IN_PROGRESS entry with the finalized mapping.
func (l *Ledger) Begin(ctx context.Context, tenantID, userID int64, e models.EntityType, mappings []models.ColumnMapping, totalRows int) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		ImportID:   uuid.NewString(),
		TenantID:   tenantID,
		UserID:     userID,
		EntityType: e,
		Mappings:   mappings,
		TotalRows:  totalRows,
		Status:     models.StatusInProgress,
		Errors:     []string{},
		Duplicates: []string{},
		StartedAt:  l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		return nil, errors.Wrap(err, "create ledger entry")
	}
	return entry, nil
}

// Finish stores the final counts. A non-nil runErr marks the run FAILED.
func (l *Ledger) Finish(ctx context.Context, entry *models.LedgerEntry, out Outcome, runErr error) error {
	completed := l.now().UTC()
	entry.CompletedAt = &completed
	entry.DurationMs = completed.Sub(entry.StartedAt).Milliseconds()
	entry.ImportedCount = out.Imported
	entry.SkippedCount = out.Skipped
	entry.DerivedCount = out.Derived
	entry.Errors = nonNilStrings(out.Errors)
	entry.Duplicates = nonNilStrings(out.Duplicates)
	entry.Status = models.FinalStatus(out.Imported, out.Skipped, len(out.Errors))
	if runErr != nil {
		entry.Status = models.StatusFailed
		entry.FailureMessage = runErr.Error()
	}
	entry.CanRollback = entry.ImportedCount > 0 && entry.Status != models.StatusFailed
	return errors.Wrap(l.repo.Update(ctx, entry), "finish ledger entry")
}

// History lists a tenant's entries, newest first.
func (l *Ledger) History(ctx context.Context, tenantID int64, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return l.repo.List(ctx, tenantID, limit, offset)
}

func (l *Ledger) Get(ctx context.Context, tenantID int64, importID string) (*models.LedgerEntry, error) {
	return l.repo.Get(ctx, tenantID, importID)
}

// MarkRolledBack records a successful rollback on the entry.
func (l *Ledger) MarkRolledBack(ctx context.Context, entry *models.LedgerEntry, userID, deleted int64) error {
	at := l.now().UTC()
	entry.RolledBack = true
	entry.RolledBackAt = &at
	entry.RolledBackBy = userID
	entry.DeletedCount = deleted
	entry.CanRollback = false
	return errors.Wrap(l.repo.Update(ctx, entry), "mark ledger entry rolled back")
}
