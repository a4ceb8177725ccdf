// Package etl is the import pipeline: column mapping, validation, conflict
// detection, transformation, relationship resolution, work-order derivation,
// batched execution and the import ledger.
package etl

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/internal/template"
	"github.com/BartekS5/importer/pkg/logger"
	"github.com/BartekS5/importer/pkg/models"
)

// Rollback modes.
const (
	RollbackWindow = "window"
	RollbackTag    = "tag"
)

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	BatchSize     int
	BatchTimeout  time.Duration
	LookupTimeout time.Duration
	RollbackMode  string
	Hasher        PasswordHasher
	Clock         func() time.Time
}

// Service exposes the pipeline entry points over one store.
type Service struct {
	store     store.Store
	opts      Options
	validator *Validator
	ledger    *Ledger
	executor  *Executor
	deriver   *Deriver
}

func NewService(st store.Store, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 30 * time.Second
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}
	if opts.RollbackMode == "" {
		opts.RollbackMode = RollbackWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		store:     st,
		opts:      opts,
		validator: NewValidator(),
		ledger:    NewLedger(st.Ledger(), opts.Clock),
		executor:  NewExecutor(st, opts.BatchSize, opts.BatchTimeout, opts.Hasher, opts.Clock),
		deriver:   NewDeriver(opts.Clock),
	}
}

func lookupSpec(e models.EntityType) (models.EntitySpec, error) {
	spec, err := registry.Lookup(e)
	if err != nil {
		return models.EntitySpec{}, &ConfigurationError{Err: err}
	}
	return spec, nil
}

// InferMapping proposes a mapping for the given headers.
func (s *Service) InferMapping(headers []string, e models.EntityType) ([]models.ColumnMapping, error) {
	return InferMapping(headers, e)
}

// Validate is the read-only validation pass.
func (s *Service) Validate(ctx context.Context, rows []models.RawRow, mappings []models.ColumnMapping, e models.EntityType, tenantID int64) (models.ValidationResult, error) {
	spec, err := lookupSpec(e)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.ValidationResult{}, err
	}
	res := s.validator.Validate(rows, mappings, spec)
	logger.WithFields(logrus.Fields{"entity": e, "tenant_id": tenantID}).
		Debugf("Validated %d rows: %d errors, %d warnings", len(rows), len(res.Errors), len(res.Warnings))
	return res, nil
}

// CheckConflicts reports intra-file duplicates and already-stored values.
func (s *Service) CheckConflicts(ctx context.Context, rows []models.RawRow, mappings []models.ColumnMapping, e models.EntityType, tenantID int64) (models.ConflictReport, error) {
	spec, err := lookupSpec(e)
	if err != nil {
		return models.ConflictReport{}, err
	}
	return NewConflictDetector(s.store, s.opts.LookupTimeout).Check(ctx, rows, mappings, spec, tenantID)
}

// Preflight runs validation and both conflict checks concurrently.
func (s *Service) Preflight(ctx context.Context, rows []models.RawRow, mappings []models.ColumnMapping, e models.EntityType, tenantID int64) (models.PreflightReport, error) {
	var report models.PreflightReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.Validate(gctx, rows, mappings, e, tenantID)
		report.Validation = v
		return err
	})
	g.Go(func() error {
		c, err := s.CheckConflicts(gctx, rows, mappings, e, tenantID)
		report.Conflicts = c
		return err
	})
	if err := g.Wait(); err != nil {
		return models.PreflightReport{}, err
	}
	return report, nil
}

// Execute imports rows. Mapping problems are returned as *ValidationError
// before anything is written. Per-row failures are reported in the result;
// an *OrchestrationError means the run stopped and was marked FAILED.
func (s *Service) Execute(ctx context.Context, e models.EntityType, mappings []models.ColumnMapping, rows []models.RawRow, userID, tenantID int64) (models.ImportResult, error) {
	spec, err := lookupSpec(e)
	if err != nil {
		return models.ImportResult{}, err
	}
	if errs, _ := s.validator.CheckMappings(mappings, spec); len(errs) > 0 {
		return models.ImportResult{}, &ValidationError{Problems: errs}
	}

	entry, err := s.ledger.Begin(ctx, tenantID, userID, e, mappings, len(rows))
	if err != nil {
		return models.ImportResult{}, &OrchestrationError{Err: err}
	}
	log := logger.WithFields(logrus.Fields{"import_id": entry.ImportID, "entity": e, "tenant_id": tenantID})
	log.Infof("Import started. Rows: %d", len(rows))

	out, runErr := s.run(ctx, spec, mappings, rows, entry.ImportID, tenantID, log)
	if runErr != nil {
		var oe *OrchestrationError
		if !errors.As(runErr, &oe) {
			runErr = &OrchestrationError{ImportID: entry.ImportID, Err: runErr}
		}
	}

	if err := s.ledger.Finish(context.WithoutCancel(ctx), entry, out, runErr); err != nil {
		log.Errorf("Could not finish ledger entry: %v", err)
		if runErr == nil {
			runErr = &OrchestrationError{ImportID: entry.ImportID, Err: err}
		}
	}
	log.WithField("status", entry.Status).Infof("Import finished. Imported: %d, Skipped: %d, Derived: %d",
		out.Imported, out.Skipped, out.Derived)

	return models.ImportResult{
		Success:       entry.Status != models.StatusFailed,
		ImportedCount: out.Imported,
		SkippedCount:  out.Skipped,
		Errors:        nonNilStrings(out.Errors),
		Duplicates:    nonNilStrings(out.Duplicates),
		Warnings:      out.Warnings,
		ImportID:      entry.ImportID,
	}, runErr
}

// run transforms, resolves, derives and executes. The returned outcome
// holds whatever was committed even when err is set.
func (s *Service) run(ctx context.Context, spec models.EntitySpec, mappings []models.ColumnMapping, rows []models.RawRow, importID string, tenantID int64, log *logrus.Entry) (Outcome, error) {
	var out Outcome
	cache, err := LoadLookups(ctx, s.store, spec, mappings, tenantID, s.opts.LookupTimeout)
	if err != nil {
		return out, err
	}

	transformer := NewTransformer(spec, mappings)
	resolver := NewResolver(spec, cache)
	units := make([]models.WorkUnit, 0, len(rows))
	needsLocation := false

	for i, row := range rows {
		rowNum := i + 1
		rec, warnings, err := transformer.Transform(rowNum, row)
		out.Warnings = append(out.Warnings, warnings...)
		if err != nil {
			out.fail(failure{message: err.Error()})
			continue
		}
		resolved, warnings := resolver.Resolve(rowNum, rec, tenantID)
		out.Warnings = append(out.Warnings, warnings...)

		unit := models.WorkUnit{Row: rowNum, Steps: []models.Step{
			{Entity: spec.Type, Role: models.RolePrimary, Record: resolved},
		}}
		if spec.Type == models.EntityWorkOrders {
			unit, warnings = s.deriver.Derive(rowNum, resolved, tenantID)
			out.Warnings = append(out.Warnings, warnings...)
		}
		if spec.Type == models.EntityAssets {
			if _, ok := resolved["locationId"]; !ok {
				needsLocation = true
			}
		}
		units = append(units, unit)
	}

	set := models.SetOf(units)
	log.Infof("Prepared %d units: %d work records, %d tasks, %d schedules",
		len(units), len(set.Primary), len(set.Secondary), len(set.Tertiary))

	run := Run{ImportID: importID, TenantID: tenantID, Entity: spec.Type}
	if needsLocation {
		id, err := s.executor.EnsureDefaultLocation(ctx, run, cache)
		if err != nil {
			return out, err
		}
		run.DefaultLocation = id
	}

	res, err := s.executor.Execute(ctx, units, run)
	out.add(res)
	return out, err
}

// GetHistory lists ledger entries, newest first.
func (s *Service) GetHistory(ctx context.Context, tenantID int64, limit, offset int) ([]models.LedgerEntry, error) {
	return s.ledger.History(ctx, tenantID, limit, offset)
}

// rollbackOrder lists the entity types deleted by a rollback, dependents first.
func rollbackOrder(e models.EntityType) []models.EntityType {
	if e == models.EntityWorkOrders {
		return []models.EntityType{models.EntityWorkOrders, models.EntityMaintenanceSchedules, models.EntityMaintenanceTasks}
	}
	return []models.EntityType{e}
}

// Rollback deletes the records of an import. In window mode that is every
// record of the imported types created in [startedAt, completedAt]; in tag
// mode every record carrying the import id.
func (s *Service) Rollback(ctx context.Context, importID string, userID, tenantID int64) (models.RollbackResult, error) {
	entry, err := s.ledger.Get(ctx, tenantID, importID)
	if errors.Is(err, store.ErrNotFound) {
		return models.RollbackResult{Message: fmt.Sprintf("Import %s not found", importID)}, nil
	}
	if err != nil {
		return models.RollbackResult{}, err
	}
	switch {
	case entry.RolledBack:
		return models.RollbackResult{Message: "Import has already been rolled back"}, nil
	case !entry.CanRollback || entry.CompletedAt == nil:
		return models.RollbackResult{Message: fmt.Sprintf("Import with status %s cannot be rolled back", entry.Status)}, nil
	}

	filter := store.Filter{TenantID: tenantID}
	if s.opts.RollbackMode == RollbackTag {
		filter.ImportID = entry.ImportID
	} else {
		filter.CreatedFrom = entry.StartedAt
		filter.CreatedTo = *entry.CompletedAt
	}

	var deleted int64
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		deleted = 0
		for _, e := range rollbackOrder(entry.EntityType) {
			repo, err := tx.Repository(e)
			if err != nil {
				return err
			}
			n, err := repo.DeleteMany(ctx, filter)
			if err != nil {
				return errors.Wrapf(err, "delete %s", e)
			}
			deleted += n
		}
		if entry.EntityType == models.EntityAssets {
			return removeDefaultLocation(ctx, tx, entry.ImportID, tenantID)
		}
		return nil
	})
	if err != nil {
		return models.RollbackResult{}, err
	}
	if err := s.ledger.MarkRolledBack(ctx, entry, userID, deleted); err != nil {
		return models.RollbackResult{}, err
	}

	logger.WithFields(logrus.Fields{"import_id": importID, "entity": entry.EntityType, "mode": s.opts.RollbackMode}).
		Infof("Rolled back %d records", deleted)
	return models.RollbackResult{
		Success:      true,
		DeletedCount: deleted,
		Message:      fmt.Sprintf("Rolled back %d %s", deleted, strings.ToLower(registry.MustLookup(entry.EntityType).Label)),
	}, nil
}

// removeDefaultLocation deletes the default location created by an asset
// import once no asset is filed under it any more.
func removeDefaultLocation(ctx context.Context, tx store.Tx, importID string, tenantID int64) error {
	locations, err := tx.Repository(models.EntityLocations)
	if err != nil {
		return err
	}
	assets, err := tx.Repository(models.EntityAssets)
	if err != nil {
		return err
	}
	created, err := locations.FindMany(ctx, store.Filter{
		TenantID:   tenantID,
		ImportID:   importID,
		Conditions: []store.Condition{store.Eq("name", DefaultLocationName)},
	})
	if err != nil {
		return errors.Wrap(err, "find default location")
	}
	for _, loc := range created {
		inUse, err := assets.FindMany(ctx, store.Filter{
			TenantID:   tenantID,
			Conditions: []store.Condition{store.Eq("locationId", loc.ID)},
			Fields:     []string{"locationId"},
			Limit:      1,
		})
		if err != nil {
			return errors.Wrap(err, "check default location")
		}
		if len(inUse) > 0 {
			logger.Infof("Keeping location %d (%s): still in use", loc.ID, DefaultLocationName)
			continue
		}
		if _, err := locations.DeleteMany(ctx, store.Filter{
			TenantID:   tenantID,
			Conditions: []store.Condition{store.Eq("id", loc.ID)},
		}); err != nil {
			return errors.Wrap(err, "delete default location")
		}
	}
	return nil
}

// Template writes the import template of an entity type.
func (s *Service) Template(e models.EntityType, format string, w io.Writer) error {
	spec, err := lookupSpec(e)
	if err != nil {
		return err
	}
	return template.Write(w, spec, template.Format(format))
}
