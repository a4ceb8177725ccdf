package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/pkg/logger"
	"github.com/BartekS5/importer/pkg/models"
)

// DefaultLocationName is the location assets without one are filed under.
const DefaultLocationName = "Unassigned"

// errRetryBatch ends a transaction that cannot roll back to a savepoint;
// the batch is replayed without the units already known to fail.
var errRetryBatch = errors.New("retry batch")

// Run is the per-import metadata the executor stamps onto records.
type Run struct {
	ImportID        string
	TenantID        int64
	Entity          models.EntityType
	DefaultLocation int64
}

// Outcome accumulates what happened to the executed units.
type Outcome struct {
	Imported   int
	Skipped    int
	Derived    int
	Errors     []string
	Duplicates []string
	Warnings   []string
}

func (o *Outcome) add(other Outcome) {
	o.Imported += other.Imported
	o.Skipped += other.Skipped
	o.Derived += other.Derived
	o.Errors = append(o.Errors, other.Errors...)
	o.Duplicates = append(o.Duplicates, other.Duplicates...)
	o.Warnings = append(o.Warnings, other.Warnings...)
}

func (o *Outcome) fail(f failure) {
	o.Skipped++
	if f.duplicate {
		o.Duplicates = append(o.Duplicates, f.message)
	} else {
		o.Errors = append(o.Errors, f.message)
	}
}

type failure struct {
	message   string
	duplicate bool
}

// Executor commits work units in sequential, bounded transactions.
type Executor struct {
	store     store.Store
	batchSize int
	timeout   time.Duration
	hasher    PasswordHasher
	now       func() time.Time
}

func NewExecutor(st store.Store, batchSize int, timeout time.Duration, hasher PasswordHasher, now func() time.Time) *Executor {
	if batchSize <= 0 {
		batchSize = 50
	}
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if now == nil {
		now = time.Now
	}
	return &Executor{store: st, batchSize: batchSize, timeout: timeout, hasher: hasher, now: now}
}

// Execute runs every unit. Row failures are recorded in the outcome; only a
// failing transaction is returned as an error, after which earlier batches
// stay committed.
func (x *Executor) Execute(ctx context.Context, units []models.WorkUnit, run Run) (Outcome, error) {
	log := logger.WithFields(logrus.Fields{"import_id": run.ImportID, "entity": run.Entity})
	log.Infof("Starting execution. Units: %d, Batch Size: %d", len(units), x.batchSize)

	var out Outcome
	startTime := time.Now()
	processed := 0
	for start, batchNo := 0, 1; start < len(units); start, batchNo = start+x.batchSize, batchNo+1 {
		end := min(start+x.batchSize, len(units))
		res, err := x.runBatch(ctx, units[start:end], run, log.WithField("batch", batchNo))
		if err != nil {
			log.WithField("batch", batchNo).Errorf("Batch failed: %v", err)
			return out, &OrchestrationError{ImportID: run.ImportID, Batch: batchNo, Err: err}
		}
		out.add(res)

		processed += end - start
		rate := 0.0
		if d := time.Since(startTime); d.Seconds() > 0 {
			rate = float64(processed) / d.Seconds()
		}
		log.WithField("batch", batchNo).Infof("Batch done. Total: %d. Imported: %d. Rate: %.2f rows/sec.", processed, out.Imported, rate)
	}
	return out, nil
}

// batchState survives retries of one batch.
type batchState struct {
	failed      map[int]failure
	primaryOnly map[int]string
}

func (x *Executor) runBatch(ctx context.Context, batch []models.WorkUnit, run Run, log *logrus.Entry) (Outcome, error) {
	st := batchState{failed: map[int]failure{}, primaryOnly: map[int]string{}}
	for attempt := 0; attempt <= 2*len(batch); attempt++ {
		var res Outcome
		bctx, cancel := x.batchContext(ctx)
		err := x.store.InTx(bctx, func(tctx context.Context, tx store.Tx) error {
			res = Outcome{}
			for i, u := range batch {
				if err := x.applyUnit(tctx, tx, i, u, run, &st, &res); err != nil {
					return err
				}
			}
			return nil
		})
		cancel()
		if errors.Is(err, errRetryBatch) {
			log.Debugf("Replaying batch without %d failed rows", len(st.failed))
			continue
		}
		if err != nil {
			return Outcome{}, err
		}
		return res, nil
	}
	return Outcome{}, errors.New("batch did not settle after retries")
}

func (x *Executor) batchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if x.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, x.timeout)
}

func (x *Executor) applyUnit(ctx context.Context, tx store.Tx, i int, u models.WorkUnit, run Run, st *batchState, res *Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f, ok := st.failed[i]; ok {
		res.fail(f)
		return nil
	}

	sp := fmt.Sprintf("row_%d", u.Row)
	if err := tx.Savepoint(ctx, sp); err != nil {
		return err
	}
	ids := make([]int64, len(u.Steps))
	created := make([]bool, len(u.Steps))

	wrote, err := x.insertStep(ctx, tx, u, 0, ids, created, run)
	if err != nil {
		if isContextErr(err) {
			return err
		}
		f := classifyFailure(u.Row, u.Steps[0].Entity, err)
		if wrote {
			if rbErr := tx.RollbackTo(ctx, sp); rbErr != nil {
				if errors.Is(rbErr, store.ErrTxAborted) {
					st.failed[i] = f
					return errRetryBatch
				}
				return rbErr
			}
		}
		res.fail(f)
		return nil
	}
	res.Imported++

	if warn, ok := st.primaryOnly[i]; ok {
		res.Warnings = append(res.Warnings, warn)
		return nil
	}
	if len(u.Steps) == 1 {
		return nil
	}

	dsp := sp + "_d"
	if err := tx.Savepoint(ctx, dsp); err != nil {
		return err
	}
	derived := 0
	for s := 1; s < len(u.Steps); s++ {
		if waitsOnReused(u.Steps[s], created) {
			continue
		}
		wrote, err := x.insertStep(ctx, tx, u, s, ids, created, run)
		if err != nil {
			if isContextErr(err) {
				return err
			}
			warn := fmt.Sprintf("Row %d: derived %s was not created: %s", u.Row, u.Steps[s].Role,
				strings.TrimPrefix(classifyFailure(u.Row, u.Steps[s].Entity, err).message, fmt.Sprintf("Row %d: ", u.Row)))
			if wrote || derived > 0 {
				if rbErr := tx.RollbackTo(ctx, dsp); rbErr != nil {
					if errors.Is(rbErr, store.ErrTxAborted) {
						st.primaryOnly[i] = warn
						return errRetryBatch
					}
					return rbErr
				}
			}
			res.Warnings = append(res.Warnings, warn)
			return nil
		}
		if created[s] {
			derived++
		}
	}
	res.Derived += derived
	return nil
}

// waitsOnReused reports a follow-up linked to a record that already existed:
// its occurrences are already being tracked.
func waitsOnReused(step models.Step, created []bool) bool {
	if step.Role != models.RoleFollowUp {
		return false
	}
	for _, idx := range step.Links {
		if !created[idx] {
			return true
		}
	}
	return false
}

// insertStep writes one step. wrote reports whether the store was asked to
// insert, so the caller knows whether a savepoint rollback is needed.
func (x *Executor) insertStep(ctx context.Context, tx store.Tx, u models.WorkUnit, s int, ids []int64, created []bool, run Run) (bool, error) {
	step := u.Steps[s]
	spec, err := registry.Lookup(step.Entity)
	if err != nil {
		return false, err
	}
	repo, err := tx.Repository(step.Entity)
	if err != nil {
		return false, err
	}

	rec := step.Record.Clone()
	for field, idx := range step.Links {
		if ids[idx] != 0 {
			rec[field] = models.IDValue(ids[idx])
		}
	}

	if step.Reusable() {
		id, ok, err := findReusable(ctx, repo, step.ReuseOn, rec, run.TenantID)
		if err != nil {
			return false, err
		}
		if ok {
			ids[s] = id
			return false, nil
		}
	} else {
		existing, err := findExisting(ctx, repo, spec, rec, run.TenantID)
		if err != nil {
			return false, err
		}
		if existing != nil {
			return false, existing
		}
	}

	if err := x.applyRules(step.Entity, rec, run); err != nil {
		return false, err
	}
	for _, f := range spec.RequiredFields() {
		if _, ok := rec[f]; !ok {
			return false, &missingFieldError{field: f}
		}
	}

	rec[registry.FieldImportID] = models.StringValue(run.ImportID)
	rec[registry.FieldTenantID] = models.IDValue(run.TenantID)
	id, err := repo.Create(ctx, rec.Native())
	if err != nil {
		return true, err
	}
	ids[s] = id
	created[s] = true
	return true, nil
}

// applyRules sets entity-specific values right before insert.
func (x *Executor) applyRules(e models.EntityType, rec models.Record, run Run) error {
	switch e {
	case models.EntityWorkOrders:
		if rec.Text("status") == "COMPLETED" {
			if _, ok := rec["completedDate"]; !ok {
				rec["completedDate"] = models.DateValue(x.now().UTC())
			}
		}
	case models.EntityAssets:
		if _, ok := rec["locationId"]; !ok && run.DefaultLocation != 0 {
			rec["locationId"] = models.IDValue(run.DefaultLocation)
		}
	case models.EntityUsers:
		plain := rec.Text("password")
		if plain == "" {
			plain = OneTimePassword()
		}
		hash, err := x.hasher.Hash(plain)
		if err != nil {
			return errors.Wrap(err, "hash password")
		}
		rec["password"] = models.StringValue(hash)
	}
	return nil
}

// EnsureDefaultLocation finds or creates the tenant's default location and
// remembers it in the cache.
func (x *Executor) EnsureDefaultLocation(ctx context.Context, run Run, cache *LookupCache) (int64, error) {
	if id, ok := cache.Find(models.EntityLocations, models.MatchName, DefaultLocationName); ok {
		return id, nil
	}
	var id int64
	ctx, cancel := x.batchContext(ctx)
	defer cancel()
	err := x.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		repo, err := tx.Repository(models.EntityLocations)
		if err != nil {
			return err
		}
		found, err := repo.FindMany(ctx, store.Filter{
			TenantID:   run.TenantID,
			Conditions: []store.Condition{store.EqFold("name", DefaultLocationName)},
			Limit:      1,
		})
		if err != nil {
			return err
		}
		if len(found) > 0 {
			id = found[0].ID
			return nil
		}
		id, err = repo.Create(ctx, map[string]any{
			"name":                 DefaultLocationName,
			"description":          "Created by import for assets without a location",
			registry.FieldTenantID: run.TenantID,
			registry.FieldImportID: run.ImportID,
		})
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "ensure default location")
	}
	cache.Remember(models.EntityLocations, id, DefaultLocationName, "", "")
	return id, nil
}

type existingRecord struct {
	entity string
	field  string
	value  string
	id     int64
}

func (e *existingRecord) Error() string {
	return fmt.Sprintf("%s with %s %q already exists (id %d)", e.entity, e.field, e.value, e.id)
}

type missingFieldError struct {
	field string
}

func (e *missingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.field)
}

// findExisting checks each identity field on its own for an exact match.
func findExisting(ctx context.Context, repo store.EntityRepository, spec models.EntitySpec, rec models.Record, tenantID int64) (*existingRecord, error) {
	for _, field := range spec.IdentityFields {
		v, ok := rec[field]
		if !ok || v.String() == "" {
			continue
		}
		found, err := repo.FindMany(ctx, store.Filter{
			TenantID:   tenantID,
			Conditions: []store.Condition{store.Eq(field, v.Native())},
			Fields:     []string{field},
			Limit:      1,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "duplicate check on %s", field)
		}
		if len(found) > 0 {
			return &existingRecord{entity: strings.ToLower(spec.Label), field: field, value: v.String(), id: found[0].ID}, nil
		}
	}
	return nil, nil
}

// findReusable returns the id of a stored record whose fields named in keys
// all equal those of rec. keys[0] must be set on rec; it narrows the query.
func findReusable(ctx context.Context, repo store.EntityRepository, keys []string, rec models.Record, tenantID int64) (int64, bool, error) {
	first, ok := rec[keys[0]]
	if !ok {
		return 0, false, nil
	}
	found, err := repo.FindMany(ctx, store.Filter{
		TenantID:   tenantID,
		Conditions: []store.Condition{store.Eq(keys[0], first.Native())},
		Fields:     keys,
	})
	if err != nil {
		return 0, false, errors.Wrapf(err, "reuse check on %s", keys[0])
	}
	for _, candidate := range found {
		if sameFields(candidate, rec, keys[1:]) {
			return candidate.ID, true, nil
		}
	}
	return 0, false, nil
}

// sameFields compares stored values with record values. Numbers compare by
// value whatever their stored width; an absent or null field only equals
// an absent one.
func sameFields(stored store.Stored, rec models.Record, fields []string) bool {
	for _, f := range fields {
		want, has := rec[f]
		got := stored.Fields[f]
		if !has || !want.Valid() {
			if got != nil {
				return false
			}
			continue
		}
		if got == nil {
			return false
		}
		if n, ok := toFloat(want.Native()); ok {
			if m, ok := toFloat(got); !ok || m != n {
				return false
			}
			continue
		}
		if str, ok := got.(string); !ok || !strings.EqualFold(str, want.String()) {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// classifyFailure turns an insert error into the message shown to the user.
// Raw store errors are logged, never returned.
func classifyFailure(row int, e models.EntityType, err error) failure {
	var existing *existingRecord
	var missing *missingFieldError
	switch {
	case errors.As(err, &existing):
		return failure{message: fmt.Sprintf("Row %d: %s", row, existing.Error()), duplicate: true}
	case errors.As(err, &missing):
		return failure{message: fmt.Sprintf("Row %d: %s", row, missing.Error())}
	case errors.Is(err, store.ErrUniqueViolation):
		return failure{message: fmt.Sprintf("Row %d: a %s record with the same unique value already exists", row, e), duplicate: true}
	case errors.Is(err, store.ErrUnknownField):
		return failure{message: fmt.Sprintf("Row %d: the record has a field %s does not accept", row, e)}
	case errors.Is(err, store.ErrForeignKey):
		return failure{message: fmt.Sprintf("Row %d: a referenced record does not exist", row)}
	case errors.Is(err, store.ErrInvalidValue):
		return failure{message: fmt.Sprintf("Row %d: a value is not allowed for %s", row, e)}
	default:
		logger.Warnf("Row %d: insert into %s failed: %v", row, e, err)
		return failure{message: fmt.Sprintf("Row %d: the record could not be saved", row)}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
