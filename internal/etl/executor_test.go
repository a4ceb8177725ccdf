package etl

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/internal/store/memstore"
	"github.com/BartekS5/importer/pkg/models"
)

func userUnit(row int, name, email string) models.WorkUnit {
	rec := models.Record{registry.FieldTenantID: models.IDValue(1)}
	if name != "" {
		rec["name"] = models.StringValue(name)
	}
	if email != "" {
		rec["email"] = models.StringValue(email)
	}
	return models.WorkUnit{Row: row, Steps: []models.Step{{Entity: models.EntityUsers, Role: models.RolePrimary, Record: rec}}}
}

func testRun() Run {
	return Run{ImportID: "imp-1", TenantID: 1, Entity: models.EntityUsers}
}

func TestExecuteImportsAndStamps(t *testing.T) {
	st := memstore.New()
	x := NewExecutor(st, 2, time.Second, plainHasher{}, nil)

	out, err := x.Execute(context.Background(), []models.WorkUnit{
		userUnit(1, "Ann", "ann@example.com"),
		userUnit(2, "Bob", "bob@example.com"),
		userUnit(3, "Cy", "cy@example.com"),
	}, testRun())
	require.NoError(t, err)
	assert.Equal(t, 3, out.Imported)
	assert.Zero(t, out.Skipped)

	users := all(t, st, models.EntityUsers, 1)
	require.Len(t, users, 3)
	for _, u := range users {
		assert.Equal(t, "imp-1", u.String(registry.FieldImportID))
		assert.True(t, strings.HasPrefix(u.String("password"), "hashed:"))
		assert.Greater(t, len(u.String("password")), len("hashed:"))
	}
}

func TestExecuteIsolatesFailingRows(t *testing.T) {
	st := memstore.New()
	x := NewExecutor(st, 10, time.Second, plainHasher{}, nil)

	out, err := x.Execute(context.Background(), []models.WorkUnit{
		userUnit(1, "Ann", "ann@example.com"),
		userUnit(2, "Ann Again", "ann@example.com"),
		userUnit(3, "Ann Upper", "ANN@example.com"),
		userUnit(4, "", "nameless@example.com"),
		userUnit(5, "Eve", "eve@example.com"),
	}, testRun())
	require.NoError(t, err)

	assert.Equal(t, 2, out.Imported)
	assert.Equal(t, 3, out.Skipped)
	assert.Equal(t, []string{
		`Row 2: users with email "ann@example.com" already exists (id 1)`,
		"Row 3: a users record with the same unique value already exists",
	}, out.Duplicates)
	assert.Equal(t, []string{`Row 4: missing required field "name"`}, out.Errors)
	assert.Len(t, all(t, st, models.EntityUsers, 1), 2)
}

func TestExecuteRollsBackFailedInsert(t *testing.T) {
	st := memstore.New(memstore.WithCreateHook(func(e models.EntityType, rec map[string]any) error {
		if rec["name"] == "Bob" {
			return errors.Wrap(store.ErrForeignKey, "users.managerId")
		}
		return nil
	}))
	x := NewExecutor(st, 10, time.Second, plainHasher{}, nil)

	out, err := x.Execute(context.Background(), []models.WorkUnit{
		userUnit(1, "Ann", "ann@example.com"),
		userUnit(2, "Bob", "bob@example.com"),
		userUnit(3, "Cy", "cy@example.com"),
	}, testRun())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Imported)
	assert.Equal(t, []string{"Row 2: a referenced record does not exist"}, out.Errors)
	assert.Len(t, all(t, st, models.EntityUsers, 1), 2)
}

func TestExecuteReplaysBatchWithoutSavepoints(t *testing.T) {
	mem := memstore.New(memstore.WithCreateHook(func(e models.EntityType, rec map[string]any) error {
		if rec["name"] == "Bob" {
			return errors.Wrap(store.ErrInvalidValue, "users.name")
		}
		return nil
	}))
	x := NewExecutor(noSavepointStore{mem}, 10, time.Second, plainHasher{}, nil)

	out, err := x.Execute(context.Background(), []models.WorkUnit{
		userUnit(1, "Ann", "ann@example.com"),
		userUnit(2, "Bob", "bob@example.com"),
		userUnit(3, "Cy", "cy@example.com"),
	}, testRun())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Imported)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, []string{"Row 2: a value is not allowed for users"}, out.Errors)

	users := all(t, mem, models.EntityUsers, 1)
	require.Len(t, users, 2)
	names := []string{users[0].String("name"), users[1].String("name")}
	assert.ElementsMatch(t, []string{"Ann", "Cy"}, names)
}

func preventiveUnit(t *testing.T, row int) models.WorkUnit {
	unit, warnings := NewDeriver(fixedClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))).Derive(row, preventive(nil), 1)
	require.Empty(t, warnings)
	return unit
}

func TestExecuteDerivedSteps(t *testing.T) {
	st := memstore.New()
	x := NewExecutor(st, 10, time.Second, plainHasher{}, nil)
	run := Run{ImportID: "imp-wo", TenantID: 1, Entity: models.EntityWorkOrders}

	out, err := x.Execute(context.Background(), []models.WorkUnit{preventiveUnit(t, 1), preventiveUnit(t, 2)}, run)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Imported)
	assert.Equal(t, 3, out.Derived)

	tasks := all(t, st, models.EntityMaintenanceTasks, 1)
	schedules := all(t, st, models.EntityMaintenanceSchedules, 1)
	workOrders := all(t, st, models.EntityWorkOrders, 1)
	require.Len(t, tasks, 1)
	require.Len(t, schedules, 1)
	require.Len(t, workOrders, 3)

	assert.Equal(t, tasks[0].ID, schedules[0].Fields["taskId"])
	var followUps int
	for _, wo := range workOrders {
		if wo.Fields["scheduleId"] == schedules[0].ID {
			followUps++
			assert.Equal(t, "OPEN", wo.String("status"))
		}
	}
	assert.Equal(t, 1, followUps)
}

func TestExecuteDerivedStepsPerAsset(t *testing.T) {
	st := memstore.New()
	seed(t, st, models.EntityMaintenanceSchedules, 1, map[string]any{
		"name":      "Inspect compressor belts",
		"assetId":   int64(9),
		"frequency": "QUARTERLY",
		"interval":  1.0,
	})
	x := NewExecutor(st, 10, time.Second, plainHasher{}, nil)
	d := NewDeriver(fixedClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))

	var units []models.WorkUnit
	for i, asset := range []int64{5, 6} {
		unit, warnings := d.Derive(i+1, preventive(models.Record{"assetId": models.IDValue(asset)}), 1)
		require.Empty(t, warnings)
		units = append(units, unit)
	}

	out, err := x.Execute(context.Background(), units, Run{ImportID: "imp-wo", TenantID: 1, Entity: models.EntityWorkOrders})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Imported)
	assert.Equal(t, 6, out.Derived)
	assert.Empty(t, out.Warnings)

	tasks := all(t, st, models.EntityMaintenanceTasks, 1)
	schedules := all(t, st, models.EntityMaintenanceSchedules, 1)
	require.Len(t, tasks, 2)
	require.Len(t, schedules, 3)
	assert.Len(t, all(t, st, models.EntityWorkOrders, 1), 4)

	taskAsset := map[int64]any{}
	for _, task := range tasks {
		taskAsset[task.ID] = task.Fields["assetId"]
	}
	for _, sc := range schedules[1:] {
		taskID, ok := sc.Fields["taskId"].(int64)
		require.True(t, ok)
		assert.Equal(t, taskAsset[taskID], sc.Fields["assetId"])
		assert.Equal(t, "imp-wo", sc.String(registry.FieldImportID))
	}
}

func TestExecuteReusesScheduleOnlyForSameRecurrence(t *testing.T) {
	st := memstore.New()
	x := NewExecutor(st, 10, time.Second, plainHasher{}, nil)
	d := NewDeriver(fixedClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
	run := Run{ImportID: "imp-wo", TenantID: 1, Entity: models.EntityWorkOrders}

	var units []models.WorkUnit
	for i, recurrence := range []string{"quarterly", "monthly", "quarterly"} {
		unit, warnings := d.Derive(i+1, preventive(models.Record{"recurrence": models.StringValue(recurrence)}), 1)
		require.Empty(t, warnings)
		units = append(units, unit)
	}

	out, err := x.Execute(context.Background(), units, run)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Imported)
	assert.Len(t, all(t, st, models.EntityMaintenanceTasks, 1), 1)
	schedules := all(t, st, models.EntityMaintenanceSchedules, 1)
	require.Len(t, schedules, 2)
	assert.Equal(t, "QUARTERLY", schedules[0].String("frequency"))
	assert.Equal(t, "MONTHLY", schedules[1].String("frequency"))
}

func TestExecuteDerivedFailureKeepsPrimary(t *testing.T) {
	hook := memstore.WithCreateHook(func(e models.EntityType, rec map[string]any) error {
		if e == models.EntityMaintenanceSchedules {
			return errors.Wrap(store.ErrInvalidValue, "maintenanceschedules.frequency")
		}
		return nil
	})

	for name, wrap := range map[string]func(*memstore.Store) store.Store{
		"savepoints":    func(s *memstore.Store) store.Store { return s },
		"no savepoints": func(s *memstore.Store) store.Store { return noSavepointStore{s} },
	} {
		wrap := wrap
		t.Run(name, func(t *testing.T) {
			mem := memstore.New(hook)
			x := NewExecutor(wrap(mem), 10, time.Second, plainHasher{}, nil)

			out, err := x.Execute(context.Background(), []models.WorkUnit{preventiveUnit(t, 1)},
				Run{ImportID: "imp-wo", TenantID: 1, Entity: models.EntityWorkOrders})
			require.NoError(t, err)
			assert.Equal(t, 1, out.Imported)
			assert.Zero(t, out.Derived)
			assert.Equal(t, []string{"Row 1: derived schedule was not created: a value is not allowed for maintenanceschedules"}, out.Warnings)

			assert.Len(t, all(t, mem, models.EntityWorkOrders, 1), 1)
			assert.Empty(t, all(t, mem, models.EntityMaintenanceTasks, 1))
			assert.Empty(t, all(t, mem, models.EntityMaintenanceSchedules, 1))
		})
	}
}

func TestExecuteBatchFailureIsOrchestrationError(t *testing.T) {
	calls := 0
	st := memstore.New(memstore.WithBeginHook(func() error {
		calls++
		if calls == 2 {
			return errors.New("connection reset")
		}
		return nil
	}))
	x := NewExecutor(st, 1, time.Second, plainHasher{}, nil)

	out, err := x.Execute(context.Background(), []models.WorkUnit{
		userUnit(1, "Ann", "ann@example.com"),
		userUnit(2, "Bob", "bob@example.com"),
		userUnit(3, "Cy", "cy@example.com"),
	}, testRun())

	var oe *OrchestrationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 2, oe.Batch)
	assert.Equal(t, 1, out.Imported)
	assert.Len(t, all(t, st, models.EntityUsers, 1), 1)
}

func TestApplyRules(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	x := NewExecutor(memstore.New(), 10, 0, plainHasher{}, fixedClock(now))

	wo := models.Record{"status": models.EnumValue("COMPLETED")}
	require.NoError(t, x.applyRules(models.EntityWorkOrders, wo, Run{}))
	assert.Equal(t, models.DateValue(now), wo["completedDate"])

	asset := models.Record{"name": models.StringValue("Pump")}
	require.NoError(t, x.applyRules(models.EntityAssets, asset, Run{DefaultLocation: 12}))
	assert.Equal(t, models.IDValue(12), asset["locationId"])

	user := models.Record{"password": models.StringValue("s3cret")}
	require.NoError(t, x.applyRules(models.EntityUsers, user, Run{}))
	assert.Equal(t, "hashed:s3cret", user.Text("password"))
}

func TestEnsureDefaultLocation(t *testing.T) {
	st := memstore.New()
	x := NewExecutor(st, 10, time.Second, plainHasher{}, nil)
	run := Run{ImportID: "imp-a", TenantID: 1, Entity: models.EntityAssets}

	cache := NewLookupCache()
	id, err := x.EnsureDefaultLocation(context.Background(), run, cache)
	require.NoError(t, err)
	again, err := x.EnsureDefaultLocation(context.Background(), run, cache)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	fresh, err := x.EnsureDefaultLocation(context.Background(), run, NewLookupCache())
	require.NoError(t, err)
	assert.Equal(t, id, fresh)
	assert.Len(t, all(t, st, models.EntityLocations, 1), 1)
}

func TestBcryptHasher(t *testing.T) {
	hash, err := BcryptHasher{Cost: 4}.Hash("s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$04$"))
	assert.NotEqual(t, OneTimePassword(), OneTimePassword())
}
