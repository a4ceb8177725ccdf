package etl

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/store/memstore"
	"github.com/BartekS5/importer/pkg/models"
)

func TestResolveLookups(t *testing.T) {
	cache := NewLookupCache()
	cache.Remember(models.EntityLocations, 7, "Building A", "", "1001")
	cache.Remember(models.EntityAssets, 9, "Compressor Skid", "", "")
	r := NewResolver(registry.MustLookup(models.EntityAssets), cache)

	out, warnings := r.Resolve(1, models.Record{
		"name":            models.StringValue("Pump"),
		"locationName":    models.StringValue(" building a "),
		"parentAssetName": models.StringValue("Compressor Skid"),
	}, 3)
	assert.Empty(t, warnings)
	assert.Equal(t, models.IDValue(7), out["locationId"])
	assert.Equal(t, models.IDValue(9), out["parentId"])
	assert.NotContains(t, out, "locationName")
	assert.NotContains(t, out, "parentAssetName")
	assert.Equal(t, models.IDValue(3), out[registry.FieldTenantID])
}

func TestResolveLegacyIDFallback(t *testing.T) {
	cache := NewLookupCache()
	cache.Remember(models.EntityLocations, 7, "Building A", "", "1001")
	r := NewResolver(registry.MustLookup(models.EntityAssets), cache)

	out, warnings := r.Resolve(1, models.Record{"name": models.StringValue("Pump"), "locationName": models.StringValue("1001.0")}, 3)
	assert.Empty(t, warnings)
	assert.Equal(t, models.IDValue(7), out["locationId"])
}

func TestResolveUnresolvedWarns(t *testing.T) {
	r := NewResolver(registry.MustLookup(models.EntityAssets), NewLookupCache())

	out, warnings := r.Resolve(3, models.Record{
		"name":         models.StringValue("Pump"),
		"locationName": models.StringValue("Nowhere"),
	}, 3)
	assert.Equal(t, []string{`Row 3: Location "Nowhere" was not found; locationId left empty`}, warnings)
	assert.NotContains(t, out, "locationId")
	assert.NotContains(t, out, "locationName")
}

func TestResolveTenantOverridesRowData(t *testing.T) {
	cache := NewLookupCache()
	cache.Remember(models.EntityAssets, 4, "Compressor Skid", "", "")
	r := NewResolver(registry.MustLookup(models.EntityAssets), cache)
	in := models.Record{
		"name":                 models.StringValue("Pump"),
		"parentId":             models.NumberValue(4),
		registry.FieldTenantID: models.IDValue(99),
	}

	out, _ := r.Resolve(1, in, 3)
	assert.Equal(t, models.IDValue(3), out[registry.FieldTenantID])
	assert.Equal(t, models.IDValue(4), out["parentId"])
	assert.Equal(t, models.IDValue(99), in[registry.FieldTenantID], "input must not be modified")
}

func TestResolveDirectIDs(t *testing.T) {
	st := memstore.New()
	mine := seed(t, st, models.EntityAssets, 1, map[string]any{"name": "Pump"})
	theirs := seed(t, st, models.EntityAssets, 2, map[string]any{"name": "Fan"})
	loc := seed(t, st, models.EntityLocations, 1, map[string]any{"name": "Plant"})

	spec := registry.MustLookup(models.EntityWorkOrders)
	cache, err := LoadLookups(context.Background(), st, spec,
		identity(models.EntityWorkOrders, "title", "assetId", "locationId"), 1, time.Second)
	require.NoError(t, err)
	r := NewResolver(spec, cache)

	t.Run("id of the tenant is kept", func(t *testing.T) {
		out, warnings := r.Resolve(2, models.Record{
			"title":      models.StringValue("Fix pump"),
			"assetId":    models.NumberValue(float64(mine)),
			"locationId": models.NumberValue(float64(loc)),
		}, 1)
		assert.Empty(t, warnings)
		assert.Equal(t, models.IDValue(mine), out["assetId"])
		assert.Equal(t, models.IDValue(loc), out["locationId"])
	})

	t.Run("id of another tenant is dropped", func(t *testing.T) {
		out, warnings := r.Resolve(3, models.Record{
			"title":   models.StringValue("Fix fan"),
			"assetId": models.NumberValue(float64(theirs)),
		}, 1)
		assert.Equal(t, []string{fmt.Sprintf("Row 3: Asset ID %d was not found; assetId left empty", theirs)}, warnings)
		assert.NotContains(t, out, "assetId")
	})

	t.Run("unknown id is dropped", func(t *testing.T) {
		out, warnings := r.Resolve(4, models.Record{
			"title":      models.StringValue("Fix door"),
			"locationId": models.NumberValue(404),
		}, 1)
		assert.Equal(t, []string{"Row 4: Location ID 404 was not found; locationId left empty"}, warnings)
		assert.NotContains(t, out, "locationId")
	})

	t.Run("lookup column wins over id column", func(t *testing.T) {
		out, warnings := r.Resolve(5, models.Record{
			"title":     models.StringValue("Fix pump"),
			"assetName": models.StringValue("pump"),
			"assetId":   models.NumberValue(404),
		}, 1)
		assert.Empty(t, warnings)
		assert.Equal(t, models.IDValue(mine), out["assetId"])
	})
}

func TestLoadLookupsPreloadsIDTargets(t *testing.T) {
	st := memstore.New()
	asset := seed(t, st, models.EntityAssets, 1, map[string]any{"name": "Pump"})
	sched := seed(t, st, models.EntityMaintenanceSchedules, 1, map[string]any{"name": "Quarterly", "assetId": asset})

	cache, err := LoadLookups(context.Background(), st, registry.MustLookup(models.EntityWorkOrders),
		identity(models.EntityWorkOrders, "title", "assetId", "scheduleId"), 1, time.Second)
	require.NoError(t, err)
	assert.True(t, cache.Has(models.EntityAssets, asset))
	assert.True(t, cache.Has(models.EntityMaintenanceSchedules, sched))
	assert.False(t, cache.Has(models.EntityAssets, asset+1))
	assert.False(t, cache.Has(models.EntityLocations, 1), "unmapped id fields are not preloaded")
}

func TestLoadLookupsIsTenantScoped(t *testing.T) {
	st := memstore.New()
	mine := seed(t, st, models.EntityUsers, 1, map[string]any{"name": "Ann", "email": "ann@example.com", registry.FieldLegacyID: "55"})
	seed(t, st, models.EntityUsers, 2, map[string]any{"name": "Bob", "email": "bob@example.com"})
	loc := seed(t, st, models.EntityLocations, 1, map[string]any{"name": "Plant"})

	spec := registry.MustLookup(models.EntityWorkOrders)
	cache, err := LoadLookups(context.Background(), st, spec,
		identity(models.EntityWorkOrders, "title", "assignedToEmail", "locationName"), 1, time.Second)
	require.NoError(t, err)

	id, ok := cache.Find(models.EntityUsers, models.MatchEmail, "ANN@example.com")
	assert.True(t, ok)
	assert.Equal(t, mine, id)
	id, ok = cache.Find(models.EntityUsers, models.MatchEmail, "55")
	assert.True(t, ok)
	assert.Equal(t, mine, id)
	_, ok = cache.Find(models.EntityUsers, models.MatchEmail, "bob@example.com")
	assert.False(t, ok)
	id, ok = cache.Find(models.EntityLocations, models.MatchName, "plant")
	assert.True(t, ok)
	assert.Equal(t, loc, id)

	// Only referenced entity types are loaded.
	_, ok = cache.Find(models.EntityAssets, models.MatchName, "anything")
	assert.False(t, ok)
}

func TestLegacyKey(t *testing.T) {
	assert.Equal(t, "1001", legacyKey("1001.0"))
	assert.Equal(t, "1001", legacyKey(" 1001 "))
	assert.Equal(t, "a-17", legacyKey("A-17"))
	assert.Equal(t, "12.5", legacyKey("12.5"))
}
