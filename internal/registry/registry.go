// Package registry holds the compiled-in schemas of every importable entity type.
package registry

import (
	"fmt"

	"github.com/BartekS5/importer/pkg/models"
)

// UnknownEntityError is returned for entity types without a schema.
type UnknownEntityError struct {
	Entity string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity type %q", e.Entity)
}

var specs = map[models.EntityType]models.EntitySpec{
	models.EntityUsers:                usersSpec,
	models.EntityLocations:            locationsSpec,
	models.EntitySuppliers:            suppliersSpec,
	models.EntityParts:                partsSpec,
	models.EntityAssets:               assetsSpec,
	models.EntityWorkOrders:           workOrdersSpec,
	models.EntityMaintenanceTasks:     maintenanceTasksSpec,
	models.EntityMaintenanceSchedules: maintenanceSchedulesSpec,
}

// Lookup returns the schema of an entity type.
func Lookup(e models.EntityType) (models.EntitySpec, error) {
	spec, ok := specs[e]
	if !ok {
		return models.EntitySpec{}, &UnknownEntityError{Entity: string(e)}
	}
	return spec, nil
}

// MustLookup is Lookup for entity types known at compile time.
func MustLookup(e models.EntityType) models.EntitySpec {
	spec, err := Lookup(e)
	if err != nil {
		panic(err)
	}
	return spec
}

// All returns every schema in dependency order.
func All() []models.EntitySpec {
	out := make([]models.EntitySpec, 0, len(models.EntityTypes))
	for _, e := range models.EntityTypes {
		out = append(out, specs[e])
	}
	return out
}

// plainReferences lists id fields that reference a table without being the
// target of a lookup column.
var plainReferences = map[models.EntityType]map[string]models.EntityType{
	models.EntityWorkOrders: {"scheduleId": models.EntityMaintenanceSchedules},
}

// References returns the entity type an id field of spec points at.
func References(spec models.EntitySpec, key string) (models.EntityType, bool) {
	if l, ok := spec.LookupFor(key); ok {
		return l.Lookup.Entity, true
	}
	ref, ok := plainReferences[spec.Type][key]
	return ref, ok
}

// Columns returns the persisted field keys of an entity, which is every
// declared field except lookups (those are replaced by their targets).
func Columns(e models.EntityType) []string {
	spec, ok := specs[e]
	if !ok {
		return nil
	}
	cols := make([]string, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		if f.IsLookup() {
			continue
		}
		cols = append(cols, f.Key)
	}
	return append(cols, SystemFields...)
}

// SystemFields are set by the pipeline, never taken from source rows.
var SystemFields = []string{FieldTenantID, FieldImportID}

const (
	FieldID        = "id"
	FieldTenantID  = "tenantId"
	FieldImportID  = "importId"
	FieldCreatedAt = "createdAt"
	FieldLegacyID  = "legacyId"
)
