package models

import (
	"fmt"
	"strings"
)

// EntityType identifies one of the fixed importable record kinds.
type EntityType string

const (
	EntityUsers                EntityType = "users"
	EntityLocations            EntityType = "locations"
	EntitySuppliers            EntityType = "suppliers"
	EntityParts                EntityType = "parts"
	EntityAssets               EntityType = "assets"
	EntityWorkOrders           EntityType = "workorders"
	EntityMaintenanceTasks     EntityType = "maintenancetasks"
	EntityMaintenanceSchedules EntityType = "maintenanceschedules"
)

// EntityTypes lists every importable type in dependency order (referenced types first).
var EntityTypes = []EntityType{
	EntityUsers,
	EntityLocations,
	EntitySuppliers,
	EntityParts,
	EntityAssets,
	EntityMaintenanceTasks,
	EntityMaintenanceSchedules,
	EntityWorkOrders,
}

func (e EntityType) String() string { return string(e) }

// ParseEntityType accepts the canonical key as well as common spellings
// such as "work-orders" or "Maintenance Tasks".
func ParseEntityType(s string) (EntityType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	for _, e := range EntityTypes {
		if string(e) == key {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// ValueType is the declared type of an entity field.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeDate    ValueType = "date"
	TypeEnum    ValueType = "enum"
	TypeBoolean ValueType = "boolean"
)

// MatchOn selects which key of the related entity a lookup value is compared with.
type MatchOn string

const (
	MatchName  MatchOn = "name"
	MatchEmail MatchOn = "email"
)

// LookupSpec marks a field as a human-readable reference to another entity.
// The resolved id is written to TargetField.
type LookupSpec struct {
	TargetField string     `json:"targetField"`
	Entity      EntityType `json:"targetEntity"`
	MatchOn     MatchOn    `json:"matchOn"`
}

// FieldSpec describes one importable field of an entity.
type FieldSpec struct {
	Key        string      `json:"key"`
	Label      string      `json:"label"`
	Required   bool        `json:"required"`
	Type       ValueType   `json:"valueType"`
	EnumValues []string    `json:"enumValues,omitempty"`
	Default    string      `json:"default,omitempty"`
	Lookup     *LookupSpec `json:"lookupOf,omitempty"`
	// Aliases are extra header spellings considered by the column mapper.
	Aliases []string `json:"aliases,omitempty"`
	// Format is an optional string format check: "email" or "url".
	Format string `json:"format,omitempty"`
	// Duration fields accept H:MM:SS clock values as well as decimal hours.
	Duration bool   `json:"duration,omitempty"`
	Example  string `json:"example,omitempty"`
}

// IsLookup reports whether the field is resolved against another entity.
func (f FieldSpec) IsLookup() bool { return f.Lookup != nil }

// HasEnumValue reports whether v is in the declared domain, ignoring case.
func (f FieldSpec) HasEnumValue(v string) (string, bool) {
	for _, ev := range f.EnumValues {
		if strings.EqualFold(ev, v) {
			return ev, true
		}
	}
	return "", false
}

// EntitySpec is the compiled-in schema of one entity type.
type EntitySpec struct {
	Type   EntityType  `json:"entityType"`
	Label  string      `json:"label"`
	Fields []FieldSpec `json:"fields"`
	// IdentityFields are checked, each on its own, for an exact existing match
	// before every insert.
	IdentityFields []string `json:"identityFields,omitempty"`
	// NaturalKeys are the fields used by duplicate and conflict detection.
	NaturalKeys []string `json:"naturalKeys,omitempty"`
	// Synonyms fold legacy enum vocabularies per field: field -> SYNONYM -> canonical.
	Synonyms map[string]map[string]string `json:"-"`
}

// Field returns the field with the given key.
func (s EntitySpec) Field(key string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// RequiredFields returns the keys of all required fields in declaration order.
func (s EntitySpec) RequiredFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Key)
		}
	}
	return out
}

// LookupFor returns the lookup field whose resolution target is target.
func (s EntitySpec) LookupFor(target string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Lookup != nil && f.Lookup.TargetField == target {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// LookupFields returns every field declaring a lookup.
func (s EntitySpec) LookupFields() []FieldSpec {
	var out []FieldSpec
	for _, f := range s.Fields {
		if f.Lookup != nil {
			out = append(out, f)
		}
	}
	return out
}

// Synonym folds v through the synonym table of field, if any.
func (s EntitySpec) Synonym(field, v string) (string, bool) {
	table, ok := s.Synonyms[field]
	if !ok {
		return "", false
	}
	canonical, ok := table[v]
	return canonical, ok
}
