package etl

import (
	"fmt"
	"strings"

	"github.com/BartekS5/importer/pkg/models"
	"github.com/BartekS5/importer/pkg/utils"
)

// RowIssue is a row-level failure: the row is skipped, the run continues.
type RowIssue struct {
	Row     int
	Field   string
	Message string
}

func (i *RowIssue) Error() string {
	return fmt.Sprintf("Row %d: %s", i.Row, i.Message)
}

type enumFold int

const (
	enumExact enumFold = iota
	enumSynonym
	enumDefaulted
	enumDropped
)

// enumKey canonicalizes an enum cell: upper case, trimmed, spaces and
// hyphens as underscores.
func enumKey(raw string) string {
	k := strings.ToUpper(strings.TrimSpace(raw))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	return k
}

// foldEnum maps a raw enum cell onto the field's domain: exact match, then
// the entity's synonym table, then the declared default.
func foldEnum(spec models.EntitySpec, f models.FieldSpec, raw string) (string, enumFold) {
	key := enumKey(raw)
	if v, ok := f.HasEnumValue(key); ok {
		return v, enumExact
	}
	if v, ok := spec.Synonym(f.Key, key); ok {
		return v, enumSynonym
	}
	if f.Default != "" {
		return f.Default, enumDefaulted
	}
	return "", enumDropped
}

// Transformer coerces raw rows into typed records for one entity and mapping.
type Transformer struct {
	spec     models.EntitySpec
	mappings []models.ColumnMapping
	// shadowed holds lookup targets whose lookup field is mapped too.
	shadowed map[string]bool
}

func NewTransformer(spec models.EntitySpec, mappings []models.ColumnMapping) *Transformer {
	return &Transformer{spec: spec, mappings: mappings, shadowed: shadowedTargets(spec, mappings)}
}

func shadowedTargets(spec models.EntitySpec, mappings []models.ColumnMapping) map[string]bool {
	out := map[string]bool{}
	mapped := models.MappedFields(mappings)
	for _, f := range spec.LookupFields() {
		if _, ok := mapped[f.Key]; ok {
			out[f.Lookup.TargetField] = true
		}
	}
	return out
}

// Transform converts one row. A parse failure returns a *RowIssue and the
// row must be skipped; enum and boolean normalizations only warn. Empty
// cells produce no value.
func (t *Transformer) Transform(rowNum int, row models.RawRow) (models.Record, []string, error) {
	rec := models.Record{}
	var warnings []string

	for _, m := range t.mappings {
		if !m.Mapped() || t.shadowed[m.TargetField] {
			continue
		}
		f, ok := t.spec.Field(m.TargetField)
		if !ok {
			continue
		}
		raw := strings.TrimSpace(row[m.SourceColumn])
		if raw == "" {
			continue
		}

		switch f.Type {
		case models.TypeNumber:
			var n float64
			var err error
			if f.Duration {
				n, err = utils.ConvertDurationHours(raw)
			} else {
				n, err = utils.ConvertToNumber(raw)
			}
			if err != nil {
				return nil, warnings, &RowIssue{Row: rowNum, Field: f.Key,
					Message: fmt.Sprintf("%q is not a valid number for %s", raw, f.Label)}
			}
			rec[f.Key] = models.NumberValue(n)

		case models.TypeDate:
			d, err := utils.ConvertDateTime(raw)
			if err != nil {
				return nil, warnings, &RowIssue{Row: rowNum, Field: f.Key,
					Message: fmt.Sprintf("%q is not a valid date for %s", raw, f.Label)}
			}
			rec[f.Key] = models.DateValue(d)

		case models.TypeBoolean:
			b, recognized := utils.ConvertToBool(raw)
			if !recognized {
				warnings = append(warnings, fmt.Sprintf("Row %d: %q is not a recognized yes/no value for %s; stored as false", rowNum, raw, f.Label))
			}
			rec[f.Key] = models.BoolValue(b)

		case models.TypeEnum:
			v, how := foldEnum(t.spec, f, raw)
			switch how {
			case enumDefaulted:
				warnings = append(warnings, fmt.Sprintf("Row %d: %s %q is not recognized; using default %q", rowNum, f.Label, raw, v))
			case enumDropped:
				warnings = append(warnings, fmt.Sprintf("Row %d: %s %q is not recognized and was dropped", rowNum, f.Label, raw))
				continue
			}
			rec[f.Key] = models.EnumValue(v)

		default:
			rec[f.Key] = models.StringValue(raw)
		}
	}

	for _, f := range t.spec.Fields {
		if f.Type == models.TypeEnum && f.Default != "" {
			if _, ok := rec[f.Key]; !ok {
				rec[f.Key] = models.EnumValue(f.Default)
			}
		}
	}
	return rec, warnings, nil
}
