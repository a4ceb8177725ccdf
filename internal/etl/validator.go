package etl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/BartekS5/importer/pkg/models"
	"github.com/BartekS5/importer/pkg/utils"
)

// Validator is the read-only pre-flight check of a mapping and its rows.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// CheckMappings validates the mapping set alone: unknown or doubly-mapped
// targets and required-field coverage are errors, a lookup mapped together
// with its target is a warning.
func (v *Validator) CheckMappings(mappings []models.ColumnMapping, spec models.EntitySpec) (errs, warnings []string) {
	byTarget := map[string][]string{}
	var order []string
	for _, m := range mappings {
		if !m.Mapped() {
			continue
		}
		if _, ok := spec.Field(m.TargetField); !ok {
			errs = append(errs, fmt.Sprintf("Column %q maps to unknown field %q of %s", m.SourceColumn, m.TargetField, spec.Label))
			continue
		}
		if _, seen := byTarget[m.TargetField]; !seen {
			order = append(order, m.TargetField)
		}
		byTarget[m.TargetField] = append(byTarget[m.TargetField], m.SourceColumn)
	}

	for _, target := range order {
		if cols := byTarget[target]; len(cols) > 1 {
			errs = append(errs, fmt.Sprintf("Field %q is mapped from more than one column: %s", target, quoteAll(cols)))
		}
	}

	for _, f := range spec.LookupFields() {
		lookupCols, ok := byTarget[f.Key]
		if !ok {
			continue
		}
		if targetCols, ok := byTarget[f.Lookup.TargetField]; ok {
			warnings = append(warnings, fmt.Sprintf(
				"Both %q (column %s) and %q (column %s) are mapped; the lookup %q wins and the direct id is ignored",
				f.Key, quoteAll(lookupCols), f.Lookup.TargetField, quoteAll(targetCols), f.Key))
		}
	}

	var missing []string
	for _, f := range spec.Fields {
		if !f.Required || covered(f.Key, spec, byTarget) {
			continue
		}
		missing = append(missing, fmt.Sprintf("%s (%s)", f.Label, f.Key))
	}
	if len(missing) > 0 {
		errs = append(errs, "Missing required fields: "+strings.Join(missing, ", "))
	}
	return errs, warnings
}

// covered reports whether key is mapped directly or through its lookup field.
func covered(key string, spec models.EntitySpec, byTarget map[string][]string) bool {
	if _, ok := byTarget[key]; ok {
		return true
	}
	if l, ok := spec.LookupFor(key); ok {
		_, ok := byTarget[l.Key]
		return ok
	}
	return false
}

// Validate runs CheckMappings and then checks every mapped cell.
// Row numbers in messages are 1-based positions in rows.
func (v *Validator) Validate(rows []models.RawRow, mappings []models.ColumnMapping, spec models.EntitySpec) models.ValidationResult {
	errs, warnings := v.CheckMappings(mappings, spec)
	shadowed := shadowedTargets(spec, mappings)

	for i, row := range rows {
		rowNum := i + 1
		for _, m := range mappings {
			if !m.Mapped() || shadowed[m.TargetField] {
				continue
			}
			f, ok := spec.Field(m.TargetField)
			if !ok {
				continue
			}
			e, w := v.checkCell(rowNum, strings.TrimSpace(row[m.SourceColumn]), f, spec)
			if e != "" {
				errs = append(errs, e)
			}
			if w != "" {
				warnings = append(warnings, w)
			}
		}
	}

	return models.ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   nonNilStrings(errs),
		Warnings: nonNilStrings(warnings),
	}
}

func (v *Validator) checkCell(rowNum int, raw string, f models.FieldSpec, spec models.EntitySpec) (errMsg, warning string) {
	if raw == "" {
		if f.Required || requiredTarget(f, spec) {
			return fmt.Sprintf("Row %d: required field %q is empty", rowNum, f.Label), ""
		}
		return "", ""
	}

	switch f.Type {
	case models.TypeNumber:
		var err error
		if f.Duration {
			_, err = utils.ConvertDurationHours(raw)
		} else {
			_, err = utils.ConvertToNumber(raw)
		}
		if err != nil {
			return fmt.Sprintf("Row %d: %q is not a valid number for %s", rowNum, raw, f.Label), ""
		}
	case models.TypeDate:
		if _, err := utils.ConvertDateTime(raw); err != nil {
			return fmt.Sprintf("Row %d: %q is not a valid date for %s", rowNum, raw, f.Label), ""
		}
	case models.TypeBoolean:
		if _, ok := utils.ConvertToBool(raw); !ok {
			return "", fmt.Sprintf("Row %d: %q is not a recognized yes/no value for %s", rowNum, raw, f.Label)
		}
	case models.TypeEnum:
		value, how := foldEnum(spec, f, raw)
		switch how {
		case enumSynonym:
			return "", fmt.Sprintf("Row %d: %s %q is not one of %s; it will be imported as %q",
				rowNum, f.Label, raw, strings.Join(f.EnumValues, ", "), value)
		case enumDefaulted:
			return "", fmt.Sprintf("Row %d: %s %q is not one of %s; the default %q will be used",
				rowNum, f.Label, raw, strings.Join(f.EnumValues, ", "), value)
		case enumDropped:
			return "", fmt.Sprintf("Row %d: %s %q is not one of %s and will be dropped",
				rowNum, f.Label, raw, strings.Join(f.EnumValues, ", "))
		}
	case models.TypeString:
		if f.Format != "" {
			if err := v.validate.Var(raw, f.Format); err != nil {
				return fmt.Sprintf("Row %d: %q is not a valid %s for %s", rowNum, raw, f.Format, f.Label), ""
			}
		}
	}
	return "", ""
}

// requiredTarget reports whether f is a lookup resolving a required field.
func requiredTarget(f models.FieldSpec, spec models.EntitySpec) bool {
	if !f.IsLookup() {
		return false
	}
	target, ok := spec.Field(f.Lookup.TargetField)
	return ok && target.Required
}

func quoteAll(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = fmt.Sprintf("%q", c)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
