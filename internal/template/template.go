// Package template writes empty import files: a header row of field labels
// and one example row.
package template

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/BartekS5/importer/pkg/models"
)

// Format is the template file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" and "xlsx" (case-insensitive, optional dot).
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported template format %q", s)
	}
}

// Columns returns the template fields of an entity: every field except the
// id targets of lookups, which are filled from the lookup column instead.
func Columns(spec models.EntitySpec) []models.FieldSpec {
	var out []models.FieldSpec
	for _, f := range spec.Fields {
		if _, shadowed := spec.LookupFor(f.Key); shadowed {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Rows returns the header and example rows.
func Rows(spec models.EntitySpec) (header, example []string) {
	for _, f := range Columns(spec) {
		label := f.Label
		if f.Required {
			label += " *"
		}
		header = append(header, label)
		example = append(example, f.Example)
	}
	return header, example
}

// Write renders the template of spec in the given format.
func Write(w io.Writer, spec models.EntitySpec, format Format) error {
	switch format {
	case FormatCSV, "":
		return writeCSV(w, spec)
	case FormatXLSX:
		return writeXLSX(w, spec)
	default:
		return fmt.Errorf("unsupported template format %q", format)
	}
}

func writeCSV(w io.Writer, spec models.EntitySpec) error {
	header, example := Rows(spec)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(example); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, spec models.EntitySpec) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := spec.Label
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	header, example := Rows(spec)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A2", &example); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
