// Package source reads tabular import files into headers and raw rows.
package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/BartekS5/importer/pkg/models"
)

// Table is a parsed source file.
type Table struct {
	Headers []string
	Rows    []models.RawRow
}

// ReadFile picks the reader from the file extension (.csv, .xlsx).
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return ReadCSV(f)
	case ".xlsx", ".xlsm":
		return ReadXLSX(f, "")
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV reads a comma separated file whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}
	return build(records)
}

// ReadXLSX reads one sheet of a workbook, the first one when sheet is empty.
func ReadXLSX(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %s", sheet)
	}
	return build(records)
}

func build(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("file has no header row")
	}
	headers := uniqueHeaders(records[0])
	t := &Table{Headers: headers}
	for _, rec := range records[1:] {
		row := models.RawRow{}
		blank := true
		for i, h := range headers {
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			if v != "" {
				blank = false
			}
			row[h] = v
		}
		if !blank {
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}

// uniqueHeaders trims headers, strips a UTF-8 byte order mark, names empty
// headers by position and suffixes repeated ones.
func uniqueHeaders(raw []string) []string {
	out := make([]string, len(raw))
	seen := map[string]int{}
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		if n := seen[strings.ToLower(h)]; n > 0 {
			seen[strings.ToLower(h)]++
			h = fmt.Sprintf("%s (%d)", h, n+1)
		} else {
			seen[strings.ToLower(h)] = 1
		}
		out[i] = h
	}
	return out
}
