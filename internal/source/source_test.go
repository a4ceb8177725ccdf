package source

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/BartekS5/importer/pkg/models"
)

func TestReadCSV(t *testing.T) {
	in := "\ufeffName, Email ,,Email\n" +
		"Ann,ann@example.com,x,ann2@example.com\n" +
		" , ,,\n" +
		"Bob,bob@example.com\n"

	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Email", "Column 3", "Email (2)"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2, "blank rows are dropped")
	assert.Equal(t, models.RawRow{"Name": "Ann", "Email": "ann@example.com", "Column 3": "x", "Email (2)": "ann2@example.com"}, tbl.Rows[0])
	assert.Equal(t, "", tbl.Rows[1]["Email (2)"], "short records are padded")
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestUniqueHeaders(t *testing.T) {
	assert.Equal(t,
		[]string{"SKU", "sku (2)", "SKU (3)", "Column 4"},
		uniqueHeaders([]string{"SKU", "sku", " SKU ", ""}))
}

func workbook(t *testing.T) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("Parts")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]string{"Name"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]string{"First sheet"}))
	require.NoError(t, f.SetSheetRow("Parts", "A1", &[]string{"Part Name", "SKU", "Qty"}))
	require.NoError(t, f.SetSheetRow("Parts", "A2", &[]any{"Filter", "F-100", 4}))

	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)
	return &buf
}

func TestReadXLSX(t *testing.T) {
	t.Run("first sheet by default", func(t *testing.T) {
		tbl, err := ReadXLSX(workbook(t), "")
		require.NoError(t, err)
		assert.Equal(t, []string{"Name"}, tbl.Headers)
		require.Len(t, tbl.Rows, 1)
		assert.Equal(t, "First sheet", tbl.Rows[0]["Name"])
	})

	t.Run("named sheet", func(t *testing.T) {
		tbl, err := ReadXLSX(workbook(t), "Parts")
		require.NoError(t, err)
		assert.Equal(t, []string{"Part Name", "SKU", "Qty"}, tbl.Headers)
		require.Len(t, tbl.Rows, 1)
		assert.Equal(t, models.RawRow{"Part Name": "Filter", "SKU": "F-100", "Qty": "4"}, tbl.Rows[0])
	})

	t.Run("missing sheet", func(t *testing.T) {
		_, err := ReadXLSX(workbook(t), "Nope")
		assert.Error(t, err)
	})
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "users.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte("Name,Email\nAnn,ann@example.com\n"), 0o644))
	tbl, err := ReadFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 1)

	xlsxPath := filepath.Join(dir, "parts.xlsx")
	require.NoError(t, os.WriteFile(xlsxPath, workbook(t).Bytes(), 0o644))
	tbl, err = ReadFile(xlsxPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name"}, tbl.Headers)

	_, err = ReadFile(filepath.Join(dir, "notes.pdf"))
	assert.Error(t, err)

	pdf := filepath.Join(dir, "notes.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))
	_, err = ReadFile(pdf)
	assert.ErrorContains(t, err, "unsupported file type")
}
