package template

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/pkg/models"
)

var locationHeader = []string{"Name *", "Address", "Description", "Parent Location", "Legacy ID"}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"csv": FormatCSV, "CSV": FormatCSV, ".xlsx": FormatXLSX, " xlsx ": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestColumnsSkipLookupTargets(t *testing.T) {
	spec := registry.MustLookup(models.EntityLocations)
	for _, f := range Columns(spec) {
		assert.NotEqual(t, "parentId", f.Key)
	}
	header, example := Rows(spec)
	assert.Equal(t, locationHeader, header)
	assert.Len(t, example, len(header))
	assert.Equal(t, "Building A", example[0])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, registry.MustLookup(models.EntityLocations), FormatCSV))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, locationHeader, records[0])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, registry.MustLookup(models.EntityLocations), FormatXLSX))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "Locations", f.GetSheetName(0))
	rows, err := f.GetRows("Locations")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 1)
	assert.Equal(t, locationHeader, rows[0])
}

func TestWriteUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, registry.MustLookup(models.EntityUsers), Format("pdf")))
}
