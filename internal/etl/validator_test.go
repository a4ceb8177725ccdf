package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/pkg/models"
)

func TestCheckMappingsRequiredCoverage(t *testing.T) {
	v := NewValidator()
	spec := registry.MustLookup(models.EntityUsers)

	errs, warnings := v.CheckMappings(identity(models.EntityUsers, "name", "role"), spec)
	assert.Equal(t, []string{"Missing required fields: Email (email)"}, errs)
	assert.Empty(t, warnings)

	errs, _ = v.CheckMappings(identity(models.EntityUsers, "name", "email"), spec)
	assert.Empty(t, errs)
}

func TestCheckMappingsLookupCoversTarget(t *testing.T) {
	v := NewValidator()
	spec := registry.MustLookup(models.EntityMaintenanceSchedules)

	errs, _ := v.CheckMappings(identity(models.EntityMaintenanceSchedules, "name", "assetName"), spec)
	assert.Empty(t, errs)

	errs, _ = v.CheckMappings(identity(models.EntityMaintenanceSchedules, "name"), spec)
	assert.Equal(t, []string{"Missing required fields: Asset ID (assetId)"}, errs)
}

func TestCheckMappingsUnknownAndDuplicateTargets(t *testing.T) {
	v := NewValidator()
	spec := registry.MustLookup(models.EntityUsers)
	mappings := []models.ColumnMapping{
		{SourceColumn: "Name", TargetField: "name"},
		{SourceColumn: "Mail", TargetField: "email"},
		{SourceColumn: "Email 2", TargetField: "email"},
		{SourceColumn: "Shoe", TargetField: "shoeSize"},
		{SourceColumn: "Notes"},
	}
	errs, _ := v.CheckMappings(mappings, spec)
	assert.Equal(t, []string{
		`Column "Shoe" maps to unknown field "shoeSize" of Users`,
		`Field "email" is mapped from more than one column: "Email 2", "Mail"`,
	}, errs)
}

func TestCheckMappingsLookupWins(t *testing.T) {
	v := NewValidator()
	spec := registry.MustLookup(models.EntityWorkOrders)
	errs, warnings := v.CheckMappings(identity(models.EntityWorkOrders, "title", "assetName", "assetId"), spec)
	assert.Empty(t, errs)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `the lookup "assetName" wins`)
}

func TestValidateCells(t *testing.T) {
	v := NewValidator()
	spec := registry.MustLookup(models.EntityUsers)
	mappings := identity(models.EntityUsers, "name", "email", "role", "active")
	rows := rowsOf([]string{"name", "email", "role", "active"},
		[]string{"Ann", "ann@example.com", "manager", "yes"},
		[]string{"", "bob@example.com", "supervisor", "maybe"},
		[]string{"Cy", "not-an-email", "wizard", "no"},
	)

	res := v.Validate(rows, mappings, spec)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{
		`Row 2: required field "Name" is empty`,
		`Row 3: "not-an-email" is not a valid email for Email`,
	}, res.Errors)
	assert.Equal(t, []string{
		`Row 2: Role "supervisor" is not one of ADMIN, MANAGER, TECHNICIAN, REQUESTER, VIEWER; it will be imported as "MANAGER"`,
		`Row 2: "maybe" is not a recognized yes/no value for Active`,
		`Row 3: Role "wizard" is not one of ADMIN, MANAGER, TECHNICIAN, REQUESTER, VIEWER; the default "TECHNICIAN" will be used`,
	}, res.Warnings)
}

func TestValidateNumbersAndDates(t *testing.T) {
	v := NewValidator()
	spec := registry.MustLookup(models.EntityWorkOrders)
	mappings := identity(models.EntityWorkOrders, "title", "dueDate", "estimatedHours")
	rows := rowsOf([]string{"title", "dueDate", "estimatedHours"},
		[]string{"Fix pump", "2024-07-01", "1:30:00"},
		[]string{"Fix fan", "someday", "lots"},
		[]string{"Fix belt", "5", "2"},
		[]string{"Fix door", "45474", "2"},
	)

	res := v.Validate(rows, mappings, spec)
	assert.Equal(t, []string{
		`Row 2: "someday" is not a valid date for Due Date`,
		`Row 2: "lots" is not a valid number for Estimated Duration`,
		`Row 3: "5" is not a valid date for Due Date`,
	}, res.Errors)
}

func TestValidateIgnoresShadowedTarget(t *testing.T) {
	v := NewValidator()
	spec := registry.MustLookup(models.EntityWorkOrders)
	mappings := identity(models.EntityWorkOrders, "title", "assetName", "assetId")
	rows := rowsOf([]string{"title", "assetName", "assetId"}, []string{"Fix pump", "Pump 1", "not a number"})

	res := v.Validate(rows, mappings, spec)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Warnings, 1)
}

func TestValidateEmptyRowsKeepsSlices(t *testing.T) {
	res := NewValidator().Validate(nil, identity(models.EntityLocations, "name"), registry.MustLookup(models.EntityLocations))
	assert.True(t, res.Valid)
	assert.NotNil(t, res.Errors)
	assert.NotNil(t, res.Warnings)
}
