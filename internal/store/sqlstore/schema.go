package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/pkg/logger"
	"github.com/BartekS5/importer/pkg/models"
)

// uniqueColumns get a filtered unique index per tenant.
var uniqueColumns = map[models.EntityType]string{
	models.EntityUsers: "email",
	models.EntityParts: "sku",
}

// Migrate creates every entity table and the ledger table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, spec := range registry.All() {
		for _, stmt := range tableDDL(spec) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return errors.Wrapf(err, "migrate %s", spec.Type)
			}
		}
		logger.Debugf("sqlserver: table %s ready", tables[spec.Type])
	}
	if _, err := s.db.ExecContext(ctx, ledgerDDL); err != nil {
		return errors.Wrap(err, "migrate import_ledger")
	}
	return nil
}

func tableDDL(spec models.EntitySpec) []string {
	table := tables[spec.Type]
	cols := []string{
		"[id] BIGINT IDENTITY(1,1) PRIMARY KEY",
		"[createdAt] DATETIME2 NOT NULL",
		"[tenantId] BIGINT NOT NULL",
		"[importId] NVARCHAR(64) NULL",
	}
	for _, f := range spec.Fields {
		if f.IsLookup() {
			continue
		}
		col := quote(f.Key) + " " + columnType(spec, f) + " NULL"
		if ref, ok := registry.References(spec, f.Key); ok {
			col += fmt.Sprintf(" REFERENCES %s([id])", quote(tables[ref]))
		}
		cols = append(cols, col)
	}

	stmts := []string{fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (\n  %s\n)",
		table, quote(table), strings.Join(cols, ",\n  "))}

	idx := "IX_" + table + "_tenant_created"
	stmts = append(stmts, fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'%s') CREATE INDEX %s ON %s ([tenantId], [createdAt])",
		idx, quote(idx), quote(table)))
	if col, ok := uniqueColumns[spec.Type]; ok {
		ux := "UX_" + table + "_tenant_" + col
		stmts = append(stmts, fmt.Sprintf(
			"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'%s') CREATE UNIQUE INDEX %s ON %s ([tenantId], %s) WHERE %s IS NOT NULL",
			ux, quote(ux), quote(table), quote(col), quote(col)))
	}
	return stmts
}

func columnType(spec models.EntitySpec, f models.FieldSpec) string {
	if _, ok := registry.References(spec, f.Key); ok {
		return "BIGINT"
	}
	switch f.Type {
	case models.TypeNumber:
		return "FLOAT"
	case models.TypeDate:
		return "DATETIME2"
	case models.TypeBoolean:
		return "BIT"
	case models.TypeEnum:
		return "NVARCHAR(50)"
	}
	if f.Key == "description" {
		return "NVARCHAR(MAX)"
	}
	return "NVARCHAR(400)"
}

const ledgerDDL = `IF OBJECT_ID(N'import_ledger', N'U') IS NULL CREATE TABLE [import_ledger] (
  [importId] NVARCHAR(64) NOT NULL PRIMARY KEY,
  [tenantId] BIGINT NOT NULL,
  [userId] BIGINT NOT NULL,
  [entityType] NVARCHAR(50) NOT NULL,
  [mappings] NVARCHAR(MAX) NOT NULL,
  [totalRows] INT NOT NULL,
  [importedCount] INT NOT NULL,
  [skippedCount] INT NOT NULL,
  [derivedCount] INT NOT NULL,
  [status] NVARCHAR(20) NOT NULL,
  [errors] NVARCHAR(MAX) NOT NULL,
  [duplicates] NVARCHAR(MAX) NOT NULL,
  [failureMessage] NVARCHAR(MAX) NOT NULL,
  [startedAt] DATETIME2 NOT NULL,
  [completedAt] DATETIME2 NULL,
  [durationMs] BIGINT NOT NULL,
  [canRollback] BIT NOT NULL,
  [rolledBack] BIT NOT NULL,
  [rolledBackAt] DATETIME2 NULL,
  [rolledBackBy] BIGINT NOT NULL,
  [deletedCount] BIGINT NOT NULL
)`
