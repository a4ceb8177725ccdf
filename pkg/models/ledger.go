package models

import "time"

// ImportStatus is the lifecycle state of a ledger entry.
type ImportStatus string

const (
	StatusInProgress ImportStatus = "IN_PROGRESS"
	StatusCompleted  ImportStatus = "COMPLETED"
	StatusPartial    ImportStatus = "PARTIAL"
	StatusFailed     ImportStatus = "FAILED"
)

// LedgerEntry is the persisted audit record of one import run.
// Entries are never deleted.
type LedgerEntry struct {
	ImportID       string          `json:"importId" bson:"_id"`
	TenantID       int64           `json:"tenantId" bson:"tenantId"`
	UserID         int64           `json:"userId" bson:"userId"`
	EntityType     EntityType      `json:"entityType" bson:"entityType"`
	Mappings       []ColumnMapping `json:"mappings" bson:"mappings"`
	TotalRows      int             `json:"totalRows" bson:"totalRows"`
	ImportedCount  int             `json:"importedCount" bson:"importedCount"`
	SkippedCount   int             `json:"skippedCount" bson:"skippedCount"`
	DerivedCount   int             `json:"derivedCount" bson:"derivedCount"`
	Status         ImportStatus    `json:"status" bson:"status"`
	Errors         []string        `json:"errors" bson:"errors"`
	Duplicates     []string        `json:"duplicates" bson:"duplicates"`
	FailureMessage string          `json:"failureMessage,omitempty" bson:"failureMessage,omitempty"`
	StartedAt      time.Time       `json:"startedAt" bson:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	DurationMs     int64           `json:"durationMs" bson:"durationMs"`
	CanRollback    bool            `json:"canRollback" bson:"canRollback"`
	RolledBack     bool            `json:"rolledBack" bson:"rolledBack"`
	RolledBackAt   *time.Time      `json:"rolledBackAt,omitempty" bson:"rolledBackAt,omitempty"`
	RolledBackBy   int64           `json:"rolledBackBy,omitempty" bson:"rolledBackBy,omitempty"`
	DeletedCount   int64           `json:"deletedCount,omitempty" bson:"deletedCount,omitempty"`
}

// FinalStatus derives the terminal status from the run counts.
func FinalStatus(imported, skipped, errors int) ImportStatus {
	switch {
	case imported == 0:
		return StatusFailed
	case skipped > 0 || errors > 0:
		return StatusPartial
	default:
		return StatusCompleted
	}
}
