package models

// ValidationResult is the outcome of the read-only validation pass.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ConflictReport lists intra-file duplicates and values already in the store.
type ConflictReport struct {
	Duplicates []string `json:"duplicates"`
	Conflicts  []string `json:"conflicts"`
}

// PreflightReport bundles validation and conflict detection.
type PreflightReport struct {
	Validation ValidationResult `json:"validation"`
	Conflicts  ConflictReport   `json:"conflicts"`
}

// CanCommit is the default commit gate: valid data and no stored conflicts.
func (p PreflightReport) CanCommit() bool {
	return p.Validation.Valid && len(p.Conflicts.Conflicts) == 0
}

// ImportResult is returned by Execute.
type ImportResult struct {
	Success       bool     `json:"success"`
	ImportedCount int      `json:"importedCount"`
	SkippedCount  int      `json:"skippedCount"`
	Errors        []string `json:"errors"`
	Duplicates    []string `json:"duplicates"`
	Warnings      []string `json:"warnings,omitempty"`
	ImportID      string   `json:"importId"`
}

// RollbackResult is returned by Rollback.
type RollbackResult struct {
	Success      bool   `json:"success"`
	DeletedCount int64  `json:"deletedCount"`
	Message      string `json:"message"`
}
