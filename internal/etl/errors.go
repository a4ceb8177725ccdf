package etl

import (
	"fmt"
	"strings"
)

// ConfigurationError aborts a call before any store access, e.g. for an
// unknown entity type.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError blocks a commit. Nothing has been written when it is returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// OrchestrationError is a failure of batch setup rather than of a single
// row. Batches committed before it stay committed.
type OrchestrationError struct {
	ImportID string
	Batch    int
	Err      error
}

func (e *OrchestrationError) Error() string {
	if e.Batch > 0 {
		return fmt.Sprintf("import %s failed in batch %d: %v", e.ImportID, e.Batch, e.Err)
	}
	return fmt.Sprintf("import %s failed: %v", e.ImportID, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }
