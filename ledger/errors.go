/*
errors.go - Centralized error types for the credit ledger

PURPOSE:
  All ledger error types in one place. Callers match with errors.Is /
  errors.As; the HTTP layer maps them to status codes.

ERROR CATEGORIES:
  1. Referential - missing repair orders (usually a benign race)
  2. Validation  - attempts the ledger refuses (baseline deletion)
  3. Store       - persistence-level failures, wrapped with context
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRONotFound is returned when a repair order does not exist.
	// Recompute and credit posting treat it as a silent skip because RO
	// deletion can race benignly with a recompute pass.
	ErrRONotFound = errors.New("repair order not found")

	// ErrBaselineNotDeletable is returned when an operator tries to delete
	// a baseline-origin credit row. Baselines are frozen forever; only
	// supplement and override rows are deletable.
	ErrBaselineNotDeletable = errors.New("baseline credit rows cannot be deleted")

	// ErrRowNotDeletable is returned when a credit row matches neither a
	// stored adjustment nor a stored override.
	ErrRowNotDeletable = errors.New("credit row matches no deletable override or supplement")

	// ErrUnknownStage is returned when a stage name is not in the
	// configured stage order.
	ErrUnknownStage = errors.New("stage not in configured stage order")

	// ErrUnknownMilestone is returned when a note references a milestone
	// absent from the current configuration.
	ErrUnknownMilestone = errors.New("milestone not in configuration")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// StageError reports an unknown stage with the offending name.
type StageError struct {
	Stage string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q is not in the configured stage order", e.Stage)
}

func (e *StageError) Unwrap() error { return ErrUnknownStage }

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRONotFound)
}
