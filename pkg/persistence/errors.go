// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates a workflow definition was not found for the account.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrStepNotFound indicates a step is not part of the workflow definition.
	ErrStepNotFound = errors.New("workflow step not found")

	// ErrExecutionNotFound indicates a step execution was not found.
	ErrExecutionNotFound = errors.New("step execution not found")

	// ErrApprovalNotFound indicates no pending approval matches the identifier and approver.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrResumptionNotFound indicates a scheduled resumption was not found.
	ErrResumptionNotFound = errors.New("scheduled resumption not found")
)

// RecordError wraps repository errors with the operation and the record involved.
type RecordError struct {
	Op       string // Operation being performed (e.g., "GetByID", "Create", "Decide")
	Kind     string // Record kind (e.g., "definition", "instance")
	RecordID string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Kind, e.RecordID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, kind, recordID string, err error) *RecordError {
	return &RecordError{
		Op:       op,
		Kind:     kind,
		RecordID: recordID,
		Err:      err,
	}
}

// IsNotFound checks if an error indicates that any persisted record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrApprovalNotFound) ||
		errors.Is(err, ErrResumptionNotFound)
}

// IsDefinitionNotFound checks if an error indicates a definition was not found.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsApprovalNotFound checks if an error indicates an approval was not found.
func IsApprovalNotFound(err error) bool {
	return errors.Is(err, ErrApprovalNotFound)
}
