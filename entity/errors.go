/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The recorder, session manager and store wrap these sentinels so callers
  can classify failures with errors.Is().

ERROR CATEGORIES:
  1. NotFound     - session/student/course/mapping/face absent
  2. Conflict     - unique-constraint violation on a business key
  3. InvalidInput - missing or malformed required fields
  4. Storage      - underlying store failure (including rollback)

CONFLICT HANDLING:
  Conflict is surfaced distinctly so import paths can treat it as
  "already exists, proceed" instead of a hard failure.

SEE ALSO:
  - api/handlers.go: maps categories to HTTP status codes
  - store/sqlite/sqlite.go: translates driver errors into these types
*/
package entity

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is the category for every missing-entity error.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a business key already exists.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput is returned when required fields are missing or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorage is the category for store failures.
	ErrStorage = errors.New("storage error")
)

var (
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrStudentNotFound = fmt.Errorf("student %w", ErrNotFound)
	ErrCourseNotFound  = fmt.Errorf("course %w", ErrNotFound)
	ErrMappingNotFound = fmt.Errorf("mapping %w", ErrNotFound)
	ErrFaceNotFound    = fmt.Errorf("face %w", ErrNotFound)

	// ErrMissingIdentity is returned when a recognition event carries no
	// session or no identity at all.
	ErrMissingIdentity = fmt.Errorf("session_id and (student_number or face_id) are required: %w", ErrInvalidInput)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StorageError wraps a driver failure with the operation that produced it.
// It matches both ErrStorage and the underlying cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// NewStorageError returns nil when err is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid is shorthand for an *InvalidInputError.
func Invalid(field, message string) error {
	return &InvalidInputError{Field: field, Message: message}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is a business-key collision.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound)
}
