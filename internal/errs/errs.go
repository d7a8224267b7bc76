// Package errs defines the error taxonomy shared by the catalog, storage and
// engine packages. Typed errors unwrap to a package sentinel so callers can
// classify failures with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a collection, row or field does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates the request failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates a derived storage key collides with an existing one.
	ErrConflict = errors.New("schema conflict")
	// ErrUnsupported indicates the storage engine cannot perform an operation.
	ErrUnsupported = errors.New("unsupported")
)

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string // "collection", "row", "field", "formula"
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports invalid input detected before any mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// ConflictError reports a storage key collision.
type ConflictError struct {
	Key    string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("storage key %q conflicts: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("storage key %q conflicts with an existing field", e.Key)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StorageError reports a schema-evolution operation the storage engine
// refused or cannot perform.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage %s on %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage %s on %s: unsupported", e.Op, e.Table)
}

func (e *StorageError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUnsupported, e.Err}
	}
	return []error{ErrUnsupported}
}

// NotFound is shorthand for a *NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalid reports whether err is, or wraps, ErrInvalidInput.
func IsInvalid(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsConflict reports whether err is, or wraps, ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
