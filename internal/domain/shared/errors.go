// Package shared contains common domain types, errors and events that are used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("not available")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "grouping", "registry", "student"
	Op      string // Operation that failed, e.g., "FormGroup", "Reshuffle"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Grouping domain errors
var (
	ErrGroupNotFound  = NewDomainError("grouping", "SearchGroup", ErrNotFound, "group not found")
	ErrMemberNotFound = NewDomainError("grouping", "FindMember", ErrNotFound, "member not found")
	ErrNotFormed      = NewDomainError("grouping", "FormGroup", ErrUnavailable, "not enough waiting students to form a group")
	ErrSameGroup      = NewDomainError("grouping", "Reshuffle", ErrInvalidInput, "cannot pair a group with itself")
	ErrNilRecord      = NewDomainError("grouping", "Enqueue", ErrInvalidInput, "student record is nil")
	ErrDuplicateID    = NewDomainError("grouping", "Enqueue", ErrAlreadyExists, "student is already waiting or placed")
	ErrInvalidRating  = NewDomainError("grouping", "RecordSessionRating", ErrValueOutOfRange, "session rating must be a finite number")
)

// Registry domain errors
var (
	ErrSubjectNotFound  = NewDomainError("registry", "FindSubject", ErrNotFound, "subject not found")
	ErrSubjectExists    = NewDomainError("registry", "AddSubject", ErrAlreadyExists, "subject already exists")
	ErrLanguageNotFound = NewDomainError("registry", "FindLanguage", ErrNotFound, "language not found")
	ErrLanguageExists   = NewDomainError("registry", "AddLanguage", ErrAlreadyExists, "language already exists")
	ErrEmptyKey         = NewDomainError("registry", "Validate", ErrEmptyValue, "subject and language must not be empty")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsUnavailable checks if the error is an expected "nothing to do" outcome.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}
