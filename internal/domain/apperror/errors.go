// Package apperror defines the error taxonomy shared by the application layer and its adapters.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches any *ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches any *NotFoundError
	ErrNotFound = errors.New("not found")

	// ErrAlreadyTerminal is returned by a conditional status update that matched no row
	ErrAlreadyTerminal = errors.New("request already decided")

	// ErrDependency matches any *DependencyError
	ErrDependency = errors.New("dependency failure")
)

// FieldProblem describes one rejected input field
type FieldProblem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in caller-supplied data
type ValidationError struct {
	Problems []FieldProblem
}

// NewValidationError creates a validation error holding a single problem
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Problems: []FieldProblem{{Field: field, Message: message}}}
}

// Add records a problem for field
func (e *ValidationError) Add(field, message string) {
	e.Problems = append(e.Problems, FieldProblem{Field: field, Message: message})
}

// HasProblems reports whether any problem was recorded
func (e *ValidationError) HasProblems() bool {
	return len(e.Problems) > 0
}

// Has reports whether field has a recorded problem
func (e *ValidationError) Has(field string) bool {
	for _, p := range e.Problems {
		if p.Field == field {
			return true
		}
	}
	return false
}

// OrNil returns the error when problems were recorded, otherwise nil
func (e *ValidationError) OrNil() error {
	if e == nil || !e.HasProblems() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s: %s", p.Field, p.Message))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports a missing request, session or page source
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFound creates a not found error for resource identified by id
func NewNotFound(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DependencyError wraps an unexpected failure of persistence, cache or another collaborator
type DependencyError struct {
	Op  string
	Err error
}

// Dependency wraps err as a dependency failure of op. A nil err stays nil.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *DependencyError
	if errors.As(err, &existing) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() []error { return []error{ErrDependency, e.Err} }

// Problems extracts the field problems from err, or nil when err is not a validation error
func Problems(err error) []FieldProblem {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Problems
	}
	return nil
}
