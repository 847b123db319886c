package search

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError
	ErrValidation = errors.New("invalid search request")
	// ErrQueryBuild matches every *QueryBuildError
	ErrQueryBuild = errors.New("search query build failed")
	// ErrQueryExecution matches every *QueryExecutionError
	ErrQueryExecution = errors.New("search query execution failed")
)

// ValidationError reports a malformed request. It is returned before any SQL is built.
type ValidationError struct {
	Field  string
	Reason string
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

// Is reports whether target is ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// QueryBuildError indicates a builder invariant was violated
type QueryBuildError struct {
	Reason string
}

func (e *QueryBuildError) Error() string {
	return fmt.Sprintf("%s: %s", ErrQueryBuild, e.Reason)
}

// Is reports whether target is ErrQueryBuild
func (e *QueryBuildError) Is(target error) bool {
	return target == ErrQueryBuild
}

// QueryExecutionError wraps a failure from the executor or role resolver
type QueryExecutionError struct {
	Op  string
	Err error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrQueryExecution, e.Op, e.Err)
}

// Unwrap returns the underlying cause
func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrQueryExecution
func (e *QueryExecutionError) Is(target error) bool {
	return target == ErrQueryExecution
}
