// Package errors provides error handling for the analysis catalog.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Marking, so a wrapped error can belong to several categories at once
//
// On top of that it defines the catalog's error taxonomy as sentinel errors.
// Every error returned by the catalog packages satisfies errors.Is against
// exactly the sentinels that describe it:
//
//	ErrValidation  malformed or missing required input (storage never touched)
//	ErrNotFound    referenced id does not exist
//	ErrDuplicate   uniqueness violation (epoch name, existing id)
//	ErrStorage     backend I/O or connection failure
//	ErrLineage     root entity of a lineage traversal is missing
//	ErrQuery       invalid pagination parameters
//
// Usage:
//
//	if err := store.InsertEpoch(ctx, epoch); err != nil {
//	    if errors.IsDuplicateError(err) {
//	        // name already taken
//	    }
//	    return errors.Wrap(err, "create epoch")
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Catalog error taxonomy.
// Use these with errors.Is() for type-safe error checking.
var (
	// ErrValidation indicates malformed or missing required input
	ErrValidation = New("validation failed")

	// ErrNotFound indicates the requested entity does not exist
	ErrNotFound = New("not found")

	// ErrDuplicate indicates a uniqueness constraint was violated
	ErrDuplicate = New("duplicate")

	// ErrStorage indicates a backend persistence failure
	ErrStorage = New("storage failure")

	// ErrLineage indicates the root entity of a lineage traversal is missing
	ErrLineage = New("lineage error")

	// ErrQuery indicates invalid query or pagination parameters
	ErrQuery = New("invalid query")
)

// NewValidationError creates a validation error with a formatted message
func NewValidationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrValidation)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewDuplicateError creates a duplicate error with a formatted message
func NewDuplicateError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrDuplicate)
}

// NewQueryError creates a query error with a formatted message
func NewQueryError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrQuery)
}

// NewStorageError creates a storage error with a formatted message
func NewStorageError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrStorage)
}

// WrapStorage wraps a lower-level persistence failure as a storage error.
// Errors already carrying a taxonomy mark pass through with added context only.
func WrapStorage(err error, context string) error {
	if err == nil {
		return nil
	}
	if IsAny(err, ErrValidation, ErrNotFound, ErrDuplicate, ErrStorage) {
		return Wrap(err, context)
	}
	return Mark(Wrap(err, context), ErrStorage)
}

// WrapLineage marks err as a lineage error while preserving its original
// category, so callers can still test for ErrNotFound.
func WrapLineage(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrLineage)
}

// IsValidationError checks if an error is or wraps ErrValidation
func IsValidationError(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsDuplicateError checks if an error is or wraps ErrDuplicate
func IsDuplicateError(err error) bool {
	return err != nil && Is(err, ErrDuplicate)
}

// IsStorageError checks if an error is or wraps ErrStorage
func IsStorageError(err error) bool {
	return err != nil && Is(err, ErrStorage)
}

// IsLineageError checks if an error is or wraps ErrLineage
func IsLineageError(err error) bool {
	return err != nil && Is(err, ErrLineage)
}

// IsQueryError checks if an error is or wraps ErrQuery
func IsQueryError(err error) bool {
	return err != nil && Is(err, ErrQuery)
}
