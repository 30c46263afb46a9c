package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock marks a movement that would drive stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrencyConflict marks lock contention or a serialization failure. Safe to retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrReference marks a dangling supplier/product/shop/customer/stock id.
	ErrReference = errors.New("unknown reference")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InsufficientStockError carries the requested and available amounts.
type InsufficientStockError struct {
	ProductID int64
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %s, available %s",
		e.ProductID, e.Requested.StringFixed(3), e.Available.StringFixed(3))
}

// Is lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ConcurrencyConflictError reports contention on a serialization key.
type ConcurrencyConflictError struct {
	Key   string
	Cause error
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("concurrency conflict on %s", e.Key)
	}
	return fmt.Sprintf("concurrency conflict on %s: %v", e.Key, e.Cause)
}

// Is lets errors.Is match ErrConcurrencyConflict.
func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

func (e *ConcurrencyConflictError) Unwrap() error { return e.Cause }

// ReferenceError reports an id that does not resolve to a row.
type ReferenceError struct {
	Entity string
	ID     int64
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %d does not exist", e.Entity, e.ID)
}

// Is lets errors.Is match ErrReference.
func (e *ReferenceError) Is(target error) bool { return target == ErrReference }

// Postgres error codes that mean "try again".
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgForeignKeyViolation  = "23503"
	pgNumericOutOfRange    = "22003"
	pgCheckViolation       = "23514"
)

// TranslatePgError maps retriable postgres failures to ConcurrencyConflictError and
// rejected values to ValidationError. Other errors are returned untouched.
func TranslatePgError(key string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
		return &ConcurrencyConflictError{Key: key, Cause: err}
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrReference, pgErr.ConstraintName)
	case pgNumericOutOfRange:
		return NewValidationError(firstNonEmpty(pgErr.ColumnName, "value"), "numeric value out of range")
	case pgCheckViolation:
		return NewValidationError(firstNonEmpty(pgErr.ConstraintName, "value"), "value violates a check constraint")
	}
	return err
}

// IsRetriable reports whether the caller may retry the operation unchanged.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
