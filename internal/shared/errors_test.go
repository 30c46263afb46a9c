package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	var err error = NewValidationError("quantity", "must be greater than zero")
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, "quantity: must be greater than zero", err.Error())

	err = fmt.Errorf("inventory: %w", &InsufficientStockError{ProductID: 7, Requested: decimal.NewFromInt(5), Available: decimal.RequireFromString("2.5")})
	require.ErrorIs(t, err, ErrInsufficientStock)
	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.True(t, stockErr.Available.Equal(decimal.RequireFromString("2.5")))
	require.Contains(t, err.Error(), "requested 5.000, available 2.500")

	err = &ReferenceError{Entity: "supplier", ID: 9}
	require.ErrorIs(t, err, ErrReference)
	require.False(t, errors.Is(err, ErrValidation))
}

func TestTranslatePgError(t *testing.T) {
	for _, code := range []string{"55P03", "40001", "40P01"} {
		err := TranslatePgError("product:1", fmt.Errorf("exec: %w", &pgconn.PgError{Code: code}))
		require.ErrorIs(t, err, ErrConcurrencyConflict, code)
		require.True(t, IsRetriable(err))
	}

	err := TranslatePgError("product:1", &pgconn.PgError{Code: "23503", ConstraintName: "purchases_supplier_id_fkey"})
	require.ErrorIs(t, err, ErrReference)

	err = TranslatePgError("purchase", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "22003"}))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "value", verr.Field)
	require.False(t, IsRetriable(err))

	err = TranslatePgError("stock", &pgconn.PgError{Code: "23514", ConstraintName: "stocks_quantity_check"})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "stocks_quantity_check", verr.Field)

	plain := errors.New("boom")
	require.Same(t, plain, TranslatePgError("product:1", plain))
	require.NoError(t, TranslatePgError("product:1", nil))
}
