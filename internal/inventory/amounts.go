package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/shared"
)

// Largest values the ledger columns hold: quantities are NUMERIC(12,3), rates NUMERIC(12,2)
// and money totals NUMERIC(14,2).
var (
	MaxQuantity = decimal.RequireFromString("999999999.999")
	MaxRate     = decimal.RequireFromString("9999999999.99")
	MaxAmount   = decimal.RequireFromString("999999999999.99")
)

// CheckQuantity rejects a quantity with more than QuantityPlaces decimals or beyond MaxQuantity.
// Sign rules are left to the caller.
func CheckQuantity(field string, v decimal.Decimal) error {
	return checkDecimal(field, v, QuantityPlaces, MaxQuantity)
}

// CheckRate rejects a unit rate with more than MoneyPlaces decimals or beyond MaxRate.
func CheckRate(field string, v decimal.Decimal) error {
	return checkDecimal(field, v, MoneyPlaces, MaxRate)
}

// CheckAmount rejects a money amount with more than MoneyPlaces decimals or beyond MaxAmount.
func CheckAmount(field string, v decimal.Decimal) error {
	return checkDecimal(field, v, MoneyPlaces, MaxAmount)
}

func checkDecimal(field string, v decimal.Decimal, places int32, limit decimal.Decimal) error {
	if !v.Equal(v.Round(places)) {
		return shared.NewValidationError(field, fmt.Sprintf("must have at most %d decimal places", places))
	}
	if v.Abs().GreaterThan(limit) {
		return shared.NewValidationError(field, "must not exceed "+limit.String())
	}
	return nil
}
