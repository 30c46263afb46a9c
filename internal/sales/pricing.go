package sales

import (
	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/inventory"
)

// unitCostPlaces keeps attributed unit costs readable without affecting stored money.
const unitCostPlaces = 4

// Quote is the priced outcome of a sale.
type Quote struct {
	Delivered decimal.Decimal
	Revenue   decimal.Decimal
	UnitCost  decimal.Decimal
	Cost      decimal.Decimal
	Profit    decimal.Decimal
}

// QuoteWholesale prices a wholesale sale. Water is billed but never costed; latestRate is the
// rate of the most recent purchase of the product, zero when none exists.
func QuoteWholesale(quantity, water, rate, discount, latestRate decimal.Decimal) Quote {
	delivered := quantity.Add(water)
	revenue := delivered.Mul(rate).Sub(discount).Round(inventory.MoneyPlaces)
	cost := quantity.Mul(latestRate).Round(inventory.MoneyPlaces)
	return Quote{
		Delivered: delivered,
		Revenue:   revenue,
		UnitCost:  latestRate,
		Cost:      cost,
		Profit:    revenue.Sub(cost),
	}
}

// QuoteRetail prices a retail sale at the weighted average cost of the whole purchase
// history. No purchases means zero cost.
func QuoteRetail(quantity, water, rate decimal.Decimal, history inventory.PurchaseTotals) Quote {
	delivered := quantity.Add(water)
	revenue := delivered.Mul(rate).Round(inventory.MoneyPlaces)
	unitCost := decimal.Zero
	cost := decimal.Zero
	if history.Quantity.IsPositive() {
		unitCost = history.Cost.Div(history.Quantity).Round(unitCostPlaces)
		// Divide last; the average itself is never rounded.
		cost = quantity.Mul(history.Cost).Div(history.Quantity).Round(inventory.MoneyPlaces)
	}
	return Quote{
		Delivered: delivered,
		Revenue:   revenue,
		UnitCost:  unitCost,
		Cost:      cost,
		Profit:    revenue.Sub(cost),
	}
}
