package sales

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mms-dairy/mms/internal/inventory"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(d(want)), "want %s, got %s", want, got)
}

func TestQuoteWholesaleUsesLatestPurchaseRate(t *testing.T) {
	q := QuoteWholesale(d("20"), d("5"), d("3.00"), d("1.00"), d("2.00"))

	requireDecimal(t, "25", q.Delivered)
	requireDecimal(t, "74.00", q.Revenue)
	requireDecimal(t, "2.00", q.UnitCost)
	requireDecimal(t, "40.00", q.Cost)
	requireDecimal(t, "34.00", q.Profit)
}

func TestQuoteWholesaleWithoutPurchases(t *testing.T) {
	q := QuoteWholesale(d("10"), decimal.Zero, d("2.50"), decimal.Zero, decimal.Zero)

	requireDecimal(t, "25.00", q.Revenue)
	requireDecimal(t, "0", q.Cost)
	requireDecimal(t, "25.00", q.Profit)
}

func TestQuoteWholesaleDiscountMayExceedRevenue(t *testing.T) {
	q := QuoteWholesale(d("1"), decimal.Zero, d("2.00"), d("5.00"), d("1.00"))

	requireDecimal(t, "-3.00", q.Revenue)
	requireDecimal(t, "-4.00", q.Profit)
}

func TestQuoteRetailWeightedAverage(t *testing.T) {
	history := inventory.PurchaseTotals{Quantity: d("150"), Cost: d("315")}

	q := QuoteRetail(d("10"), d("2"), d("3.00"), history)

	requireDecimal(t, "12", q.Delivered)
	requireDecimal(t, "36.00", q.Revenue)
	requireDecimal(t, "2.1", q.UnitCost)
	requireDecimal(t, "21.00", q.Cost)
	requireDecimal(t, "15.00", q.Profit)
}

func TestQuoteRetailRoundsCostOnce(t *testing.T) {
	history := inventory.PurchaseTotals{Quantity: d("3"), Cost: d("10")}

	requireDecimal(t, "3.33", QuoteRetail(d("1"), decimal.Zero, d("4"), history).Cost)
	requireDecimal(t, "6.67", QuoteRetail(d("2"), decimal.Zero, d("4"), history).Cost)
	requireDecimal(t, "3.3333", QuoteRetail(d("2"), decimal.Zero, d("4"), history).UnitCost)
}

func TestQuoteRetailWithoutHistory(t *testing.T) {
	q := QuoteRetail(d("4"), decimal.Zero, d("1.25"), inventory.PurchaseTotals{})

	requireDecimal(t, "0", q.UnitCost)
	requireDecimal(t, "0", q.Cost)
	requireDecimal(t, "5.00", q.Profit)
	require.True(t, q.Profit.Equal(q.Revenue))
}
