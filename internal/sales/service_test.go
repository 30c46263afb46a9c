package sales_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mms-dairy/mms/internal/inventory"
	"github.com/mms-dairy/mms/internal/sales"
	"github.com/mms-dairy/mms/internal/shared"
	"github.com/mms-dairy/mms/internal/testing/ledgermem"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

var today = time.Date(2026, 3, 2, 5, 30, 0, 0, time.UTC)

type fixture struct {
	store     *ledgermem.Store
	inventory *inventory.Service
	sales     *sales.Service
	milk      int64
	supplier  int64
	shop      int64
	customer  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledgermem.New()
	ledger := inventory.NewLedger(inventory.LedgerConfig{
		Idempotency: store,
		Clock:       func() time.Time { return today },
	})
	return &fixture{
		store:     store,
		inventory: inventory.NewService(store.Inventory(), ledger, nil, nil),
		sales:     sales.NewService(store.Sales(), ledger, nil),
		milk:      store.AddProduct("Milk"),
		supplier:  store.AddSupplier("S1"),
		shop:      store.AddShop("Shop1"),
		customer:  store.AddCustomer("Asha"),
	}
}

func (f *fixture) purchase(t *testing.T, qty, rate string) {
	t.Helper()
	_, err := f.inventory.RecordPurchase(context.Background(), inventory.PurchaseInput{
		SupplierID: f.supplier, ProductID: f.milk, Quantity: dec(qty), Rate: dec(rate),
	})
	require.NoError(t, err)
}

func (f *fixture) stockID(t *testing.T) int64 {
	t.Helper()
	id, ok := f.store.StockID(f.milk)
	require.True(t, ok, "milk has no stock row")
	return id
}

func (f *fixture) requireLedgerMatchesStock(t *testing.T) {
	t.Helper()
	sum := decimal.Zero
	for _, m := range f.store.Movements(f.milk) {
		sum = sum.Add(m.Signed())
	}
	require.True(t, sum.Equal(f.store.StockQuantity(f.milk)), "movements %s, stock %s", sum, f.store.StockQuantity(f.milk))
	require.False(t, f.store.StockQuantity(f.milk).IsNegative())
}

func TestPurchaseWastageWholesaleSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.purchase(t, "100", "2.00")
	requireDecimal(t, "100", f.store.StockQuantity(f.milk))

	_, err := f.inventory.RecordWastage(ctx, inventory.WastageInput{ProductID: f.milk, Quantity: dec("10"), Reason: "spoilage"})
	require.NoError(t, err)
	requireDecimal(t, "90", f.store.StockQuantity(f.milk))

	sale, err := f.sales.RecordWholesaleSale(ctx, sales.WholesaleInput{
		ShopID:     f.shop,
		StockID:    f.stockID(t),
		Quantity:   dec("20"),
		AddedWater: dec("5"),
		Rate:       dec("3.00"),
		Discount:   dec("1.00"),
		Shift:      sales.ShiftMorning,
	})
	require.NoError(t, err)

	requireDecimal(t, "74.00", sale.TotalAmount)
	requireDecimal(t, "40.00", sale.Cost)
	requireDecimal(t, "34.00", sale.Profit)
	requireDecimal(t, "25", sale.DeliveredQuantity())
	assert.Equal(t, sales.PaymentPending, sale.PaymentStatus)
	requireDecimal(t, "70", f.store.StockQuantity(f.milk))

	movements := f.store.Movements(f.milk)
	require.Len(t, movements, 3)
	last := movements[2]
	assert.Equal(t, inventory.DirectionOut, last.Direction)
	requireDecimal(t, "20", last.Quantity)
	assert.Equal(t, "Wholesale sale to Shop1", last.Note)
	assert.Equal(t, "wholesale_sale", last.RefModule)
	assert.Equal(t, sale.ID, last.RefID)
	f.requireLedgerMatchesStock(t)
}

func TestWholesaleCostFollowsLatestPurchase(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "10", "2.00")
	f.purchase(t, "10", "2.40")

	sale, err := f.sales.RecordWholesaleSale(context.Background(), sales.WholesaleInput{
		ShopID: f.shop, StockID: f.stockID(t), Quantity: dec("5"), Rate: dec("3"),
	})
	require.NoError(t, err)
	requireDecimal(t, "12.00", sale.Cost)
	requireDecimal(t, "3.00", sale.Profit)
}

func TestRetailSaleWithoutPurchaseHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.inventory.RecordMovement(ctx, inventory.MovementInput{ProductID: f.milk, Quantity: dec("8"), Direction: inventory.DirectionIn, Note: "opening"})
	require.NoError(t, err)

	sale, err := f.sales.RecordRetailSale(ctx, sales.RetailInput{StockID: f.stockID(t), Quantity: dec("2"), Rate: dec("1.50")})
	require.NoError(t, err)

	requireDecimal(t, "3.00", sale.Total)
	requireDecimal(t, "0", sale.Cost)
	requireDecimal(t, "3.00", sale.Profit)
	assert.Equal(t, sales.PaymentPaid, sale.PaymentStatus)
	assert.Zero(t, sale.CustomerID)
	requireDecimal(t, "6", f.store.StockQuantity(f.milk))
	movements := f.store.Movements(f.milk)
	assert.Equal(t, "Retail sale to Walk-in", movements[len(movements)-1].Note)
}

func TestRetailSaleWeightedCost(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "100", "2.00")
	f.purchase(t, "50", "2.30")

	sale, err := f.sales.RecordRetailSale(context.Background(), sales.RetailInput{
		CustomerID: f.customer, StockID: f.stockID(t), Quantity: dec("10"), AddedWater: dec("2"), Rate: dec("3.00"),
	})
	require.NoError(t, err)

	requireDecimal(t, "36.00", sale.Total)
	requireDecimal(t, "21.00", sale.Cost)
	requireDecimal(t, "15.00", sale.Profit)
	requireDecimal(t, "140", f.store.StockQuantity(f.milk))
	movements := f.store.Movements(f.milk)
	assert.Equal(t, "Retail sale to Asha", movements[len(movements)-1].Note)
}

func TestSaleBeyondStockLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "5", "2.00")

	_, err := f.sales.RecordWholesaleSale(context.Background(), sales.WholesaleInput{
		ShopID: f.shop, StockID: f.stockID(t), Quantity: dec("5.5"), Rate: dec("3"),
	})

	var insufficient *shared.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	requireDecimal(t, "5.5", insufficient.Requested)
	requireDecimal(t, "5", f.store.StockQuantity(f.milk))
	assert.Empty(t, f.store.WholesaleSales())
	assert.Len(t, f.store.Movements(f.milk), 1)
}

func TestSaleValidation(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "5", "2.00")
	ctx := context.Background()
	stockID := f.stockID(t)

	cases := map[string]sales.WholesaleInput{
		"shop_id":        {StockID: stockID, Quantity: dec("1"), Rate: dec("1")},
		"quantity":       {ShopID: f.shop, StockID: stockID, Quantity: dec("0.0004"), Rate: dec("1")},
		"added_water":    {ShopID: f.shop, StockID: stockID, Quantity: dec("1"), AddedWater: dec("-1"), Rate: dec("1")},
		"rate":           {ShopID: f.shop, StockID: stockID, Quantity: dec("1"), Rate: dec("-1")},
		"discount":       {ShopID: f.shop, StockID: stockID, Quantity: dec("1"), Rate: dec("1"), Discount: dec("-0.5")},
		"shift":          {ShopID: f.shop, StockID: stockID, Quantity: dec("1"), Rate: dec("1"), Shift: "night"},
		"payment_status": {ShopID: f.shop, StockID: stockID, Quantity: dec("1"), Rate: dec("1"), PaymentStatus: "owed"},
	}
	for field, input := range cases {
		_, err := f.sales.RecordWholesaleSale(ctx, input)
		var verr *shared.ValidationError
		require.ErrorAs(t, err, &verr, field)
		assert.Equal(t, field, verr.Field)
	}

	_, err := f.sales.RecordRetailSale(ctx, sales.RetailInput{StockID: stockID, Quantity: dec("1"), Rate: dec("1"), PaymentStatus: sales.PaymentPartial})
	require.ErrorIs(t, err, shared.ErrValidation)
	requireDecimal(t, "5", f.store.StockQuantity(f.milk))
}

func TestSaleRejectsValuesOutsideColumnRange(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "5", "2.00")
	ctx := context.Background()
	stockID := f.stockID(t)

	cases := map[string]struct {
		input sales.RetailInput
		field string
	}{
		"tiny negative water": {sales.RetailInput{StockID: stockID, Quantity: dec("1"), AddedWater: dec("-0.0004"), Rate: dec("1")}, "added_water"},
		"four decimal water":  {sales.RetailInput{StockID: stockID, Quantity: dec("1"), AddedWater: dec("0.0004"), Rate: dec("1")}, "added_water"},
		"huge quantity":       {sales.RetailInput{StockID: stockID, Quantity: dec("1000000000"), Rate: dec("1")}, "quantity"},
		"three decimal rate":  {sales.RetailInput{StockID: stockID, Quantity: dec("1"), Rate: dec("1.005")}, "rate"},
		"rate beyond column":  {sales.RetailInput{StockID: stockID, Quantity: dec("1"), Rate: dec("10000000000")}, "rate"},
		"huge water":          {sales.RetailInput{StockID: stockID, Quantity: dec("1"), AddedWater: dec("1000000000"), Rate: dec("1")}, "added_water"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.sales.RecordRetailSale(ctx, tc.input)
			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	_, err := f.sales.RecordWholesaleSale(ctx, sales.WholesaleInput{
		ShopID: f.shop, StockID: stockID, Quantity: dec("1"), Rate: dec("1"), Discount: dec("0.001"),
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "discount", verr.Field)

	requireDecimal(t, "5", f.store.StockQuantity(f.milk))
	assert.Empty(t, f.store.RetailSales())
	assert.Empty(t, f.store.WholesaleSales())
}

func TestSaleTotalBeyondMoneyColumnIsRejected(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "100000000", "0.01")
	ctx := context.Background()

	_, err := f.sales.RecordWholesaleSale(ctx, sales.WholesaleInput{
		ShopID: f.shop, StockID: f.stockID(t), Quantity: dec("100000000"), Rate: dec("99999"),
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "total", verr.Field)

	_, err = f.sales.RecordRetailSale(ctx, sales.RetailInput{
		StockID: f.stockID(t), Quantity: dec("100000000"), Rate: dec("99999"),
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "total", verr.Field)

	requireDecimal(t, "100000000", f.store.StockQuantity(f.milk))
	assert.Len(t, f.store.Movements(f.milk), 1)
	assert.Empty(t, f.store.WholesaleSales())
	assert.Empty(t, f.store.RetailSales())
}

func TestListAndGetSales(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "50", "2.00")
	ctx := context.Background()
	stockID := f.stockID(t)

	var wholesale []sales.WholesaleSale
	for i := 0; i < 3; i++ {
		sale, err := f.sales.RecordWholesaleSale(ctx, sales.WholesaleInput{ShopID: f.shop, StockID: stockID, Quantity: dec("1"), Rate: dec("3")})
		require.NoError(t, err)
		wholesale = append(wholesale, sale)
	}
	retail, err := f.sales.RecordRetailSale(ctx, sales.RetailInput{CustomerID: f.customer, StockID: stockID, Quantity: dec("2"), Rate: dec("4")})
	require.NoError(t, err)

	page, err := f.sales.ListWholesaleSales(ctx, shared.ListFilter{ProductID: f.milk, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, wholesale[0].ID, page.Items[0].ID)
	require.Equal(t, wholesale[1].ID, page.NextAfterID)

	page, err = f.sales.ListWholesaleSales(ctx, shared.ListFilter{ProductID: f.milk, AfterID: page.NextAfterID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, wholesale[2].ID, page.Items[0].ID)
	assert.Zero(t, page.NextAfterID)

	got, err := f.sales.GetWholesaleSale(ctx, wholesale[1].ID)
	require.NoError(t, err)
	requireDecimal(t, "3.00", got.TotalAmount)
	assert.Equal(t, f.milk, got.ProductID)

	retailPage, err := f.sales.ListRetailSales(ctx, shared.ListFilter{})
	require.NoError(t, err)
	require.Len(t, retailPage.Items, 1)
	assert.Equal(t, retail.ID, retailPage.Items[0].ID)

	gotRetail, err := f.sales.GetRetailSale(ctx, retail.ID)
	require.NoError(t, err)
	requireDecimal(t, "8.00", gotRetail.Total)

	_, err = f.sales.GetWholesaleSale(ctx, 9999)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.sales.GetRetailSale(ctx, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.sales.ListRetailSales(ctx, shared.ListFilter{AfterID: -1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSaleCancelledMidTransactionLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "10", "2.00")
	f.store.SetTxDelay(200 * time.Millisecond)
	key := "2f7d8a9e-4c1b-4e55-9a0d-5b6c7d8e9f10"

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.sales.RecordRetailSale(ctx, sales.RetailInput{StockID: f.stockID(t), Quantity: dec("4"), Rate: dec("3"), IdempotencyKey: key})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	requireDecimal(t, "10", f.store.StockQuantity(f.milk))
	assert.Len(t, f.store.Movements(f.milk), 1)
	assert.Empty(t, f.store.RetailSales())
	assert.False(t, f.store.HasKey(inventory.RequestKey(sales.OpRetail, key)))

	f.store.SetTxDelay(0)
	_, err = f.sales.RecordRetailSale(context.Background(), sales.RetailInput{StockID: f.stockID(t), Quantity: dec("4"), Rate: dec("3"), IdempotencyKey: key})
	require.NoError(t, err)
	requireDecimal(t, "6", f.store.StockQuantity(f.milk))
	f.requireLedgerMatchesStock(t)
}

func TestSaleUnknownReferences(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "5", "2.00")
	ctx := context.Background()

	_, err := f.sales.RecordWholesaleSale(ctx, sales.WholesaleInput{ShopID: 404, StockID: f.stockID(t), Quantity: dec("1"), Rate: dec("1")})
	require.ErrorIs(t, err, shared.ErrReference)

	_, err = f.sales.RecordRetailSale(ctx, sales.RetailInput{CustomerID: 404, StockID: f.stockID(t), Quantity: dec("1"), Rate: dec("1")})
	require.ErrorIs(t, err, shared.ErrReference)

	_, err = f.sales.RecordRetailSale(ctx, sales.RetailInput{StockID: 404, Quantity: dec("1"), Rate: dec("1")})
	var ref *shared.ReferenceError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "stock", ref.Entity)

	requireDecimal(t, "5", f.store.StockQuantity(f.milk))
}

func TestIdempotentSaleIsRecordedOnce(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "5", "2.00")
	input := sales.RetailInput{StockID: f.stockID(t), Quantity: dec("1"), Rate: dec("2"), IdempotencyKey: "9d1c1c4e-0c7a-4f0e-8a55-6a2b0b9b1e01"}

	_, err := f.sales.RecordRetailSale(context.Background(), input)
	require.NoError(t, err)
	_, err = f.sales.RecordRetailSale(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	assert.Len(t, f.store.RetailSales(), 1)
	requireDecimal(t, "4", f.store.StockQuantity(f.milk))
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	const n = 16
	f.purchase(t, "15", "2.00")
	f.store.SetTxDelay(time.Millisecond)
	stockID := f.stockID(t)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, shortage int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sales.RecordRetailSale(context.Background(), sales.RetailInput{StockID: stockID, Quantity: dec("1"), Rate: dec("2")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, shared.ErrInsufficientStock):
				shortage++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n-1, ok)
	assert.Equal(t, 1, shortage)
	assert.True(t, f.store.StockQuantity(f.milk).IsZero())
	assert.Len(t, f.store.RetailSales(), n-1)
	f.requireLedgerMatchesStock(t)
}

func TestConcurrentFullStockWholesaleOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "30", "2.00")
	f.store.SetTxDelay(5 * time.Millisecond)
	stockID := f.stockID(t)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.sales.RecordWholesaleSale(context.Background(), sales.WholesaleInput{
				ShopID: f.shop, StockID: stockID, Quantity: dec("30"), Rate: dec("3"),
			})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, shared.ErrInsufficientStock)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Len(t, f.store.WholesaleSales(), 1)
	assert.True(t, f.store.StockQuantity(f.milk).IsZero())
	f.requireLedgerMatchesStock(t)
}
