package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/app"
	"github.com/mms-dairy/mms/internal/inventory"
	"github.com/mms-dairy/mms/internal/masterdata"
	"github.com/mms-dairy/mms/internal/platform/db"
	"github.com/mms-dairy/mms/internal/sales"
	"github.com/mms-dairy/mms/internal/shared"
	"github.com/mms-dairy/mms/migrations"
)

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolConfig())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if _, err := migrations.Apply(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ledger := inventory.NewLedger(inventory.LedgerConfig{
		Idempotency: shared.NewIdempotencyStore(pool),
		Audit:       shared.NewAuditLogger(pool),
		Logger:      logger,
	})
	master := masterdata.NewService(masterdata.NewRepository(pool))
	inventoryRepo := inventory.NewRepository(pool, cfg.TxConfig())
	stock := inventory.NewService(inventoryRepo, ledger, nil, logger)
	salesService := sales.NewService(sales.NewRepository(pool, cfg.TxConfig()), ledger, logger)

	fmt.Println("→ Seeding master data...")
	milk, err := master.CreateProduct(ctx, masterdata.Product{Name: "Cow Milk", Description: "Full cream", Unit: masterdata.UnitLiter})
	if err != nil {
		log.Fatalf("seed product: %v", err)
	}
	var supplierIDs []int64
	for _, name := range []string{"Green Valley Farm", "Hilltop Dairy"} {
		s, err := master.CreateSupplier(ctx, masterdata.Supplier{Name: name, Active: true})
		if err != nil {
			log.Fatalf("seed supplier %s: %v", name, err)
		}
		supplierIDs = append(supplierIDs, s.ID)
	}
	rate := decimal.RequireFromString("28.00")
	qty := decimal.RequireFromString("20.000")
	shop, err := master.CreateShop(ctx, masterdata.Shop{
		Name: "Corner Sweets", DeliveryRoute: "north", PaymentPref: masterdata.PaymentCredit,
		DefaultSellingRate: &rate, DefaultSellingQuantity: &qty, Active: true,
	})
	if err != nil {
		log.Fatalf("seed shop: %v", err)
	}
	customer, err := master.CreateCustomer(ctx, masterdata.Customer{Name: "Asha", Phone: "555-0101"})
	if err != nil {
		log.Fatalf("seed customer: %v", err)
	}

	fmt.Println("→ Seeding purchases...")
	for i, supplierID := range supplierIDs {
		_, err := stock.RecordPurchase(ctx, inventory.PurchaseInput{
			SupplierID:     supplierID,
			ProductID:      milk.ID,
			Quantity:       decimal.NewFromInt(100),
			ExtraIce:       decimal.RequireFromString("2.5"),
			Rate:           decimal.NewFromInt(int64(20 + i)),
			IdempotencyKey: fmt.Sprintf("seed-purchase-%d", supplierID),
		})
		if err != nil {
			log.Fatalf("seed purchase: %v", err)
		}
	}

	fmt.Println("→ Seeding subscriptions...")
	level, err := inventoryRepo.GetStock(ctx, milk.ID)
	if err != nil {
		log.Fatalf("load stock: %v", err)
	}
	today := sales.Day(time.Now())
	for _, sub := range []sales.Subscription{
		{ShopID: shop.ID, StockID: level.ID, Quantity: qty, Rate: rate, Shift: sales.ShiftMorning, StartDate: today, Active: true},
		{CustomerID: customer.ID, StockID: level.ID, Quantity: decimal.NewFromInt(2), Rate: decimal.NewFromInt(32), Shift: sales.ShiftEvening, StartDate: today, Active: true},
	} {
		if _, err := salesService.CreateSubscription(ctx, sub); err != nil {
			log.Fatalf("seed subscription: %v", err)
		}
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}
